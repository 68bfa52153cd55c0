package model

import "time"

// DeliveryAttempt is one row of delivery history in ClickHouse.
type DeliveryAttempt struct {
	NotificationID string    `db:"notification_id" json:"notification_id"`
	ClientID       string    `db:"client_id"       json:"client_id"`
	EventType      string    `db:"event_type"      json:"event_type"`
	Attempt        uint16    `db:"attempt"         json:"attempt"`
	Status         string    `db:"status"          json:"status"` // delivered|retry|failed
	HTTPStatus     uint16    `db:"http_status"     json:"http_status"`
	Error          string    `db:"error"           json:"error,omitempty"`
	LatencyMs      uint32    `db:"latency_ms"      json:"latency_ms"`
	AttemptedAt    time.Time `db:"attempted_at"    json:"attempted_at"`
}
