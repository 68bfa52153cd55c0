package model

import "time"

type NotificationStatus string

const (
	NotificationPending   NotificationStatus = "pending"
	NotificationInFlight  NotificationStatus = "in_flight" // claimed by a worker run
	NotificationDelivered NotificationStatus = "delivered"
	NotificationFailed    NotificationStatus = "failed"
)

func (s NotificationStatus) String() string { return string(s) }

func (s NotificationStatus) Valid() bool {
	switch s {
	case NotificationPending, NotificationInFlight, NotificationDelivered, NotificationFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s NotificationStatus) Terminal() bool {
	return s == NotificationDelivered || s == NotificationFailed
}

// Public hides the claim state: an in-flight record is still pending to callers.
func (s NotificationStatus) Public() NotificationStatus {
	if s == NotificationInFlight {
		return NotificationPending
	}
	return s
}

const (
	EventDataIngestionCompleted = "data_ingestion_completed"

	DefaultMaxRetries = 3
	DefaultBatchSize  = 10
)

// StatusAfterFailure is the state a record moves to after a failed attempt
// that brought its retry count to newRetryCount.
func StatusAfterFailure(newRetryCount, maxRetries int) NotificationStatus {
	if newRetryCount >= maxRetries {
		return NotificationFailed
	}
	return NotificationPending
}

// WebhookNotification is a queued outbound callback. Rows are never deleted.
type WebhookNotification struct {
	ID            string             `db:"id"              json:"id"`
	ClientID      string             `db:"client_id"       json:"client_id"`
	EventType     string             `db:"event_type"      json:"event_type"`
	Payload       RawJSON            `db:"payload"         json:"payload"`
	WebhookURL    string             `db:"webhook_url"     json:"webhook_url"`
	Status        NotificationStatus `db:"status"          json:"status"`
	RetryCount    int                `db:"retry_count"     json:"retry_count"`
	NextAttemptAt time.Time          `db:"next_attempt_at" json:"next_attempt_at"`
	ClaimToken    *string            `db:"claim_token"     json:"-"`
	ClaimedAt     *time.Time         `db:"claimed_at"      json:"-"`
	LastError     *string            `db:"last_error"      json:"last_error,omitempty"`
	CreatedAt     time.Time          `db:"created_at"      json:"created_at"`
	LastAttemptAt *time.Time         `db:"last_attempt_at" json:"last_attempt_at,omitempty"`
	DeliveredAt   *time.Time         `db:"delivered_at"    json:"delivered_at,omitempty"`
}

// FailedAttempt carries the fields written after an unsuccessful delivery.
type FailedAttempt struct {
	RetryCount    int
	Status        NotificationStatus // pending | failed
	AttemptedAt   time.Time
	NextAttemptAt time.Time
	Error         string
}

// IngestionCompletedPayload is the data of a data_ingestion_completed event.
type IngestionCompletedPayload struct {
	LogID            string          `json:"log_id"`
	IngestionType    DataType        `json:"ingestion_type"`
	RecordCount      int             `json:"record_count"`
	SuccessCount     int             `json:"success_count"`
	ErrorCount       int             `json:"error_count"`
	Status           IngestionStatus `json:"status"`
	ProcessingTimeMs int64           `json:"processing_time_ms"`
}
