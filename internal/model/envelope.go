package model

// Envelope is the outbox payload published to Kafka (via Debezium outbox SMT)
// when a notification is enqueued. It only nudges the delivery worker.
type Envelope struct {
	NotificationID string `json:"notification_id"`
	ClientID       string `json:"client_id"`
	EventType      string `json:"event_type"`
}
