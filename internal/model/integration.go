package model

import (
	"strings"
	"time"
)

// ClientIntegration is the per-tenant integration config read at enqueue time.
type ClientIntegration struct {
	ClientID   string    `db:"client_id"`
	WebhookURL *string   `db:"webhook_url"` // nullable
	IsActive   bool      `db:"is_active"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// WebhookTarget returns the URL to notify, or false when the tenant has none.
func (i *ClientIntegration) WebhookTarget() (string, bool) {
	if i == nil || !i.IsActive || i.WebhookURL == nil {
		return "", false
	}
	u := strings.TrimSpace(*i.WebhookURL)
	return u, u != ""
}
