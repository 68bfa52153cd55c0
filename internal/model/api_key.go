package model

import "time"

// APIKey authenticates one tenant against the ingestion API.
// Only the SHA-256 hash of the raw key is stored.
type APIKey struct {
	ID         int64      `db:"id"`
	ClientID   string     `db:"client_id"`
	KeyHash    string     `db:"key_hash"`
	Name       string     `db:"name"`
	IsActive   bool       `db:"is_active"`
	LastUsedAt *time.Time `db:"last_used_at"` // nullable
	CreatedAt  time.Time  `db:"created_at"`
}
