package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmehdipour/compliance-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

type APIKeysRepository interface {
	// FindActive returns the active key of clientID with the given hash, or nil.
	FindActive(ctx context.Context, clientID, keyHash string) (*model.APIKey, error)
	// FindActiveByHash is used by header-authenticated routes that carry no client id.
	FindActiveByHash(ctx context.Context, keyHash string) (*model.APIKey, error)
	TouchLastUsed(ctx context.Context, id int64, at time.Time) error
	Upsert(ctx context.Context, k model.APIKey) error
}

type APIKeysRepositoryImpl struct {
	db *sqlx.DB
}

func NewAPIKeysRepository(db *sqlx.DB) *APIKeysRepositoryImpl {
	return &APIKeysRepositoryImpl{db: db}
}

var _ APIKeysRepository = (*APIKeysRepositoryImpl)(nil)

const apiKeyColumns = `id, client_id, key_hash, name, is_active, last_used_at, created_at`

func (r *APIKeysRepositoryImpl) FindActive(ctx context.Context, clientID, keyHash string) (*model.APIKey, error) {
	return r.get(ctx, `
		SELECT `+apiKeyColumns+`
		  FROM api_keys
		 WHERE client_id = ? AND key_hash = ? AND is_active = 1
		 LIMIT 1
	`, clientID, keyHash)
}

func (r *APIKeysRepositoryImpl) FindActiveByHash(ctx context.Context, keyHash string) (*model.APIKey, error) {
	return r.get(ctx, `
		SELECT `+apiKeyColumns+`
		  FROM api_keys
		 WHERE key_hash = ? AND is_active = 1
		 LIMIT 1
	`, keyHash)
}

func (r *APIKeysRepositoryImpl) get(ctx context.Context, q string, args ...any) (*model.APIKey, error) {
	var k model.APIKey
	err := r.db.GetContext(ctx, &k, q, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (r *APIKeysRepositoryImpl) TouchLastUsed(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = ? WHERE id = ?`, at, id)
	return err
}

// Upsert is used by the seeder; key_hash is UNIQUE.
func (r *APIKeysRepositoryImpl) Upsert(ctx context.Context, k model.APIKey) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO api_keys (client_id, key_hash, name, is_active, created_at)
		VALUES (?, ?, ?, ?, NOW(6))
		ON DUPLICATE KEY UPDATE
		    client_id = VALUES(client_id),
		    name      = VALUES(name),
		    is_active = VALUES(is_active)
	`, k.ClientID, k.KeyHash, k.Name, k.IsActive)
	return err
}
