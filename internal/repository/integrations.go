package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmehdipour/compliance-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

type IntegrationsRepository interface {
	GetByClient(ctx context.Context, clientID string) (*model.ClientIntegration, error)
	Upsert(ctx context.Context, i model.ClientIntegration) error
}

type IntegrationsRepositoryImpl struct {
	db *sqlx.DB
}

func NewIntegrationsRepository(db *sqlx.DB) *IntegrationsRepositoryImpl {
	return &IntegrationsRepositoryImpl{db: db}
}

var _ IntegrationsRepository = (*IntegrationsRepositoryImpl)(nil)

func (r *IntegrationsRepositoryImpl) GetByClient(ctx context.Context, clientID string) (*model.ClientIntegration, error) {
	var i model.ClientIntegration
	err := r.db.GetContext(ctx, &i, `
		SELECT client_id, webhook_url, is_active, created_at, updated_at
		  FROM client_integrations
		 WHERE client_id = ?
	`, clientID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (r *IntegrationsRepositoryImpl) Upsert(ctx context.Context, i model.ClientIntegration) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO client_integrations (client_id, webhook_url, is_active, created_at, updated_at)
		VALUES (?, ?, ?, NOW(6), NOW(6))
		ON DUPLICATE KEY UPDATE
		    webhook_url = VALUES(webhook_url),
		    is_active   = VALUES(is_active),
		    updated_at  = VALUES(updated_at)
	`, i.ClientID, i.WebhookURL, i.IsActive)
	return err
}
