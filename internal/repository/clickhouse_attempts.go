package repository

import (
	"context"
	"fmt"

	"github.com/jmehdipour/compliance-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

// CHDeliveryAttemptsRepository stores and lists delivery history in ClickHouse.
type CHDeliveryAttemptsRepository interface {
	InsertBatch(ctx context.Context, rows []model.DeliveryAttempt) error
	ListByClient(ctx context.Context, clientID, status string, limit, offset int) ([]model.DeliveryAttempt, error)
}

type chDeliveryAttemptsRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHDeliveryAttemptsRepository(ch *sqlx.DB) CHDeliveryAttemptsRepository {
	return &chDeliveryAttemptsRepository{ch: ch}
}

// InsertBatch sends all rows as one ClickHouse block (prepare + exec per row + commit).
func (r *chDeliveryAttemptsRepository) InsertBatch(ctx context.Context, rows []model.DeliveryAttempt) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.ch.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cgw.webhook_delivery_attempts
		    (notification_id, client_id, event_type, attempt, status, http_status, error, latency_ms, attempted_at)
	`)
	if err != nil {
		return fmt.Errorf("prepare attempts batch: %w", err)
	}
	defer stmt.Close()

	for _, a := range rows {
		if _, err := stmt.ExecContext(ctx,
			a.NotificationID, a.ClientID, a.EventType, a.Attempt, a.Status,
			a.HTTPStatus, a.Error, a.LatencyMs, a.AttemptedAt,
		); err != nil {
			return fmt.Errorf("append attempt %s: %w", a.NotificationID, err)
		}
	}

	return tx.Commit()
}

func (r *chDeliveryAttemptsRepository) ListByClient(ctx context.Context, clientID, status string, limit, offset int) ([]model.DeliveryAttempt, error) {
	limit, offset = clampPage(limit, offset)

	q := `
		SELECT notification_id, client_id, event_type, attempt, status, http_status, error, latency_ms, attempted_at
		FROM cgw.webhook_delivery_attempts
		WHERE client_id = ?
	`
	args := []any{clientID}

	if status != "" {
		q += " AND status = ?"
		args = append(args, status)
	}

	q += " ORDER BY attempted_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []model.DeliveryAttempt
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
