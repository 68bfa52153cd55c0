package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jmehdipour/compliance-gateway/internal/model"
	"github.com/jmehdipour/compliance-gateway/internal/util"
	"github.com/jmoiron/sqlx"
)

// ErrClaimLost means the row is no longer held by the caller's claim: it was
// finalised already or reclaimed by another worker after the claim timed out.
var ErrClaimLost = errors.New("notification claim lost")

// NotificationsRepository is the webhook record store. The table doubles as a
// work queue; ClaimPendingBatch is the only way rows leave the pending state.
type NotificationsRepository interface {
	Enqueue(ctx context.Context, tx *sqlx.Tx, n model.WebhookNotification) error
	// ClaimPendingBatch atomically moves up to limit deliverable rows with
	// retry_count < maxRetry to in_flight, oldest created_at first.
	ClaimPendingBatch(ctx context.Context, limit, maxRetry int) ([]model.WebhookNotification, error)
	MarkDelivered(ctx context.Context, n model.WebhookNotification, at time.Time) error
	MarkRetriedOrFailed(ctx context.Context, n model.WebhookNotification, f model.FailedAttempt) error
	ListByClient(ctx context.Context, clientID string, status model.NotificationStatus, limit, offset int) ([]model.WebhookNotification, error)
}

type NotificationsRepositoryImpl struct {
	db *sqlx.DB

	// claims older than this are considered abandoned and may be reclaimed
	claimTimeout time.Duration
	now          func() time.Time
}

func NewNotificationsRepository(db *sqlx.DB, claimTimeout time.Duration) *NotificationsRepositoryImpl {
	if claimTimeout <= 0 {
		claimTimeout = 5 * time.Minute
	}
	return &NotificationsRepositoryImpl{
		db:           db,
		claimTimeout: claimTimeout,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

var _ NotificationsRepository = (*NotificationsRepositoryImpl)(nil)

const notificationColumns = `id, client_id, event_type, payload, webhook_url, status, retry_count,
	next_attempt_at, claim_token, claimed_at, last_error, created_at, last_attempt_at, delivered_at`

func (r *NotificationsRepositoryImpl) Enqueue(ctx context.Context, tx *sqlx.Tx, n model.WebhookNotification) error {
	const q = `
		INSERT INTO webhook_notifications
		    (id, client_id, event_type, payload, webhook_url, status, retry_count, next_attempt_at, created_at)
		VALUES
		    (?, ?, ?, ?, ?, 'pending', 0, ?, ?)
	`
	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			n.ID, n.ClientID, n.EventType, n.Payload, n.WebhookURL, n.CreatedAt, n.CreatedAt,
		)
		return err
	})
}

func (r *NotificationsRepositoryImpl) ClaimPendingBatch(ctx context.Context, limit, maxRetry int) ([]model.WebhookNotification, error) {
	if limit <= 0 {
		limit = model.DefaultBatchSize
	}
	if maxRetry <= 0 {
		maxRetry = model.DefaultMaxRetries
	}

	now := r.now()
	token := util.New()
	var rows []model.WebhookNotification

	// select, claim and re-read in one tx: a failed re-read leaves nothing in_flight
	err := withTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		var ids []string
		if err := tx.SelectContext(ctx, &ids, `
			SELECT id
			  FROM webhook_notifications
			 WHERE retry_count < ?
			   AND (
			        (status = 'pending' AND next_attempt_at <= ?)
			     OR (status = 'in_flight' AND claimed_at < ?)
			   )
			 ORDER BY created_at ASC, id ASC
			 LIMIT ?
			 FOR UPDATE SKIP LOCKED
		`, maxRetry, now, now.Add(-r.claimTimeout), limit); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		query, args, err := sqlx.In(`
			UPDATE webhook_notifications
			   SET status = 'in_flight', claim_token = ?, claimed_at = ?
			 WHERE id IN (?)
		`, token, now, ids)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return err
		}

		return tx.SelectContext(ctx, &rows, `
			SELECT `+notificationColumns+`
			  FROM webhook_notifications
			 WHERE claim_token = ?
			 ORDER BY created_at ASC, id ASC
		`, token)
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *NotificationsRepositoryImpl) MarkDelivered(ctx context.Context, n model.WebhookNotification, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE webhook_notifications
		   SET status = 'delivered', delivered_at = ?, last_attempt_at = ?,
		       claim_token = NULL, claimed_at = NULL
		 WHERE id = ? AND status = 'in_flight' AND claim_token = ?
	`, at, at, n.ID, n.ClaimToken)
	if err != nil {
		return err
	}
	return claimHeld(res.RowsAffected())
}

func (r *NotificationsRepositoryImpl) MarkRetriedOrFailed(ctx context.Context, n model.WebhookNotification, f model.FailedAttempt) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE webhook_notifications
		   SET status = ?, retry_count = ?, last_attempt_at = ?, next_attempt_at = ?, last_error = ?,
		       claim_token = NULL, claimed_at = NULL
		 WHERE id = ? AND status = 'in_flight' AND claim_token = ?
	`, f.Status.String(), f.RetryCount, f.AttemptedAt, f.NextAttemptAt, truncate(f.Error, 1024), n.ID, n.ClaimToken)
	if err != nil {
		return err
	}
	return claimHeld(res.RowsAffected())
}

func claimHeld(affected int64, err error) error {
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrClaimLost
	}
	return nil
}

func (r *NotificationsRepositoryImpl) ListByClient(ctx context.Context, clientID string, status model.NotificationStatus, limit, offset int) ([]model.WebhookNotification, error) {
	limit, offset = clampPage(limit, offset)

	q := `
		SELECT ` + notificationColumns + `
		  FROM webhook_notifications
		 WHERE client_id = ?
	`
	args := []any{clientID}

	switch status {
	case "":
	case model.NotificationPending:
		q += " AND status IN ('pending', 'in_flight')"
	default:
		q += " AND status = ?"
		args = append(args, status.String())
	}

	q += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []model.WebhookNotification
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Status = rows[i].Status.Public()
	}
	return rows, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
