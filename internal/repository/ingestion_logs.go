package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmehdipour/compliance-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

// IngestionLogsRepository persists the append-only ingestion_logs table.
type IngestionLogsRepository interface {
	Insert(ctx context.Context, tx *sqlx.Tx, l model.IngestionLog) error
	// GetByRequestID returns the log of an earlier request with the same id, or nil.
	GetByRequestID(ctx context.Context, clientID, requestID string) (*model.IngestionLog, error)
	ListByClient(ctx context.Context, clientID string, limit, offset int) ([]model.IngestionLog, error)
}

type IngestionLogsRepositoryImpl struct {
	db *sqlx.DB
}

func NewIngestionLogsRepository(db *sqlx.DB) *IngestionLogsRepositoryImpl {
	return &IngestionLogsRepositoryImpl{db: db}
}

var _ IngestionLogsRepository = (*IngestionLogsRepositoryImpl)(nil)

const ingestionLogColumns = `id, client_id, request_id, ingestion_type, record_count, success_count,
	error_count, status, error_details, processing_time_ms, created_at`

func (r *IngestionLogsRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, l model.IngestionLog) error {
	const q = `
		INSERT INTO ingestion_logs
		    (id, client_id, request_id, ingestion_type, record_count, success_count,
		     error_count, status, error_details, processing_time_ms, created_at)
		VALUES
		    (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			l.ID, l.ClientID, l.RequestID, l.IngestionType.String(), l.RecordCount, l.SuccessCount,
			l.ErrorCount, l.Status.String(), l.ErrorDetails, l.ProcessingTimeMs, l.CreatedAt,
		)
		return err
	})
}

func (r *IngestionLogsRepositoryImpl) GetByRequestID(ctx context.Context, clientID, requestID string) (*model.IngestionLog, error) {
	var l model.IngestionLog
	err := r.db.GetContext(ctx, &l, `
		SELECT `+ingestionLogColumns+`
		  FROM ingestion_logs
		 WHERE client_id = ? AND request_id = ?
		 LIMIT 1
	`, clientID, requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *IngestionLogsRepositoryImpl) ListByClient(ctx context.Context, clientID string, limit, offset int) ([]model.IngestionLog, error) {
	limit, offset = clampPage(limit, offset)

	var rows []model.IngestionLog
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+ingestionLogColumns+`
		  FROM ingestion_logs
		 WHERE client_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?
	`, clientID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
