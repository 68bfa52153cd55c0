package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmehdipour/compliance-gateway/internal/metrics"
	"github.com/jmehdipour/compliance-gateway/internal/model"
	"github.com/jmehdipour/compliance-gateway/internal/repository"
	"github.com/jmehdipour/compliance-gateway/internal/util"
	"github.com/jmehdipour/compliance-gateway/internal/validation"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const (
	DefaultMaxRecords = 1000
	DefaultTopic      = "webhooks.pending"

	outboxAggregate = "webhook_notification"
)

// Request is one ingestion batch. RequestID is optional; when set, a repeated
// request returns the first result instead of being applied again.
type Request struct {
	ClientID  string            `json:"client_id" validate:"required,max=64"`
	DataType  string            `json:"data_type" validate:"required"`
	Records   []json.RawMessage `json:"records"   validate:"required"`
	APIKey    string            `json:"api_key"   validate:"required"`
	RequestID string            `json:"request_id,omitempty" validate:"omitempty,max=128"`
}

type Result struct {
	Success          bool                  `json:"success"`
	Processed        int                   `json:"processed"`
	Successful       int                   `json:"successful"`
	Failed           int                   `json:"failed"`
	ProcessingTimeMs int64                 `json:"processing_time_ms"`
	LogID            string                `json:"log_id"`
	Errors           []model.RecordFailure `json:"errors,omitempty"`
	Replayed         bool                  `json:"replayed,omitempty"`
}

type Repositories struct {
	APIKeys       repository.APIKeysRepository
	Integrations  repository.IntegrationsRepository
	Mappings      repository.MappingsRepository
	Logs          repository.IngestionLogsRepository
	Notifications repository.NotificationsRepository
	Outbox        repository.OutboxRepository
}

// Service authenticates a tenant, applies its records one by one, writes the
// ingestion log and enqueues the completion webhook together with its outbox nudge.
type Service struct {
	repos    Repositories
	tx       repository.Transactor
	validate *validator.Validate
	log      *zap.Logger

	maxRecords int
	topic      string
	now        func() time.Time
}

// New constructs the ingestion service.
func New(
	repos Repositories,
	tx repository.Transactor,
	logger *zap.Logger,
	maxRecords int,
	topic string,
) *Service {
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}
	if topic == "" {
		topic = DefaultTopic
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repos:      repos,
		tx:         tx,
		validate:   validation.New(),
		log:        logger,
		maxRecords: maxRecords,
		topic:      topic,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Ingest runs one batch. It returns ErrInvalidRequest (wrapped) for bad input,
// ErrAuthentication when the key does not match, and any other error for
// infrastructure failures. Record failures are reported in the Result.
func (s *Service) Ingest(ctx context.Context, req Request) (Result, error) {
	dataType, err := s.check(req)
	if err != nil {
		return Result{}, err
	}

	key, err := s.repos.APIKeys.FindActive(ctx, req.ClientID, util.HashAPIKey(req.APIKey))
	if err != nil {
		return Result{}, fmt.Errorf("lookup api key: %w", err)
	}
	if key == nil {
		return Result{}, ErrAuthentication
	}

	start := s.now()
	if err := s.repos.APIKeys.TouchLastUsed(ctx, key.ID, start); err != nil {
		s.log.Warn("touch api key last_used_at", zap.Int64("api_key_id", key.ID), zap.Error(err))
	}

	requestID := strings.TrimSpace(req.RequestID)
	if requestID != "" {
		prev, err := s.repos.Logs.GetByRequestID(ctx, req.ClientID, requestID)
		if err != nil {
			return Result{}, fmt.Errorf("lookup request id: %w", err)
		}
		if prev != nil {
			return replayed(prev), nil
		}
	}

	var failures model.RecordFailures
	handle := recordHandlers[dataType]
	for i, raw := range req.Records {
		if rerr := s.apply(ctx, handle, req.ClientID, i, raw); rerr != nil {
			failures = append(failures, model.RecordFailure{
				RecordID: rerr.RecordID,
				Index:    rerr.Index,
				Error:    rerr.Err.Error(),
			})
			metrics.IngestedRecordsTotal.WithLabelValues(dataType.String(), "error").Inc()
			continue
		}
		metrics.IngestedRecordsTotal.WithLabelValues(dataType.String(), "ok").Inc()
	}

	total := len(req.Records)
	errCount := len(failures)
	okCount := total - errCount
	finished := s.now()

	ingLog := model.IngestionLog{
		ID:               util.New(),
		ClientID:         req.ClientID,
		IngestionType:    dataType,
		RecordCount:      total,
		SuccessCount:     okCount,
		ErrorCount:       errCount,
		Status:           model.DeriveIngestionStatus(okCount, errCount),
		ErrorDetails:     failures,
		ProcessingTimeMs: finished.Sub(start).Milliseconds(),
		CreatedAt:        finished,
	}
	if requestID != "" {
		ingLog.RequestID = &requestID
	}

	if err := s.record(ctx, ingLog); err != nil {
		if requestID != "" && repository.IsDuplicateKey(err) {
			// a concurrent request with the same id won the insert
			prev, gerr := s.repos.Logs.GetByRequestID(ctx, req.ClientID, requestID)
			if gerr == nil && prev != nil {
				return replayed(prev), nil
			}
		}
		return Result{}, err
	}

	metrics.IngestionBatchesTotal.WithLabelValues(ingLog.Status.String()).Inc()
	s.log.Info("ingestion batch recorded",
		zap.String("client_id", req.ClientID),
		zap.String("log_id", ingLog.ID),
		zap.String("data_type", dataType.String()),
		zap.Int("records", total),
		zap.Int("failed", errCount),
		zap.String("status", ingLog.Status.String()),
	)

	return Result{
		Success:          true,
		Processed:        total,
		Successful:       okCount,
		Failed:           errCount,
		ProcessingTimeMs: ingLog.ProcessingTimeMs,
		LogID:            ingLog.ID,
		Errors:           failures,
	}, nil
}

func (s *Service) check(req Request) (model.DataType, error) {
	if err := s.validate.Struct(req); err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidRequest, validation.Describe(err))
	}
	dataType, ok := model.ParseDataType(req.DataType)
	if !ok {
		return "", ErrUnsupportedDataType
	}
	if len(req.Records) > s.maxRecords {
		return "", fmt.Errorf("%w: records exceeds limit of %d", ErrInvalidRequest, s.maxRecords)
	}
	return dataType, nil
}

func (s *Service) apply(ctx context.Context, handle recordHandler, clientID string, index int, raw json.RawMessage) *RecordError {
	m, err := handle(s.validate, clientID, raw)
	if err == nil {
		err = s.repos.Mappings.Upsert(ctx, m)
	}
	if err == nil {
		return nil
	}
	return &RecordError{RecordID: recordIdentifier(raw, index), Index: index, Err: err}
}

// record writes the log, the notification and its outbox row in one transaction.
// The notification is skipped when the tenant has no webhook configured.
func (s *Service) record(ctx context.Context, l model.IngestionLog) error {
	integration, err := s.repos.Integrations.GetByClient(ctx, l.ClientID)
	if err != nil {
		return fmt.Errorf("lookup integration: %w", err)
	}
	target, hasWebhook := integration.WebhookTarget()

	var (
		n        model.WebhookNotification
		envelope []byte
	)
	if hasWebhook {
		n, err = completionNotification(l, target)
		if err != nil {
			return err
		}
		envelope, err = json.Marshal(model.Envelope{
			NotificationID: n.ID,
			ClientID:       n.ClientID,
			EventType:      n.EventType,
		})
		if err != nil {
			return fmt.Errorf("marshal envelope: %w", err)
		}
	}

	return s.tx.WithinTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.repos.Logs.Insert(ctx, tx, l); err != nil {
			return fmt.Errorf("insert ingestion log: %w", err)
		}
		if !hasWebhook {
			return nil
		}
		if err := s.repos.Notifications.Enqueue(ctx, tx, n); err != nil {
			return fmt.Errorf("enqueue notification: %w", err)
		}
		if err := s.repos.Outbox.Insert(ctx, tx, outboxAggregate, n.ID, s.topic, envelope); err != nil {
			return fmt.Errorf("insert outbox: %w", err)
		}
		return nil
	})
}

func completionNotification(l model.IngestionLog, url string) (model.WebhookNotification, error) {
	payload, err := json.Marshal(model.IngestionCompletedPayload{
		LogID:            l.ID,
		IngestionType:    l.IngestionType,
		RecordCount:      l.RecordCount,
		SuccessCount:     l.SuccessCount,
		ErrorCount:       l.ErrorCount,
		Status:           l.Status,
		ProcessingTimeMs: l.ProcessingTimeMs,
	})
	if err != nil {
		return model.WebhookNotification{}, fmt.Errorf("marshal payload: %w", err)
	}

	return model.WebhookNotification{
		ID:            util.New(),
		ClientID:      l.ClientID,
		EventType:     model.EventDataIngestionCompleted,
		Payload:       payload,
		WebhookURL:    url,
		Status:        model.NotificationPending,
		NextAttemptAt: l.CreatedAt,
		CreatedAt:     l.CreatedAt,
	}, nil
}

func replayed(l *model.IngestionLog) Result {
	return Result{
		Success:          true,
		Processed:        l.RecordCount,
		Successful:       l.SuccessCount,
		Failed:           l.ErrorCount,
		ProcessingTimeMs: l.ProcessingTimeMs,
		LogID:            l.ID,
		Errors:           l.ErrorDetails,
		Replayed:         true,
	}
}

// IsClientError reports whether err should be answered with 400.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRequest)
}
