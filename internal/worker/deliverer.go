package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/compliance-gateway/internal/kafka"
	"github.com/jmehdipour/compliance-gateway/internal/metrics"
	"github.com/jmehdipour/compliance-gateway/internal/model"
	"github.com/jmehdipour/compliance-gateway/internal/repository"
	"github.com/jmehdipour/compliance-gateway/internal/webhook"
	"go.uber.org/zap"
)

// Sender performs one outbound POST for a notification.
type Sender interface {
	Deliver(ctx context.Context, n model.WebhookNotification) (int, error)
}

// AttemptRecorder receives the attempt history of a run.
type AttemptRecorder interface {
	InsertBatch(ctx context.Context, rows []model.DeliveryAttempt) error
}

// MessageSource is the subset of the Kafka consumer the trigger loop needs.
type MessageSource interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

type Result struct {
	Processed  int `json:"processed"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

type Options struct {
	BatchSize  int
	MaxRetries int
	Backoff    Backoff
}

// Deliverer drains the webhook queue:
// - claims a batch of due notifications, oldest first,
// - POSTs each one sequentially,
// - finalises every row under its claim and records the attempts.
type Deliverer struct {
	store    repository.NotificationsRepository
	sender   Sender
	attempts AttemptRecorder // optional
	log      *zap.Logger

	batchSize  int
	maxRetries int
	backoff    Backoff
	now        func() time.Time
}

func NewDeliverer(
	store repository.NotificationsRepository,
	sender Sender,
	attempts AttemptRecorder,
	logger *zap.Logger,
	opts Options,
) *Deliverer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = model.DefaultBatchSize
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = model.DefaultMaxRetries
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deliverer{
		store:      store,
		sender:     sender,
		attempts:   attempts,
		log:        logger,
		batchSize:  opts.BatchSize,
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// RunOnce processes at most one batch. An error means the batch could not be
// claimed; nothing was sent and nothing was written in that case.
func (d *Deliverer) RunOnce(ctx context.Context) (Result, error) {
	batch, err := d.store.ClaimPendingBatch(ctx, d.batchSize, d.maxRetries)
	if err != nil {
		return Result{}, fmt.Errorf("claim pending batch: %w", err)
	}
	if len(batch) == 0 {
		return Result{}, nil
	}

	// a claimed batch runs to completion even if the trigger is cancelled
	work := context.WithoutCancel(ctx)

	var res Result
	attempts := make([]model.DeliveryAttempt, 0, len(batch))

	for _, n := range batch {
		a := d.deliver(work, n)
		attempts = append(attempts, a)

		res.Processed++
		if a.Status == "delivered" {
			res.Successful++
		} else {
			res.Failed++
		}
	}

	d.recordAttempts(work, attempts)

	d.log.Info("delivery run finished",
		zap.Int("processed", res.Processed),
		zap.Int("successful", res.Successful),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func (d *Deliverer) deliver(ctx context.Context, n model.WebhookNotification) model.DeliveryAttempt {
	started := d.now()
	status, derr := d.sender.Deliver(ctx, n)
	at := d.now()

	a := model.DeliveryAttempt{
		NotificationID: n.ID,
		ClientID:       n.ClientID,
		EventType:      n.EventType,
		Attempt:        uint16(n.RetryCount + 1),
		HTTPStatus:     uint16(status),
		LatencyMs:      uint32(at.Sub(started).Milliseconds()),
		AttemptedAt:    at,
	}

	if derr == nil {
		a.Status = "delivered"
		metrics.WebhookDeliveriesTotal.WithLabelValues("delivered").Inc()
		if err := d.store.MarkDelivered(ctx, n, at); err != nil {
			d.logMarkError(n, err)
		}
		return a
	}

	retry := n.RetryCount + 1
	next := model.StatusAfterFailure(retry, d.maxRetries)

	var retryAfter time.Duration
	var de *webhook.DeliveryError
	if errors.As(derr, &de) {
		retryAfter = de.RetryAfter
	}

	f := model.FailedAttempt{
		RetryCount:    retry,
		Status:        next,
		AttemptedAt:   at,
		NextAttemptAt: at,
		Error:         derr.Error(),
	}
	if next == model.NotificationPending {
		f.NextAttemptAt = at.Add(d.backoff.Delay(retry, retryAfter))
		a.Status = "retry"
	} else {
		a.Status = "failed"
	}
	a.Error = f.Error
	metrics.WebhookDeliveriesTotal.WithLabelValues(a.Status).Inc()

	d.log.Warn("webhook delivery failed",
		zap.String("notification_id", n.ID),
		zap.String("client_id", n.ClientID),
		zap.Int("retry_count", retry),
		zap.String("status", next.String()),
		zap.Error(derr),
	)

	if err := d.store.MarkRetriedOrFailed(ctx, n, f); err != nil {
		d.logMarkError(n, err)
	}
	return a
}

func (d *Deliverer) logMarkError(n model.WebhookNotification, err error) {
	if errors.Is(err, repository.ErrClaimLost) {
		d.log.Warn("notification reclaimed before finalise", zap.String("notification_id", n.ID))
		return
	}
	d.log.Error("finalise notification", zap.String("notification_id", n.ID), zap.Error(err))
}

func (d *Deliverer) recordAttempts(ctx context.Context, rows []model.DeliveryAttempt) {
	if d.attempts == nil || len(rows) == 0 {
		return
	}
	if err := d.attempts.InsertBatch(ctx, rows); err != nil {
		d.log.Warn("record delivery attempts", zap.Int("rows", len(rows)), zap.Error(err))
	}
}

// drain keeps running batches while they come back full and clean. A batch
// with failures ends the drain so retries wait for the next trigger.
func (d *Deliverer) drain(ctx context.Context) {
	for ctx.Err() == nil {
		res, err := d.RunOnce(ctx)
		if err != nil {
			d.log.Error("delivery run", zap.Error(err))
			return
		}
		if res.Processed < d.batchSize || res.Failed > 0 {
			return
		}
	}
}

// Run drains the queue every interval until ctx is cancelled.
func (d *Deliverer) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		d.drain(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
	}
}

// RunKafka drains the queue for every outbox message fetched from src and
// commits the message afterwards. Blocks until ctx is cancelled.
func (d *Deliverer) RunKafka(ctx context.Context, src MessageSource) error {
	for {
		m, err := src.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.log.Warn("kafka fetch", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(200 * time.Millisecond):
			}
			continue
		}

		var env model.Envelope
		if err := json.Unmarshal(m.Value, &env); err != nil {
			// the message is only a nudge; an unreadable one still triggers a drain
			d.log.Warn("bad outbox envelope", zap.Int64("offset", m.Offset), zap.Error(err))
		} else {
			d.log.Debug("delivery triggered",
				zap.String("notification_id", env.NotificationID),
				zap.String("client_id", env.ClientID),
			)
		}
		d.drain(ctx)

		if err := src.Commit(ctx, m); err != nil && ctx.Err() == nil {
			d.log.Warn("kafka commit", zap.Error(err))
		}
	}
}
