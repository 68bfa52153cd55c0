package worker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jmehdipour/compliance-gateway/internal/model"
	"github.com/jmehdipour/compliance-gateway/internal/repository"
	"github.com/jmehdipour/compliance-gateway/internal/util"
	"github.com/jmoiron/sqlx"
)

// memStore mirrors the claim semantics of the SQL repository: the select and
// the claim happen under one lock, finalisation is guarded by the claim token.
type memStore struct {
	mu           sync.Mutex
	rows         map[string]*model.WebhookNotification
	claimTimeout time.Duration
	now          func() time.Time

	claimErr error
	writes   int
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{
		rows:         map[string]*model.WebhookNotification{},
		claimTimeout: 5 * time.Minute,
		now:          now,
	}
}

func (s *memStore) add(n model.WebhookNotification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.Status == "" {
		n.Status = model.NotificationPending
	}
	if n.NextAttemptAt.IsZero() {
		n.NextAttemptAt = n.CreatedAt
	}
	s.rows[n.ID] = &n
}

func (s *memStore) get(id string) model.WebhookNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.rows[id]
}

func (s *memStore) Enqueue(_ context.Context, _ *sqlx.Tx, n model.WebhookNotification) error {
	s.add(n)
	return nil
}

func (s *memStore) ClaimPendingBatch(_ context.Context, limit, maxRetry int) ([]model.WebhookNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.claimErr != nil {
		return nil, s.claimErr
	}

	now := s.now()
	var due []*model.WebhookNotification
	for _, n := range s.rows {
		if n.RetryCount >= maxRetry {
			continue
		}
		pending := n.Status == model.NotificationPending && !n.NextAttemptAt.After(now)
		stale := n.Status == model.NotificationInFlight && n.ClaimedAt != nil && n.ClaimedAt.Before(now.Add(-s.claimTimeout))
		if pending || stale {
			due = append(due, n)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].CreatedAt.Equal(due[j].CreatedAt) {
			return due[i].CreatedAt.Before(due[j].CreatedAt)
		}
		return due[i].ID < due[j].ID
	})
	if len(due) > limit {
		due = due[:limit]
	}
	if len(due) == 0 {
		return nil, nil
	}

	s.writes++
	token := util.New()
	out := make([]model.WebhookNotification, 0, len(due))
	for _, n := range due {
		tok, at := token, now
		n.Status = model.NotificationInFlight
		n.ClaimToken = &tok
		n.ClaimedAt = &at
		out = append(out, *n)
	}
	return out, nil
}

func (s *memStore) held(n model.WebhookNotification) (*model.WebhookNotification, error) {
	row, ok := s.rows[n.ID]
	if !ok || row.Status != model.NotificationInFlight || row.ClaimToken == nil ||
		n.ClaimToken == nil || *row.ClaimToken != *n.ClaimToken {
		return nil, repository.ErrClaimLost
	}
	return row, nil
}

func (s *memStore) MarkDelivered(_ context.Context, n model.WebhookNotification, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, err := s.held(n)
	if err != nil {
		return err
	}
	s.writes++
	row.Status = model.NotificationDelivered
	row.DeliveredAt = &at
	row.LastAttemptAt = &at
	row.ClaimToken, row.ClaimedAt = nil, nil
	return nil
}

func (s *memStore) MarkRetriedOrFailed(_ context.Context, n model.WebhookNotification, f model.FailedAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, err := s.held(n)
	if err != nil {
		return err
	}
	s.writes++
	at := f.AttemptedAt
	msg := f.Error
	row.Status = f.Status
	row.RetryCount = f.RetryCount
	row.LastAttemptAt = &at
	row.NextAttemptAt = f.NextAttemptAt
	row.LastError = &msg
	row.ClaimToken, row.ClaimedAt = nil, nil
	return nil
}

func (s *memStore) ListByClient(context.Context, string, model.NotificationStatus, int, int) ([]model.WebhookNotification, error) {
	return nil, nil
}

var _ repository.NotificationsRepository = (*memStore)(nil)
