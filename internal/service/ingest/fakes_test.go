package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jmehdipour/compliance-gateway/internal/model"
	"github.com/jmehdipour/compliance-gateway/internal/repository"
	"github.com/jmehdipour/compliance-gateway/internal/util"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

type fakeKeys struct {
	mu      sync.Mutex
	keys    []model.APIKey
	touched map[int64]time.Time
	lookups int
}

func (f *fakeKeys) FindActive(_ context.Context, clientID, keyHash string) (*model.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	for _, k := range f.keys {
		if k.ClientID == clientID && k.KeyHash == keyHash && k.IsActive {
			k := k
			return &k, nil
		}
	}
	return nil, nil
}

func (f *fakeKeys) FindActiveByHash(_ context.Context, keyHash string) (*model.APIKey, error) {
	for _, k := range f.keys {
		if k.KeyHash == keyHash && k.IsActive {
			k := k
			return &k, nil
		}
	}
	return nil, nil
}

func (f *fakeKeys) TouchLastUsed(_ context.Context, id int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.touched == nil {
		f.touched = map[int64]time.Time{}
	}
	f.touched[id] = at
	return nil
}

func (f *fakeKeys) Upsert(context.Context, model.APIKey) error { return nil }

type fakeIntegrations struct {
	byClient map[string]model.ClientIntegration
}

func (f *fakeIntegrations) GetByClient(_ context.Context, clientID string) (*model.ClientIntegration, error) {
	i, ok := f.byClient[clientID]
	if !ok {
		return nil, nil
	}
	return &i, nil
}

func (f *fakeIntegrations) Upsert(context.Context, model.ClientIntegration) error { return nil }

type fakeMappings struct {
	rows   map[string]model.RecordMapping // key: type/client/external
	failOn map[string]error               // by external id
	calls  int
}

func (f *fakeMappings) Upsert(_ context.Context, m model.RecordMapping) error {
	f.calls++
	if err := f.failOn[m.ExternalID]; err != nil {
		return err
	}
	if f.rows == nil {
		f.rows = map[string]model.RecordMapping{}
	}
	key := m.DataType.String() + "/" + m.ClientID + "/" + m.ExternalID
	if prev, ok := f.rows[key]; ok {
		m.InternalID = prev.InternalID
	}
	f.rows[key] = m
	return nil
}

type fakeLogs struct {
	rows []model.IngestionLog
}

func (f *fakeLogs) Insert(_ context.Context, _ *sqlx.Tx, l model.IngestionLog) error {
	for _, r := range f.rows {
		if l.RequestID != nil && r.RequestID != nil && *r.RequestID == *l.RequestID && r.ClientID == l.ClientID {
			return errors.New("duplicate request id")
		}
	}
	f.rows = append(f.rows, l)
	return nil
}

func (f *fakeLogs) GetByRequestID(_ context.Context, clientID, requestID string) (*model.IngestionLog, error) {
	for _, r := range f.rows {
		if r.ClientID == clientID && r.RequestID != nil && *r.RequestID == requestID {
			r := r
			return &r, nil
		}
	}
	return nil, nil
}

func (f *fakeLogs) ListByClient(context.Context, string, int, int) ([]model.IngestionLog, error) {
	return f.rows, nil
}

type fakeNotifications struct {
	rows []model.WebhookNotification
}

func (f *fakeNotifications) Enqueue(_ context.Context, _ *sqlx.Tx, n model.WebhookNotification) error {
	f.rows = append(f.rows, n)
	return nil
}

func (f *fakeNotifications) ClaimPendingBatch(context.Context, int, int) ([]model.WebhookNotification, error) {
	return nil, nil
}

func (f *fakeNotifications) MarkDelivered(context.Context, model.WebhookNotification, time.Time) error {
	return nil
}

func (f *fakeNotifications) MarkRetriedOrFailed(context.Context, model.WebhookNotification, model.FailedAttempt) error {
	return nil
}

func (f *fakeNotifications) ListByClient(context.Context, string, model.NotificationStatus, int, int) ([]model.WebhookNotification, error) {
	return f.rows, nil
}

type outboxRow struct {
	aggregate, aggregateID, topic string
	payload                       []byte
}

type fakeOutbox struct {
	rows []outboxRow
}

func (f *fakeOutbox) Insert(_ context.Context, _ *sqlx.Tx, aggregate, aggregateID, topic string, payload []byte) error {
	f.rows = append(f.rows, outboxRow{aggregate, aggregateID, topic, payload})
	return nil
}

type fakeTx struct{}

func (fakeTx) WithinTx(_ context.Context, fn func(tx *sqlx.Tx) error) error { return fn(nil) }

type fixture struct {
	svc           *Service
	keys          *fakeKeys
	integrations  *fakeIntegrations
	mappings      *fakeMappings
	logs          *fakeLogs
	notifications *fakeNotifications
	outbox        *fakeOutbox
}

const (
	testClient = "client-1"
	testKey    = "cgw_test_key"
	testHook   = "https://hooks.example.com/cgw"
)

func newFixture() *fixture {
	hook := testHook
	f := &fixture{
		keys: &fakeKeys{keys: []model.APIKey{
			{ID: 7, ClientID: testClient, KeyHash: util.HashAPIKey(testKey), IsActive: true},
			{ID: 8, ClientID: testClient, KeyHash: util.HashAPIKey("revoked"), IsActive: false},
		}},
		integrations: &fakeIntegrations{byClient: map[string]model.ClientIntegration{
			testClient: {ClientID: testClient, WebhookURL: &hook, IsActive: true},
		}},
		mappings:      &fakeMappings{},
		logs:          &fakeLogs{},
		notifications: &fakeNotifications{},
		outbox:        &fakeOutbox{},
	}

	f.svc = New(Repositories{
		APIKeys:       f.keys,
		Integrations:  f.integrations,
		Mappings:      f.mappings,
		Logs:          f.logs,
		Notifications: f.notifications,
		Outbox:        f.outbox,
	}, fakeTx{}, zap.NewNop(), 10, "webhooks.pending")

	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time {
		clock = clock.Add(5 * time.Millisecond)
		return clock
	}
	return f
}

var _ repository.Transactor = fakeTx{}
