package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/jmehdipour/compliance-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func customers(ids ...string) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(ids))
	for _, id := range ids {
		out = append(out, json.RawMessage(fmt.Sprintf(`{"external_id":%q,"first_name":"Ada","email":"ada@example.com"}`, id)))
	}
	return out
}

func TestIngest_PartialFailureAggregation(t *testing.T) {
	tests := []struct {
		name     string
		records  int
		failing  int
		expected model.IngestionStatus
	}{
		{"all succeed", 4, 0, model.IngestionCompleted},
		{"some fail", 4, 1, model.IngestionPartial},
		{"all fail", 4, 4, model.IngestionFailed},
		{"empty batch", 0, 0, model.IngestionCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.mappings.failOn = map[string]error{}

			ids := make([]string, tt.records)
			for i := range ids {
				ids[i] = fmt.Sprintf("c-%d", i)
				if i < tt.failing {
					f.mappings.failOn[ids[i]] = errors.New("constraint violation")
				}
			}

			res, err := f.svc.Ingest(context.Background(), Request{
				ClientID: testClient,
				DataType: "customer",
				Records:  customers(ids...),
				APIKey:   testKey,
			})
			require.NoError(t, err)

			assert.True(t, res.Success)
			assert.Equal(t, tt.records, res.Processed)
			assert.Equal(t, tt.records-tt.failing, res.Successful)
			assert.Equal(t, tt.failing, res.Failed)

			require.Len(t, f.logs.rows, 1)
			l := f.logs.rows[0]
			assert.Equal(t, tt.records-tt.failing, l.SuccessCount)
			assert.Equal(t, tt.failing, l.ErrorCount)
			assert.Equal(t, tt.expected, l.Status)
			assert.Len(t, l.ErrorDetails, tt.failing)
			assert.Equal(t, res.LogID, l.ID)
		})
	}
}

func TestIngest_RejectsUnknownOrInactiveKey(t *testing.T) {
	for _, key := range []string{"nope", "revoked"} {
		t.Run(key, func(t *testing.T) {
			f := newFixture()

			_, err := f.svc.Ingest(context.Background(), Request{
				ClientID: testClient,
				DataType: "customer",
				Records:  customers("c-1", "c-2"),
				APIKey:   key,
			})
			require.ErrorIs(t, err, ErrAuthentication)

			assert.Zero(t, f.mappings.calls)
			assert.Empty(t, f.logs.rows)
			assert.Empty(t, f.notifications.rows)
			assert.Empty(t, f.outbox.rows)
			assert.Empty(t, f.keys.touched)
		})
	}
}

func TestIngest_KeyOfAnotherClient(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Ingest(context.Background(), Request{
		ClientID: "client-2",
		DataType: "customer",
		Records:  customers("c-1"),
		APIKey:   testKey,
	})
	require.ErrorIs(t, err, ErrAuthentication)
	assert.Empty(t, f.logs.rows)
}

func TestIngest_EndToEndWithMalformedRecord(t *testing.T) {
	f := newFixture()

	records := []json.RawMessage{
		json.RawMessage(`{"external_id":"c-1","first_name":"Ada","email":"ada@example.com","country":"GB"}`),
		json.RawMessage(`{"external_id":"c-2","email":"not-an-email"}`),
		json.RawMessage(`{"external_id":"c-3","risk_level":"low"}`),
	}

	res, err := f.svc.Ingest(context.Background(), Request{
		ClientID: testClient,
		DataType: "customer",
		Records:  records,
		APIKey:   testKey,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 2, res.Successful)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "c-2", res.Errors[0].RecordID)
	assert.Equal(t, 1, res.Errors[0].Index)
	assert.Contains(t, res.Errors[0].Error, "email")

	require.Len(t, f.logs.rows, 1)
	assert.Equal(t, model.IngestionPartial, f.logs.rows[0].Status)
	assert.Len(t, f.mappings.rows, 2)

	require.Len(t, f.notifications.rows, 1)
	n := f.notifications.rows[0]
	assert.Equal(t, model.EventDataIngestionCompleted, n.EventType)
	assert.Equal(t, model.NotificationPending, n.Status)
	assert.Equal(t, testHook, n.WebhookURL)
	assert.Zero(t, n.RetryCount)

	var payload struct {
		LogID        string `json:"log_id"`
		SuccessCount int    `json:"success_count"`
		ErrorCount   int    `json:"error_count"`
		Status       string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(n.Payload, &payload))
	assert.Equal(t, 2, payload.SuccessCount)
	assert.Equal(t, 1, payload.ErrorCount)
	assert.Equal(t, "partial", payload.Status)
	assert.Equal(t, res.LogID, payload.LogID)

	require.Len(t, f.outbox.rows, 1)
	assert.Equal(t, "webhooks.pending", f.outbox.rows[0].topic)
	assert.Equal(t, n.ID, f.outbox.rows[0].aggregateID)

	assert.Contains(t, f.keys.touched, int64(7))
}

func TestIngest_NoWebhookConfigured(t *testing.T) {
	f := newFixture()
	f.integrations.byClient = nil

	res, err := f.svc.Ingest(context.Background(), Request{
		ClientID: testClient,
		DataType: "customer",
		Records:  customers("c-1"),
		APIKey:   testKey,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Successful)

	assert.Len(t, f.logs.rows, 1)
	assert.Empty(t, f.notifications.rows)
	assert.Empty(t, f.outbox.rows)
}

func TestIngest_InactiveIntegrationSkipsWebhook(t *testing.T) {
	f := newFixture()
	hook := testHook
	f.integrations.byClient[testClient] = model.ClientIntegration{ClientID: testClient, WebhookURL: &hook}

	_, err := f.svc.Ingest(context.Background(), Request{
		ClientID: testClient,
		DataType: "customer",
		Records:  customers("c-1"),
		APIKey:   testKey,
	})
	require.NoError(t, err)
	assert.Empty(t, f.notifications.rows)
}

func TestIngest_ReplayedRequestID(t *testing.T) {
	f := newFixture()
	req := Request{
		ClientID:  testClient,
		DataType:  "customer",
		Records:   customers("c-1", "c-2"),
		APIKey:    testKey,
		RequestID: "batch-42",
	}

	first, err := f.svc.Ingest(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := f.svc.Ingest(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.LogID, second.LogID)
	assert.Equal(t, first.Successful, second.Successful)

	assert.Len(t, f.logs.rows, 1)
	assert.Len(t, f.notifications.rows, 1)
	assert.Equal(t, 2, f.mappings.calls)
}

func TestIngest_InvalidRequest(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"missing client", Request{DataType: "customer", Records: customers("c"), APIKey: testKey}},
		{"missing key", Request{ClientID: testClient, DataType: "customer", Records: customers("c")}},
		{"missing records", Request{ClientID: testClient, DataType: "customer", APIKey: testKey}},
		{"unknown type", Request{ClientID: testClient, DataType: "invoice", Records: customers("c"), APIKey: testKey}},
		{"too many records", Request{ClientID: testClient, DataType: "customer", Records: customers("1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11"), APIKey: testKey}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()

			_, err := f.svc.Ingest(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, IsClientError(err))
			assert.Zero(t, f.keys.lookups)
			assert.Empty(t, f.logs.rows)
		})
	}
}

func TestIngest_DataTypeIsCaseInsensitive(t *testing.T) {
	f := newFixture()

	res, err := f.svc.Ingest(context.Background(), Request{
		ClientID: testClient,
		DataType: "Customer",
		Records:  customers("c-1"),
		APIKey:   testKey,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Successful)
	assert.Equal(t, model.DataTypeCustomer, f.logs.rows[0].IngestionType)
}

func TestIngest_TransactionsKeepCustomerReference(t *testing.T) {
	f := newFixture()

	res, err := f.svc.Ingest(context.Background(), Request{
		ClientID: testClient,
		DataType: "transaction",
		Records: []json.RawMessage{
			json.RawMessage(`{"external_id":"t-1","customer_external_id":"c-1","amount":12.5,"currency":"EUR"}`),
			json.RawMessage(`{"external_id":"t-2","customer_external_id":"c-1","amount":-3,"currency":"EUR"}`),
		},
		APIKey: testKey,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Successful)
	assert.Equal(t, 1, res.Failed)

	m, ok := f.mappings.rows["transaction/"+testClient+"/t-1"]
	require.True(t, ok)
	require.NotNil(t, m.CustomerExternalID)
	assert.Equal(t, "c-1", *m.CustomerExternalID)
}
