package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jmehdipour/compliance-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func notification(url string) model.WebhookNotification {
	return model.WebhookNotification{
		ID:         "01HQ0000000000000000000000",
		ClientID:   "client-1",
		EventType:  model.EventDataIngestionCompleted,
		Payload:    model.RawJSON(`{"log_id":"L1","success_count":2}`),
		WebhookURL: url,
		CreatedAt:  time.Date(2025, 3, 1, 12, 30, 45, 123456789, time.UTC),
	}
}

func TestDeliver_Success(t *testing.T) {
	var (
		gotHeaders http.Header
		gotBody    map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		gotHeaders = r.Header.Clone()
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	status, err := NewClient(1000, "").Deliver(context.Background(), notification(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, status)

	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, "Compliance-System-Webhook/1.0", gotHeaders.Get("User-Agent"))
	assert.Equal(t, "01HQ0000000000000000000000", gotHeaders.Get("X-Webhook-ID"))
	assert.Equal(t, "data_ingestion_completed", gotHeaders.Get("X-Webhook-Event"))

	assert.Equal(t, "data_ingestion_completed", gotBody["event_type"])
	assert.Equal(t, "client-1", gotBody["client_id"])
	assert.Equal(t, "2025-03-01T12:30:45.123Z", gotBody["timestamp"])
	assert.Equal(t, map[string]any{"log_id": "L1", "success_count": float64(2)}, gotBody["data"])
}

func TestDeliver_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(strings.Repeat("x", 10000)))
	}))
	defer srv.Close()

	status, err := NewClient(1000, "").Deliver(context.Background(), notification(srv.URL))
	require.Error(t, err)
	assert.Equal(t, http.StatusTooManyRequests, status)

	var de *DeliveryError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, http.StatusTooManyRequests, de.StatusCode)
	assert.Equal(t, 30*time.Second, de.RetryAfter)
	assert.Len(t, de.Body, maxErrorBody)
}

func TestDeliver_Redirect3xxIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	status, err := NewClient(1000, "").Deliver(context.Background(), notification(srv.URL))
	require.Error(t, err)
	assert.Equal(t, http.StatusNotModified, status)
}

func TestDeliver_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	status, err := NewClient(1000, "").Deliver(context.Background(), notification(url))
	require.Error(t, err)
	assert.Zero(t, status)

	var de *DeliveryError
	require.True(t, errors.As(err, &de))
	assert.Zero(t, de.StatusCode)
	assert.NotNil(t, de.Err)
}

func TestDeliver_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewClient(50, "").Deliver(context.Background(), notification(srv.URL))
	require.Error(t, err)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 5*time.Second, parseRetryAfter("5"))
	assert.Zero(t, parseRetryAfter(""))
	assert.Zero(t, parseRetryAfter("-1"))
	assert.Zero(t, parseRetryAfter("soon"))

	future := time.Now().Add(2 * time.Minute).UTC().Format(http.TimeFormat)
	d := parseRetryAfter(future)
	assert.Greater(t, d, time.Minute)
	assert.LessOrEqual(t, d, 2*time.Minute)
}
