package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jmehdipour/compliance-gateway/internal/model"
)

const (
	DefaultUserAgent = "Compliance-System-Webhook/1.0"
	DefaultTimeout   = 10 * time.Second

	// TimestampLayout is ISO-8601 in UTC with millisecond precision.
	TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

	maxErrorBody = 4 << 10
)

// DeliveryError is a failed attempt: a transport error (StatusCode 0) or a
// non-2xx response.
type DeliveryError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration // from a Retry-After header, 0 if absent
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("webhook transport error: %v", e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("webhook responded %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("webhook responded %d", e.StatusCode)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Body is the JSON document POSTed to the tenant.
type Body struct {
	EventType string        `json:"event_type"`
	ClientID  string        `json:"client_id"`
	Timestamp string        `json:"timestamp"`
	Data      model.RawJSON `json:"data"`
}

func NewBody(n model.WebhookNotification) Body {
	return Body{
		EventType: n.EventType,
		ClientID:  n.ClientID,
		Timestamp: n.CreatedAt.UTC().Format(TimestampLayout),
		Data:      n.Payload,
	}
}

type Client struct {
	userAgent string
	client    *http.Client
}

func NewClient(timeoutMs int, userAgent string) *Client {
	timeout := DefaultTimeout
	if timeoutMs > 0 {
		timeout = time.Duration(timeoutMs) * time.Millisecond
	}
	if strings.TrimSpace(userAgent) == "" {
		userAgent = DefaultUserAgent
	}
	return &Client{
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
	}
}

// Deliver makes exactly one POST for n. It returns the response status (0 when
// no response arrived) and a *DeliveryError unless the status is 2xx.
func (c *Client) Deliver(ctx context.Context, n model.WebhookNotification) (int, error) {
	b, err := json.Marshal(NewBody(n))
	if err != nil {
		return 0, &DeliveryError{Err: fmt.Errorf("marshal body: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewReader(b))
	if err != nil {
		return 0, &DeliveryError{Err: err}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Webhook-ID", n.ID)
	req.Header.Set("X-Webhook-Event", n.EventType)

	res, err := c.client.Do(req)
	if err != nil {
		return 0, &DeliveryError{Err: err}
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	// let the transport reuse the connection
	_, _ = io.Copy(io.Discard, res.Body)

	if res.StatusCode/100 == 2 {
		return res.StatusCode, nil
	}

	return res.StatusCode, &DeliveryError{
		StatusCode: res.StatusCode,
		Body:       strings.TrimSpace(string(body)),
		RetryAfter: parseRetryAfter(res.Header.Get("Retry-After")),
	}
}

// parseRetryAfter accepts delay-seconds or an HTTP date.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
