package outbox

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// WebhookTarget is one subscriber URL+secret pair from the configured
// registry (spec.md §6).
type WebhookTarget struct {
	Name   string
	URL    string
	Secret string
}

// WebhookDispatcher signs and POSTs outbox events to subscriber URLs with
// retries, per spec.md §4.8 and the wire format in spec.md §6.
type WebhookDispatcher struct {
	client  *http.Client
	targets []WebhookTarget
}

// NewWebhookDispatcher builds a dispatcher with the spec'd 10-second
// per-delivery timeout.
func NewWebhookDispatcher(targets []WebhookTarget) *WebhookDispatcher {
	return &WebhookDispatcher{
		client:  &http.Client{Timeout: 10 * time.Second},
		targets: targets,
	}
}

type webhookBody struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Sign computes the hex HMAC-SHA256 of "<timestamp>.<body>" with secret, the
// exact scheme spec.md §6 specifies for the Merchant-Signature header.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature recomputes the expected signature and compares it to
// candidate in constant time, for use on the receiving side of a webhook
// (spec.md §6: "Recipients validate the signature in constant time").
func VerifySignature(secret, timestamp string, body []byte, candidate string) bool {
	expected := Sign(secret, timestamp, body)
	return hmac.Equal([]byte(expected), []byte(candidate))
}

// deliverableError distinguishes a retryable delivery failure (5xx, timeout,
// network error) from a permanent one (any other non-2xx status below 500),
// as reported by IsRetryable. The outbox Dispatcher does not make that
// distinction: it requeues every failed delivery until MaxAttempts.
type deliverableError struct {
	err       error
	retryable bool
}

func (e *deliverableError) Error() string { return e.err.Error() }
func (e *deliverableError) Unwrap() error { return e.err }

// DeliverAll POSTs event to every configured target, returning the first
// error encountered. A caller delivering through the dispatcher loop treats
// a retryable error as "try this event again later" and a non-retryable one
// the same way, since spec.md does not distinguish per-subscriber outcomes
// for a single outbox row: one failing subscriber marks the whole row for
// retry.
func (d *WebhookDispatcher) DeliverAll(ctx context.Context, event Event) error {
	for _, target := range d.targets {
		if err := d.deliverOne(ctx, target, event); err != nil {
			return err
		}
	}
	return nil
}

func (d *WebhookDispatcher) deliverOne(ctx context.Context, target WebhookTarget, event Event) error {
	payload := webhookBody{Type: event.EventType, Data: event.Payload}
	body, err := json.Marshal(payload)
	if err != nil {
		return &deliverableError{err: fmt.Errorf("webhook: failed to marshal event %s: %w", event.ID, err), retryable: false}
	}

	timestamp := strconv.FormatInt(time.Now().UTC().Unix(), 10)
	signature := Sign(target.Secret, timestamp, body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		return &deliverableError{err: fmt.Errorf("webhook: failed to build request: %w", err), retryable: false}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Timestamp", timestamp)
	req.Header.Set("Merchant-Signature", signature)
	req.Header.Set("X-Event-Id", event.ID)
	if req.Header.Get("X-Request-Id") == "" {
		req.Header.Set("X-Request-Id", uuid.NewString())
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return &deliverableError{err: fmt.Errorf("webhook: delivery to %s failed: %w", target.Name, err), retryable: true}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	retryable := resp.StatusCode >= 500
	return &deliverableError{
		err:       fmt.Errorf("webhook: %s responded %d", target.Name, resp.StatusCode),
		retryable: retryable,
	}
}

// IsRetryable reports whether err (as returned by DeliverAll) is a retryable
// failure; an error of any other type counts as retryable. The outbox
// Dispatcher does not call it.
func IsRetryable(err error) bool {
	if de, ok := err.(*deliverableError); ok {
		return de.retryable
	}
	return true
}
