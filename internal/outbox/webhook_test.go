package outbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	body := []byte(`{"type":"order.created"}`)
	sig := Sign("whsec_test", "1690000000", body)
	require.True(t, VerifySignature("whsec_test", "1690000000", body, sig))
}

func TestVerifySignatureRejectsTamperedBody(t *testing.T) {
	body := []byte(`{"type":"order.created"}`)
	sig := Sign("whsec_test", "1690000000", body)
	require.False(t, VerifySignature("whsec_test", "1690000000", []byte(`{"type":"order.canceled"}`), sig))
}

func TestVerifySignatureRejectsWrongSecret(t *testing.T) {
	body := []byte(`{"type":"order.created"}`)
	sig := Sign("whsec_test", "1690000000", body)
	require.False(t, VerifySignature("whsec_other", "1690000000", body, sig))
}

func TestDeliverAllSucceedsOn2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NotEmpty(t, r.Header.Get("Merchant-Signature"))
		require.Equal(t, "evt_1", r.Header.Get("X-Event-Id"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewWebhookDispatcher([]WebhookTarget{{Name: "test", URL: srv.URL, Secret: "whsec_test"}})
	payload, _ := json.Marshal(map[string]any{"total": 100})
	err := d.DeliverAll(context.Background(), Event{ID: "evt_1", EventType: "order.created", Payload: payload})
	require.NoError(t, err)
}

func TestDeliverAllClassifies5xxAsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewWebhookDispatcher([]WebhookTarget{{Name: "test", URL: srv.URL, Secret: "whsec_test"}})
	err := d.DeliverAll(context.Background(), Event{ID: "evt_1", EventType: "order.created", Payload: json.RawMessage("{}")})
	require.Error(t, err)
	require.True(t, IsRetryable(err))
}

func TestDeliverAllClassifies4xxAsNonRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	d := NewWebhookDispatcher([]WebhookTarget{{Name: "test", URL: srv.URL, Secret: "whsec_test"}})
	err := d.DeliverAll(context.Background(), Event{ID: "evt_1", EventType: "order.created", Payload: json.RawMessage("{}")})
	require.Error(t, err)
	require.False(t, IsRetryable(err))
}
