package checkout

import (
	"context"

	"github.com/google/uuid"

	"github.com/timour/stateset-core/internal/money"
)

// MockProvider is the test double spec.md §10's test vectors rely on:
// token "tok_ok" always succeeds, "tok_decline" always declines, and any
// other token also succeeds (so ad-hoc test tokens don't need registering
// here). Capture and Void always succeed against whatever ref Authorize
// handed back.
type MockProvider struct{}

// NewMockProvider constructs a MockProvider.
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// Authorize implements PaymentProvider.
func (m *MockProvider) Authorize(_ context.Context, _ money.Money, token string) (AuthorizeResult, error) {
	if token == "tok_decline" {
		return AuthorizeResult{}, &Declined{Reason: "card declined"}
	}
	return AuthorizeResult{ProviderRef: "mock_" + uuid.NewString()}, nil
}

// Capture implements PaymentProvider.
func (m *MockProvider) Capture(_ context.Context, _ string, _ money.Money) error {
	return nil
}

// Void implements PaymentProvider.
func (m *MockProvider) Void(_ context.Context, _ string) error {
	return nil
}
