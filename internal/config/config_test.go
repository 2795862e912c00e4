package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRejectsWeakSecretInProduction(t *testing.T) {
	cfg := Load()
	cfg.Environment = Production
	cfg.JWTSecret = "short"
	cfg.PaymentWebhookSecret = "whsec_real_value_xxxxxxxxxxxxxxxxxxxxxxxxxxxxxx"

	require.Error(t, cfg.Validate())
}

func TestValidateAcceptsStrongSecretsInProduction(t *testing.T) {
	cfg := Load()
	cfg.Environment = Production
	cfg.JWTSecret = "a-very-long-randomly-generated-production-secret-value-1234567890"
	cfg.PaymentWebhookSecret = "whsec_real_value_xxxxxxxxxxxxxxxxxxxxxxxxxxxxxx"

	assert.NoError(t, cfg.Validate())
}

func TestValidateAllowsWeakSecretsInDevelopment(t *testing.T) {
	cfg := Load()
	cfg.Environment = Development
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownEnvironment(t *testing.T) {
	cfg := Load()
	cfg.Environment = Environment("qa")
	require.Error(t, cfg.Validate())
}
