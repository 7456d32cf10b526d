package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	t.Setenv("AUTH_TOKEN_TTL", "")
	t.Setenv("ANON_COUNTER_TTL", "")
	t.Setenv("STRIPE_CURRENCY", "")
	t.Setenv("TRUSTED_PROXIES", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.DB.Driver)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, time.Duration(0), cfg.Anonymous.CounterTTL)
	assert.Equal(t, "gbp", cfg.Stripe.Currency)
	assert.Empty(t, cfg.HTTP.TrustedProxies)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "Mongo")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.0.2.10 ,")
	t.Setenv("FRONTEND_URL", "https://app.example.test/")
	t.Setenv("ANON_COUNTER_TTL", "24h")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "mongo", cfg.DB.Driver)
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.10"}, cfg.HTTP.TrustedProxies)
	assert.Equal(t, "https://app.example.test", cfg.Stripe.FrontendURL)
	assert.Equal(t, 24*time.Hour, cfg.Anonymous.CounterTTL)
}

func TestLoadConfigRejectsBadNumbers(t *testing.T) {
	t.Setenv("SMTP_PORT", "not-a-port")
	_, err := LoadConfig()
	assert.ErrorContains(t, err, "SMTP_PORT")

	t.Setenv("SMTP_PORT", "")
	t.Setenv("PROVIDER_TIMEOUT", "soon")
	_, err = LoadConfig()
	assert.ErrorContains(t, err, "PROVIDER_TIMEOUT")
}

func TestValidate(t *testing.T) {
	cfg := &Config{DB: DBConfig{Driver: "memory"}}
	assert.ErrorContains(t, cfg.Validate(), "JWT_SECRET")

	cfg.Auth.JWTSecret = "s"
	cfg.Provider.BaseURL = "https://provider.test"
	assert.NoError(t, cfg.Validate())

	cfg.HTTP.TrustedProxies = []string{"10.0.0.0/8", "192.0.2.1"}
	assert.NoError(t, cfg.Validate())
	cfg.HTTP.TrustedProxies = []string{"load-balancer"}
	assert.ErrorContains(t, cfg.Validate(), "TRUSTED_PROXIES")
	cfg.HTTP.TrustedProxies = nil

	cfg.DB.Driver = "sqlite"
	assert.Error(t, cfg.Validate())
}
