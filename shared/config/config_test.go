package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "access-secret")
	t.Setenv("JWT_REFRESH_SECRET", "refresh-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, 5, cfg.Database.MaxIdleConns)
	assert.Equal(t, 5*time.Minute, cfg.Database.ConnMaxLifetime)
	assert.True(t, cfg.Billing.VATRate.Equal(decimal.RequireFromString("0.16")))
	assert.Equal(t, 30, cfg.Billing.DueDays)
	assert.Equal(t, 30, cfg.Inventory.ExpiryWindowDays)
	assert.Equal(t, "https://sandbox.safaricom.co.ke", cfg.Mpesa.BaseURL)
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.Mpesa.Enabled())
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BILLING_VAT_RATE", "0.08")
	t.Setenv("REDIS_ADDRESS", "localhost:6379")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("DB_SSLMODE", "require")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Billing.VATRate.Equal(decimal.RequireFromString("0.08")))
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSAllowedOrigins)
	assert.Contains(t, cfg.Database.DSN(), "sslmode=require")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"missing jwt secret": {"JWT_ACCESS_SECRET": ""},
		"vat rate too high":  {"BILLING_VAT_RATE": "1.5"},
		"vat rate garbage":   {"BILLING_VAT_RATE": "sixteen"},
		"bad log level":      {"LOG_LEVEL": "loud"},
		"bad expiry window":  {"INVENTORY_EXPIRY_WINDOW_DAYS": "400"},
	}

	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestMpesaEnabled(t *testing.T) {
	m := MpesaConfig{ConsumerKey: "k", ConsumerSecret: "s", ShortCode: "174379", PassKey: "p"}
	assert.False(t, m.Enabled())
	m.CallbackURL = "https://clinic.example/api/financial/mpesa/callback"
	assert.True(t, m.Enabled())
}
