package app

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 3, cfg.DBTxMaxAttempts)
	require.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	require.True(t, cfg.PurchaseTaxRate.Equal(decimal.RequireFromString("0.16")))
	require.False(t, cfg.IsProduction())
	require.False(t, cfg.IsTest())
	require.Equal(t, ":9091", cfg.WorkerMetricsAddr)
}

func TestTestEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.IsTest())
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("PURCHASE_TAX_RATE", "0.08")
	t.Setenv("DB_TX_MAX_ATTEMPTS", "5")
	t.Setenv("APP_REQUEST_TIMEOUT", "5s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.True(t, cfg.PurchaseTaxRate.Equal(decimal.RequireFromString("0.08")))
	require.Equal(t, 5, cfg.DBTxMaxAttempts)
	require.Equal(t, 5*time.Second, cfg.AppRequestTimeout)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	for name, env := range map[string][2]string{
		"tax rate":  {"PURCHASE_TAX_RATE", "1.5"},
		"negative":  {"PURCHASE_TAX_RATE", "-0.1"},
		"attempts":  {"DB_TX_MAX_ATTEMPTS", "0"},
		"not a int": {"DB_TX_MAX_ATTEMPTS", "many"},
	} {
		t.Run(name, func(t *testing.T) {
			t.Setenv(env[0], env[1])
			_, err := LoadConfig()
			require.Error(t, err)
		})
	}
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, "DEBUG", parseLevel(&Config{LogLevel: "debug"}).String())
	require.Equal(t, "WARN", parseLevel(&Config{LogLevel: "WARNING"}).String())
	require.Equal(t, "INFO", parseLevel(nil).String())
}
