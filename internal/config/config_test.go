package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, StorageMemory, cfg.StorageBackend)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTTL)
	assert.True(t, cfg.CheckoutStrictStock)
	assert.True(t, decimal.NewFromInt(3000).Equal(cfg.ShippingThreshold))
	assert.True(t, cfg.ShippingFeeBelow.IsZero())
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
}

func TestLoad_InvalidHTTPPort(t *testing.T) {
	t.Setenv("STOREFRONT_HTTP_PORT", "0")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid HTTP port")
}

func TestLoad_InvalidAPIURL(t *testing.T) {
	t.Setenv("STOREFRONT_API_URL", "not a url")

	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "STOREFRONT_API_URL")
}

func TestLoad_UnknownStorageBackend(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "mongo")

	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORAGE_BACKEND")
}

func TestLoad_ShippingFees(t *testing.T) {
	t.Setenv("SHIPPING_THRESHOLD", "2500.50")
	t.Setenv("SHIPPING_FEE_BELOW_THRESHOLD", "99")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "2500.5", cfg.ShippingThreshold.String())
	assert.Equal(t, "99", cfg.ShippingFeeBelow.String())
}

func TestLoad_NegativeShippingFee(t *testing.T) {
	t.Setenv("SHIPPING_FEE_ABOVE_THRESHOLD", "-1")

	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not be negative")
}

func TestLoad_InvalidOTELSampleRate(t *testing.T) {
	t.Setenv("OTEL_SAMPLE_RATE", "2.0")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OTEL_SAMPLE_RATE must be between 0.0 and 1.0")
}

func TestLoad_StrictStockOff(t *testing.T) {
	t.Setenv("CHECKOUT_STRICT_STOCK", "false")

	cfg, err := Load()

	require.NoError(t, err)
	assert.False(t, cfg.CheckoutStrictStock)
}

func TestPostgresDSN_EscapesCredentials(t *testing.T) {
	cfg := &Config{
		PostgresUser: "shop",
		PostgresPass: "p@ss word",
		PostgresHost: "db",
		PostgresPort: 5432,
		PostgresDB:   "storefront_db",
		PostgresSSL:  "disable",
	}

	assert.Equal(t, "postgres://shop:p%40ss%20word@db:5432/storefront_db?sslmode=disable", cfg.PostgresDSN())
}
