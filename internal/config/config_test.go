package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(env(nil))
	require.NoError(t, err)

	assert.Equal(t, "freshcut", cfg.ServiceName)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.Equal(t, 3*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 5*time.Second, cfg.PaymentWidgetTimeout)
	assert.Equal(t, "INR", cfg.Currency)
	assert.Equal(t, 5, cfg.InventoryMaxRetries)
	assert.Zero(t, cfg.PendingOrderTTL)
	assert.False(t, cfg.FulfillRequiresPaid)
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := Load(env(map[string]string{
		"STORE_DRIVER":          "SQLite",
		"STORE_DSN":             "file:shop.db",
		"PENDING_ORDER_TTL":     "30m",
		"FULFILL_REQUIRES_PAID": "true",
		"INVENTORY_MAX_RETRIES": "9",
		"CURRENCY":              "usd",
		"PUBLIC_BASE_URL":       "https://shop.example/",
	}))
	require.NoError(t, err)

	assert.Equal(t, StoreSQLite, cfg.StoreDriver)
	assert.Equal(t, 30*time.Minute, cfg.PendingOrderTTL)
	assert.True(t, cfg.FulfillRequiresPaid)
	assert.Equal(t, 9, cfg.InventoryMaxRetries)
	assert.Equal(t, "USD", cfg.Currency)
	assert.Equal(t, "https://shop.example", cfg.PublicBaseURL)
}

func TestLoad_ReportsEveryInvalidValue(t *testing.T) {
	_, err := Load(env(map[string]string{
		"STORE_TIMEOUT":         "soon",
		"INVENTORY_MAX_RETRIES": "many",
		"FULFILL_REQUIRES_PAID": "perhaps",
		"STORE_DRIVER":          "mongo",
	}))
	require.Error(t, err)
	for _, key := range []string{"STORE_TIMEOUT", "INVENTORY_MAX_RETRIES", "FULFILL_REQUIRES_PAID", "STORE_DRIVER"} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestLoad_SQLStoreNeedsDSN(t *testing.T) {
	_, err := Load(env(map[string]string{"STORE_DRIVER": "postgres"}))
	assert.ErrorContains(t, err, "STORE_DSN")
}
