package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrderAPIDefaults(t *testing.T) {
	cfg, err := Load[OrderAPI]()
	require.NoError(t, err)

	assert.Equal(t, ":8083", cfg.HTTPAddr)
	assert.Equal(t, "http://localhost:8082/api/products", cfg.ProductServiceURL)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, uint64(4), cfg.RetryAttempts)
}

func TestLoadPaymentAPIFromEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("ORDER_SERVICE_URL", "http://orders:8083/api/orders")
	t.Setenv("RECONCILE_INTERVAL", "750ms")
	t.Setenv("APP_ENV", "prod")

	cfg, err := Load[PaymentAPI]()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "http://orders:8083/api/orders", cfg.OrderServiceURL)
	assert.Equal(t, 750*time.Millisecond, cfg.ReconcileInterval)
	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, "payment-api", cfg.ServiceName)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "soon")

	_, err := Load[Inventory]()
	assert.Error(t, err)
}
