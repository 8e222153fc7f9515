package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "0", cfg.Server.Port)
	assert.Equal(t, "stock_data.db", cfg.Stores.StockDataPath)
	assert.Equal(t, "user_data.db", cfg.Stores.UserDataPath)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "trade-events", cfg.Kafka.Topic)
	assert.True(t, cfg.SSDP.Enabled)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "8080")
	t.Setenv("FETCH_TIMEOUT_SECONDS", "5")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092, broker-2:9092,")
	t.Setenv("SSDP_ENABLED", "false")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.SSDP.Enabled)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("FETCH_TIMEOUT_SECONDS", "soon")
	t.Setenv("SSDP_ENABLED", "maybe")

	cfg := Load()

	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout)
	assert.True(t, cfg.SSDP.Enabled)
}
