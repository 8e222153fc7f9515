package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server ServerConfig
	Stores StoreConfig
	Fetch  FetchConfig
	Kafka  KafkaConfig
	SSDP   SSDPConfig
}

// ServerConfig holds HTTP server configuration. Port "0" binds an ephemeral
// free port, which the SSDP announcement then advertises.
type ServerConfig struct {
	Host string
	Port string
}

// StoreConfig holds the paths of the two SQLite store files.
type StoreConfig struct {
	StockDataPath string
	UserDataPath  string
}

// FetchConfig bounds calls to the upstream price source.
type FetchConfig struct {
	Timeout time.Duration
}

// KafkaConfig holds Kafka configuration. An empty broker list disables
// event publishing.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// SSDPConfig controls LAN service announcement.
type SSDPConfig struct {
	Enabled bool
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "0"),
		},
		Stores: StoreConfig{
			StockDataPath: getEnv("STOCK_DB_PATH", "stock_data.db"),
			UserDataPath:  getEnv("USER_DB_PATH", "user_data.db"),
		},
		Fetch: FetchConfig{
			Timeout: time.Duration(getEnvInt("FETCH_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: splitNonEmpty(getEnv("KAFKA_BROKERS", "")),
			Topic:   getEnv("KAFKA_TOPIC", "trade-events"),
		},
		SSDP: SSDPConfig{
			Enabled: getEnvBool("SSDP_ENABLED", true),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitNonEmpty(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
