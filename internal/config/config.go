package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for the command handler
type Config struct {
	// Database
	DatabaseURL string

	// Kafka
	KafkaBrokers      []string
	SchemaRegistryURL string
	ConsumerGroup     string

	// Producer
	ProducerQueueSize int

	// Business policy
	AllowExternalFrom bool

	// Observability
	OpsAddr        string
	JaegerEndpoint string
	LogLevel       string
	Env            string
}

// LoadConfig loads configuration from environment variables.
// DATABASE_URL has no default and must be set.
func LoadConfig() (*Config, error) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL must be set")
	}

	cfg := &Config{
		DatabaseURL:       databaseURL,
		KafkaBrokers:      strings.Split(getEnv("KAFKA_BROKERS", "127.0.0.1:9092"), ","),
		SchemaRegistryURL: getEnv("SCHEMA_REGISTRY_URL", "http://localhost:8081"),
		ConsumerGroup:     getEnv("CONSUMER_GROUP", "command-handler"),
		ProducerQueueSize: getEnvAsInt("PRODUCER_QUEUE_SIZE", 256),
		AllowExternalFrom: getEnvAsBool("ALLOW_EXTERNAL_FROM", true),
		OpsAddr:           getEnv("OPS_ADDR", ":8081"),
		JaegerEndpoint:    getEnv("JAEGER_ENDPOINT", ""),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		Env:               getEnv("ENV", "development"),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
