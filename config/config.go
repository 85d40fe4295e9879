package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration (settlement notifications)
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// Hold configuration
	HoldTTL       time.Duration
	SweepInterval time.Duration

	// Retry configuration for transient store conflicts
	RetryAttempts int
	RetryBackoff  time.Duration

	// Payment gateway configuration
	Gateway GatewayConfig

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

type GatewayConfig struct {
	SubscribeKey string
	SecretKey    string
	CipherKey    string
	UUID         string
	Channel      string
	HMACKey      string

	// TokenHash is the bcrypt hash of the shared callback token.
	TokenHash string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// Holds
		HoldTTL:       getEnvAsDuration("HOLD_TTL", "10m"),
		SweepInterval: getEnvAsDuration("SWEEP_INTERVAL", "30s"),

		// Retries
		RetryAttempts: getEnvAsInt("RETRY_ATTEMPTS", 3),
		RetryBackoff:  getEnvAsDuration("RETRY_BACKOFF", "50ms"),

		// Gateway
		Gateway: GatewayConfig{
			SubscribeKey: getEnv("GATEWAY_PN_SUBKEY", ""),
			SecretKey:    getEnv("GATEWAY_PN_SECRET", ""),
			CipherKey:    getEnv("GATEWAY_PN_CIPHER_KEY", ""),
			UUID:         getEnv("GATEWAY_PN_UUID", "ticket-reservation"),
			Channel:      getEnv("GATEWAY_PN_CHANNEL", "bank-payment-notifications"),
			HMACKey:      getEnv("GATEWAY_HMAC_KEY", ""),
			TokenHash:    getEnv("GATEWAY_TOKEN_HASH", ""),
		},

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
