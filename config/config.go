package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration (app-level realtime fan-out)
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// Payment gateway configuration
	GatewayProvider   string
	GatewayBaseURL    string
	GatewayKeyID      string
	GatewayKeySecret  string
	GatewayHMACKey    string
	GatewayTimeout    time.Duration
	GatewayPNSubKey   string
	GatewayPNChannel  string
	GatewayPNUUID     string

	// Session configuration
	SessionTimeout    time.Duration
	HeartbeatInterval time.Duration

	// Seat configuration
	SweepInterval time.Duration

	// Rate limiting
	RateLimitPerMinute int

	// Admin
	AdminKeyHash string // bcrypt hash of the admin API key

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// Gateway
		GatewayProvider:  getEnv("GATEWAY_PROVIDER", "sandbox"),
		GatewayBaseURL:   getEnv("GATEWAY_BASE_URL", ""),
		GatewayKeyID:     getEnv("GATEWAY_KEY_ID", ""),
		GatewayKeySecret: getEnv("GATEWAY_KEY_SECRET", ""),
		GatewayHMACKey:   getEnv("GATEWAY_HMAC_KEY", ""),
		GatewayTimeout:   getEnvAsDuration("GATEWAY_TIMEOUT", "10s"),
		GatewayPNSubKey:  getEnv("GATEWAY_PN_SUBKEY", ""),
		GatewayPNChannel: getEnv("GATEWAY_PN_CHANNEL", "feepay-transactions"),
		GatewayPNUUID:    getEnv("GATEWAY_PN_UUID", "studyseat-server"),

		// Sessions
		SessionTimeout:    getEnvAsDuration("SESSION_TIMEOUT", "30m"),
		HeartbeatInterval: getEnvAsDuration("HEARTBEAT_INTERVAL", "60s"),

		// Seats
		SweepInterval: getEnvAsDuration("SWEEP_INTERVAL", "1h"),

		// Rate limiting
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 30),

		// Admin
		AdminKeyHash: getEnv("ADMIN_KEY_HASH", ""),

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
	// If parsing fails, fall back to the default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
