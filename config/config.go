package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Environment string

	// Station identity
	StationID       string
	StationLocation string

	// Admin PIN (bcrypt hash) guarding manual outbox recovery
	AdminPINHash string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Ticketing authority
	AuthorityBaseURL string
	AuthorityTimeout time.Duration

	// Scan pipeline
	ScanCooldown    time.Duration
	MaxSyncAttempts int

	// Connectivity probing
	ProbeInterval time.Duration

	// Outbox storage
	OutboxKeyPrefix string

	// Event cache
	EventCacheTTL time.Duration

	// PubNub configuration (scan feedback channel)
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// Monitoring
	EnableMetrics bool
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Environment: getEnv("ENVIRONMENT", "development"),

		// Station
		StationID:       getEnv("STATION_ID", "station-1"),
		StationLocation: getEnv("STATION_LOCATION", "Main Gate"),
		AdminPINHash:    getEnv("STATION_ADMIN_PIN_HASH", ""),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// Authority
		AuthorityBaseURL: getEnv("AUTHORITY_BASE_URL", "http://localhost:8080"),
		AuthorityTimeout: getEnvAsDuration("AUTHORITY_TIMEOUT", "10s"),

		// Scan pipeline
		ScanCooldown:    getEnvAsDuration("SCAN_COOLDOWN", "2s"),
		MaxSyncAttempts: getEnvAsInt("MAX_SYNC_ATTEMPTS", 3),

		// Connectivity
		ProbeInterval: getEnvAsDuration("CONNECTIVITY_PROBE_INTERVAL", "15s"),

		// Outbox
		OutboxKeyPrefix: getEnv("OUTBOX_KEY_PREFIX", "outbox:checkin"),

		// Event cache
		EventCacheTTL: getEnvAsDuration("EVENT_CACHE_TTL", "5m"),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
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
