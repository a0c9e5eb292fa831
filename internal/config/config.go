package config

import (
	"os"
	"strconv"
	"time"
)

// Database name and collection names are fixed by the deployment contract.
const (
	DatabaseName      = "support_saas"
	TicketsCollection = "tickets"
	JobsCollection    = "ingestion_jobs"
	LogsCollection    = "ingestion_logs"
	LocksCollection   = "distributed_locks"
	HistoryCollection = "ticket_history"
)

// Client-side timeouts for outbound calls.
const (
	ExternalFetchTimeout = 30 * time.Second
	NotifyTimeout        = 10 * time.Second
	HealthProbeTimeout   = 5 * time.Second
)

// Config holds application configuration.
type Config struct {
	Port           string
	MongoURL       string
	ExternalAPIURL string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	CircuitFailureThreshold int
	CircuitCooldown         time.Duration

	LockTTL time.Duration

	// TicketTTLDays enables a TTL index on tickets.created_at when > 0.
	// Disabled by default; tickets are kept indefinitely.
	TicketTTLDays int

	Debug bool
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		MongoURL:       getEnv("MONGO_URL", "mongodb://mongodb:27017"),
		ExternalAPIURL: getEnv("EXTERNAL_API_URL", "http://mock-external-api:9000"),

		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   time.Duration(getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,

		CircuitFailureThreshold: getEnvInt("CIRCUIT_FAILURE_THRESHOLD", 5),
		CircuitCooldown:         time.Duration(getEnvInt("CIRCUIT_COOLDOWN_SECONDS", 30)) * time.Second,

		LockTTL: time.Duration(getEnvInt("LOCK_TTL_SECONDS", 60)) * time.Second,

		TicketTTLDays: getEnvInt("TICKET_TTL_DAYS", 0),

		Debug: getEnvBool("DEBUG", false),
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
		return value == "true"
	}
	return defaultValue
}
