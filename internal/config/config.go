package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	NodeID      int64

	OTLPEndpoint string
	Telemetry    TelemetryRuntime

	HTTPAddr   string
	AdminToken string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBRunMigrations   bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBrokers []string
	KafkaTopic   string

	DefaultCurrency string

	Billing BillingRuntime
}

// TelemetryRuntime selects log output and which OTLP signals are exported.
type TelemetryRuntime struct {
	LogLevel       string
	LogFormat      string
	TracesEnabled  bool
	MetricsEnabled bool
	OTLPProtocol   string
	SamplingRatio  float64
}

// BillingRuntime carries the static knobs of the billing jobs. Values that
// operators tune at runtime live in BillingConfigHolder instead.
type BillingRuntime struct {
	Period              time.Duration
	Lookback            int
	SnapshotConcurrency int
	SnapshotSchedule    string
	SweepSchedule       string
	OnboardingSchedule  string
	EnabledJobs         []string
	LockTimeout         time.Duration
	MaxApplyAttempts    int
	SuspensionPublisher string
	SuspensionChannel   string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "computeledger"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		NodeID:            getenvInt64("SNOWFLAKE_NODE_ID", 1),
		OTLPEndpoint:      getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		AdminToken:        strings.TrimSpace(getenv("ADMIN_API_TOKEN", "")),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "postgres"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 50)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),
		DBRunMigrations:   getenvBool("DATABASE_RUN_MIGRATIONS", true),
		RedisAddr:         strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:     getenv("REDIS_PASSWORD", ""),
		RedisDB:           int(getenvInt64("REDIS_DB", 0)),
		KafkaBrokers:      parseList(getenv("KAFKA_BROKERS", "")),
		KafkaTopic:        getenv("KAFKA_SUSPENSION_TOPIC", "billing.suspensions"),
		DefaultCurrency:   strings.ToUpper(getenv("DEFAULT_CURRENCY", "UZS")),
		Billing: BillingRuntime{
			Period:              getenvDuration("BILLING_PERIOD", time.Hour),
			Lookback:            int(getenvInt64("BILLING_LOOKBACK_PERIODS", 3)),
			SnapshotConcurrency: int(getenvInt64("BILLING_SNAPSHOT_CONCURRENCY", 8)),
			SnapshotSchedule:    getenv("BILLING_SNAPSHOT_SCHEDULE", "@every 5m"),
			SweepSchedule:       getenv("SUSPENSION_SWEEP_SCHEDULE", "@every 5m"),
			OnboardingSchedule:  getenv("ONBOARDING_POLL_SCHEDULE", "@every 10s"),
			EnabledJobs:         parseList(getenv("SCHEDULER_ENABLED_JOBS", "")),
			LockTimeout:         getenvDuration("LEDGER_LOCK_TIMEOUT", 5*time.Second),
			MaxApplyAttempts:    int(getenvInt64("LEDGER_MAX_APPLY_ATTEMPTS", 5)),
			SuspensionPublisher: strings.ToLower(getenv("SUSPENSION_PUBLISHER", "log")),
			SuspensionChannel:   getenv("SUSPENSION_CHANNEL", "billing:suspensions"),
		},
	}

	otelEnabled := getenvBool("OTEL_ENABLED", false)
	cfg.Telemetry = TelemetryRuntime{
		LogLevel:       strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
		LogFormat:      strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
		TracesEnabled:  getenvBool("OTEL_TRACES_ENABLED", otelEnabled),
		MetricsEnabled: getenvBool("OTEL_METRICS_ENABLED", otelEnabled),
		OTLPProtocol:   strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
		SamplingRatio:  getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
