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
	InstanceID  string
	HTTPAddr    string

	OTLPEndpoint string
	Telemetry    TelemetryConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBMetricsEnabled  bool

	Redis RedisConfig

	Events    EventsConfig
	Worker    WorkerConfig
	Lease     LeaseConfig
	RateLimit RateLimitConfig
	Push      MetricsPushConfig

	// AdminToken guards /admin routes with a bearer token when set.
	AdminToken string

	PricingFile   string
	SeedDemoFleet bool
}

// TelemetryConfig carries the logging and OpenTelemetry settings. The
// OTEL_* names follow the OpenTelemetry SDK conventions.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OtelProtocol  string
	SamplingRatio float64
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type EventsConfig struct {
	// Transport selects the publisher: "log" or "redis".
	Transport      string
	Stream         string
	StreamMaxLen   int64
	RelayEnabled   bool
	RelayInterval  time.Duration
	RelayBatchSize int
	PublishTimeout time.Duration
}

type WorkerConfig struct {
	AutoRun           bool
	Interval          time.Duration
	RunTimeout        time.Duration
	MaxPerTick        int
	CandidateLimit    int
	RerouteOnCapacity bool
}

type LeaseConfig struct {
	// Backend selects the lease store: "sql" or "redis".
	Backend string
	TTL     time.Duration
}

// RateLimitConfig throttles truck reports per truck and the manual
// process-next trigger. It needs Redis.
type RateLimitConfig struct {
	Enabled      bool
	IntakeRate   float64
	IntakeBurst  int
	TriggerRate  float64
	TriggerBurst int
}

type MetricsPushConfig struct {
	Enabled   bool
	Exporter  string
	Endpoint  string
	AuthToken string
	Interval  time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("DEPLOYMENT_ENV", getenv("ENVIRONMENT", "development"))

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "recyclesim"),
		AppVersion:   getenv("SERVICE_VERSION", getenv("APP_VERSION", "0.1.0")),
		Environment:  environment,
		InstanceID:   strings.TrimSpace(getenv("INSTANCE_ID", hostname())),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),

		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:   getenvBool("OTEL_ENABLED", false),
			OtelProtocol:  strings.ToLower(getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},

		DBType:            strings.ToLower(getenv("DATABASE_TYPE", "postgres")),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "recyclesim"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "recyclesim.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBMetricsEnabled:  getenvBool("DATABASE_METRICS_ENABLED", false),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},

		Events: EventsConfig{
			Transport:      strings.ToLower(getenv("EVENTS_TRANSPORT", "log")),
			Stream:         getenv("EVENTS_STREAM", "recyclesim.deliveries"),
			StreamMaxLen:   getenvInt64("EVENTS_STREAM_MAXLEN", 100_000),
			RelayEnabled:   getenvBool("EVENTS_RELAY_ENABLED", true),
			RelayInterval:  getenvDuration("EVENTS_RELAY_INTERVAL", 5*time.Second),
			RelayBatchSize: getenvInt("EVENTS_RELAY_BATCH_SIZE", 100),
			PublishTimeout: getenvDuration("EVENTS_PUBLISH_TIMEOUT", 5*time.Second),
		},

		Worker: WorkerConfig{
			AutoRun:           getenvBool("WORKER_AUTO_RUN", true),
			Interval:          getenvDuration("WORKER_INTERVAL", 2*time.Second),
			RunTimeout:        getenvDuration("WORKER_RUN_TIMEOUT", 10*time.Second),
			MaxPerTick:        getenvInt("WORKER_MAX_PER_TICK", 50),
			CandidateLimit:    getenvInt("WORKER_CANDIDATE_LIMIT", 20),
			RerouteOnCapacity: getenvBool("WORKER_REROUTE_ON_CAPACITY", false),
		},

		Lease: LeaseConfig{
			Backend: strings.ToLower(getenv("LEASE_BACKEND", "sql")),
			TTL:     getenvDuration("LEASE_TTL", 30*time.Second),
		},

		RateLimit: RateLimitConfig{
			Enabled:      getenvBool("RATE_LIMIT_ENABLED", false),
			IntakeRate:   getenvFloat("RATE_LIMIT_INTAKE_RATE", 5),
			IntakeBurst:  getenvInt("RATE_LIMIT_INTAKE_BURST", 10),
			TriggerRate:  getenvFloat("RATE_LIMIT_TRIGGER_RATE", 20),
			TriggerBurst: getenvInt("RATE_LIMIT_TRIGGER_BURST", 40),
		},

		Push: MetricsPushConfig{
			Enabled:   getenvBool("METRICS_PUSH_ENABLED", false),
			Exporter:  strings.ToLower(getenv("METRICS_PUSH_EXPORTER", "")),
			Endpoint:  strings.TrimSpace(getenv("METRICS_PUSH_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("METRICS_PUSH_AUTH_TOKEN", "")),
			Interval:  getenvDuration("METRICS_PUSH_INTERVAL", time.Minute),
		},

		AdminToken: strings.TrimSpace(getenv("ADMIN_TOKEN", "")),

		PricingFile:   strings.TrimSpace(getenv("PRICING_FILE", "")),
		SeedDemoFleet: getenvBool("SEED_DEMO_FLEET", environment != "production"),
	}

	return cfg
}

func (c Config) IsPostgres() bool {
	return c.DBType == "postgres"
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return ""
	}
	return name
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

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
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
