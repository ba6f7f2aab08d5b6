package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	LogLevel    string

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

	Gateway   GatewayConfig
	Policy    PolicyConfig
	Scheduler SchedulerConfig
	Bus       BusConfig
}

// PolicyConfig configures the policy registry client. An empty BaseURL keeps
// policy lookups local.
type PolicyConfig struct {
	BaseURL string
	Timeout time.Duration
}

// GatewayConfig configures the outbound payment-gateway client and the
// standalone mock gateway.
type GatewayConfig struct {
	BaseURL     string
	Timeout     time.Duration
	MockAddr    string
	FailureRate float64
}

// SchedulerConfig configures the background worker loop.
type SchedulerConfig struct {
	RunInterval      time.Duration
	BatchSize        int
	StaleRetryAfter  time.Duration
	AbandonedCutoff  time.Duration
	DispatchInterval time.Duration
}

// BusConfig configures the outbound event bus.
type BusConfig struct {
	AMQPURL  string
	Exchange string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "premia"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "premia"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),

		Gateway: GatewayConfig{
			BaseURL:     getenv("GATEWAY_BASE_URL", "http://localhost:8090/api/gateway"),
			Timeout:     getenvDuration("GATEWAY_TIMEOUT", 30*time.Second),
			MockAddr:    getenv("GATEWAY_MOCK_ADDR", ":8090"),
			FailureRate: getenvFloat("GATEWAY_FAILURE_RATE", 0.3),
		},
		Policy: PolicyConfig{
			BaseURL: getenv("POLICY_BASE_URL", ""),
			Timeout: getenvDuration("POLICY_TIMEOUT", 10*time.Second),
		},
		Scheduler: SchedulerConfig{
			RunInterval:      getenvDuration("SCHEDULER_RUN_INTERVAL", time.Minute),
			BatchSize:        getenvInt("SCHEDULER_BATCH_SIZE", 50),
			StaleRetryAfter:  getenvDuration("SCHEDULER_STALE_RETRY_AFTER", 10*time.Minute),
			AbandonedCutoff:  getenvDuration("SCHEDULER_ABANDONED_CUTOFF", 15*time.Minute),
			DispatchInterval: getenvDuration("OUTBOX_DISPATCH_INTERVAL", 5*time.Second),
		},
		Bus: BusConfig{
			AMQPURL:  getenv("AMQP_URL", ""),
			Exchange: getenv("AMQP_EXCHANGE", "premia.billing.events"),
		},
	}
}

// Module provides the application Config.
var Module = fx.Module("config",
	fx.Provide(Load),
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
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
	if err != nil {
		return def
	}
	return parsed
}
