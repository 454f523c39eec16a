package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewPaymentDefaultsHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	AuthJWTSecret string
	AuthJWTIssuer string

	OTLPEndpoint string

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

	Redis     RedisConfig
	Ledger    LedgerConfig
	Payment   PaymentConfig
	RateLimit RateLimitConfig
	Scheduler SchedulerConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// LedgerConfig selects the chain family and one RPC endpoint per network.
type LedgerConfig struct {
	Family               string
	Endpoints            map[string]string
	Timeout              time.Duration
	RetryAttempts        int
	RetryInitialInterval time.Duration
	RPCRate              float64
	RPCBurst             int
}

type PaymentConfig struct {
	DefaultRecipient        string
	DefaultMinConfirmations uint64
	PolicyCacheTTL          time.Duration
}

type RateLimitConfig struct {
	VerifyRate  float64
	VerifyBurst int
}

type SchedulerConfig struct {
	RunInterval  time.Duration
	PendingGrace time.Duration
	BatchSize    int
}

const (
	NetworkProduction = "production"
	NetworkStaging    = "staging"
	NetworkTest       = "test"
)

const (
	FamilySolana = "solana"
	FamilyEVM    = "evm"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:       getenv("APP_SERVICE", "tugas"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   getenv("ENVIRONMENT", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		AuthJWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		AuthJWTIssuer: strings.TrimSpace(getenv("AUTH_JWT_ISSUER", "")),
		OTLPEndpoint:  getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "postgres"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Ledger: LedgerConfig{
			Family: strings.ToLower(strings.TrimSpace(getenv("LEDGER_FAMILY", FamilySolana))),
			Endpoints: map[string]string{
				NetworkProduction: strings.TrimSpace(getenv("LEDGER_RPC_PRODUCTION", "")),
				NetworkStaging:    strings.TrimSpace(getenv("LEDGER_RPC_STAGING", "")),
				NetworkTest:       strings.TrimSpace(getenv("LEDGER_RPC_TEST", "")),
			},
			Timeout:              getenvDuration("LEDGER_TIMEOUT", 8*time.Second),
			RetryAttempts:        getenvInt("LEDGER_RETRY_ATTEMPTS", 3),
			RetryInitialInterval: getenvDuration("LEDGER_RETRY_INITIAL_INTERVAL", 250*time.Millisecond),
			RPCRate:              getenvFloat("LEDGER_RPC_RATE", 20),
			RPCBurst:             getenvInt("LEDGER_RPC_BURST", 40),
		},
		Payment: PaymentConfig{
			DefaultRecipient:        strings.TrimSpace(getenv("PAYMENT_DEFAULT_RECIPIENT", "")),
			DefaultMinConfirmations: uint64(getenvInt("PAYMENT_DEFAULT_MIN_CONFIRMATIONS", 10)),
			PolicyCacheTTL:          getenvDuration("PAYMENT_POLICY_CACHE_TTL", 30*time.Second),
		},
		RateLimit: RateLimitConfig{
			VerifyRate:  getenvFloat("RATE_LIMIT_VERIFY_RATE", 0.5),
			VerifyBurst: getenvInt("RATE_LIMIT_VERIFY_BURST", 10),
		},
		Scheduler: SchedulerConfig{
			RunInterval:  getenvDuration("SCHEDULER_RUN_INTERVAL", time.Minute),
			PendingGrace: getenvDuration("SCHEDULER_PENDING_GRACE", 2*time.Minute),
			BatchSize:    getenvInt("SCHEDULER_BATCH_SIZE", 50),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

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
