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
	DBConnMaxIdleTime int

	Settlement SettlementConfig
	Fraud      FraudConfig
	Trust      TrustConfig
	Commission CommissionConfig
	RateLimit  RateLimitConfig
	Penalty    PenaltyConfig
}

// SettlementConfig controls the payout pipeline timings.
type SettlementConfig struct {
	Currency         string
	ClearingDelay    time.Duration
	EvidenceWindow   time.Duration
	EvidenceMaxItems int
	SweepInterval    time.Duration
	SweepBatchSize   int
}

// FraudConfig holds the flagger thresholds.
type FraudConfig struct {
	MinEngagementRatio   float64
	VelocityMultiplier   float64
	NewAccountMinAgeDays int
	NewAccountAmountCap  int64
}

// TrustConfig points at the external profile/identity store. An empty base
// URL selects the permissive no-op provider.
type TrustConfig struct {
	BaseURL string
	Timeout time.Duration
}

// CommissionConfig holds the platform-wide default fee rates.
type CommissionConfig struct {
	PlatformFeeBps  int64
	CommunityFeeBps int64
}

// RateLimitConfig configures the redis-backed request limiter.
type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PayoutRate    float64
	PayoutBurst   int
	EvidenceRate  float64
	EvidenceBurst int
}

// PenaltyConfig configures the outbound penalty dispatch.
type PenaltyConfig struct {
	Enabled      bool
	KafkaBrokers []string
	Topic        string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:           getenv("APP_SERVICE", "payrail"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		LogLevel:          getenv("LOG_LEVEL", "info"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "payrail"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		Settlement: SettlementConfig{
			Currency:         getenv("SETTLEMENT_CURRENCY", "USD"),
			ClearingDelay:    getenvDuration("SETTLEMENT_CLEARING_DELAY", 72*time.Hour),
			EvidenceWindow:   getenvDuration("SETTLEMENT_EVIDENCE_WINDOW", 48*time.Hour),
			EvidenceMaxItems: getenvInt("SETTLEMENT_EVIDENCE_MAX_ITEMS", 5),
			SweepInterval:    getenvDuration("SETTLEMENT_SWEEP_INTERVAL", time.Minute),
			SweepBatchSize:   getenvInt("SETTLEMENT_SWEEP_BATCH_SIZE", 50),
		},
		Fraud: FraudConfig{
			MinEngagementRatio:   getenvFloat("FRAUD_MIN_ENGAGEMENT_RATIO", 0.02),
			VelocityMultiplier:   getenvFloat("FRAUD_VELOCITY_MULTIPLIER", 5.0),
			NewAccountMinAgeDays: getenvInt("FRAUD_NEW_ACCOUNT_MIN_AGE_DAYS", 30),
			NewAccountAmountCap:  getenvInt64("FRAUD_NEW_ACCOUNT_AMOUNT_CAP", 50000),
		},
		Trust: TrustConfig{
			BaseURL: strings.TrimSpace(getenv("TRUST_PROFILE_BASE_URL", "")),
			Timeout: getenvDuration("TRUST_PROFILE_TIMEOUT", 5*time.Second),
		},
		Commission: CommissionConfig{
			PlatformFeeBps:  getenvInt64("COMMISSION_PLATFORM_FEE_BPS", 500),
			CommunityFeeBps: getenvInt64("COMMISSION_COMMUNITY_FEE_BPS", 200),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:     strings.TrimSpace(getenv("RATE_LIMIT_REDIS_ADDR", "")),
			RedisPassword: strings.TrimSpace(getenv("RATE_LIMIT_REDIS_PASSWORD", "")),
			RedisDB:       getenvInt("RATE_LIMIT_REDIS_DB", 0),
			PayoutRate:    getenvFloat("RATE_LIMIT_PAYOUT_RATE", 0.2),
			PayoutBurst:   getenvInt("RATE_LIMIT_PAYOUT_BURST", 3),
			EvidenceRate:  getenvFloat("RATE_LIMIT_EVIDENCE_RATE", 1),
			EvidenceBurst: getenvInt("RATE_LIMIT_EVIDENCE_BURST", 10),
		},
		Penalty: PenaltyConfig{
			Enabled:      getenvBool("PENALTY_DISPATCH_ENABLED", false),
			KafkaBrokers: splitList(getenv("PENALTY_KAFKA_BROKERS", "localhost:9092")),
			Topic:        getenv("PENALTY_KAFKA_TOPIC", "settlement.penalties"),
		},
	}
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
	if err != nil {
		return def
	}
	return parsed
}

func splitList(raw string) []string {
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
