package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

type Config struct {
	Environment string
	Port        string
	GinMode     string
	CORSOrigins []string

	MongoURI string
	DBName   string

	// Redis Configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// WhatsApp Cloud API
	WhatsAppToken         string
	WhatsAppPhoneNumberID string
	WhatsAppVerifyToken   string
	WhatsAppAppSecret     string
	WhatsAppAPIVersion    string
	WhatsAppAPIURL        string
	MaxWebhookBodySize    int64

	// Gemini
	GeminiAPIKey      string
	GeminiModel       string
	GeminiTier        string
	AIResponseTimeout time.Duration
	CatalogLimit      int

	// MyFatoorah
	MyFatoorahAPIKey      string
	MyFatoorahBaseURL     string
	MyFatoorahCallbackURL string
	MyFatoorahErrorURL    string
	PaymentAmount         float64
	PaymentCurrency       string
	EnableMockPayments    bool
	MockPaymentBaseURL    string

	// Payment flow timing
	PaymentExpiryHours int
	SweepInterval      time.Duration

	HistoryLimit       int
	DedupWindow        time.Duration
	DefaultCountryCode string

	// Ops access
	OpsJWTSecret    string
	OpsAPIKeyHash   string
	OpsTokenTTL     time.Duration
	RateLimitReqs   int
	RateLimitWindow int

	// Async processing through asynq
	AsyncProcessing   bool
	WorkerConcurrency int

	// Telemetry
	TracingEnabled   bool
	OTLPEndpoint     string
	TraceSampleRatio float64

	// Warnings collects missing settings tolerated outside production.
	Warnings []string
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		Environment: strings.ToLower(getEnv("APP_ENV", EnvDevelopment)),
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),

		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017/freelancer_bot"),
		DBName:   getEnv("DB_NAME", "freelancer_bot"),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		WhatsAppToken:         getEnv("WHATSAPP_TOKEN", ""),
		WhatsAppPhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppVerifyToken:   getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppAppSecret:     getEnv("WHATSAPP_APP_SECRET", ""),
		WhatsAppAPIVersion:    getEnv("WHATSAPP_API_VERSION", "v21.0"),
		WhatsAppAPIURL:        getEnv("WHATSAPP_API_URL", "https://graph.facebook.com"),
		MaxWebhookBodySize:    getEnvInt64("MAX_WEBHOOK_BODY_SIZE", 1<<20),

		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiTier:        getEnv("GEMINI_TIER", "free"),
		AIResponseTimeout: getEnvDuration("AI_RESPONSE_TIMEOUT", 25*time.Second),
		CatalogLimit:      getEnvInt("CATALOG_LIMIT", 200),

		MyFatoorahAPIKey:      getEnv("MYFATOORAH_API_KEY", ""),
		MyFatoorahBaseURL:     getEnv("MYFATOORAH_BASE_URL", "https://apitest.myfatoorah.com"),
		MyFatoorahCallbackURL: getEnv("MYFATOORAH_CALLBACK_URL", "http://localhost:8080/payment/callback"),
		MyFatoorahErrorURL:    getEnv("MYFATOORAH_ERROR_URL", "http://localhost:8080/payment/error"),
		PaymentAmount:         getEnvFloat64("PAYMENT_AMOUNT", 10),
		PaymentCurrency:       getEnv("PAYMENT_CURRENCY", "KWD"),
		EnableMockPayments:    getEnvBool("ENABLE_MOCK_PAYMENTS", false),
		MockPaymentBaseURL:    getEnv("MOCK_PAYMENT_BASE_URL", "http://localhost:8080/mock-pay"),

		PaymentExpiryHours: getEnvInt("PAYMENT_EXPIRY_HOURS", 12),
		SweepInterval:      getEnvDuration("PAYMENT_SWEEP_INTERVAL", time.Hour),

		HistoryLimit:       getEnvInt("HISTORY_LIMIT", 20),
		DedupWindow:        getEnvDuration("DEDUP_WINDOW", 5*time.Second),
		DefaultCountryCode: getEnv("DEFAULT_COUNTRY_CODE", "KW"),

		OpsJWTSecret:    getEnv("OPS_JWT_SECRET", ""),
		OpsAPIKeyHash:   getEnv("OPS_API_KEY_HASH", ""),
		OpsTokenTTL:     getEnvDuration("OPS_TOKEN_TTL", time.Hour),
		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		AsyncProcessing:   getEnvBool("ASYNC_PROCESSING", false),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 20),

		TracingEnabled:   getEnvBool("TRACING_ENABLED", false),
		OTLPEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		TraceSampleRatio: getEnvFloat64("TRACE_SAMPLE_RATIO", 0.1),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsProduction reports whether missing credentials are fatal and mock payments are off.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// PaymentExpiry is how long an issued payment link stays valid.
func (c *Config) PaymentExpiry() time.Duration {
	return time.Duration(c.PaymentExpiryHours) * time.Hour
}

func (c *Config) validate() error {
	required := map[string]string{
		"WHATSAPP_TOKEN":           c.WhatsAppToken,
		"WHATSAPP_PHONE_NUMBER_ID": c.WhatsAppPhoneNumberID,
		"WHATSAPP_VERIFY_TOKEN":    c.WhatsAppVerifyToken,
		"GEMINI_API_KEY":           c.GeminiAPIKey,
		"OPS_JWT_SECRET":           c.OpsJWTSecret,
	}
	if !c.EnableMockPayments || c.IsProduction() {
		required["MYFATOORAH_API_KEY"] = c.MyFatoorahAPIKey
	}
	// The local default is only acceptable outside production.
	if c.IsProduction() {
		required["MONGO_URI"] = os.Getenv("MONGO_URI")
	}

	keys := []string{
		"WHATSAPP_TOKEN", "WHATSAPP_PHONE_NUMBER_ID", "WHATSAPP_VERIFY_TOKEN",
		"GEMINI_API_KEY", "OPS_JWT_SECRET", "MYFATOORAH_API_KEY", "MONGO_URI",
	}
	for _, key := range keys {
		value, ok := required[key]
		if !ok || value != "" {
			continue
		}
		if c.IsProduction() {
			return fmt.Errorf("%s is required - set it in .env file", key)
		}
		c.Warnings = append(c.Warnings, key+" is not set")
	}

	if c.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be positive, got %d", c.HistoryLimit)
	}
	if c.PaymentExpiryHours <= 0 {
		return fmt.Errorf("PAYMENT_EXPIRY_HOURS must be positive, got %d", c.PaymentExpiryHours)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
