package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode string `ignored:"true"` // Set via flag, not env

	// MongoDB
	MongoURI     string        `envconfig:"MONGO_URI"` // required with STORE_DRIVER=mongo
	MongoDbName  string        `envconfig:"MONGO_DB_NAME" default:"velaa"`
	StoreDriver  string        `envconfig:"STORE_DRIVER" default:"mongo"` // mongo | memory
	StoreTimeout time.Duration `envconfig:"STORE_TIMEOUT" default:"10s"`

	// Redis
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// JWT
	JwtSecret string        `envconfig:"JWT_SECRET" required:"true"`
	JwtTTL    time.Duration `envconfig:"JWT_TTL" default:"1h"`

	// Server
	ApiPort        string `envconfig:"API_PORT" default:"8080"`
	ServiceApiPort string `envconfig:"SERVICE_API_PORT" default:"8081"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"console"`
	LogOutput string `envconfig:"LOG_OUTPUT" default:"stdout"`

	// Billing
	BillingCurrency            string `envconfig:"BILLING_CURRENCY" default:"PKR"`
	BillingGenerateCron        string `envconfig:"BILLING_GENERATE_CRON" default:"0 1 * * *"`
	BillingOverdueCron         string `envconfig:"BILLING_OVERDUE_CRON" default:"30 1 * * *"`
	BillingGenerateConcurrency int    `envconfig:"BILLING_GENERATE_CONCURRENCY" default:"4"`
	ReminderTemplateID         string `envconfig:"BILLING_REMINDER_TEMPLATE" default:"invoice_reminder"`

	// Email
	SmtpHost        string `envconfig:"SMTP_HOST"`
	SmtpPort        int    `envconfig:"SMTP_PORT" default:"587"`
	SmtpUsername    string `envconfig:"SMTP_USERNAME"`
	SmtpPassword    string `envconfig:"SMTP_PASSWORD"`
	SmtpFromAddress string `envconfig:"SMTP_FROM_ADDRESS" default:"billing@velaa.example.com"`
	MockServices    bool   `envconfig:"MOCK_SERVICES" default:"false"`
	LogEmails       string `envconfig:"LOG_EMAILS"`

	// AWS S3
	AwsAccessKeyID     string        `envconfig:"AWS_ACCESS_KEY_ID"`
	AwsSecretAccessKey string        `envconfig:"AWS_SECRET_ACCESS_KEY"`
	AwsRegion          string        `envconfig:"AWS_REGION" default:"us-east-1"`
	AwsS3Bucket        string        `envconfig:"AWS_S3_BUCKET"`
	ExportURLTTL       time.Duration `envconfig:"EXPORT_URL_TTL" default:"24h"`

	// App Defaults
	AppName string `envconfig:"APP_NAME" default:"Velaa"`

	// Rate Limiting Defaults
	RateLimitSoftBucketSize int           `envconfig:"RATE_LIMIT_SOFT_BUCKET_SIZE" default:"20"`
	RateLimitSoftRefillRate int           `envconfig:"RATE_LIMIT_SOFT_REFILL_RATE" default:"10"` // tokens per second
	RateLimitHardBucketSize int           `envconfig:"RATE_LIMIT_HARD_BUCKET_SIZE" default:"60"`
	RateLimitHardRefillRate int           `envconfig:"RATE_LIMIT_HARD_REFILL_RATE" default:"30"` // tokens per second
	RateLimitClientTTL      time.Duration `envconfig:"RATE_LIMIT_CLIENT_TTL" default:"30m"`
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.RunMode = runMode

	switch cfg.StoreDriver {
	case "mongo":
		if cfg.MongoURI == "" {
			return nil, fmt.Errorf("failed to load configuration: MONGO_URI is required with STORE_DRIVER=mongo")
		}
	case "memory":
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q: expected mongo or memory", cfg.StoreDriver)
	}
	if cfg.BillingGenerateConcurrency <= 0 {
		cfg.BillingGenerateConcurrency = 1
	}

	return cfg, nil
}
