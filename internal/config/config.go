package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type DatabaseConfig struct {
	Host     string
	User     string
	Password string
	Name     string
	Port     string
	SSLMode  string
}

// DSN returns the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode,
	)
}

type PaymentConfig struct {
	Provider  string // sandbox or razorpay
	KeyID     string
	KeySecret string
	Currency  string
	BaseURL   string
}

type StorageConfig struct {
	AWSRegion    string
	AWSAccessKey string
	AWSSecretKey string
	Bucket       string
	UploadDir    string
	BaseURL      string
}

// UseS3 reports whether S3 credentials are configured.
func (s StorageConfig) UseS3() bool {
	return s.AWSRegion != "" && s.AWSAccessKey != "" && s.AWSSecretKey != ""
}

type Config struct {
	Port                string
	GinMode             string
	Database            DatabaseConfig
	RedisURL            string
	JWTSecret           string
	Location            *time.Location
	Payment             PaymentConfig
	Storage             StorageConfig
	FirebaseCredentials string
	LogLevel            string
	LogFormat           string
	RefundRetryInterval time.Duration
}

// Load reads .env (when present) and the process environment.
// Variables already set in the environment win over the file.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	tz := getEnv("APP_TIMEZONE", "Asia/Kolkata")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid APP_TIMEZONE %q: %w", tz, err)
	}

	retry, err := time.ParseDuration(getEnv("REFUND_RETRY_INTERVAL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid REFUND_RETRY_INTERVAL: %w", err)
	}

	cfg := &Config{
		Port:    getEnv("PORT", "8080"),
		GinMode: os.Getenv("GIN_MODE"),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     os.Getenv("DB_NAME"),
			Port:     getEnv("DB_PORT", "5432"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		RedisURL:  os.Getenv("REDIS_URL"),
		JWTSecret: os.Getenv("JWT_SECRET"),
		Location:  loc,
		Payment: PaymentConfig{
			Provider:  strings.ToLower(getEnv("PAYMENT_PROVIDER", "sandbox")),
			KeyID:     getEnv("PAYMENT_KEY_ID", "rzp_test_sandbox"),
			KeySecret: getEnv("PAYMENT_KEY_SECRET", "sandbox-secret"),
			Currency:  getEnv("PAYMENT_CURRENCY", "INR"),
			BaseURL:   getEnv("PAYMENT_BASE_URL", "https://api.razorpay.com/v1"),
		},
		Storage: StorageConfig{
			AWSRegion:    os.Getenv("AWS_REGION"),
			AWSAccessKey: os.Getenv("AWS_ACCESS_KEY_ID"),
			AWSSecretKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			Bucket:       os.Getenv("AWS_S3_BUCKET"),
			UploadDir:    getEnv("UPLOAD_DIR", "/app/uploads"),
			BaseURL:      getEnv("BASE_URL", "http://localhost:8080"),
		},
		FirebaseCredentials: os.Getenv("FIREBASE_SERVICE_ACCOUNT_PATH"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "text"),
		RefundRetryInterval: retry,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid PORT %q", c.Port)
	}
	switch c.Payment.Provider {
	case "sandbox", "razorpay":
	default:
		return fmt.Errorf("unknown PAYMENT_PROVIDER %q", c.Payment.Provider)
	}
	if c.Payment.Provider == "razorpay" && (c.Payment.KeyID == "" || c.Payment.KeySecret == "") {
		return fmt.Errorf("PAYMENT_KEY_ID and PAYMENT_KEY_SECRET are required for razorpay")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
