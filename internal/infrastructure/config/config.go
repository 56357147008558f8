// internal/infrastructure/config/config.go
package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"nestcheckout-service/pkg/utils"
)

// Config holds all configuration for the application
type Config struct {
	// App
	AppVersion string

	// Server
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Calendar feed
	ICalURL        string
	TriggerKeyword string

	// Google OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRefreshToken string

	// Nest / SDM
	NestProjectID string
	NestDeviceIDs []string

	// Polling
	PollInterval    time.Duration
	CheckoutBuffer  time.Duration
	ProcessedMaxAge time.Duration

	// Email notifications
	SMTPEnabled   bool
	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
	SMTPFromEmail string
	SMTPToEmail   string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		AppVersion:   getEnv("APP_VERSION", "1.0.0"),
		Port:         getEnv("PORT", "8080"),
		ReadTimeout:  time.Duration(getEnvAsInt("READ_TIMEOUT", 30)) * time.Second,
		WriteTimeout: time.Duration(getEnvAsInt("WRITE_TIMEOUT", 30)) * time.Second,

		ICalURL:        getEnv("ICAL_URL", ""),
		TriggerKeyword: getEnv("TRIGGER_KEYWORD", "TURN_OFF_THERMOSTATS"),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRefreshToken: getEnv("GOOGLE_REFRESH_TOKEN", ""),

		NestProjectID: getEnv("NEST_PROJECT_ID", ""),
		NestDeviceIDs: utils.ParseDeviceIDList(getEnv("NEST_DEVICE_IDS", "")),

		PollInterval:    time.Duration(getEnvAsInt("POLL_INTERVAL_MINUTES", 10)) * time.Minute,
		CheckoutBuffer:  time.Duration(getEnvAsInt("CHECKOUT_BUFFER_MINUTES", 30)) * time.Minute,
		ProcessedMaxAge: time.Duration(getEnvAsInt("PROCESSED_MAX_AGE_HOURS", 24)) * time.Hour,

		SMTPEnabled:   getEnvAsBool("SMTP_ENABLED", false),
		SMTPHost:      getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:      getEnvAsInt("SMTP_PORT", 587),
		SMTPUsername:  getEnv("SMTP_USERNAME", ""),
		SMTPPassword:  getEnv("SMTP_PASSWORD", ""),
		SMTPFromEmail: getEnv("SMTP_FROM_EMAIL", ""),
		SMTPToEmail:   getEnv("SMTP_TO_EMAIL", ""),
	}

	if config.SMTPFromEmail == "" {
		config.SMTPFromEmail = config.SMTPUsername
	}

	if config.ICalURL == "" {
		return nil, errors.New("ICAL_URL is required")
	}
	if config.GoogleClientID == "" || config.GoogleClientSecret == "" || config.GoogleRefreshToken == "" {
		return nil, errors.New("GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET and GOOGLE_REFRESH_TOKEN are required")
	}
	if config.NestProjectID == "" {
		return nil, errors.New("NEST_PROJECT_ID is required")
	}

	return config, nil
}

// Helper functions to get environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
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
