package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Issuer      string // Issuer claim for access tokens
	ServiceName string // Shown in email subjects and TOTP labels

	SigningKeyFile string // Optional: PKCS8 PEM Ed25519 key; ephemeral when unset
	DatabaseFile   string // Path to SQLite database file (default: ./verify.db)

	AccessTTL     time.Duration // Access token lifetime (default: 10m)
	RefreshTTL    time.Duration // Refresh token lifetime (default: 8760h)
	SignInCodeTTL time.Duration // Sign-in code lifetime (default: 30m)
	MFAAttemptTTL time.Duration // MFA attempt code lifetime (default: 5m)

	// SMTP delivery; emails are logged instead when Host is unset.
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	// Default tenancy, seeded on first start so a single-project deployment
	// works out of the box.
	DefaultProjectID     string
	DefaultBranchID      string
	DefaultDomains       []string
	DefaultAllowLocal    bool
	DefaultSignUpEnabled bool

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

func LoadConfig() Config {
	cfg := Config{
		Issuer:      getEnvOrDefault("VERIFY_ISSUER", "verify"),
		ServiceName: getEnvOrDefault("VERIFY_SERVICE_NAME", "Verify"),

		SigningKeyFile: os.Getenv("VERIFY_SIGNING_KEY_FILE"),
		DatabaseFile:   getEnvOrDefault("VERIFY_DATABASE_FILE", "verify.db"),

		AccessTTL:     getEnvDurationOrDefault("VERIFY_ACCESS_TTL", 10*time.Minute),
		RefreshTTL:    getEnvDurationOrDefault("VERIFY_REFRESH_TTL", 365*24*time.Hour),
		SignInCodeTTL: getEnvDurationOrDefault("VERIFY_SIGNIN_CODE_TTL", 30*time.Minute),
		MFAAttemptTTL: getEnvDurationOrDefault("VERIFY_MFA_ATTEMPT_TTL", 5*time.Minute),

		SMTPHost:     os.Getenv("VERIFY_SMTP_HOST"),
		SMTPPort:     getEnvIntOrDefault("VERIFY_SMTP_PORT", 587),
		SMTPUsername: os.Getenv("VERIFY_SMTP_USERNAME"),
		SMTPPassword: os.Getenv("VERIFY_SMTP_PASSWORD"),
		SMTPFrom:     getEnvOrDefault("VERIFY_SMTP_FROM", "no-reply@localhost"),

		DefaultProjectID:     getEnvOrDefault("VERIFY_DEFAULT_PROJECT", "default"),
		DefaultBranchID:      getEnvOrDefault("VERIFY_DEFAULT_BRANCH", "main"),
		DefaultAllowLocal:    getEnvBoolOrDefault("VERIFY_DEFAULT_ALLOW_LOCALHOST", true),
		DefaultSignUpEnabled: getEnvBoolOrDefault("VERIFY_DEFAULT_SIGNUP_ENABLED", true),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	if domains := os.Getenv("VERIFY_DEFAULT_DOMAINS"); domains != "" {
		for _, d := range strings.Split(domains, ",") {
			if d = strings.TrimSpace(d); d != "" {
				cfg.DefaultDomains = append(cfg.DefaultDomains, d)
			}
		}
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if boolValue, err := strconv.ParseBool(value); err == nil {
		return boolValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}
