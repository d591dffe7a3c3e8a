package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort  string
	AppEnv   string
	LogLevel string

	OTPLength int

	AllowInsecureCallbacks bool
	CallbackHMACSecret     string
	CallbackTimeout        time.Duration

	SweepInterval      time.Duration
	CompletedRetention time.Duration // 0 keeps completed records forever

	WAEnabled   bool
	WASessionDB string

	AllowedOrigins []string // CORS allowed origins
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:  getEnv("APP_PORT", "3010"),
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		OTPLength: getEnvInt("OTP_LENGTH", 6),

		AllowInsecureCallbacks: getEnvBool("ALLOW_INSECURE_CALLBACKS", true),
		CallbackHMACSecret:     getEnv("CALLBACK_HMAC_SECRET", "dev-secret"),
		CallbackTimeout:        getEnvDuration("CALLBACK_TIMEOUT", 15*time.Second),

		SweepInterval:      getEnvDuration("SWEEP_INTERVAL", 30*time.Second),
		CompletedRetention: getEnvDuration("COMPLETED_RETENTION", 24*time.Hour),

		WAEnabled:   getEnvBool("WA_ENABLED", true),
		WASessionDB: getEnv("WA_SESSION_DB", "whatsapp-session.db"),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
