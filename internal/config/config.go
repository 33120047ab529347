package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds server-side application configuration
type Config struct {
	// Server
	Port string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT
	JWTSecret        string
	JWTExpirationDur time.Duration
}

// ClientConfig holds configuration for the sync daemon (the client side of
// the protocol). The sync token is an opaque bearer credential supplied by
// the environment; the daemon never mints or refreshes it.
type ClientConfig struct {
	ServerURL      string
	SyncToken      string
	SyncUserID     string
	LocalDBPath    string
	RequestTimeout time.Duration
	ProbeInterval  time.Duration
	DebounceDelay  time.Duration
}

var appConfig *Config

// Load loads server configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if not already loaded
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	config := &Config{
		// Server
		Port: getEnv("PORT", "8080"),

		// Database
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "fintrack"),
		DBPassword: getEnv("DB_PASSWORD", "fintrack"),
		DBName:     getEnv("DB_NAME", "fintrack"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "fallback-secret-key-for-dev-only"),
	}

	config.JWTExpirationDur = getDuration("JWT_EXPIRES_IN", 24*time.Hour)

	appConfig = config
	return config, nil
}

// LoadClient loads sync daemon configuration from environment variables.
func LoadClient() (*ClientConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	return &ClientConfig{
		ServerURL:      getEnv("SERVER_URL", "http://localhost:8080"),
		SyncToken:      getEnv("SYNC_TOKEN", ""),
		SyncUserID:     getEnv("SYNC_USER_ID", ""),
		LocalDBPath:    getEnv("LOCAL_DB_PATH", "fintrack.db"),
		RequestTimeout: getDuration("REQUEST_TIMEOUT", 30*time.Second),
		ProbeInterval:  getDuration("PROBE_INTERVAL", 30*time.Second),
		DebounceDelay:  getDuration("SYNC_DEBOUNCE", 2*time.Second),
	}, nil
}

// Get returns the application configuration
func Get() *Config {
	if appConfig == nil {
		var err error
		appConfig, err = Load()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	return appConfig
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDuration parses a duration environment variable, falling back on the
// default for missing or malformed values.
func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("Warning: invalid %s value '%s', falling back to %s\n", key, raw, defaultValue)
		return defaultValue
	}
	return dur
}
