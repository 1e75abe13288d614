package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Annany2002/odkx-manager/internal/logger"
	"github.com/joho/godotenv"
)

var (
	customLog = logger.NewLogger()
)

// Defaults used when the matching environment variable is unset or invalid.
const (
	DefaultServerPort        = "8080"
	DefaultFetchLimit        = 50
	DefaultRateLimit         = 600
	DefaultProxyTimeout      = 60 * time.Second
	DefaultCredentialsDbDir  = "data"
	DefaultCredentialsDbFile = "credentials.db"
)

// Config holds application configuration values
type Config struct {
	// Proxy server
	ServerPort         string
	AllowedOrigins     []string
	RateLimitPerMinute int
	ProxyInsecureTLS   bool
	ProxyTimeout       time.Duration

	// Remote ODK-X server defaults used by the CLI
	OdkServerURL string
	OdkUsername  string
	OdkPassword  string
	OdkProxyURL  string
	FetchLimit   int

	// Credential persistence
	CredentialsDbDir  string
	CredentialsDbFile string
	CredentialsSecret string
}

// LoadConfig loads configuration from environment variables.
// It uses a .env file for local development if present (ignores it for production).
func LoadConfig() (*Config, error) {
	customLog.Debugln("Loading configuration from environment variables...")

	if os.Getenv("APP_ENV") != "production" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			customLog.Warnf("Warning: Error loading .env file: %v", err)
		}
	}

	port := strings.TrimPrefix(getEnv("SERVER_PORT", DefaultServerPort), ":")
	if port == "" {
		return nil, errors.New("SERVER_PORT must not be empty")
	}

	cfg := &Config{
		ServerPort:         port,
		AllowedOrigins:     splitList(getEnv("ALLOWED_ORIGINS", "*")),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", DefaultRateLimit),
		ProxyInsecureTLS:   getEnvBool("PROXY_INSECURE_TLS", false),
		ProxyTimeout:       time.Duration(getEnvInt("PROXY_TIMEOUT_SECONDS", int(DefaultProxyTimeout/time.Second))) * time.Second,

		OdkServerURL: strings.TrimRight(getEnv("ODK_SERVER_URL", ""), "/"),
		OdkUsername:  getEnv("ODK_USERNAME", ""),
		OdkPassword:  getEnv("ODK_PASSWORD", ""),
		OdkProxyURL:  strings.TrimRight(getEnv("ODK_PROXY_URL", ""), "/"),
		FetchLimit:   getEnvInt("FETCH_LIMIT", DefaultFetchLimit),

		CredentialsDbDir:  getEnv("CREDENTIALS_DB_DIR", DefaultCredentialsDbDir),
		CredentialsDbFile: getEnv("CREDENTIALS_DB_FILE", DefaultCredentialsDbFile),
		CredentialsSecret: getEnv("CREDENTIALS_SECRET", ""),
	}

	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	customLog.Debugf("Configuration loaded. Port: %s, fetch limit: %d, rate limit: %d/min",
		cfg.ServerPort, cfg.FetchLimit, cfg.RateLimitPerMinute)
	return cfg, nil
}

// getEnv reads an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

// getEnvInt parses a positive integer variable, warning and falling back when invalid.
func getEnvInt(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		customLog.Warnf("Invalid %s '%s'. Using default %d. Error: %v", key, raw, fallback, err)
		return fallback
	}
	return value
}

func getEnvBool(key string, fallback bool) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		customLog.Warnf("Invalid %s '%s'. Using default %v", key, raw, fallback)
		return fallback
	}
	return value
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
