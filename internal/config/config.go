package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Port string

	// Database configuration
	DBType     string // postgres is the only type catalog/events support; others remain for system-table portability
	DBHost     string
	DBPort     string
	DBDatabase string

	// DBSuperUser/DBSuperPassword connect with elevated privileges: catalog
	// DDL synthesis (CREATE TABLE ... INHERITS, ALTER TABLE, CREATE VIEW)
	// and migrations run on this pool, and isSuperUser requests bypass the
	// authorization SQL compiler entirely.
	DBSuperUser            string
	DBSuperPassword        string
	DBSuperConnectionLimit int

	// DBUser/DBPassword is the role every authorization-checked request
	// pipeline call uses.
	DBUser            string
	DBPassword        string
	DBConnectionLimit int

	// Authorizer configuration — the external auth session middleware
	// spec.md §1 treats as a non-goal; this is only the client to consume it.
	AuthzURL      string
	AuthzClientID string

	// NodeID identifies this process's LISTEN channel and is stamped on
	// every subscription/lock this process creates (spec.md §4.4, §4.5).
	NodeID string

	// SuperUserRoles are the Authorizer role names that bypass isAuthorized
	// entirely (spec.md §4.3's "a super-user bypasses all checks").
	SuperUserRoles []string

	// SessionCookieName is the cookie the auth middleware reads.
	SessionCookieName string

	// SSEBufferSize bounds the per-session SSE sink channel; writes beyond
	// it disconnect the session (spec.md §5).
	SSEBufferSize int

	// RequestTimeout bounds a single pipeline request (spec.md §5
	// cooperative cancellation at suspension points).
	RequestTimeout time.Duration
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                    getEnv("PORT", "10001"),
		DBType:                  getEnv("DB_TYPE", "postgres"),
		DBHost:                  getEnv("DB_HOST", "localhost"),
		DBPort:                  getEnv("DB_PORT", "5432"),
		DBDatabase:              getEnv("DB_DATABASE", ""),
		DBSuperUser:             getEnv("DB_SUPER_USER", ""),
		DBSuperPassword:         getEnv("DB_SUPER_PASSWORD", ""),
		DBSuperConnectionLimit:  getEnvAsInt("DB_SUPER_CONNECTION_LIMIT", 5),
		DBUser:                  getEnv("DB_USER", ""),
		DBPassword:              getEnv("DB_PASSWORD", ""),
		DBConnectionLimit:       getEnvAsInt("DB_CONNECTION_LIMIT", 20),
		AuthzURL:                getEnv("AUTHZ_URL", ""),
		AuthzClientID:           getEnv("AUTHZ_CLIENT_ID", ""),
		NodeID:                  getEnv("NODE_ID", uuid.NewString()),
		SuperUserRoles:          getEnvAsList("SUPER_USER_ROLES", []string{"superuser"}),
		SessionCookieName:       getEnv("SESSION_COOKIE_NAME", "cookie_session"),
		SSEBufferSize:           getEnvAsInt("SSE_BUFFER_SIZE", 64),
		RequestTimeout:          getEnvAsDuration("REQUEST_TIMEOUT", 30*time.Second),
	}

	if cfg.DBDatabase == "" {
		return nil, fmt.Errorf("DB_DATABASE is required")
	}
	if cfg.DBSuperUser == "" {
		return nil, fmt.Errorf("DB_SUPER_USER is required")
	}
	if cfg.DBUser == "" {
		return nil, fmt.Errorf("DB_USER is required")
	}
	if cfg.AuthzURL == "" {
		return nil, fmt.Errorf("AUTHZ_URL is required")
	}
	if cfg.AuthzClientID == "" {
		return nil, fmt.Errorf("AUTHZ_CLIENT_ID is required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
