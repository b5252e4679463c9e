/*
config.go - Environment-driven configuration

PURPOSE:
  Loads server configuration from the environment, with a .env file picked
  up when present. Command-line flags in cmd/server/main.go override these
  values.

VARIABLES:
  PORT             HTTP server port (default: 8080)
  DB_PATH          SQLite database path (default: credit.db)
  ALLOWED_ORIGINS  Comma-separated CORS origins
                   (default: http://localhost:5173,http://localhost:8080)

SEE ALSO:
  - cmd/server/main.go: Flag overrides and startup
*/
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds server settings resolved from the environment.
type Config struct {
	Port           int
	DBPath         string
	AllowedOrigins []string
}

// Load reads .env (if present) and the process environment.
func Load() Config {
	// Missing .env is not an error; the process environment still applies.
	_ = godotenv.Load()

	cfg := Config{
		Port:           8080,
		DBPath:         "credit.db",
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
	}

	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			cfg.Port = p
		}
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.AllowedOrigins = origins
	}

	return cfg
}
