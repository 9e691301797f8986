/*
config.go - Environment-based configuration

PURPOSE:
  Loads server configuration from the environment, with an optional
  .env file for local development (see .env.example).

SEE ALSO:
  - cmd/server/main.go: Flags override environment values
*/
package config

import (
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Port        string
	DBPath      string
	JWTSecret   string
}

// Load reads configuration from the environment. A .env file in the
// working directory is loaded first if present; real environment
// variables take precedence over it.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Port:        getEnv("PORT", "8080"),
		DBPath:      getEnv("DB_PATH", "attendance.db"),
		JWTSecret:   getEnv("JWT_SECRET", "dev-secret-change-me"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
