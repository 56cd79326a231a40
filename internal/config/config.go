package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Config holds process configuration. The storage backend is chosen by env
// presence: DATABASE_URL selects Postgres, MYSQL_DSN selects MySQL, and
// with neither set a local SQLite file is used.
type Config struct {
	HTTPAddr    string
	DatabaseURL string
	MySQLDSN    string
	SQLitePath  string
}

// Load reads configuration from the environment. A .env file is loaded
// first if present; missing it is not an error.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		MySQLDSN:    os.Getenv("MYSQL_DSN"),
		SQLitePath:  getenv("SQLITE_PATH", "inventory.db"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
