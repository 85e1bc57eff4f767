package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string // PostgreSQL; when empty the server falls back to SQLite
	SQLitePath  string
	RedisURL    string // optional read-side cache

	ExportDir   string // directory of DiscordChatExporter JSON partitions
	SubnetsFile string // YAML channel-to-subnet mapping

	// TombstoneMetadataUpdates lets metadata-only updates land on deleted
	// messages. Off by default.
	TombstoneMetadataUpdates bool
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                     getEnv("PORT", "8080"),
		Env:                      getEnv("ENV", "development"),
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		SQLitePath:               getEnv("SQLITE_PATH", "./data/archive.db"),
		RedisURL:                 os.Getenv("REDIS_URL"),
		ExportDir:                getEnv("EXPORT_DIR", "./exports"),
		SubnetsFile:              os.Getenv("SUBNETS_FILE"),
		TombstoneMetadataUpdates: getEnv("TOMBSTONE_METADATA_UPDATES", "false") == "true",
	}

	// In production, require a real database
	if cfg.Env == "production" {
		if cfg.DatabaseURL == "" {
			panic("DATABASE_URL is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
