package config

import (
	"os"
	"strings"
)

type Config struct {
	DatabaseDriver string // mysql, postgres or sqlite
	DatabaseURL    string
	ArchiveRoot    string // <root>/<year>/<month>/<day>/manifest.xml
	Port           string
	Environment    string
	LogLevel       string

	// 启动行为
	ResetOnStart  bool // drop and recreate the catalog tables before ingesting
	IngestOnStart bool
}

func Load() *Config {
	// Default MySQL connection string
	defaultDSN := "root:root@tcp(127.0.0.1:3306)/market_archive?charset=utf8mb4&parseTime=True&loc=Local"

	return &Config{
		DatabaseDriver: strings.ToLower(getEnv("DATABASE_DRIVER", "mysql")),
		DatabaseURL:    getEnv("DATABASE_URL", defaultDSN),
		ArchiveRoot:    getEnv("ARCHIVE_ROOT", "data"),
		Port:           getEnv("PORT", "8080"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),

		ResetOnStart:  getBool("RESET_ON_START", false),
		IngestOnStart: getBool("INGEST_ON_START", true),
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	switch strings.ToLower(getEnv(key, "")) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultValue
	}
}
