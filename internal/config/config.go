package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	// Ingestion
	LogFiles     []string
	LogFormat    string
	StoreBackend string

	// Enrichment databases (optional)
	GeoIPCityPath string
	GeoIPASNPath  string

	// Scheduling
	AnalysisCron  string
	RetentionDays int

	// API token for mutating endpoints. A bcrypt hash takes precedence over
	// the plain token when both are set.
	APIToken     string
	APITokenHash string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded configuration from .env")
	}

	return &Config{
		Port:          getEnv("PORT", "8080"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisURL:      getEnv("REDIS_URL", ""),
		LogFiles:      splitList(getEnv("LOG_FILES", "")),
		LogFormat:     getEnv("LOG_FORMAT", DefaultLogFormat),
		StoreBackend:  getEnv("STORE_BACKEND", StoreBackendMemory),
		GeoIPCityPath: getEnv("GEOIP_CITY_PATH", ""),
		GeoIPASNPath:  getEnv("GEOIP_ASN_PATH", ""),
		AnalysisCron:  getEnv("ANALYSIS_CRON", ""),
		RetentionDays: getEnvInt("RETENTION_DAYS", DefaultRetentionDays),
		APIToken:      getEnv("API_TOKEN", ""),
		APITokenHash:  getEnv("API_TOKEN_HASH", ""),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
		log.Printf("Warning: invalid integer for %s, using default %d", key, fallback)
	}
	return fallback
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
