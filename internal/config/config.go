package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath     string
	OutputDir  string
	PolicyPath string

	AnthropicAPIKey      string
	FallbackModel        string
	FallbackTimeoutSec   int
	FallbackRateLimitRPS int
	FallbackMaxBytes     int

	CatalogAPIBaseURL   string
	CatalogAPIToken     string
	CatalogTimeoutMs    int
	CatalogRateLimitRPS int

	MatchMinOverlap float64

	ProcessConcurrency int
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:     getEnv("DB_PATH", filepath.Join(cwd, "data", "app.db")),
		OutputDir:  getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),
		PolicyPath: getEnv("POLICY_PATH", filepath.Join(cwd, "config", "policy.yaml")),

		AnthropicAPIKey:      getEnv("ANTHROPIC_API_KEY", ""),
		FallbackModel:        getEnv("FALLBACK_MODEL", "claude-sonnet-4-5-20250929"),
		FallbackTimeoutSec:   getEnvInt("FALLBACK_TIMEOUT_SEC", 45),
		FallbackRateLimitRPS: getEnvInt("FALLBACK_RATE_LIMIT_RPS", 1),
		FallbackMaxBytes:     getEnvInt("FALLBACK_MAX_BYTES", 60000),

		CatalogAPIBaseURL:   getEnv("CATALOG_API_BASE_URL", ""),
		CatalogAPIToken:     getEnv("CATALOG_API_TOKEN", ""),
		CatalogTimeoutMs:    getEnvInt("CATALOG_TIMEOUT_MS", 15000),
		CatalogRateLimitRPS: getEnvInt("CATALOG_RATE_LIMIT_RPS", 2),

		MatchMinOverlap: getEnvFloat("MATCH_MIN_OVERLAP", 0.5),

		ProcessConcurrency: getEnvInt("PROCESS_CONCURRENCY", 4),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
