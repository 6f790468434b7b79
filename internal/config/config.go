// Package config loads runtime configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/NTPCdev/binance-ohlcv/internal/exchange"
	"github.com/NTPCdev/binance-ohlcv/internal/gaps"
	"github.com/NTPCdev/binance-ohlcv/internal/universe"
)

// Config holds everything the sync job needs to run.
type Config struct {
	SupabaseURL        string
	SupabaseServiceKey string

	BinanceBaseURL       string
	ExchangeInfoFallback string

	LookbackDays  int
	TopCoinsLimit int

	LogLevel  string
	LogFormat string
	LogFile   string

	Port string
}

// Load reads configuration from the environment. A .env file in the working
// directory is merged in when present but never required.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		SupabaseURL:          os.Getenv("SUPABASE_URL"),
		SupabaseServiceKey:   os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		BinanceBaseURL:       getEnv("BINANCE_BASE_URL", exchange.DefaultBaseURL),
		ExchangeInfoFallback: os.Getenv("EXCHANGE_INFO_FALLBACK"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFormat:            getEnv("LOG_FORMAT", "json"),
		LogFile:              os.Getenv("LOG_FILE"),
		Port:                 getEnv("PORT", "8080"),
	}

	if cfg.SupabaseURL == "" {
		return nil, fmt.Errorf("SUPABASE_URL is required")
	}
	if cfg.SupabaseServiceKey == "" {
		return nil, fmt.Errorf("SUPABASE_SERVICE_ROLE_KEY is required")
	}

	var err error
	cfg.LookbackDays, err = getEnvInt("LOOKBACK_DAYS", gaps.DefaultLookbackDays)
	if err != nil {
		return nil, err
	}
	cfg.TopCoinsLimit, err = getEnvInt("TOP_COINS_LIMIT", universe.DefaultCandidateLimit)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// getEnv returns the value of key, or fallback when unset or empty.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvInt parses key as a positive integer, or returns fallback when unset.
func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s: must be positive, got %d", key, n)
	}
	return n, nil
}
