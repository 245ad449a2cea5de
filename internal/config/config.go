package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultGeocodeBaseURL  = "https://geocode.maps.co/search"
	DefaultForecastBaseURL = "https://api.openweathermap.org/data/2.5/forecast"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	// SQLitePath is the file holding persisted session slots.
	// SQLiteDSN, when set, is passed to the driver verbatim and wins over SQLitePath.
	SQLitePath string
	SQLiteDSN  string

	UserAgent     string
	ClientTimeout time.Duration

	GeocodeBaseURL string
	GeocodeAPIKey  string
	GeocodeRPS     float64

	ForecastBaseURL string
	ForecastAPIKey  string
	ForecastRPS     float64

	SessionIdleTTL time.Duration
	// SessionMax caps the sessions held in memory; the least recently seen
	// one is evicted to make room.
	SessionMax int
}

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(envOrDefault("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	httpAddr := strings.TrimSpace(os.Getenv("HTTP_ADDR"))
	if httpAddr == "" {
		port := envOrDefault("PORT", "8080")
		httpAddr = ":" + port
	}

	clientTimeout, err := parseDuration("HTTP_CLIENT_TIMEOUT", "10s")
	if err != nil {
		return Config{}, err
	}
	sessionTTL, err := parseDuration("SESSION_IDLE_TTL", "24h")
	if err != nil {
		return Config{}, err
	}

	sessionMax, err := parsePositiveInt("SESSION_MAX", "10000")
	if err != nil {
		return Config{}, err
	}

	geocodeRPS, err := parseRate("GEOCODE_RPS", "1")
	if err != nil {
		return Config{}, err
	}
	forecastRPS, err := parseRate("FORECAST_RPS", "5")
	if err != nil {
		return Config{}, err
	}

	return Config{
		AppEnv:          appEnv,
		LogLevel:        level,
		HTTPAddr:        httpAddr,
		SQLitePath:      envOrDefault("SQLITE_PATH", "data/skycast.db"),
		SQLiteDSN:       strings.TrimSpace(os.Getenv("SQLITE_DSN")),
		UserAgent:       envOrDefault("USER_AGENT", "skycast/1.0"),
		ClientTimeout:   clientTimeout,
		GeocodeBaseURL:  envOrDefault("GEOCODE_BASE_URL", DefaultGeocodeBaseURL),
		GeocodeAPIKey:   strings.TrimSpace(os.Getenv("GEOCODE_API_KEY")),
		GeocodeRPS:      geocodeRPS,
		ForecastBaseURL: envOrDefault("FORECAST_BASE_URL", DefaultForecastBaseURL),
		ForecastAPIKey:  strings.TrimSpace(os.Getenv("OPENWEATHER_API_KEY")),
		ForecastRPS:     forecastRPS,
		SessionIdleTTL:  sessionTTL,
		SessionMax:      sessionMax,
	}, nil
}

func envOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	raw := envOrDefault(key, def)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, raw)
	}
	return d, nil
}

func parseRate(key, def string) (float64, error) {
	raw := envOrDefault(key, def)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, raw)
	}
	return v, nil
}

func parsePositiveInt(key, def string) (int, error) {
	raw := envOrDefault(key, def)
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, raw)
	}
	return v, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
