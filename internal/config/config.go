package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the interview engine service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool
	LogJSON        bool
	LogDebug       bool

	ExtractorMode    string
	ExtractorTimeout time.Duration
	GeminiAPIKey     string
	GeminiModel      string

	DatabaseURL  string
	RedisAddr    string
	RedisLockTTL time.Duration

	DefaultRootTopic string
	ProbeLimit       int
	WeightEngagement float64
	WeightConfidence float64
	WeightLength     float64
	WeightNovelty    float64
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "depthwise"),
		AllowAnyOrigin:   false,
		ExtractorMode:    envOrDefault("EXTRACTOR_MODE", "auto"),
		GeminiAPIKey:     trimmedEnv("GEMINI_API_KEY"),
		GeminiModel:      envOrDefault("GEMINI_MODEL", "gemini-2.5-flash"),
		DatabaseURL:      trimmedEnv("DATABASE_URL"),
		RedisAddr:        trimmedEnv("REDIS_ADDR"),
		DefaultRootTopic: envOrDefault("INTERVIEW_ROOT_TOPIC", "background"),
		// The probe limit and scoring weights are tuned defaults, not
		// externally-verified constants.
		ProbeLimit:               3,
		WeightEngagement:         0.30,
		WeightConfidence:         0.25,
		WeightLength:             0.20,
		WeightNovelty:            0.25,
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 30 * time.Minute,
		ExtractorTimeout:         8 * time.Second,
		RedisLockTTL:             30 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ExtractorTimeout, err = durationFromEnv("EXTRACTOR_TIMEOUT", cfg.ExtractorTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.RedisLockTTL, err = durationFromEnv("REDIS_LOCK_TTL", cfg.RedisLockTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.LogJSON, err = boolFromEnv("APP_LOG_JSON", cfg.LogJSON)
	if err != nil {
		return Config{}, err
	}
	cfg.LogDebug, err = boolFromEnv("APP_LOG_DEBUG", cfg.LogDebug)
	if err != nil {
		return Config{}, err
	}
	cfg.ProbeLimit, err = intFromEnv("INTERVIEW_PROBE_LIMIT", cfg.ProbeLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.WeightEngagement, err = floatFromEnv("SCORE_WEIGHT_ENGAGEMENT", cfg.WeightEngagement)
	if err != nil {
		return Config{}, err
	}
	cfg.WeightConfidence, err = floatFromEnv("SCORE_WEIGHT_CONFIDENCE", cfg.WeightConfidence)
	if err != nil {
		return Config{}, err
	}
	cfg.WeightLength, err = floatFromEnv("SCORE_WEIGHT_LENGTH", cfg.WeightLength)
	if err != nil {
		return Config{}, err
	}
	cfg.WeightNovelty, err = floatFromEnv("SCORE_WEIGHT_NOVELTY", cfg.WeightNovelty)
	if err != nil {
		return Config{}, err
	}

	if cfg.ProbeLimit <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_PROBE_LIMIT must be positive")
	}
	if cfg.ExtractorTimeout < time.Second {
		return Config{}, fmt.Errorf("EXTRACTOR_TIMEOUT must be at least 1s")
	}
	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.ExtractorMode)) {
	case "auto", "gemini", "mock":
	default:
		return Config{}, fmt.Errorf("invalid EXTRACTOR_MODE: %q (expected auto|gemini|mock)", cfg.ExtractorMode)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
