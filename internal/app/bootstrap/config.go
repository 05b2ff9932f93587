package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration for the chat API.
// It merges file defaults and environment overrides to support both local and deployed runs.
type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	DatabaseURL string
	RedisURL    string
	MaxDBConns  int32

	LLMProvider     string
	LLMModel        string
	LLMAPIKey       string
	LLMBaseURL      string
	LLMTimeout      time.Duration
	LLMFallbackName string

	CacheEnabled bool
	CacheTTL     time.Duration
	CacheMaxSize int

	BreakerThreshold int
	BreakerTimeout   time.Duration

	RateLimit       int
	RateLimitWindow time.Duration

	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration

	APIKeys       []string
	RequireAPIKey bool

	DefaultHistoryLimit int
	MaxHistoryLimit     int
}

// configFile mirrors the YAML schema used by configs/default.yaml.
// It is intentionally separate from Config so runtime-only fields stay internal.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL string `yaml:"postgres_url"`
		RedisURL    string `yaml:"redis_url"`
	} `yaml:"dependencies"`
	LLM struct {
		Provider string `yaml:"provider"`
		Model    string `yaml:"model"`
		BaseURL  string `yaml:"base_url"`
		Fallback string `yaml:"fallback"`
	} `yaml:"llm"`
	Cache struct {
		Enabled    *bool `yaml:"enabled"`
		TTLSeconds int   `yaml:"ttl_seconds"`
		MaxSize    int   `yaml:"max_size"`
	} `yaml:"cache"`
	RateLimit struct {
		Requests      int `yaml:"requests"`
		WindowSeconds int `yaml:"window_seconds"`
	} `yaml:"rate_limit"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
// This order keeps local bootstrap simple while allowing environment-specific overrides.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:           "chat-api",
		HTTPPort:            8080,
		GRPCPort:            9090,
		MaxDBConns:          20,
		LLMProvider:         "openai",
		LLMModel:            "gpt-4o-mini",
		LLMTimeout:          60 * time.Second,
		LLMFallbackName:     "mock",
		CacheEnabled:        true,
		CacheTTL:            time.Hour,
		CacheMaxSize:        1000,
		BreakerThreshold:    5,
		BreakerTimeout:      60 * time.Second,
		RateLimit:           10,
		RateLimitWindow:     time.Minute,
		RetryMaxAttempts:    3,
		RetryBaseDelay:      time.Second,
		RetryMaxDelay:       10 * time.Second,
		DefaultHistoryLimit: 10,
		MaxHistoryLimit:     100,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Service.GRPCPort > 0 {
			cfg.GRPCPort = f.Service.GRPCPort
		}
		if f.Dependencies.PostgresURL != "" {
			cfg.DatabaseURL = f.Dependencies.PostgresURL
		}
		if f.Dependencies.RedisURL != "" {
			cfg.RedisURL = f.Dependencies.RedisURL
		}
		if f.LLM.Provider != "" {
			cfg.LLMProvider = f.LLM.Provider
		}
		if f.LLM.Model != "" {
			cfg.LLMModel = f.LLM.Model
		}
		if f.LLM.BaseURL != "" {
			cfg.LLMBaseURL = f.LLM.BaseURL
		}
		if f.LLM.Fallback != "" {
			cfg.LLMFallbackName = f.LLM.Fallback
		}
		if f.Cache.Enabled != nil {
			cfg.CacheEnabled = *f.Cache.Enabled
		}
		if f.Cache.TTLSeconds > 0 {
			cfg.CacheTTL = time.Duration(f.Cache.TTLSeconds) * time.Second
		}
		if f.Cache.MaxSize > 0 {
			cfg.CacheMaxSize = f.Cache.MaxSize
		}
		if f.RateLimit.Requests > 0 {
			cfg.RateLimit = f.RateLimit.Requests
		}
		if f.RateLimit.WindowSeconds > 0 {
			cfg.RateLimitWindow = time.Duration(f.RateLimit.WindowSeconds) * time.Second
		}
	}

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)

	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))

	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(envOrDefault("LLM_PROVIDER", cfg.LLMProvider)))
	cfg.LLMModel = envOrDefault("LLM_MODEL", cfg.LLMModel)
	cfg.LLMAPIKey = envOrDefault("LLM_API_KEY", envOrDefault("OPENAI_API_KEY", cfg.LLMAPIKey))
	cfg.LLMBaseURL = envOrDefault("LLM_BASE_URL", cfg.LLMBaseURL)
	cfg.LLMTimeout = time.Duration(envInt("LLM_TIMEOUT_SECONDS", int(cfg.LLMTimeout.Seconds()))) * time.Second
	cfg.LLMFallbackName = strings.ToLower(strings.TrimSpace(envOrDefault("LLM_FALLBACK_PROVIDER", cfg.LLMFallbackName)))

	cfg.CacheEnabled = envBool("CACHE_ENABLED", cfg.CacheEnabled)
	cfg.CacheTTL = time.Duration(envInt("CACHE_TTL_SECONDS", int(cfg.CacheTTL.Seconds()))) * time.Second
	cfg.CacheMaxSize = envInt("CACHE_MAX_SIZE", cfg.CacheMaxSize)

	cfg.BreakerThreshold = envInt("CIRCUIT_BREAKER_THRESHOLD", cfg.BreakerThreshold)
	cfg.BreakerTimeout = time.Duration(envInt("CIRCUIT_BREAKER_TIMEOUT_SECONDS", int(cfg.BreakerTimeout.Seconds()))) * time.Second

	cfg.RateLimit = envInt("RATE_LIMIT_REQUESTS", cfg.RateLimit)
	cfg.RateLimitWindow = time.Duration(envInt("RATE_LIMIT_WINDOW_SECONDS", int(cfg.RateLimitWindow.Seconds()))) * time.Second

	cfg.RetryMaxAttempts = envInt("RETRY_MAX_ATTEMPTS", cfg.RetryMaxAttempts)
	cfg.RetryBaseDelay = time.Duration(envInt("RETRY_BASE_DELAY_MS", int(cfg.RetryBaseDelay.Milliseconds()))) * time.Millisecond
	cfg.RetryMaxDelay = time.Duration(envInt("RETRY_MAX_DELAY_MS", int(cfg.RetryMaxDelay.Milliseconds()))) * time.Millisecond

	cfg.APIKeys = envCSV("API_KEYS", cfg.APIKeys)
	cfg.RequireAPIKey = envBool("REQUIRE_API_KEY", len(cfg.APIKeys) > 0)

	cfg.DefaultHistoryLimit = envInt("HISTORY_DEFAULT_LIMIT", cfg.DefaultHistoryLimit)
	cfg.MaxHistoryLimit = envInt("HISTORY_MAX_LIMIT", cfg.MaxHistoryLimit)

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if cfg.LLMProvider == "openai" && cfg.LLMAPIKey == "" && cfg.LLMBaseURL == "" {
		return Config{}, fmt.Errorf("missing LLM_API_KEY for openai provider")
	}

	return cfg, nil
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// envBool parses common boolean env forms while keeping a deterministic fallback.
func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}

// envCSV parses comma-separated env vars and removes empty segments.
func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		parts = append(parts, trimmed)
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}
