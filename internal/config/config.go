package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"
)

// Extractor backends.
const (
	ExtractorGemini   = "gemini"
	ExtractorLocalLLM = "localllm"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

// Config represents the application configuration.
type Config struct {
	Env  string `json:"env"`
	Port int    `json:"port"`

	AllowOrigins []string `json:"allow_origins"`

	Extractor     string `json:"extractor"`
	GeminiAPIKey  string `json:"gemini_api_key"`
	GeminiModel   string `json:"gemini_model"`
	LocalLLMURL   string `json:"local_llm_url"`
	LocalLLMKey   string `json:"local_llm_api_key"`
	LocalLLMModel string `json:"local_llm_model"`
	MaxInputChars int    `json:"max_input_chars"`

	Store         string `json:"store"`
	DatabaseURL   string `json:"DATABASE_URL"`
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`

	RequestTimeout Duration `json:"request_timeout"`
	FetchTimeout   Duration `json:"fetch_timeout"`
	MaxFetchBytes  int64    `json:"max_fetch_bytes"`
}

// Duration accepts "45s" style strings in JSON.
type Duration struct {
	time.Duration
}

// UnmarshalJSON implements the json.Unmarshaler interface for Duration.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"45s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalJSON implements the json.Marshaler interface for Duration.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Default returns a config that runs without any external services.
func Default() *Config {
	return &Config{
		Env:            "development",
		Port:           8080,
		AllowOrigins:   []string{"http://localhost:8081"},
		Extractor:      ExtractorGemini,
		Store:          StoreMemory,
		RedisAddr:      "localhost:6379",
		RequestTimeout: Duration{45 * time.Second},
		FetchTimeout:   Duration{20 * time.Second},
		MaxFetchBytes:  10 << 20,
	}
}

// Load reads configuration from path, if it exists, then applies environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		configData, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		default:
			if err := json.Unmarshal(configData, cfg); err != nil {
				return nil, fmt.Errorf("failed to unmarshal %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Env = getEnv("ENV", cfg.Env)
	cfg.Port = getEnvAsInt("PORT", cfg.Port)
	cfg.Extractor = getEnv("EXTRACTOR", cfg.Extractor)
	cfg.GeminiAPIKey = getEnv("GEMINI_API_KEY", cfg.GeminiAPIKey)
	cfg.LocalLLMURL = getEnv("LOCAL_LLM_URL", cfg.LocalLLMURL)
	cfg.LocalLLMKey = getEnv("LOCAL_LLM_API_KEY", cfg.LocalLLMKey)
	cfg.Store = getEnv("STORE", cfg.Store)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
}

// Validate checks that the selected backends have what they need.
func (c *Config) Validate() error {
	switch c.Extractor {
	case ExtractorGemini:
		if c.GeminiAPIKey == "" {
			return errors.New("config: gemini_api_key is required for the gemini extractor")
		}
	case ExtractorLocalLLM:
	default:
		return fmt.Errorf("config: unknown extractor %q", c.Extractor)
	}

	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL is required for the postgres store")
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return errors.New("config: redis_addr is required for the redis store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("config: unknown store %q", c.Store)
	}

	if c.RequestTimeout.Duration <= 0 {
		return errors.New("config: request_timeout must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
