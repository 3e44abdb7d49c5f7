package gateway

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds OpenAI-compatible LLM gateway configuration (spec.md §6).
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature *float32
	MaxTokens   int
	MaxRetries  int // retry attempts for transient 5xx/network errors
	HTTPTimeout int // seconds
}

// NewConfigFromEnv builds a Config from LLM_API_KEY, LLM_GATEWAY_URL, LLM_MODEL,
// LLM_TEMPERATURE, LLM_MAX_TOKENS, LLM_MAX_RETRIES, LLM_HTTP_TIMEOUT.
func NewConfigFromEnv() (*Config, error) {
	cfg := &Config{
		APIKey:      getEnvOrDefault("LLM_API_KEY", ""),
		BaseURL:     getEnvOrDefault("LLM_GATEWAY_URL", "http://localhost:4000"),
		Model:       getEnvOrDefault("LLM_MODEL", "gpt-4o-mini"),
		Temperature: getEnvFloat32Ptr("LLM_TEMPERATURE"),
		MaxTokens:   getEnvIntOrDefault("LLM_MAX_TOKENS", 0),
		MaxRetries:  getEnvIntOrDefault("LLM_MAX_RETRIES", 2),
		HTTPTimeout: getEnvIntOrDefault("LLM_HTTP_TIMEOUT", 60),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for obviously broken values.
func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("LLM_MODEL cannot be empty")
	}
	if c.Temperature != nil && (*c.Temperature < 0.0 || *c.Temperature > 2.0) {
		return fmt.Errorf("LLM_TEMPERATURE must be between 0.0 and 2.0, got %f", *c.Temperature)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("LLM_MAX_RETRIES cannot be negative, got %d", c.MaxRetries)
	}
	return nil
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvIntOrDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat32Ptr(key string) *float32 {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		return nil
	}
	f32 := float32(f)
	return &f32
}
