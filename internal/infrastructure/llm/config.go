package llm

import (
	"errors"
	"time"
)

// Config errors
var (
	ErrConfigMissingBaseURL = errors.New("llm: base URL is required")
	ErrConfigMissingAPIKey  = errors.New("llm: API key is required")
	ErrConfigMissingModel   = errors.New("llm: model is required")
)

// Config holds settings of an OpenAI-compatible chat completions endpoint
type Config struct {
	BaseURL           string
	APIKey            string
	Model             string
	Timeout           time.Duration
	PricePer1KTokens  float64
	RequestsPerMinute int
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrConfigMissingBaseURL
	}
	if c.APIKey == "" {
		return ErrConfigMissingAPIKey
	}
	if c.Model == "" {
		return ErrConfigMissingModel
	}
	return nil
}
