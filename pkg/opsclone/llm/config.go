package llm

import "time"

// Options configures a Client.
type Options struct {
	// BaseURL of an OpenAI-compatible API (default: https://api.openai.com/v1).
	BaseURL string

	// APIKey is sent as a bearer token.
	APIKey string

	// Model is the primary chat model.
	Model string

	// Timeout bounds a single HTTP call (default: 60s).
	Timeout time.Duration

	Fallback FallbackConfig
}

// FallbackConfig configures model fallback and retry behavior.
type FallbackConfig struct {
	// Models is the ordered list of models tried after the primary fails.
	Models []string `yaml:"models"`

	// MaxRetries per model before moving to the next (default: 2).
	MaxRetries int `yaml:"max_retries"`

	// InitialBackoffMs is the initial retry delay in ms (default: 1000).
	InitialBackoffMs int `yaml:"initial_backoff_ms"`

	// MaxBackoffMs caps the backoff (default: 30000).
	MaxBackoffMs int `yaml:"max_backoff_ms"`

	// RetryOnStatusCodes lists HTTP codes that trigger retry
	// (default: [429, 500, 502, 503, 529]).
	RetryOnStatusCodes []int `yaml:"retry_on_status_codes"`
}

// DefaultFallbackConfig returns the retry defaults.
func DefaultFallbackConfig() FallbackConfig {
	return FallbackConfig{
		MaxRetries:         2,
		InitialBackoffMs:   1000,
		MaxBackoffMs:       30000,
		RetryOnStatusCodes: []int{429, 500, 502, 503, 529},
	}
}

// Effective fills zero fields with defaults. A negative MaxRetries disables
// retries.
func (f FallbackConfig) Effective() FallbackConfig {
	d := DefaultFallbackConfig()
	switch {
	case f.MaxRetries < 0:
		f.MaxRetries = 0
	case f.MaxRetries == 0:
		f.MaxRetries = d.MaxRetries
	}
	if f.InitialBackoffMs <= 0 {
		f.InitialBackoffMs = d.InitialBackoffMs
	}
	if f.MaxBackoffMs <= 0 {
		f.MaxBackoffMs = d.MaxBackoffMs
	}
	if len(f.RetryOnStatusCodes) == 0 {
		f.RetryOnStatusCodes = d.RetryOnStatusCodes
	}
	return f
}
