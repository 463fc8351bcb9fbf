// Package copilot – config.go defines all configuration structures
// for the OpsClone assistant.
package copilot

import (
	"time"

	"github.com/jholhewres/opsclone/pkg/opsclone/database"
	"github.com/jholhewres/opsclone/pkg/opsclone/knowledge"
	"github.com/jholhewres/opsclone/pkg/opsclone/llm"
	"github.com/jholhewres/opsclone/pkg/opsclone/scheduler"
	"github.com/jholhewres/opsclone/pkg/opsclone/tasks"
	"github.com/jholhewres/opsclone/pkg/opsclone/webhook"
)

// Config holds all assistant configuration.
type Config struct {
	// Name is the assistant name used in logs and the health endpoint.
	Name string `yaml:"name"`

	// Model is the chat model (e.g. "gpt-4o-mini").
	Model string `yaml:"model"`

	// API configures the completion service endpoint.
	API APIConfig `yaml:"api"`

	// Fallback configures model fallback with retry and backoff.
	Fallback llm.FallbackConfig `yaml:"fallback"`

	// Persona selects the persona file. Empty uses the embedded default.
	Persona PersonaConfig `yaml:"persona"`

	// Response configures output caps and sampling.
	Response ResponseConfig `yaml:"response"`

	// Retrieval tunes document retrieval.
	Retrieval knowledge.Config `yaml:"retrieval"`

	// Tasks configures task extraction defaults.
	Tasks tasks.Config `yaml:"tasks"`

	// Webhook configures the automation webhook.
	Webhook webhook.Config `yaml:"webhook"`

	// Database configures the document store backend.
	Database database.HubConfig `yaml:"database"`

	// Gateway configures the HTTP API.
	Gateway GatewayConfig `yaml:"gateway"`

	// Scheduler configures the operational cron jobs.
	Scheduler scheduler.Config `yaml:"scheduler"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig configures the completion service endpoint and credentials.
type APIConfig struct {
	// BaseURL of an OpenAI-compatible API.
	BaseURL string `yaml:"base_url"`

	// APIKey can also be set via OPSCLONE_API_KEY or OPENAI_API_KEY, or
	// stored in the OS keyring with "opsclone config set-key".
	APIKey string `yaml:"api_key"`

	// Timeout bounds a single completion call (default: 60s).
	Timeout time.Duration `yaml:"timeout"`
}

// PersonaConfig points at a persona override file.
type PersonaConfig struct {
	File string `yaml:"file"`
}

// ResponseConfig configures the reply completion.
type ResponseConfig struct {
	// Supplement lets low-confidence and recency questions ask the model for
	// recent information (default: true).
	Supplement bool `yaml:"supplement"`

	// SimpleMaxTokens caps replies to simple questions (default: 150).
	SimpleMaxTokens int `yaml:"simple_max_tokens"`

	// ComplexMaxTokens caps all other replies (default: 800).
	ComplexMaxTokens int `yaml:"complex_max_tokens"`

	// Temperature of the reply completion (default: 0.2).
	Temperature float64 `yaml:"temperature"`
}

// DefaultResponseConfig returns the reply defaults.
func DefaultResponseConfig() ResponseConfig {
	return ResponseConfig{
		Supplement:       true,
		SimpleMaxTokens:  150,
		ComplexMaxTokens: 800,
		Temperature:      0.2,
	}
}

// Effective returns a copy with default values filled in for zero fields.
func (r ResponseConfig) Effective() ResponseConfig {
	d := DefaultResponseConfig()
	if r.SimpleMaxTokens <= 0 {
		r.SimpleMaxTokens = d.SimpleMaxTokens
	}
	if r.ComplexMaxTokens <= 0 {
		r.ComplexMaxTokens = d.ComplexMaxTokens
	}
	if r.Temperature < 0 {
		r.Temperature = d.Temperature
	}
	return r
}

// GatewayConfig configures the HTTP API gateway.
type GatewayConfig struct {
	// Address is the listen address (default: ":3001").
	Address string `yaml:"address"`

	// AdminToken guards the admin routes (empty = admin routes open).
	// Can also be set via OPSCLONE_ADMIN_TOKEN.
	AdminToken string `yaml:"admin_token"`

	// CORSOrigins lists allowed origins for CORS (empty = no CORS).
	CORSOrigins []string `yaml:"cors_origins"`

	// ReadTimeout and WriteTimeout bound each request (default: 30s, 90s).
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error").
	Level string `yaml:"level"`

	// Format is the log format ("json", "text").
	Format string `yaml:"format"`
}

// DefaultConfig returns the default assistant configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:  "OpsClone",
		Model: "gpt-4o-mini",
		API: APIConfig{
			BaseURL: "https://api.openai.com/v1",
			Timeout: 60 * time.Second,
		},
		Fallback:  llm.DefaultFallbackConfig(),
		Response:  DefaultResponseConfig(),
		Retrieval: knowledge.DefaultConfig(),
		Tasks:     tasks.DefaultConfig(),
		Webhook:   webhook.DefaultConfig(),
		Database:  database.DefaultHubConfig(),
		Gateway: GatewayConfig{
			Address:      ":3001",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 90 * time.Second,
		},
		Scheduler: scheduler.DefaultConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LLMOptions maps the config onto completion client options.
func (c *Config) LLMOptions() llm.Options {
	return llm.Options{
		BaseURL:  c.API.BaseURL,
		APIKey:   c.API.APIKey,
		Model:    c.Model,
		Timeout:  c.API.Timeout,
		Fallback: c.Fallback,
	}
}
