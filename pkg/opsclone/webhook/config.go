// Package webhook delivers task records and system notifications to the
// external automation webhook.
package webhook

import (
	"net/url"
	"time"
)

// Config configures the dispatcher.
type Config struct {
	// URL of the automation webhook. Empty disables delivery.
	URL string `yaml:"url"`

	// Timeout per request (default: 10s).
	Timeout time.Duration `yaml:"timeout"`

	// UserAgent sent with every request (default: OpsClone/1.0).
	UserAgent string `yaml:"user_agent"`

	// BackoffBase is the first retry delay; each later retry doubles it
	// (default: 2s).
	BackoffBase time.Duration `yaml:"backoff_base"`

	// DeliveryAttempts is how many times a request-mode task is tried
	// (default: 2).
	DeliveryAttempts int `yaml:"delivery_attempts"`

	// BatchSize is the number of tasks sent concurrently in a batch
	// (default: 5).
	BatchSize int `yaml:"batch_size"`

	// BatchPause separates consecutive batch groups (default: 500ms).
	BatchPause time.Duration `yaml:"batch_pause"`

	// RatePerSecond caps batch sends with a token bucket. 0 disables it.
	RatePerSecond float64 `yaml:"rate_per_second"`

	// TestRequester is the requested_by of the connectivity test task.
	TestRequester string `yaml:"test_requester"`
}

// DefaultConfig returns the dispatcher defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:          10 * time.Second,
		UserAgent:        "OpsClone/1.0",
		BackoffBase:      2 * time.Second,
		DeliveryAttempts: 2,
		BatchSize:        5,
		BatchPause:       500 * time.Millisecond,
		TestRequester:    "system_test@gtextholdings.com",
	}
}

// Effective fills zero fields with defaults.
func (c Config) Effective() Config {
	d := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = d.BackoffBase
	}
	if c.DeliveryAttempts <= 0 {
		c.DeliveryAttempts = d.DeliveryAttempts
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.BatchPause < 0 {
		c.BatchPause = 0
	} else if c.BatchPause == 0 {
		c.BatchPause = d.BatchPause
	}
	if c.RatePerSecond < 0 {
		c.RatePerSecond = 0
	}
	if c.TestRequester == "" {
		c.TestRequester = d.TestRequester
	}
	return c
}

// validURL reports whether raw is an absolute http(s) URL with a host.
func validURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
