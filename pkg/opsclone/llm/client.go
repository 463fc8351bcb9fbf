// Package llm is a minimal client for OpenAI-compatible chat completion
// APIs, with per-model retries, exponential backoff and fallback models.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/jholhewres/opsclone/pkg/opsclone/metrics"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Request is a single-turn completion request.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int

	// Purpose labels the call in logs and metrics (e.g. "reply", "extract").
	Purpose string
}

// Client talks to the completion service.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	timeout    time.Duration
	fallback   FallbackConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client from options.
func NewClient(opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:  baseURL,
		apiKey:   opts.APIKey,
		model:    opts.Model,
		timeout:  timeout,
		fallback: opts.Fallback.Effective(),
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     120 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		logger: logger.With("component", "llm"),
	}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Model returns the primary model.
func (c *Client) Model() string {
	return c.model
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends req to the primary model, retrying transient failures and
// moving down the fallback list when a model is exhausted or rate limited.
// An empty reply is returned as ErrEmptyResponse.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	purpose := req.Purpose
	if purpose == "" {
		purpose = "completion"
	}

	if !c.Configured() {
		metrics.CompletionCalls.WithLabelValues(purpose, "unconfigured").Inc()
		return "", ErrNotConfigured
	}

	text, err := c.completeWithFallback(ctx, req)
	if err != nil {
		metrics.CompletionCalls.WithLabelValues(purpose, "error").Inc()
		return "", err
	}
	metrics.CompletionCalls.WithLabelValues(purpose, "ok").Inc()
	return text, nil
}

func (c *Client) completeWithFallback(ctx context.Context, req Request) (string, error) {
	models := make([]string, 0, 1+len(c.fallback.Models))
	models = append(models, c.model)
	models = append(models, c.fallback.Models...)

	initial := time.Duration(c.fallback.InitialBackoffMs) * time.Millisecond
	maxBackoff := time.Duration(c.fallback.MaxBackoffMs) * time.Millisecond

	var lastErr error
	for _, model := range models {
		for attempt := 0; attempt <= c.fallback.MaxRetries; attempt++ {
			text, err := c.completeOnce(ctx, model, req)
			if err == nil {
				return text, nil
			}
			lastErr = err

			var apierr *APIError
			if !errors.As(err, &apierr) {
				// Transport failures and malformed bodies are not retried.
				return "", err
			}

			kind := apierr.Kind()
			if kind == ErrorRateLimit {
				c.logger.Warn("model rate limited, trying next", "model", model)
				break
			}
			if !kind.Retryable() || !slices.Contains(c.fallback.RetryOnStatusCodes, apierr.StatusCode) {
				c.logger.Warn("non-retryable completion error",
					"model", model,
					"attempt", attempt+1,
					"kind", kind.String(),
					"error", err,
				)
				return "", err
			}
			if attempt >= c.fallback.MaxRetries {
				c.logger.Warn("exhausted retries for model", "model", model, "attempts", attempt+1)
				break
			}

			backoff := initial << attempt
			if backoff > maxBackoff || backoff <= 0 {
				backoff = maxBackoff
			}
			c.logger.Info("retrying completion", "model", model, "attempt", attempt+1, "backoff", backoff)

			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return "", fmt.Errorf("all models failed: %w", lastErr)
}

func (c *Client) completeOnce(ctx context.Context, model string, req Request) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("API error",
			"model", model,
			"status", resp.StatusCode,
			"body", truncate(string(respBody), 500),
		)
		return "", &APIError{StatusCode: resp.StatusCode, Body: string(respBody), Model: model}
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}
	if chatResp.Error != nil {
		return "", fmt.Errorf("API error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	content := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	c.logger.Info("chat completion done",
		"model", model,
		"purpose", req.Purpose,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", chatResp.Usage.PromptTokens,
		"completion_tokens", chatResp.Usage.CompletionTokens,
		"finish_reason", chatResp.Choices[0].FinishReason,
	)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}
