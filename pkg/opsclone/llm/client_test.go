package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func replyJSON(content string) string {
	return fmt.Sprintf(`{"choices":[{"message":{"role":"assistant","content":%q},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":5}}`, content)
}

func TestCompleteSendsRequest(t *testing.T) {
	t.Parallel()

	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, replyJSON("  Let us lead right.  "))
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL + "/", APIKey: "sk-test", Model: "gpt-test"}, nil)
	text, err := c.Complete(context.Background(), Request{
		System:      "system text",
		Prompt:      "user text",
		Temperature: 0.2,
		MaxTokens:   150,
		Purpose:     "reply",
	})
	require.NoError(t, err)
	assert.Equal(t, "Let us lead right.", text)

	assert.Equal(t, "gpt-test", got.Model)
	assert.InDelta(t, 0.2, got.Temperature, 1e-9)
	assert.Equal(t, 150, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "system text", got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "user text", got.Messages[1].Content)
}

func TestCompleteNotConfigured(t *testing.T) {
	t.Parallel()

	c := NewClient(Options{Model: "gpt-test"}, nil)
	assert.False(t, c.Configured())

	_, err := c.Complete(context.Background(), Request{Prompt: "hi"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, replyJSON("ok"))
	}))
	defer srv.Close()

	c := NewClient(Options{
		BaseURL:  srv.URL,
		APIKey:   "k",
		Model:    "m",
		Fallback: FallbackConfig{MaxRetries: 2, InitialBackoffMs: 1, MaxBackoffMs: 2},
	}, nil)

	text, err := c.Complete(context.Background(), Request{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCompleteDoesNotRetryAuthErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"Invalid API key"}}`)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, APIKey: "k", Model: "m",
		Fallback: FallbackConfig{InitialBackoffMs: 1}}, nil)

	_, err := c.Complete(context.Background(), Request{Prompt: "x"})
	var apierr *APIError
	require.True(t, errors.As(err, &apierr))
	assert.Equal(t, ErrorAuth, apierr.Kind())
	assert.Equal(t, int32(1), calls.Load())
}

func TestCompleteFallsBackOnRateLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Model == "primary" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, replyJSON("from "+req.Model))
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, APIKey: "k", Model: "primary",
		Fallback: FallbackConfig{Models: []string{"backup"}, InitialBackoffMs: 1}}, nil)

	text, err := c.Complete(context.Background(), Request{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "from backup", text)
}

func TestCompleteEmptyChoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, APIKey: "k", Model: "m"}, nil)
	_, err := c.Complete(context.Background(), Request{Prompt: "x"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestCompleteHonoursCancellation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, APIKey: "k", Model: "m",
		Fallback: FallbackConfig{MaxRetries: 5, InitialBackoffMs: 60000, MaxBackoffMs: 60000}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		cancel()
	}()
	_, err := c.Complete(ctx, Request{Prompt: "x"})
	require.Error(t, err)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   ErrorKind
	}{
		{"rate limit", 429, "", ErrorRateLimit},
		{"server error", 500, "", ErrorRetryable},
		{"bad gateway", 502, "", ErrorRetryable},
		{"auth", 401, `{"error":{"message":"Invalid API key"}}`, ErrorAuth},
		{"forbidden", 403, "", ErrorAuth},
		{"billing", 402, "", ErrorBilling},
		{"quota", 429, "insufficient_quota", ErrorBilling},
		{"bad request", 400, "", ErrorBadRequest},
		{"overloaded", 529, "", ErrorOverloaded},
		{"context", 400, "context_length_exceeded", ErrorContext},
		{"timeout body", 504, "upstream timed out", ErrorTimeout},
		{"not found", 404, "", ErrorFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.status, tt.body)
			assert.Equal(t, tt.want, got, "got %s", got)
		})
	}
}

func TestFallbackEffective(t *testing.T) {
	t.Parallel()

	f := FallbackConfig{}.Effective()
	assert.Equal(t, 2, f.MaxRetries)
	assert.Equal(t, 1000, f.InitialBackoffMs)
	assert.Equal(t, []int{429, 500, 502, 503, 529}, f.RetryOnStatusCodes)

	assert.Equal(t, 0, FallbackConfig{MaxRetries: -1}.Effective().MaxRetries)
}
