package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jholhewres/opsclone/pkg/opsclone/llm"
)

const (
	extractionSystemPrompt = "You are a task extraction system. Convert user messages into email format JSON. Respond only with valid JSON."

	extractionTemperature = 0.1
	extractionMaxTokens   = 300

	defaultSubject = "Task Request"
)

// Completer is the completion capability the extractor needs.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// Config holds the defaults applied to extracted tasks.
type Config struct {
	// FallbackRecipient receives tasks with no usable address.
	FallbackRecipient string `yaml:"fallback_recipient" validate:"omitempty,mailbox"`

	// FallbackRequester is used when the caller has no identity.
	FallbackRequester string `yaml:"fallback_requester" validate:"omitempty,mailbox"`

	// Sender is written into every task's "from" field.
	Sender string `yaml:"sender"`
}

// DefaultConfig returns the extraction defaults.
func DefaultConfig() Config {
	return Config{
		FallbackRecipient: "hr@gtextholdings.com",
		FallbackRequester: "staff@gtextholdings.com",
		Sender:            "persona-AI",
	}
}

// Effective fills empty fields with defaults.
func (c Config) Effective() Config {
	d := DefaultConfig()
	if c.FallbackRecipient == "" {
		c.FallbackRecipient = d.FallbackRecipient
	}
	if c.FallbackRequester == "" {
		c.FallbackRequester = d.FallbackRequester
	}
	if c.Sender == "" {
		c.Sender = d.Sender
	}
	return c
}

// Extractor converts messages into task records.
type Extractor struct {
	completer Completer
	cfg       Config
	logger    *slog.Logger
}

// NewExtractor creates an extractor. completer may be nil, in which case
// inference always falls back to defaults.
func NewExtractor(completer Completer, cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		completer: completer,
		cfg:       cfg.Effective(),
		logger:    logger.With("component", "tasks"),
	}
}

// Config returns the effective configuration.
func (e *Extractor) Config() Config {
	return e.cfg
}

// Extract builds a task from message. When explicit carries all three email
// fields they are used verbatim; otherwise the fields are inferred by the
// model. Extract never fails: any inference problem yields the defaults.
func (e *Extractor) Extract(ctx context.Context, message, requester string, explicit *EmailData) TaskRecord {
	requestedBy := requester
	if requestedBy == "" {
		requestedBy = e.cfg.FallbackRequester
	}

	if explicit.Complete() {
		return TaskRecord{
			ToEmail:     explicit.ToEmail,
			Subject:     explicit.Subject,
			Message:     explicit.Message,
			From:        e.cfg.Sender,
			RequestedBy: requestedBy,
		}
	}

	task := TaskRecord{
		ToEmail:     e.cfg.FallbackRecipient,
		Subject:     defaultSubject,
		Message:     message,
		From:        e.cfg.Sender,
		RequestedBy: requestedBy,
	}

	parsed, err := e.infer(ctx, message, requestedBy)
	if err != nil {
		e.logger.Warn("task extraction fell back to defaults", "error", err)
		return task
	}

	if v := strings.TrimSpace(parsed.ToEmail); v != "" {
		if ValidateEmail(v) {
			task.ToEmail = v
		} else {
			e.logger.Warn("extracted address rejected", "to_email", v)
		}
	}
	if v := strings.TrimSpace(parsed.Subject); v != "" {
		task.Subject = v
	}
	if v := strings.TrimSpace(parsed.Message); v != "" {
		task.Message = v
	}
	if v := strings.TrimSpace(parsed.RequestedBy); v != "" {
		task.RequestedBy = v
	}
	return task
}

// ErrNoJSON is returned when the model output holds no JSON object.
var ErrNoJSON = errors.New("no JSON object in model output")

func (e *Extractor) infer(ctx context.Context, message, requestedBy string) (TaskRecord, error) {
	if e.completer == nil {
		return TaskRecord{}, llm.ErrNotConfigured
	}

	out, err := e.completer.Complete(ctx, llm.Request{
		System:      extractionSystemPrompt,
		Prompt:      e.extractionPrompt(message, requestedBy),
		Temperature: extractionTemperature,
		MaxTokens:   extractionMaxTokens,
		Purpose:     "extract",
	})
	if err != nil {
		return TaskRecord{}, fmt.Errorf("completion: %w", err)
	}

	raw := ExtractJSONObject(out)
	if raw == "" {
		return TaskRecord{}, ErrNoJSON
	}

	var parsed TaskRecord
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return TaskRecord{}, fmt.Errorf("decoding task: %w", err)
	}
	return parsed, nil
}

func (e *Extractor) extractionPrompt(message, requestedBy string) string {
	var b strings.Builder
	b.WriteString("Convert the following message into a structured task format for email communication:\n\n")
	fmt.Fprintf(&b, "Message: %q\n\n", message)
	b.WriteString("Respond with a JSON object containing these EXACT fields:\n")
	fmt.Fprintf(&b, "- to_email: The recipient's email address (extract from message or use %q)\n", e.cfg.FallbackRecipient)
	b.WriteString("- subject: A clear, professional subject line for the task\n")
	b.WriteString("- message: The detailed task description or request\n")
	fmt.Fprintf(&b, "- from: %q\n", e.cfg.Sender)
	fmt.Fprintf(&b, "- requested_by: The email of the person making the request (use %q)\n\n", requestedBy)

	example, _ := json.MarshalIndent(TaskRecord{
		ToEmail:     e.cfg.FallbackRecipient,
		Subject:     "Onboarding Task",
		Message:     "Assign Mr. John to handle onboarding on Tuesday.",
		From:        e.cfg.Sender,
		RequestedBy: requestedBy,
	}, "", "  ")
	b.WriteString("Example format:\n")
	b.Write(example)
	b.WriteString("\n")
	return b.String()
}
