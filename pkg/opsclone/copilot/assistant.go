// Package copilot implements the OpsClone assistant: it retrieves company
// documents for an employee message, composes a persona prompt, asks the
// completion service for a reply and, in request mode, turns the message
// into a task delivered to the automation webhook.
package copilot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jholhewres/opsclone/pkg/opsclone/knowledge"
	"github.com/jholhewres/opsclone/pkg/opsclone/llm"
	"github.com/jholhewres/opsclone/pkg/opsclone/metrics"
	"github.com/jholhewres/opsclone/pkg/opsclone/persona"
	"github.com/jholhewres/opsclone/pkg/opsclone/tasks"
	"github.com/jholhewres/opsclone/pkg/opsclone/webhook"
)

// Retriever finds the chunks relevant to a message.
type Retriever interface {
	Retrieve(ctx context.Context, query string) knowledge.RetrievalContext
}

// Completer produces model replies.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// TaskExtractor turns a directive into a task record.
type TaskExtractor interface {
	Extract(ctx context.Context, message, requester string, explicit *tasks.EmailData) tasks.TaskRecord
}

// Dispatcher delivers tasks and notifications.
type Dispatcher interface {
	Configured() bool
	Send(ctx context.Context, task tasks.TaskRecord) webhook.DeliveryResult
	Retry(ctx context.Context, task tasks.TaskRecord, maxAttempts int) webhook.DeliveryResult
	Notify(ctx context.Context, n webhook.Notification)
}

// Dependencies wires an Assistant. Extractor and Dispatcher may be nil, in
// which case request mode produces default tasks and reports the webhook as
// not configured.
type Dependencies struct {
	Retriever  Retriever
	Completer  Completer
	Extractor  TaskExtractor
	Dispatcher Dispatcher
	Persona    *persona.Persona
	Response   ResponseConfig

	// DeliveryAttempts is how many times a request-mode task is sent
	// (default: 2).
	DeliveryAttempts int

	Logger *slog.Logger
}

// Assistant orchestrates one message at a time. Runs share no mutable state,
// so an Assistant is safe for concurrent use.
type Assistant struct {
	retriever        Retriever
	completer        Completer
	extractor        TaskExtractor
	dispatcher       Dispatcher
	persona          *persona.Persona
	composer         *PromptComposer
	response         ResponseConfig
	deliveryAttempts int
	logger           *slog.Logger
	now              func() time.Time
}

// New creates an assistant.
func New(deps Dependencies) *Assistant {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := deps.Persona
	if p == nil {
		p = persona.Default()
	}
	attempts := deps.DeliveryAttempts
	if attempts <= 0 {
		attempts = 2
	}
	retriever := deps.Retriever
	if retriever == nil {
		retriever = knowledge.NewRetriever(nil, knowledge.DefaultConfig(), logger)
	}
	return &Assistant{
		retriever:        retriever,
		completer:        deps.Completer,
		extractor:        deps.Extractor,
		dispatcher:       deps.Dispatcher,
		persona:          p,
		composer:         NewPromptComposer(p),
		response:         deps.Response.Effective(),
		deliveryAttempts: attempts,
		logger:           logger.With("component", "assistant"),
		now:              time.Now,
	}
}

// Persona returns the persona the assistant speaks as.
func (a *Assistant) Persona() *persona.Persona {
	return a.persona
}

// Respond runs the pipeline for one message. Only validation failures are
// returned as errors; every other failure yields a degraded envelope.
func (a *Assistant) Respond(ctx context.Context, req ChatRequest) (env *ResponseEnvelope, err error) {
	mode := "chat"
	if req.RequestMode {
		mode = "request"
	}
	if err := req.Validate(); err != nil {
		metrics.ChatRequests.WithLabelValues(mode, "invalid").Inc()
		return nil, err
	}

	id := uuid.New().String()
	logger := a.logger.With("request_id", id, "user_id", req.UserID, "mode", mode)
	start := time.Now()
	outcome := "ok"

	defer func() {
		if r := recover(); r != nil {
			logger.Error("pipeline panicked", "panic", r)
			env = a.technicalDifficulties(id, req.RequestMode)
			err = nil
			outcome = "error"
		}
		metrics.ChatRequests.WithLabelValues(mode, outcome).Inc()
		metrics.ChatDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	}()

	rc := a.retriever.Retrieve(ctx, req.Message)
	confidence := EstimateConfidence(rc.Chunks, a.persona.IdentityTerms)
	class := Classify(req.Message, confidence)
	if !a.response.Supplement {
		class.Supplement = false
	}

	var message string
	if req.RequestMode {
		message = a.persona.Acknowledgment
		confidence = AcknowledgedConfidence
	} else {
		reply, cerr := a.complete(ctx, req.Message, rc, class)
		if cerr != nil {
			logger.Warn("reply completion failed, answering with apology", "error", cerr)
			message = a.persona.Apology
			outcome = "degraded"
		} else {
			message = reply
		}
	}

	env = &ResponseEnvelope{
		ID:          id,
		Message:     message,
		Confidence:  confidence,
		Sources:     sourcesOf(rc.Chunks),
		Decision:    AnalyzeDecision(message),
		RequestMode: RequestModeResult{Enabled: req.RequestMode},
		Timestamp:   a.now().UTC(),
	}

	if req.RequestMode {
		task := a.extract(ctx, req)
		delivery := a.deliver(ctx, req.UserID, task, logger)
		env.RequestMode.Task = &task
		env.RequestMode.Delivery = &delivery
		env.RequestMode.WebhookSent = delivery.Success
		if !delivery.Success {
			outcome = "undelivered"
		}
	}

	logger.Info("message answered",
		"confidence", confidence,
		"source", rc.Source,
		"chunks", len(rc.Chunks),
		"simple", class.Simple,
		"supplement", class.Supplement,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return env, nil
}

func (a *Assistant) complete(ctx context.Context, message string, rc knowledge.RetrievalContext, class Classification) (string, error) {
	if a.completer == nil {
		return "", fmt.Errorf("%w: %w", ErrUpstreamUnavailable, llm.ErrNotConfigured)
	}

	prompt := a.composer.Compose(PromptInput{
		Message:    message,
		Context:    rc,
		Supplement: class.Supplement,
	})
	maxTokens := a.response.ComplexMaxTokens
	if class.Simple {
		maxTokens = a.response.SimpleMaxTokens
	}

	reply, err := a.completer.Complete(ctx, llm.Request{
		System:      prompt.System,
		Prompt:      prompt.User,
		Temperature: a.response.Temperature,
		MaxTokens:   maxTokens,
		Purpose:     "reply",
	})
	switch {
	case errors.Is(err, llm.ErrEmptyResponse):
		return "", fmt.Errorf("%w: %w", ErrMalformedModelOutput, err)
	case err != nil:
		return "", fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", ErrMalformedModelOutput
	}
	return reply, nil
}

func (a *Assistant) extract(ctx context.Context, req ChatRequest) tasks.TaskRecord {
	if a.extractor == nil {
		return tasks.NewExtractor(nil, tasks.DefaultConfig(), a.logger).Extract(ctx, req.Message, "", req.EmailData)
	}
	return a.extractor.Extract(ctx, req.Message, "", req.EmailData)
}

// deliver sends task with retries and raises a notification when it could
// not be delivered.
func (a *Assistant) deliver(ctx context.Context, userID string, task tasks.TaskRecord, logger *slog.Logger) webhook.DeliveryResult {
	if a.dispatcher == nil || !a.dispatcher.Configured() {
		return webhook.NotConfigured()
	}

	res := a.dispatcher.Retry(ctx, task, a.deliveryAttempts)
	if res.Success {
		return res
	}

	logger.Warn("task not delivered",
		"error", fmt.Errorf("%w: %s", ErrDeliveryFailure, res.Message),
		"attempts", res.Attempts,
	)
	summary := task.Message
	if summary == "" {
		summary = task.Subject
	}
	a.dispatcher.Notify(ctx, webhook.Notification{
		Type:    webhook.NotifyError,
		Title:   "Task Webhook Failed",
		Message: "Failed to send task: " + summary,
		UserID:  userID,
		Metadata: map[string]any{
			"task":  task,
			"error": res.Error,
		},
	})
	return res
}

// CompleteTask addresses a directive to a named assignee and sends it once.
func (a *Assistant) CompleteTask(ctx context.Context, req CompleteTaskRequest) (*CompleteTaskResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	task := a.extract(ctx, ChatRequest{Message: req.OriginalMessage, UserID: req.UserID})
	task = tasks.CompleteWithEmail(task, req.AssigneeEmail)
	if req.UserInfo != nil {
		task.RequestedBy = req.UserInfo.Name
		if task.RequestedBy == "" {
			task.RequestedBy = req.UserID
		}
	}

	var delivery webhook.DeliveryResult
	if a.dispatcher == nil || !a.dispatcher.Configured() {
		delivery = webhook.NotConfigured()
	} else {
		delivery = a.dispatcher.Send(ctx, task)
	}
	if !delivery.Success {
		a.logger.Warn("assigned task not delivered", "user_id", req.UserID, "message", delivery.Message)
	}

	return &CompleteTaskResult{
		Task:     task,
		Delivery: delivery,
		Message:  fmt.Sprintf("Task successfully assigned to %s", req.AssigneeName),
	}, nil
}

func (a *Assistant) technicalDifficulties(id string, requestMode bool) *ResponseEnvelope {
	return &ResponseEnvelope{
		ID:          id,
		Message:     a.persona.TechnicalDifficulties,
		Confidence:  MinConfidence,
		Sources:     []Source{},
		Decision:    DecisionSignal{Urgency: UrgencyLow},
		RequestMode: RequestModeResult{Enabled: requestMode},
		Timestamp:   a.now().UTC(),
	}
}
