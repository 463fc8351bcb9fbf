package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"github.com/jholhewres/opsclone/pkg/opsclone/metrics"
	"github.com/jholhewres/opsclone/pkg/opsclone/tasks"
)

// Dispatcher posts tasks and notifications to the automation webhook. It is
// safe for concurrent use.
type Dispatcher struct {
	cfg     Config
	client  *resty.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	// pending tracks fire-and-forget notifications.
	pending sync.WaitGroup

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a dispatcher. An empty or invalid URL yields a dispatcher that
// answers every call with NotConfigured.
func New(cfg Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.Effective()

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", cfg.UserAgent)

	d := &Dispatcher{
		cfg:    cfg,
		client: client,
		logger: logger.With("component", "webhook"),
		now:    time.Now,
	}
	if cfg.RatePerSecond > 0 {
		burst := int(cfg.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return d
}

// Config returns the effective configuration.
func (d *Dispatcher) Config() Config {
	return d.cfg
}

// ValidateConfiguration reports whether the webhook URL is an absolute
// http(s) URL.
func (d *Dispatcher) ValidateConfiguration() bool {
	if d.cfg.URL == "" {
		d.logger.Error("webhook URL is not configured")
		return false
	}
	if !validURL(d.cfg.URL) {
		d.logger.Error("invalid webhook URL", "url", d.cfg.URL)
		return false
	}
	return true
}

// Configured reports whether deliveries will be attempted.
func (d *Dispatcher) Configured() bool {
	return validURL(d.cfg.URL)
}

// Send posts a single task. It never returns an error; the result carries
// the failure class and a user-facing message.
func (d *Dispatcher) Send(ctx context.Context, task tasks.TaskRecord) DeliveryResult {
	if !d.Configured() {
		return NotConfigured()
	}

	res := d.post(ctx, task, nil)
	if res.Success {
		if res.Message == "" {
			res.Message = msgSent
		}
		if res.ID == "" {
			res.ID = fmt.Sprintf("task_%d", d.now().UnixMilli())
		}
	}
	d.record("task", res)
	return res
}

// Retry sends task up to maxAttempts times with exponential backoff. It stops
// early on success, on a 4xx response, or when ctx is done, and returns the
// last result.
func (d *Dispatcher) Retry(ctx context.Context, task tasks.TaskRecord, maxAttempts int) DeliveryResult {
	if !d.Configured() {
		return NotConfigured()
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var (
		last     DeliveryResult
		attempts int
	)
	backoff := retry.WithMaxRetries(uint64(maxAttempts-1), retry.NewExponential(d.cfg.BackoffBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		last = d.Send(ctx, task)
		if last.Success {
			return nil
		}
		if last.ClientError() {
			d.logger.Info("client error from webhook, not retrying", "status", last.StatusCode)
			return errors.New(last.Message)
		}
		d.logger.Warn("webhook attempt failed",
			"attempt", attempts,
			"max_attempts", maxAttempts,
			"class", last.Class,
		)
		return retry.RetryableError(errors.New(last.Message))
	})

	if attempts == 0 {
		// ctx was done before the first attempt.
		last = DeliveryResult{Message: msgGeneric, Class: ClassGeneric}
		if err != nil {
			last.Error = err.Error()
		}
	}
	last.Attempts = attempts
	if last.Success && attempts > 1 {
		d.logger.Info("webhook succeeded after retry", "attempts", attempts)
	}
	return last
}

// Test sends a connectivity test task.
func (d *Dispatcher) Test(ctx context.Context, from string) DeliveryResult {
	if from == "" {
		from = tasks.DefaultConfig().Sender
	}
	return d.Send(ctx, tasks.TaskRecord{
		ToEmail:     tasks.DefaultConfig().FallbackRecipient,
		Subject:     "Test Connection",
		Message:     "Test connection to automation webhook",
		From:        from,
		RequestedBy: d.cfg.TestRequester,
	})
}

// post marshals body, sends it and classifies the outcome. Success results
// carry the id and message from the response body when present.
func (d *Dispatcher) post(ctx context.Context, body any, headers map[string]string) DeliveryResult {
	payload, err := json.Marshal(body)
	if err != nil {
		return DeliveryResult{Message: msgGeneric, Error: err.Error(), Class: ClassGeneric}
	}

	metrics.WebhookAttempts.Inc()
	req := d.client.R().SetContext(ctx).SetBody(payload)
	if len(headers) > 0 {
		req.SetHeaders(headers)
	}

	resp, err := req.Post(d.cfg.URL)
	if err != nil {
		return classifyTransportError(ctx, err)
	}

	status := resp.StatusCode()
	fields := decodeResponse(resp.Body())
	if status >= 400 {
		msg := fields.message
		if msg == "" {
			msg = msgUnknownRemote
		}
		d.logger.Warn("webhook rejected request", "status", status, "message", msg)
		return DeliveryResult{
			Message:    fmt.Sprintf(msgRemote, status, msg),
			Error:      fmt.Sprintf("request failed with status code %d", status),
			StatusCode: status,
			Class:      ClassRemote,
		}
	}

	return DeliveryResult{
		Success:    true,
		ID:         fields.id,
		Message:    fields.message,
		StatusCode: status,
	}
}

func (d *Dispatcher) record(kind string, res DeliveryResult) {
	outcome := "success"
	if !res.Success {
		outcome = string(res.Class)
		d.logger.Error("webhook delivery failed",
			"kind", kind,
			"class", res.Class,
			"status", res.StatusCode,
			"error", res.Error,
		)
	} else {
		d.logger.Debug("webhook delivered", "kind", kind, "id", res.ID)
	}
	metrics.WebhookDeliveries.WithLabelValues(kind, outcome).Inc()
}

func classifyTransportError(ctx context.Context, err error) DeliveryResult {
	res := DeliveryResult{Error: err.Error()}

	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		res.Message, res.Class = msgGeneric, ClassGeneric
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		res.Message, res.Class = msgTimeout, ClassTimeout
	default:
		res.Message, res.Class = msgNetwork, ClassNetwork
	}
	return res
}

type responseFields struct {
	id      string
	message string
}

// decodeResponse reads taskId|id and message from a JSON object body.
// Non-JSON bodies (such as a plain "Accepted") yield empty fields.
func decodeResponse(body []byte) responseFields {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return responseFields{}
	}
	var f responseFields
	for _, key := range []string{"taskId", "id"} {
		if v := stringify(m[key]); v != "" {
			f.id = v
			break
		}
	}
	f.message = stringify(m["message"])
	return f
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
