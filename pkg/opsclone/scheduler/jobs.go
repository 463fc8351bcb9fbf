package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jholhewres/opsclone/pkg/opsclone/storage"
	"github.com/jholhewres/opsclone/pkg/opsclone/webhook"
)

// AnalyticsSource computes usage analytics.
type AnalyticsSource interface {
	Analytics(ctx context.Context, r storage.TimeRange) (storage.Analytics, error)
}

// Notifier delivers notifications and probes the webhook.
type Notifier interface {
	ValidateConfiguration() bool
	Test(ctx context.Context, from string) webhook.DeliveryResult
	SendNotification(ctx context.Context, n webhook.Notification) webhook.DeliveryResult
}

// ErrWebhookInvalid is returned by the probe when the webhook URL is missing
// or malformed.
var ErrWebhookInvalid = errors.New("webhook URL is not a valid http(s) URL")

// NewHandler returns the JobHandler that runs the built-in job kinds.
// analytics may be nil when no store is configured; digests then fail.
func NewHandler(analytics AnalyticsSource, notifier Notifier, logger *slog.Logger) JobHandler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")

	return func(ctx context.Context, job *Job) (string, error) {
		switch job.Kind {
		case KindAnalyticsDigest:
			return runDigest(ctx, job, analytics, notifier)
		case KindWebhookProbe:
			return runProbe(ctx, notifier, logger)
		default:
			return "", fmt.Errorf("unknown job kind %q", job.Kind)
		}
	}
}

func runDigest(ctx context.Context, job *Job, analytics AnalyticsSource, notifier Notifier) (string, error) {
	if analytics == nil {
		return "", errors.New("analytics digest requires a document store")
	}
	r, err := storage.ParseTimeRange(job.TimeRange)
	if err != nil {
		return "", err
	}
	a, err := analytics.Analytics(ctx, r)
	if err != nil {
		return "", fmt.Errorf("computing analytics: %w", err)
	}

	summary := fmt.Sprintf("%d interactions from %d users in the last %s; %d in request mode, %d tasks delivered",
		a.TotalInteractions, a.UniqueUsers, r, a.RequestModeUsage, a.WebhookSuccesses)

	res := notifier.SendNotification(ctx, webhook.Notification{
		Type:    webhook.NotifyInfo,
		Title:   "Usage digest",
		Message: summary,
		Metadata: map[string]any{
			"job_id":             job.ID,
			"time_range":         string(r),
			"total_interactions": a.TotalInteractions,
			"unique_users":       a.UniqueUsers,
			"request_mode_usage": a.RequestModeUsage,
			"webhook_successes":  a.WebhookSuccesses,
		},
	})
	if !res.Success {
		return summary, fmt.Errorf("sending digest: %s", res.Message)
	}
	return summary, nil
}

// runProbe checks the webhook configuration and connectivity. A reachable
// webhook that rejects the test task gets a warning notification.
func runProbe(ctx context.Context, notifier Notifier, logger *slog.Logger) (string, error) {
	if !notifier.ValidateConfiguration() {
		return "", ErrWebhookInvalid
	}

	res := notifier.Test(ctx, "")
	if res.Success {
		return "webhook reachable", nil
	}

	warn := notifier.SendNotification(ctx, webhook.Notification{
		Type:    webhook.NotifyWarning,
		Title:   "Webhook probe failed",
		Message: res.Message,
		Metadata: map[string]any{
			"class":       string(res.Class),
			"status_code": res.StatusCode,
			"error":       res.Error,
		},
	})
	if !warn.Success {
		logger.Warn("probe warning could not be delivered", "message", warn.Message)
	}
	return "", fmt.Errorf("webhook probe failed: %s", res.Message)
}
