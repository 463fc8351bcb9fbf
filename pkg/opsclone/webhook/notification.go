package webhook

import (
	"context"
	"time"
)

// NotificationType is the severity of a system notification.
type NotificationType string

const (
	NotifyError   NotificationType = "error"
	NotifyWarning NotificationType = "warning"
	NotifyInfo    NotificationType = "info"
	NotifySuccess NotificationType = "success"
)

const notificationSource = "opsclone_system"

// Notification is an operational event sent to the automation webhook.
type Notification struct {
	Type     NotificationType `json:"notification_type"`
	Title    string           `json:"title"`
	Message  string           `json:"message"`
	UserID   string           `json:"user_id,omitempty"`
	Metadata map[string]any   `json:"metadata,omitempty"`
}

type notificationPayload struct {
	Notification
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`
}

// SendNotification posts n with the X-Notification header. Failures are
// logged and returned in the result.
func (d *Dispatcher) SendNotification(ctx context.Context, n Notification) DeliveryResult {
	if !d.Configured() {
		return NotConfigured()
	}

	res := d.post(ctx, notificationPayload{
		Notification: n,
		Timestamp:    d.now().UTC().Format(time.RFC3339),
		Source:       notificationSource,
	}, map[string]string{"X-Notification": "true"})

	if res.Success {
		res.Message = msgNotified
	} else {
		res.Message = msgNotifyFailed
	}
	d.record("notification", res)
	return res
}

// Notify sends n in the background. The caller's cancellation does not
// abort the send; the request timeout still applies. Use Wait to drain
// pending notifications on shutdown.
func (d *Dispatcher) Notify(ctx context.Context, n Notification) {
	if !d.Configured() {
		return
	}
	ctx = context.WithoutCancel(ctx)

	d.pending.Add(1)
	go func() {
		defer d.pending.Done()
		d.SendNotification(ctx, n)
	}()
}

// Wait blocks until all pending notifications have finished.
func (d *Dispatcher) Wait() {
	d.pending.Wait()
}
