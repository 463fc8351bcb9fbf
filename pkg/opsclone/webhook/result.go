package webhook

// Class names the failure category of a delivery.
type Class string

const (
	ClassNone    Class = ""
	ClassTimeout Class = "timeout"
	ClassRemote  Class = "remote"
	ClassNetwork Class = "network"
	ClassGeneric Class = "generic"
	ClassConfig  Class = "config"
)

const (
	msgSent          = "Task sent successfully to automation system"
	msgTimeout       = "Request timeout - automation system may be busy"
	msgRemote        = "Automation system error: %d - %s"
	msgNetwork       = "Cannot connect to automation system - please check network connection"
	msgGeneric       = "Failed to send task to automation system"
	msgUnknownRemote = "Unknown error"
	msgNotConfigured = "Webhook not configured"
	errConfiguration = "Configuration error"
	msgNotified      = "Notification sent successfully"
	msgNotifyFailed  = "Failed to send notification"
)

// DeliveryResult is the outcome of one delivery. Send and its variants never
// return errors; failures are described here.
type DeliveryResult struct {
	Success    bool   `json:"success"`
	ID         string `json:"taskId,omitempty"`
	Message    string `json:"message"`
	Error      string `json:"error,omitempty"`
	StatusCode int    `json:"statusCode,omitempty"`
	Class      Class  `json:"class,omitempty"`

	// Attempts is set by Retry.
	Attempts int `json:"attempts,omitempty"`
}

// ClientError reports whether the remote rejected the request with a 4xx.
func (r DeliveryResult) ClientError() bool {
	return r.Class == ClassRemote && r.StatusCode >= 400 && r.StatusCode < 500
}

// NotConfigured is the result returned when no webhook URL is set.
func NotConfigured() DeliveryResult {
	return DeliveryResult{
		Success: false,
		Message: msgNotConfigured,
		Error:   errConfiguration,
		Class:   ClassConfig,
	}
}

// BatchResult aggregates a batch send. Results follow input order.
type BatchResult struct {
	Successful int              `json:"successful"`
	Failed     int              `json:"failed"`
	Results    []DeliveryResult `json:"results"`
}
