package copilot

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jholhewres/opsclone/pkg/opsclone/knowledge"
	"github.com/jholhewres/opsclone/pkg/opsclone/tasks"
	"github.com/jholhewres/opsclone/pkg/opsclone/webhook"
)

// UserInfo identifies the employee behind a request.
type UserInfo struct {
	Name       string `json:"name"`
	Department string `json:"department"`
	Role       string `json:"role"`
}

// ChatRequest is one employee message.
type ChatRequest struct {
	Message     string           `json:"message" validate:"required"`
	UserID      string           `json:"userId" validate:"required"`
	RequestMode bool             `json:"requestMode"`
	UserInfo    *UserInfo        `json:"userInfo,omitempty"`
	EmailData   *tasks.EmailData `json:"emailData,omitempty"`
}

// Validate trims the message and checks required fields. A caller-supplied
// recipient must be a valid address.
func (r *ChatRequest) Validate() error {
	r.Message = strings.TrimSpace(r.Message)
	r.UserID = strings.TrimSpace(r.UserID)
	if err := validateStruct(r); err != nil {
		return err
	}
	if r.EmailData != nil && r.EmailData.ToEmail != "" && !tasks.ValidateEmail(r.EmailData.ToEmail) {
		return invalid("emailData.to_email", "invalid email address")
	}
	return nil
}

// CompleteTaskRequest assigns a previously described task to a named person.
type CompleteTaskRequest struct {
	OriginalMessage string    `json:"originalMessage" validate:"required"`
	UserID          string    `json:"userId" validate:"required"`
	AssigneeName    string    `json:"assigneeName" validate:"required"`
	AssigneeEmail   string    `json:"assigneeEmail" validate:"required,mailbox"`
	UserInfo        *UserInfo `json:"userInfo,omitempty"`
}

// Validate checks required fields and the assignee address.
func (r *CompleteTaskRequest) Validate() error {
	r.OriginalMessage = strings.TrimSpace(r.OriginalMessage)
	r.AssigneeEmail = strings.TrimSpace(r.AssigneeEmail)
	return validateStruct(r)
}

// Source is a retrieved document cited by a reply.
type Source struct {
	Title      string         `json:"title"`
	Type       knowledge.Kind `json:"type"`
	Department string         `json:"department,omitempty"`
}

// RequestModeResult reports the task side of a request-mode reply.
type RequestModeResult struct {
	Enabled     bool                    `json:"enabled"`
	Task        *tasks.TaskRecord       `json:"taskGenerated,omitempty"`
	WebhookSent bool                    `json:"webhookSent"`
	Delivery    *webhook.DeliveryResult `json:"webhookResponse,omitempty"`
}

// ResponseEnvelope is the outcome of one orchestration run.
type ResponseEnvelope struct {
	ID          string            `json:"id"`
	Message     string            `json:"message"`
	Confidence  float64           `json:"confidence"`
	Sources     []Source          `json:"sources"`
	Decision    DecisionSignal    `json:"executiveDecision"`
	RequestMode RequestModeResult `json:"requestMode"`
	Timestamp   time.Time         `json:"timestamp"`
}

// CompleteTaskResult is the outcome of CompleteTask.
type CompleteTaskResult struct {
	Task     tasks.TaskRecord       `json:"task"`
	Delivery webhook.DeliveryResult `json:"webhookResponse"`
	Message  string                 `json:"message"`
}

func sourcesOf(chunks []knowledge.ContentChunk) []Source {
	out := make([]Source, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, Source{Title: c.Source, Type: c.Kind, Department: c.Department})
	}
	return out
}

var (
	requestValidatorOnce sync.Once
	requestValidator     *validator.Validate
)

func validateStruct(v any) error {
	requestValidatorOnce.Do(func() {
		requestValidator = validator.New()
		_ = tasks.RegisterMailbox(requestValidator)
		requestValidator.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
	})

	err := requestValidator.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		switch fe.Tag() {
		case "required":
			return invalid(fe.Field(), "is required")
		case "mailbox":
			return invalid(fe.Field(), "invalid email address")
		default:
			return invalid(fe.Field(), "failed "+fe.Tag()+" check")
		}
	}
	return invalid("request", err.Error())
}
