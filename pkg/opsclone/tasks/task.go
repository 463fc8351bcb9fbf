// Package tasks turns free-text directives into structured task records for
// the automation webhook.
package tasks

import (
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"
)

// TaskRecord is the email-shaped task delivered to the automation system.
type TaskRecord struct {
	ToEmail     string `json:"to_email" validate:"required,mailbox"`
	Subject     string `json:"subject" validate:"required"`
	Message     string `json:"message" validate:"required"`
	From        string `json:"from" validate:"required"`
	RequestedBy string `json:"requested_by" validate:"required"`
}

// EmailData carries caller-supplied task fields. When all three are set the
// extractor skips inference.
type EmailData struct {
	ToEmail string `json:"to_email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// Complete reports whether every field is non-empty.
func (e *EmailData) Complete() bool {
	return e != nil && e.ToEmail != "" && e.Subject != "" && e.Message != ""
}

// CompleteWithEmail returns a copy of task addressed to address.
func CompleteWithEmail(task TaskRecord, address string) TaskRecord {
	task.ToEmail = address
	return task
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidateEmail reports whether addr looks like a mailbox: something@domain.tld
// with no whitespace.
func ValidateEmail(addr string) bool {
	return emailPattern.MatchString(addr)
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// RegisterMailbox adds the "mailbox" tag, backed by ValidateEmail, to v.
func RegisterMailbox(v *validator.Validate) error {
	return v.RegisterValidation("mailbox", func(fl validator.FieldLevel) bool {
		return ValidateEmail(fl.Field().String())
	})
}

// Validator returns the shared struct validator with the "mailbox" tag
// registered.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		_ = RegisterMailbox(validate)
	})
	return validate
}

// Validate checks a task record before delivery.
func Validate(task TaskRecord) error {
	return Validator().Struct(task)
}
