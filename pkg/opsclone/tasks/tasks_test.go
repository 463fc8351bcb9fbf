package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jholhewres/opsclone/pkg/opsclone/llm"
)

type fakeCompleter struct {
	reply string
	err   error
	calls int
	last  llm.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	f.calls++
	f.last = req
	return f.reply, f.err
}

func TestExtractDirectPath(t *testing.T) {
	t.Parallel()

	fc := &fakeCompleter{}
	x := NewExtractor(fc, Config{}, nil)

	task := x.Extract(context.Background(), "ignored", "mary@gtextholdings.com", &EmailData{
		ToEmail: "ops@gtextholdings.com",
		Subject: "Quarterly review",
		Message: "Prepare the Q3 review deck.",
	})

	assert.Zero(t, fc.calls)
	assert.Equal(t, TaskRecord{
		ToEmail:     "ops@gtextholdings.com",
		Subject:     "Quarterly review",
		Message:     "Prepare the Q3 review deck.",
		From:        "persona-AI",
		RequestedBy: "mary@gtextholdings.com",
	}, task)

	again := x.Extract(context.Background(), "other", "mary@gtextholdings.com", &EmailData{
		ToEmail: "ops@gtextholdings.com",
		Subject: "Quarterly review",
		Message: "Prepare the Q3 review deck.",
	})
	assert.Equal(t, task, again)
}

func TestExtractIncompleteExplicitUsesInference(t *testing.T) {
	t.Parallel()

	fc := &fakeCompleter{reply: `{"to_email":"it@gtextholdings.com","subject":"Laptop","message":"Issue a laptop"}`}
	x := NewExtractor(fc, Config{}, nil)

	task := x.Extract(context.Background(), "get me a laptop", "", &EmailData{ToEmail: "x@y.com"})
	assert.Equal(t, 1, fc.calls)
	assert.Equal(t, "it@gtextholdings.com", task.ToEmail)
	assert.Equal(t, "staff@gtextholdings.com", task.RequestedBy)
}

func TestExtractInferredPath(t *testing.T) {
	t.Parallel()

	fc := &fakeCompleter{reply: "Sure! Here it is:\n```json\n" +
		`{"to_email": "finance@gtextholdings.com", "subject": "Budget {draft}", "message": "Send the \"final\" budget", "from": "someone", "requested_by": "ceo@gtextholdings.com"}` +
		"\n```"}
	x := NewExtractor(fc, Config{Sender: "ada-AI"}, nil)

	task := x.Extract(context.Background(), "ask finance for the budget", "mary@gtextholdings.com", nil)

	assert.Equal(t, "finance@gtextholdings.com", task.ToEmail)
	assert.Equal(t, "Budget {draft}", task.Subject)
	assert.Equal(t, `Send the "final" budget`, task.Message)
	assert.Equal(t, "ada-AI", task.From)
	assert.Equal(t, "ceo@gtextholdings.com", task.RequestedBy)

	assert.Equal(t, extractionSystemPrompt, fc.last.System)
	assert.InDelta(t, 0.1, fc.last.Temperature, 1e-9)
	assert.Equal(t, 300, fc.last.MaxTokens)
	assert.Equal(t, "extract", fc.last.Purpose)
	assert.Contains(t, fc.last.Prompt, `Message: "ask finance for the budget"`)
	assert.Contains(t, fc.last.Prompt, `"mary@gtextholdings.com"`)
}

func TestExtractDefaultsOnFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		fc   *fakeCompleter
	}{
		{"completion error", &fakeCompleter{err: errors.New("boom")}},
		{"no json", &fakeCompleter{reply: "I cannot do that."}},
		{"malformed json", &fakeCompleter{reply: `{"to_email": }`}},
		{"unterminated", &fakeCompleter{reply: `{"to_email": "a@b.co"`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := NewExtractor(tt.fc, Config{}, nil)
			task := x.Extract(context.Background(), "please handle onboarding", "", nil)
			assert.Equal(t, TaskRecord{
				ToEmail:     "hr@gtextholdings.com",
				Subject:     "Task Request",
				Message:     "please handle onboarding",
				From:        "persona-AI",
				RequestedBy: "staff@gtextholdings.com",
			}, task)
		})
	}
}

func TestExtractWithoutCompleter(t *testing.T) {
	t.Parallel()

	x := NewExtractor(nil, Config{}, nil)
	task := x.Extract(context.Background(), "do it", "me@gtextholdings.com", nil)
	assert.Equal(t, "hr@gtextholdings.com", task.ToEmail)
	assert.Equal(t, "me@gtextholdings.com", task.RequestedBy)
}

func TestExtractRejectsInvalidAddress(t *testing.T) {
	t.Parallel()

	fc := &fakeCompleter{reply: `{"to_email":"not an email","subject":"S","message":"M"}`}
	x := NewExtractor(fc, Config{FallbackRecipient: "ops@gtextholdings.com"}, nil)

	task := x.Extract(context.Background(), "m", "", nil)
	assert.Equal(t, "ops@gtextholdings.com", task.ToEmail)
	assert.Equal(t, "S", task.Subject)
}

func TestExtractJSONObject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{`prefix {"a":{"b":2}} suffix {"c":3}`, `{"a":{"b":2}}`},
		{`{"s":"has } brace"}`, `{"s":"has } brace"}`},
		{`{"s":"escaped \" quote }"}`, `{"s":"escaped \" quote }"}`},
		{`she said "ok" then {"x":1}`, `{"x":1}`},
		{`} stray {"x":1}`, `{"x":1}`},
		{`{"open": true`, ""},
		{"no braces here", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractJSONObject(tt.in), "input %q", tt.in)
	}
}

func TestValidateEmail(t *testing.T) {
	t.Parallel()

	valid := []string{"a@b.co", "first.last@gtextholdings.com", "x+y@sub.domain.org"}
	invalid := []string{"", "plain", "a@b", "a b@c.com", "@b.com", "a@.com ", "a@@b.com"}

	for _, v := range valid {
		assert.True(t, ValidateEmail(v), v)
	}
	for _, v := range invalid {
		assert.False(t, ValidateEmail(v), v)
	}
}

func TestCompleteWithEmail(t *testing.T) {
	t.Parallel()

	orig := TaskRecord{ToEmail: "hr@gtextholdings.com", Subject: "S", Message: "M", From: "persona-AI", RequestedBy: "r@x.com"}
	updated := CompleteWithEmail(orig, "john@gtextholdings.com")

	assert.Equal(t, "john@gtextholdings.com", updated.ToEmail)
	assert.Equal(t, "hr@gtextholdings.com", orig.ToEmail)
	assert.Equal(t, orig.Subject, updated.Subject)
	assert.Equal(t, orig.RequestedBy, updated.RequestedBy)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	ok := TaskRecord{ToEmail: "a@b.co", Subject: "S", Message: "M", From: "persona-AI", RequestedBy: "r@b.co"}
	require.NoError(t, Validate(ok))

	bad := ok
	bad.ToEmail = "nope"
	assert.Error(t, Validate(bad))

	empty := ok
	empty.Subject = ""
	assert.Error(t, Validate(empty))
}

func TestRegisterMailbox(t *testing.T) {
	t.Parallel()

	type contact struct {
		Email string `validate:"required,mailbox"`
	}

	v := validator.New()
	require.NoError(t, RegisterMailbox(v))

	assert.NoError(t, v.Struct(contact{Email: "ops@gtextholdings.com"}))
	assert.Error(t, v.Struct(contact{Email: "ops at gtext"}))
}
