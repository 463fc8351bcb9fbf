package copilot

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jholhewres/opsclone/pkg/opsclone/knowledge"
	"github.com/jholhewres/opsclone/pkg/opsclone/llm"
	"github.com/jholhewres/opsclone/pkg/opsclone/persona"
	"github.com/jholhewres/opsclone/pkg/opsclone/tasks"
	"github.com/jholhewres/opsclone/pkg/opsclone/webhook"
)

type fakeRetriever struct {
	chunks []knowledge.ContentChunk
	panics bool
	calls  int
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string) knowledge.RetrievalContext {
	f.calls++
	if f.panics {
		panic("index corrupted")
	}
	return knowledge.RetrievalContext{Query: query, Chunks: f.chunks, Source: knowledge.SourceStore}
}

type fakeCompleter struct {
	reply string
	err   error
	reqs  []llm.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	f.reqs = append(f.reqs, req)
	return f.reply, f.err
}

type fakeDispatcher struct {
	mu         sync.Mutex
	configured bool
	result     webhook.DeliveryResult
	retries    []int
	sent       []tasks.TaskRecord
	notified   []webhook.Notification
}

func (f *fakeDispatcher) Configured() bool { return f.configured }

func (f *fakeDispatcher) Send(_ context.Context, task tasks.TaskRecord) webhook.DeliveryResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, task)
	return f.result
}

func (f *fakeDispatcher) Retry(_ context.Context, task tasks.TaskRecord, maxAttempts int) webhook.DeliveryResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, task)
	f.retries = append(f.retries, maxAttempts)
	return f.result
}

func (f *fakeDispatcher) Notify(_ context.Context, n webhook.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, n)
}

func newTestAssistant(r Retriever, c Completer, d Dispatcher) *Assistant {
	deps := Dependencies{
		Retriever: r,
		Extractor: tasks.NewExtractor(nil, tasks.DefaultConfig(), nil),
		Response:  DefaultResponseConfig(),
	}
	if c != nil {
		deps.Completer = c
	}
	if d != nil {
		deps.Dispatcher = d
	}
	return New(deps)
}

const complexQuestion = "What is the procurement approval process for new vendors?"

func TestRespondValidation(t *testing.T) {
	t.Parallel()

	r := &fakeRetriever{}
	c := &fakeCompleter{reply: "ok"}
	a := newTestAssistant(r, c, nil)

	tests := []struct {
		name  string
		req   ChatRequest
		field string
	}{
		{"empty message", ChatRequest{Message: "   ", UserID: "u1"}, "message"},
		{"missing user", ChatRequest{Message: "hello"}, "userId"},
		{"bad recipient", ChatRequest{Message: "hello", UserID: "u1", EmailData: &tasks.EmailData{ToEmail: "not an email"}}, "emailData.to_email"},
	}
	for _, tt := range tests {
		env, err := a.Respond(context.Background(), tt.req)
		assert.Nil(t, env, tt.name)
		require.ErrorIs(t, err, ErrValidation, tt.name)

		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, tt.field, ve.Field, tt.name)
	}
	assert.Zero(t, r.calls, "no retrieval before validation passes")
	assert.Empty(t, c.reqs)
}

func TestRespondChat(t *testing.T) {
	t.Parallel()

	r := &fakeRetriever{chunks: []knowledge.ContentChunk{
		{Source: "Vendor Policy", Kind: knowledge.KindPolicy, Department: "Procurement", Content: "Three quotes", RelevanceScore: 0.8},
	}}
	c := &fakeCompleter{reply: "  I approve. Next steps: collect three quotes.  "}
	a := newTestAssistant(r, c, nil)

	env, err := a.Respond(context.Background(), ChatRequest{Message: complexQuestion, UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, "I approve. Next steps: collect three quotes.", env.Message)
	assert.InDelta(t, 0.9, env.Confidence, 1e-9)
	assert.Equal(t, []Source{{Title: "Vendor Policy", Type: knowledge.KindPolicy, Department: "Procurement"}}, env.Sources)
	assert.True(t, env.Decision.IsDecision)
	assert.True(t, env.Decision.ActionRequired)
	assert.False(t, env.RequestMode.Enabled)
	assert.Nil(t, env.RequestMode.Task)
	assert.NotEmpty(t, env.ID)

	require.Len(t, c.reqs, 1)
	assert.Equal(t, 800, c.reqs[0].MaxTokens)
	assert.InDelta(t, 0.2, c.reqs[0].Temperature, 1e-9)
	assert.Equal(t, "reply", c.reqs[0].Purpose)
	assert.Contains(t, c.reqs[0].Prompt, "[Document 1: Vendor Policy]")
	assert.NotContains(t, c.reqs[0].Prompt, persona.Default().SupplementInstruction)
}

func TestRespondSimpleUsesShortCap(t *testing.T) {
	t.Parallel()

	c := &fakeCompleter{reply: "I'm Bukola Lukan."}
	a := newTestAssistant(&fakeRetriever{}, c, nil)

	env, err := a.Respond(context.Background(), ChatRequest{Message: "who are you?", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, MinConfidence, env.Confidence)

	require.Len(t, c.reqs, 1)
	assert.Equal(t, 150, c.reqs[0].MaxTokens)
	assert.Contains(t, c.reqs[0].Prompt, persona.Default().LowInformationNotice)
}

func TestRespondSupplementsLowConfidence(t *testing.T) {
	t.Parallel()

	c := &fakeCompleter{reply: "Here is what I know."}
	a := newTestAssistant(&fakeRetriever{}, c, nil)

	env, err := a.Respond(context.Background(), ChatRequest{Message: complexQuestion, UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, MinConfidence, env.Confidence, "supplement does not raise confidence")
	assert.Contains(t, c.reqs[0].Prompt, persona.Default().SupplementInstruction)
	assert.NotContains(t, c.reqs[0].Prompt, persona.Default().LowInformationNotice)

	off := DefaultResponseConfig()
	off.Supplement = false
	c2 := &fakeCompleter{reply: "ok"}
	a2 := New(Dependencies{Retriever: &fakeRetriever{}, Completer: c2, Response: off})
	_, err = a2.Respond(context.Background(), ChatRequest{Message: complexQuestion, UserID: "u1"})
	require.NoError(t, err)
	assert.Contains(t, c2.reqs[0].Prompt, persona.Default().LowInformationNotice)
	assert.NotContains(t, c2.reqs[0].Prompt, persona.Default().SupplementInstruction)
}

func TestRespondCompletionFailure(t *testing.T) {
	t.Parallel()

	for _, c := range []*fakeCompleter{
		{err: errors.New("connection refused")},
		{err: llm.ErrEmptyResponse},
		{reply: "   "},
	} {
		a := newTestAssistant(&fakeRetriever{}, c, nil)
		env, err := a.Respond(context.Background(), ChatRequest{Message: complexQuestion, UserID: "u1"})
		require.NoError(t, err)
		assert.Equal(t, persona.Default().Apology, env.Message)
	}

	a := newTestAssistant(&fakeRetriever{}, nil, nil)
	env, err := a.Respond(context.Background(), ChatRequest{Message: complexQuestion, UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, persona.Default().Apology, env.Message)
}

func TestRespondPanicYieldsTechnicalDifficulties(t *testing.T) {
	t.Parallel()

	a := newTestAssistant(&fakeRetriever{panics: true}, &fakeCompleter{reply: "x"}, nil)
	env, err := a.Respond(context.Background(), ChatRequest{Message: complexQuestion, UserID: "u1", RequestMode: true})
	require.NoError(t, err)
	assert.Equal(t, persona.Default().TechnicalDifficulties, env.Message)
	assert.Equal(t, MinConfidence, env.Confidence)
	assert.True(t, env.RequestMode.Enabled)
	assert.Empty(t, env.Sources)
}

func TestRespondRequestModeDelivered(t *testing.T) {
	t.Parallel()

	c := &fakeCompleter{reply: "should not be used"}
	d := &fakeDispatcher{configured: true, result: webhook.DeliveryResult{Success: true, ID: "task_1", Message: "Task sent successfully to automation system"}}
	a := newTestAssistant(&fakeRetriever{}, c, d)

	env, err := a.Respond(context.Background(), ChatRequest{
		Message:     "Assign onboarding to John",
		UserID:      "u1",
		RequestMode: true,
		EmailData:   &tasks.EmailData{ToEmail: "john@gtextholdings.com", Subject: "Onboarding", Message: "Handle onboarding Tuesday"},
	})
	require.NoError(t, err)

	assert.Empty(t, c.reqs, "request mode skips the reply completion")
	assert.Equal(t, "Task processed successfully.", env.Message)
	assert.Equal(t, AcknowledgedConfidence, env.Confidence)

	require.NotNil(t, env.RequestMode.Task)
	assert.Equal(t, "john@gtextholdings.com", env.RequestMode.Task.ToEmail)
	assert.Equal(t, "persona-AI", env.RequestMode.Task.From)
	assert.True(t, env.RequestMode.WebhookSent)
	assert.Equal(t, []int{2}, d.retries)
	assert.Empty(t, d.notified)
}

func TestRespondRequestModeDeliveryFailure(t *testing.T) {
	t.Parallel()

	d := &fakeDispatcher{configured: true, result: webhook.DeliveryResult{Message: "Automation system error: 500 - down", Error: "down", StatusCode: 500, Attempts: 2}}
	a := newTestAssistant(&fakeRetriever{}, nil, d)

	env, err := a.Respond(context.Background(), ChatRequest{Message: "Schedule a vendor review", UserID: "u7", RequestMode: true})
	require.NoError(t, err)

	assert.False(t, env.RequestMode.WebhookSent)
	require.NotNil(t, env.RequestMode.Delivery)
	assert.Equal(t, 500, env.RequestMode.Delivery.StatusCode)

	require.Len(t, d.notified, 1)
	n := d.notified[0]
	assert.Equal(t, webhook.NotifyError, n.Type)
	assert.Equal(t, "u7", n.UserID)
	assert.Equal(t, "Failed to send task: Schedule a vendor review", n.Message)
}

func TestRespondRequestModeNotConfigured(t *testing.T) {
	t.Parallel()

	for _, d := range []Dispatcher{nil, &fakeDispatcher{configured: false}} {
		a := newTestAssistant(&fakeRetriever{}, nil, d)
		env, err := a.Respond(context.Background(), ChatRequest{Message: "Book the boardroom", UserID: "u1", RequestMode: true})
		require.NoError(t, err)

		require.NotNil(t, env.RequestMode.Delivery)
		assert.Equal(t, webhook.NotConfigured(), *env.RequestMode.Delivery)
		assert.Equal(t, "Webhook not configured", env.RequestMode.Delivery.Message)
		assert.Equal(t, "hr@gtextholdings.com", env.RequestMode.Task.ToEmail)
		assert.Equal(t, "Task Request", env.RequestMode.Task.Subject)
		assert.Equal(t, "Book the boardroom", env.RequestMode.Task.Message)
	}
}

func TestCompleteTask(t *testing.T) {
	t.Parallel()

	d := &fakeDispatcher{configured: true, result: webhook.DeliveryResult{Success: true, ID: "task_9"}}
	a := newTestAssistant(&fakeRetriever{}, nil, d)

	res, err := a.CompleteTask(context.Background(), CompleteTaskRequest{
		OriginalMessage: "Prepare the Q3 report",
		UserID:          "u1",
		AssigneeName:    "Ada",
		AssigneeEmail:   "ada@gtextholdings.com",
		UserInfo:        &UserInfo{Name: "Tunde"},
	})
	require.NoError(t, err)

	assert.Equal(t, "ada@gtextholdings.com", res.Task.ToEmail)
	assert.Equal(t, "Tunde", res.Task.RequestedBy)
	assert.Equal(t, "Task successfully assigned to Ada", res.Message)
	assert.True(t, res.Delivery.Success)
	require.Len(t, d.sent, 1)
	assert.Empty(t, d.retries, "complete-task sends once")

	_, err = a.CompleteTask(context.Background(), CompleteTaskRequest{
		OriginalMessage: "x", UserID: "u1", AssigneeName: "Ada", AssigneeEmail: "ada",
	})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "assigneeEmail", ve.Field)
}
