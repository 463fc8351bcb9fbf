package commands

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jholhewres/opsclone/pkg/opsclone/copilot"
	"github.com/jholhewres/opsclone/pkg/opsclone/database"
	"github.com/jholhewres/opsclone/pkg/opsclone/knowledge"
	"github.com/jholhewres/opsclone/pkg/opsclone/tasks"
	"github.com/jholhewres/opsclone/pkg/opsclone/webhook"
)

func TestRootRegistersCommands(t *testing.T) {
	root := NewRootCmd("test")

	for _, name := range []string{"serve", "chat", "setup", "config", "docs", "webhook", "analytics", "completion"} {
		cmd, _, err := root.Find([]string{name})
		assert.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("verbose"))
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", maskSecret(""))
	assert.Equal(t, "${OPSCLONE_API_KEY}", maskSecret("${OPSCLONE_API_KEY}"))
	assert.Equal(t, "****", maskSecret("short"))
	assert.Equal(t, "sk-p****yz", maskSecret("sk-proj-abcdefxyz"))
}

func TestSetupValidators(t *testing.T) {
	assert.Error(t, required("name")("  "))
	assert.NoError(t, required("name")("OpsClone"))

	assert.NoError(t, httpURL(false)(""))
	assert.Error(t, httpURL(true)(""))
	assert.Error(t, httpURL(false)("ftp://example.com"))
	assert.Error(t, httpURL(false)("hook.example.com"))
	assert.NoError(t, httpURL(true)("https://hook.example.com/abc"))
}

func TestApplySetupAnswers(t *testing.T) {
	cfg := copilot.DefaultConfig()
	applySetupAnswers(cfg, &setupAnswers{
		Name:        " Bukola ",
		Model:       "gpt-4o",
		BaseURL:     "https://api.example.com/v1",
		WebhookURL:  "https://hook.example.com/x",
		Backend:     string(database.BackendPostgreSQL),
		SupabaseURL: "https://abc.supabase.co",
	})

	assert.Equal(t, "Bukola", cfg.Name)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, "https://hook.example.com/x", cfg.Webhook.URL)
	assert.Equal(t, database.BackendPostgreSQL, cfg.Database.Backend)
	assert.Equal(t, database.DefaultSQLitePath, cfg.Database.SQLite.Path)
	assert.Equal(t, "https://abc.supabase.co", cfg.Database.PostgreSQL.SupabaseURL)
}

func TestPrintEnvelope(t *testing.T) {
	var buf bytes.Buffer
	task := tasks.TaskRecord{ToEmail: "hr@gtextholdings.com", Subject: "Onboarding"}
	delivery := webhook.DeliveryResult{Success: true, Message: "queued"}

	printEnvelope(&buf, &copilot.ResponseEnvelope{
		Message:    "Noted. The team will handle it.",
		Confidence: 1,
		Sources:    []copilot.Source{{Title: "Leave Policy", Type: knowledge.KindPolicy}},
		Decision:   copilot.DecisionSignal{IsDecision: true, Urgency: copilot.UrgencyHigh},
		RequestMode: copilot.RequestModeResult{
			Enabled:     true,
			Task:        &task,
			WebhookSent: true,
			Delivery:    &delivery,
		},
		Timestamp: time.Now(),
	})

	out := buf.String()
	assert.Contains(t, out, "Noted. The team will handle it.\n")
	assert.Contains(t, out, "confidence 1.00 | decision | urgency high")
	assert.Contains(t, out, "sources: Leave Policy (policy)")
	assert.Contains(t, out, `task: "Onboarding" to hr@gtextholdings.com`)
	assert.Contains(t, out, "webhook: sent (queued)")
}
