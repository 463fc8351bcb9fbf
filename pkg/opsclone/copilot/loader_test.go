package copilot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jholhewres/opsclone/pkg/opsclone/database"
)

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("OPSCLONE_TEST_SET", "value")

	tests := []struct {
		in   string
		want string
	}{
		{"${OPSCLONE_TEST_SET}", "value"},
		{"$OPSCLONE_TEST_SET", "value"},
		{"${OPSCLONE_TEST_UNSET}", "${OPSCLONE_TEST_UNSET}"},
		{"${OPSCLONE_TEST_UNSET:-fallback}", "fallback"},
		{"${OPSCLONE_TEST_SET:-fallback}", "value"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, expandEnvVars(tt.in), tt.in)
	}

	_, err := expandEnvVarsWithValidation("key: ${OPSCLONE_TEST_UNSET:?set the key}\nother: 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPSCLONE_TEST_UNSET - set the key")
}

func TestParseConfigKeepsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := ParseConfig([]byte(`
model: gpt-4o
response:
  complex_max_tokens: 600
webhook:
  timeout: 5s
database:
  backend: postgresql
  postgresql:
    supabase_url: https://abc.supabase.co
`))
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, 600, cfg.Response.ComplexMaxTokens)
	assert.Equal(t, 150, cfg.Response.SimpleMaxTokens)
	assert.True(t, cfg.Response.Supplement)
	assert.Equal(t, 5*time.Second, cfg.Webhook.Timeout)
	assert.Equal(t, 2, cfg.Webhook.DeliveryAttempts)
	assert.Equal(t, database.BackendPostgreSQL, cfg.Database.Backend)
	assert.Equal(t, "https://abc.supabase.co", cfg.Database.PostgreSQL.SupabaseURL)
	assert.Equal(t, 5432, cfg.Database.PostgreSQL.Port)
	assert.Equal(t, 5, cfg.Retrieval.Limit)
	assert.Len(t, cfg.Scheduler.Jobs, 2)

	_, err = ParseConfig([]byte("model: [unterminated"))
	assert.Error(t, err)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  api_key: ${OPSCLONE_API_KEY}
persona:
  file: persona.yaml
database:
  sqlite:
    path: data/test.db
`), 0o600))

	t.Setenv(EnvAPIKey, "sk-test")
	t.Setenv(EnvWebhookURL, "https://hook.example.com/abc")
	t.Setenv(EnvAdminToken, "")

	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.API.APIKey)
	assert.Equal(t, "https://hook.example.com/abc", cfg.Webhook.URL)
	assert.Equal(t, filepath.Join(dir, "persona.yaml"), cfg.Persona.File)
	assert.Equal(t, filepath.Join(dir, "data/test.db"), cfg.Database.SQLite.Path)

	_, err = LoadConfigFromFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestResolveSecretsFallsBackToOpenAIKey(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	t.Setenv(EnvOpenAIKey, "sk-openai")

	cfg := DefaultConfig()
	cfg.API.APIKey = "${OPSCLONE_API_KEY}"
	ResolveSecrets(cfg)
	assert.Equal(t, "sk-openai", cfg.API.APIKey)

	cfg.API.APIKey = "sk-explicit"
	ResolveSecrets(cfg)
	assert.Equal(t, "sk-explicit", cfg.API.APIKey)
}

func TestSaveConfigSanitizesSecrets(t *testing.T) {
	t.Setenv(EnvAPIKey, "sk-from-env")
	t.Setenv(EnvWebhookURL, "")

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.API.APIKey = "sk-from-env"
	cfg.Webhook.URL = "https://hook.example.com/x"

	require.NoError(t, SaveConfigToFile(cfg, path))
	require.NoError(t, SaveConfigToFile(cfg, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "${OPSCLONE_API_KEY}")
	assert.NotContains(t, string(data), "sk-from-env")
	assert.Contains(t, string(data), "https://hook.example.com/x")

	_, err = os.Stat(path + ".bak")
	assert.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	back, err := ParseConfig(data)
	require.NoError(t, err)
	assert.Equal(t, cfg.Gateway.Address, back.Gateway.Address)
	assert.Equal(t, cfg.Webhook.Timeout, back.Webhook.Timeout)
}
