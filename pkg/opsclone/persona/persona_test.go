package persona

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPersona(t *testing.T) {
	t.Parallel()

	p := Default()
	require.NoError(t, p.Validate())

	assert.Equal(t, "Bukola Lukan", p.Name)
	assert.Equal(t, "persona-AI", p.Sender)
	assert.Equal(t, []string{"bukola"}, p.IdentityTerms)
	assert.Contains(t, p.SystemPrompt, "You ARE Bukola Lukan")
	assert.NotContains(t, p.SystemPrompt, "‚Äî")
	assert.Contains(t, p.SystemPrompt, "₦5M")
	assert.Len(t, p.Instructions, 11)
	assert.Equal(t, "Task processed successfully.", p.Acknowledgment)
	assert.Equal(t,
		"I apologize, but I'm unable to process your request at this moment. Please contact Operations directly.",
		p.Apology)
	assert.Equal(t,
		"I'm experiencing technical difficulties. Please contact IT support or try again in a few moments.",
		p.TechnicalDifficulties)
	assert.Equal(t,
		"I'm Bukola Lukan, Group Chief Operations Officer of Gtext Holdings. I oversee all operations across our global subsidiaries and ensure we lead right in everything we do. How can I assist you today?",
		p.IdentityTemplate)
	assert.True(t, len(p.RequestModeNotice) > 0)
	assert.Contains(t, p.LowInformationNotice, "Limited specific information available.")
}

func TestDefaultReturnsIndependentCopies(t *testing.T) {
	t.Parallel()

	a := Default()
	a.Name = "changed"
	a.IdentityTerms[0] = "changed"

	b := Default()
	assert.Equal(t, "Bukola Lukan", b.Name)
	assert.Equal(t, "bukola", b.IdentityTerms[0])
}

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	t.Parallel()

	p, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Name, p.Name)
}

func TestLoadMergesOverride(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "persona.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: 2
name: Ada Obi
sender: ada-AI
identity_terms: [" Ada ", "OBI", ""]
system_prompt: |
  You are Ada Obi.
`), 0o600))

	p, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, p.Version)
	assert.Equal(t, "Ada Obi", p.Name)
	assert.Equal(t, "ada-AI", p.Sender)
	assert.Equal(t, []string{"ada", "obi"}, p.IdentityTerms)
	assert.Equal(t, "You are Ada Obi.", p.SystemPrompt)

	// Untouched fields keep the embedded values.
	assert.Equal(t, Default().Apology, p.Apology)
	assert.Equal(t, Default().Instructions, p.Instructions)
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("name: [unclosed"), 0o600))
	_, err = Load(bad)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	p := Default()
	p.SystemPrompt = "  "
	assert.ErrorContains(t, p.Validate(), "system_prompt")

	p = Default()
	p.Name = ""
	assert.ErrorContains(t, p.Validate(), "name")
}
