// Package persona holds the executive persona the assistant speaks as: the
// system prompt, prompt directives and the fixed user-facing strings. The
// default persona is embedded in the binary and may be overridden from a
// YAML file.
package persona

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Persona is versioned configuration data describing who the assistant is.
type Persona struct {
	Version      int    `yaml:"version"`
	Name         string `yaml:"name"`
	Title        string `yaml:"title"`
	Organization string `yaml:"organization"`

	// Sender is written into the "from" field of extracted tasks.
	Sender string `yaml:"sender"`

	// IdentityTerms are lowercase words that mark a chunk as speaking about
	// the persona. They raise retrieval confidence alongside "executive".
	IdentityTerms []string `yaml:"identity_terms"`

	SystemPrompt          string   `yaml:"system_prompt"`
	SupplementInstruction string   `yaml:"supplement_instruction"`
	LowInformationNotice  string   `yaml:"low_information_notice"`
	RequestModeNotice     string   `yaml:"request_mode_notice"`
	Instructions          []string `yaml:"instructions"`
	IdentityTemplate      string   `yaml:"identity_template"`

	Acknowledgment        string `yaml:"acknowledgment"`
	Apology               string `yaml:"apology"`
	TechnicalDifficulties string `yaml:"technical_difficulties"`
}

// Default returns the embedded persona. It panics only if the embedded file
// is corrupt, which is a build defect.
func Default() *Persona {
	p, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("persona: embedded default is invalid: %v", err))
	}
	return p
}

// Parse decodes a persona document without applying defaults.
func Parse(data []byte) (*Persona, error) {
	var p Persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing persona: %w", err)
	}
	p.normalize()
	return &p, nil
}

// Load reads a persona override from path and merges it over the embedded
// default. An empty path returns the default.
func Load(path string) (*Persona, error) {
	base := Default()
	if path == "" {
		return base, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading persona file: %w", err)
	}
	override, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return merge(base, override), nil
}

// Validate reports the first required field that is empty.
func (p *Persona) Validate() error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return fmt.Errorf("persona: name is required")
	case strings.TrimSpace(p.SystemPrompt) == "":
		return fmt.Errorf("persona: system_prompt is required")
	case strings.TrimSpace(p.Apology) == "":
		return fmt.Errorf("persona: apology is required")
	case strings.TrimSpace(p.TechnicalDifficulties) == "":
		return fmt.Errorf("persona: technical_difficulties is required")
	}
	return nil
}

func (p *Persona) normalize() {
	p.SystemPrompt = strings.TrimSpace(p.SystemPrompt)
	terms := p.IdentityTerms[:0]
	for _, t := range p.IdentityTerms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			terms = append(terms, t)
		}
	}
	p.IdentityTerms = terms
}

// merge overlays non-empty fields from overlay onto base.
func merge(base, overlay *Persona) *Persona {
	out := *base
	if overlay.Version != 0 {
		out.Version = overlay.Version
	}
	setIf(&out.Name, overlay.Name)
	setIf(&out.Title, overlay.Title)
	setIf(&out.Organization, overlay.Organization)
	setIf(&out.Sender, overlay.Sender)
	setIf(&out.SystemPrompt, overlay.SystemPrompt)
	setIf(&out.SupplementInstruction, overlay.SupplementInstruction)
	setIf(&out.LowInformationNotice, overlay.LowInformationNotice)
	setIf(&out.RequestModeNotice, overlay.RequestModeNotice)
	setIf(&out.IdentityTemplate, overlay.IdentityTemplate)
	setIf(&out.Acknowledgment, overlay.Acknowledgment)
	setIf(&out.Apology, overlay.Apology)
	setIf(&out.TechnicalDifficulties, overlay.TechnicalDifficulties)
	if len(overlay.IdentityTerms) > 0 {
		out.IdentityTerms = overlay.IdentityTerms
	}
	if len(overlay.Instructions) > 0 {
		out.Instructions = overlay.Instructions
	}
	return &out
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
