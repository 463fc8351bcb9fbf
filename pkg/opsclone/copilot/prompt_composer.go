// Package copilot – prompt_composer.go assembles the model input for one
// message. The system message is the persona prompt; the user message is
// built from layers (retrieved documents, supplement and disclaimer notices,
// the employee message, request mode, instructions, identity template)
// rendered in layer order.
package copilot

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jholhewres/opsclone/pkg/opsclone/knowledge"
	"github.com/jholhewres/opsclone/pkg/opsclone/persona"
)

// PromptLayer orders the sections of the user message.
type PromptLayer int

const (
	LayerDocuments    PromptLayer = 0
	LayerSupplement   PromptLayer = 10
	LayerDisclaimer   PromptLayer = 20
	LayerMessage      PromptLayer = 30
	LayerRequestMode  PromptLayer = 40
	LayerInstructions PromptLayer = 50
	LayerIdentity     PromptLayer = 60
)

type layerEntry struct {
	layer   PromptLayer
	content string
}

// PromptInput is everything Compose needs for one message.
type PromptInput struct {
	Message     string
	Context     knowledge.RetrievalContext
	RequestMode bool
	Supplement  bool
}

// Prompt is the composed system and user message pair.
type Prompt struct {
	System string
	User   string
}

// PromptComposer renders prompts for a persona.
type PromptComposer struct {
	persona *persona.Persona
}

// NewPromptComposer creates a composer. A nil persona uses the default.
func NewPromptComposer(p *persona.Persona) *PromptComposer {
	if p == nil {
		p = persona.Default()
	}
	return &PromptComposer{persona: p}
}

// Compose builds the prompt. Web chunks are never rendered as documents.
// The low-information disclaimer appears only when no document chunk was
// retrieved and no supplement was requested.
func (pc *PromptComposer) Compose(in PromptInput) Prompt {
	docs := in.Context.DocumentChunks()

	layers := []layerEntry{
		{LayerDocuments, renderDocuments(docs)},
		{LayerMessage, fmt.Sprintf("\n\nEMPLOYEE MESSAGE: %s\n", in.Message)},
		{LayerInstructions, pc.renderInstructions()},
		{LayerIdentity, "\n\nIDENTITY RESPONSE TEMPLATE (for \"who are you?\" questions):\n\"" + pc.persona.IdentityTemplate + "\""},
	}

	if in.Supplement && pc.persona.SupplementInstruction != "" {
		layers = append(layers, layerEntry{LayerSupplement, "\n\n" + pc.persona.SupplementInstruction + "\n"})
	}
	if len(docs) == 0 && !in.Supplement && pc.persona.LowInformationNotice != "" {
		layers = append(layers, layerEntry{LayerDisclaimer, "\n" + pc.persona.LowInformationNotice + "\n"})
	}
	if in.RequestMode && pc.persona.RequestModeNotice != "" {
		layers = append(layers, layerEntry{LayerRequestMode, "\n" + pc.persona.RequestModeNotice})
	}

	sort.SliceStable(layers, func(i, j int) bool {
		return layers[i].layer < layers[j].layer
	})

	var b strings.Builder
	for _, l := range layers {
		b.WriteString(l.content)
	}

	return Prompt{
		System: pc.persona.SystemPrompt,
		User:   b.String(),
	}
}

func renderDocuments(docs []knowledge.ContentChunk) string {
	var b strings.Builder
	b.WriteString("RELEVANT COMPANY DOCUMENTS:\n")
	for i, c := range docs {
		fmt.Fprintf(&b, "\n[Document %d: %s]\n", i+1, c.Source)
		fmt.Fprintf(&b, "Type: %s\n", c.Kind)
		if c.Department != "" {
			fmt.Fprintf(&b, "Department: %s\n", c.Department)
		}
		fmt.Fprintf(&b, "Content: %s\n", c.Content)
	}
	return b.String()
}

func (pc *PromptComposer) renderInstructions() string {
	var b strings.Builder
	b.WriteString("\nINSTRUCTIONS:")
	for _, line := range pc.persona.Instructions {
		b.WriteString("\n- ")
		b.WriteString(line)
	}
	return b.String()
}
