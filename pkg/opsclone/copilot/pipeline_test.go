package copilot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jholhewres/opsclone/pkg/opsclone/knowledge"
	"github.com/jholhewres/opsclone/pkg/opsclone/persona"
)

func chunk(kind knowledge.Kind, score float64, content string) knowledge.ContentChunk {
	return knowledge.ContentChunk{
		ID:             string(kind),
		Content:        content,
		Source:         "Doc " + string(kind),
		Kind:           kind,
		RelevanceScore: score,
	}
}

func TestEstimateConfidence(t *testing.T) {
	t.Parallel()

	terms := []string{"bukola"}
	tests := []struct {
		name   string
		chunks []knowledge.ContentChunk
		want   float64
	}{
		{"no chunks", nil, 0.3},
		{"plain memo", []knowledge.ContentChunk{chunk(knowledge.KindMemo, 0.8, "lunch menu")}, 0.8},
		{"policy boost", []knowledge.ContentChunk{chunk(knowledge.KindPolicy, 0.8, "leave")}, 0.9},
		{"executive boost", []knowledge.ContentChunk{chunk(knowledge.KindMemo, 0.7, "Executive approvals")}, 0.8},
		{"identity boost", []knowledge.ContentChunk{chunk(knowledge.KindMemo, 0.7, "Signed by Bukola")}, 0.8},
		{"capped", []knowledge.ContentChunk{chunk(knowledge.KindPolicy, 0.9, ""), chunk(knowledge.KindMemo, 0.95, "")}, 0.95},
		{"floored", []knowledge.ContentChunk{chunk(knowledge.KindMemo, 0.1, "")}, 0.3},
		{"average", []knowledge.ContentChunk{chunk(knowledge.KindMemo, 0.7, ""), chunk(knowledge.KindReport, 0.9, "")}, 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateConfidence(tt.chunks, terms)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, MinConfidence)
			assert.LessOrEqual(t, got, MaxEstimatedConfidence)
		})
	}
}

func TestIsSimple(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want bool
	}{
		{"hi", true},
		{"Who are you?", true},
		{"Good afternoon, Bukola! Hope your day is going well", true},
		{"Could you please tell me about yourself in detail", true},
		{"What is the procurement approval process for vendors?", false},
		{"Please describe this quarter's expansion plans in Dubai", false},
		{"Which department handles chip inventory audits?", false},
		{"                              ", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsSimple(tt.text), tt.text)
	}
}

func TestNeedsSupplement(t *testing.T) {
	t.Parallel()

	complexQ := "What is the procurement approval process for vendors?"
	assert.False(t, NeedsSupplement("hello", 0.1), "simple queries never supplement")
	assert.True(t, NeedsSupplement(complexQ, 0.3))
	assert.False(t, NeedsSupplement(complexQ, 0.8))
	assert.True(t, NeedsSupplement("What are the latest updates on the Gvest platform?", 0.9))
	assert.True(t, NeedsSupplement("Summarise the market trends for land banking", 0.9))
	assert.False(t, NeedsSupplement("How do I know which form the finance office uses?", 0.9), "now inside know")

	for _, q := range []string{
		"What are the updated onboarding procedures for new staff?",
		"Which vendors are we currently using for chip supply?",
		"Summarise what is trending across the real estate portfolio",
		"List the newest product releases from the studio",
	} {
		assert.Equal(t, Classification{Supplement: true}, Classify(q, 0.9), q)
	}

	c := Classify(complexQ, 0.3)
	assert.Equal(t, Classification{Simple: false, Supplement: true}, c)
	assert.Equal(t, Classification{Simple: true}, Classify("who are you", 0.1))
}

func TestComposeDocuments(t *testing.T) {
	t.Parallel()

	pc := NewPromptComposer(persona.Default())
	rc := knowledge.RetrievalContext{Chunks: []knowledge.ContentChunk{
		{Source: "Leave Policy", Kind: knowledge.KindPolicy, Department: "HR", Content: "21 days", RelevanceScore: 0.8},
		{Source: "web result", Kind: knowledge.KindWeb, Content: "ignored", RelevanceScore: 0.9},
		{Source: "Expense Procedure", Kind: knowledge.KindProcedure, Content: "submit receipts", RelevanceScore: 0.8},
	}}

	p := pc.Compose(PromptInput{Message: "How many leave days?", Context: rc})

	assert.Equal(t, persona.Default().SystemPrompt, p.System)
	assert.True(t, strings.HasPrefix(p.User, "RELEVANT COMPANY DOCUMENTS:\n\n[Document 1: Leave Policy]\nType: policy\nDepartment: HR\nContent: 21 days\n"))
	assert.Contains(t, p.User, "\n[Document 2: Expense Procedure]\nType: procedure\nContent: submit receipts\n")
	assert.NotContains(t, p.User, "ignored")
	assert.NotContains(t, p.User, persona.Default().LowInformationNotice)
	assert.NotContains(t, p.User, "REQUEST MODE")
	assert.Contains(t, p.User, "\n\nEMPLOYEE MESSAGE: How many leave days?\n")
	assert.Contains(t, p.User, "\nINSTRUCTIONS:\n- Respond as Bukola Lukan")
	assert.True(t, strings.HasSuffix(p.User, "\""+persona.Default().IdentityTemplate+"\""))
}

func TestComposeNotices(t *testing.T) {
	t.Parallel()

	def := persona.Default()
	pc := NewPromptComposer(def)

	bare := pc.Compose(PromptInput{Message: "x"})
	assert.Contains(t, bare.User, def.LowInformationNotice)
	assert.NotContains(t, bare.User, def.SupplementInstruction)

	supplemented := pc.Compose(PromptInput{Message: "x", Supplement: true})
	assert.Contains(t, supplemented.User, def.SupplementInstruction)
	assert.NotContains(t, supplemented.User, def.LowInformationNotice)

	req := pc.Compose(PromptInput{Message: "assign onboarding", RequestMode: true})
	msg := strings.Index(req.User, "EMPLOYEE MESSAGE")
	mode := strings.Index(req.User, "REQUEST MODE")
	instr := strings.Index(req.User, "INSTRUCTIONS:")
	assert.True(t, msg < mode && mode < instr, "layers out of order")
}

func TestAnalyzeDecision(t *testing.T) {
	t.Parallel()

	tests := []struct {
		reply string
		want  DecisionSignal
	}{
		{"Thanks for the update.", DecisionSignal{Urgency: UrgencyLow}},
		{"I approve the budget. Next steps: inform finance.", DecisionSignal{IsDecision: true, ActionRequired: true, Urgency: UrgencyLow}},
		{"Escalate this IMMEDIATELY.", DecisionSignal{IsDecision: true, ActionRequired: true, Urgency: UrgencyImmediate}},
		{"I approve the proposal.", DecisionSignal{IsDecision: true, ActionRequired: true, Urgency: UrgencyLow}},
		{"This is important, please plan it.", DecisionSignal{Urgency: UrgencyHigh}},
		{"Let's coordinate with the team.", DecisionSignal{Urgency: UrgencyMedium}},
		{"Action Required: routine check.", DecisionSignal{ActionRequired: true, Urgency: UrgencyLow}},
		{"Critical: proceed as soon as possible.", DecisionSignal{IsDecision: true, ActionRequired: true, Urgency: UrgencyImmediate}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AnalyzeDecision(tt.reply), tt.reply)
	}
}
