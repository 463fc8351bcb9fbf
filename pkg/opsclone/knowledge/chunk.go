// Package knowledge implements document retrieval for the assistant: query
// sanitisation, store-backed keyword search with a static fallback corpus,
// and normalisation of raw documents into scored content chunks.
package knowledge

import (
	"strings"
	"time"
)

// Kind classifies the origin of a content chunk.
type Kind string

const (
	KindPolicy    Kind = "policy"
	KindProcedure Kind = "procedure"
	KindGuideline Kind = "guideline"
	KindMemo      Kind = "memo"
	KindReport    Kind = "report"
	KindWeb       Kind = "web"
)

// DocumentKinds lists the kinds a stored document may carry. Web chunks are
// never persisted.
var DocumentKinds = []Kind{KindPolicy, KindProcedure, KindGuideline, KindMemo, KindReport}

// ParseKind maps a raw document type onto a Kind. Unknown and empty types are
// treated as memos.
func ParseKind(s string) Kind {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case KindPolicy, KindProcedure, KindGuideline, KindMemo, KindReport, KindWeb:
		return k
	case "web_search":
		return KindWeb
	default:
		return KindMemo
	}
}

// ContentChunk is a single scored piece of reference text. Chunks are
// produced per query and never mutated afterwards.
type ContentChunk struct {
	ID             string    `json:"id"`
	Content        string    `json:"content"`
	Source         string    `json:"source"`
	Kind           Kind      `json:"kind"`
	Department     string    `json:"department,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	RelevanceScore float64   `json:"relevanceScore"`
}

// RetrievalContext holds the chunks retrieved for one orchestration run,
// ordered by relevance (best first).
type RetrievalContext struct {
	Query          string         `json:"query"`
	Chunks         []ContentChunk `json:"chunks"`
	MaxTokenBudget int            `json:"maxTokenBudget"`
	Threshold      float64        `json:"threshold"`

	// Source names what served the chunks: "store", "fallback" or "none".
	Source string `json:"source"`
}

// DocumentChunks returns the chunks that came from documents, skipping web
// material.
func (rc RetrievalContext) DocumentChunks() []ContentChunk {
	out := make([]ContentChunk, 0, len(rc.Chunks))
	for _, c := range rc.Chunks {
		if c.Kind == KindWeb {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Document is a raw record from the document store.
type Document struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Type        string    `json:"type"`
	Department  string    `json:"department,omitempty"`
	Author      string    `json:"author,omitempty"`
	AccessLevel string    `json:"access_level,omitempty"`
	CreatedAt   time.Time `json:"date_created"`
	UpdatedAt   time.Time `json:"last_updated"`
	Active      bool      `json:"is_active"`
}

// Chunk converts the document into a content chunk with the given score.
func (d Document) Chunk(score float64) ContentChunk {
	return ContentChunk{
		ID:             d.ID,
		Content:        d.Content,
		Source:         d.Title,
		Kind:           ParseKind(d.Type),
		Department:     d.Department,
		CreatedAt:      d.CreatedAt,
		RelevanceScore: score,
	}
}
