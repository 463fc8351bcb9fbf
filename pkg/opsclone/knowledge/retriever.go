package knowledge

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/jholhewres/opsclone/pkg/opsclone/metrics"
)

const (
	SourceStore    = "store"
	SourceFallback = "fallback"
	SourceNone     = "none"
)

// Searcher is the document store capability the retriever depends on.
// Implementations run a full-text query and degrade to a substring match
// themselves; an error means the store could not answer at all.
type Searcher interface {
	SearchDocuments(ctx context.Context, query string, limit int) ([]Document, error)
}

// Config tunes retrieval.
type Config struct {
	// Limit is the maximum number of documents requested (default: 5).
	Limit int `yaml:"limit"`

	// MaxTokenBudget caps the estimated tokens of all chunks (default: 3000).
	MaxTokenBudget int `yaml:"max_token_budget"`

	// Threshold drops chunks scored below it (default: 0.7).
	Threshold float64 `yaml:"threshold"`

	// DefaultRelevance is assigned to store and corpus results (default: 0.8).
	DefaultRelevance float64 `yaml:"default_relevance"`

	// Timeout bounds a single store search (default: 5s).
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns the retrieval defaults.
func DefaultConfig() Config {
	return Config{
		Limit:            5,
		MaxTokenBudget:   3000,
		Threshold:        0.7,
		DefaultRelevance: 0.8,
		Timeout:          5 * time.Second,
	}
}

// Effective returns a copy with defaults filled in for zero fields.
func (c Config) Effective() Config {
	d := DefaultConfig()
	if c.Limit <= 0 {
		c.Limit = d.Limit
	}
	if c.MaxTokenBudget <= 0 {
		c.MaxTokenBudget = d.MaxTokenBudget
	}
	if c.Threshold <= 0 {
		c.Threshold = d.Threshold
	}
	if c.DefaultRelevance <= 0 {
		c.DefaultRelevance = d.DefaultRelevance
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	return c
}

// Retriever queries the document store and falls back to the built-in corpus
// when the store is absent or failing.
type Retriever struct {
	searcher Searcher
	corpus   []Document
	cfg      Config
	logger   *slog.Logger
}

// NewRetriever creates a retriever. searcher may be nil, in which case every
// query is answered from the fallback corpus.
func NewRetriever(searcher Searcher, cfg Config, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		searcher: searcher,
		corpus:   FallbackCorpus(),
		cfg:      cfg.Effective(),
		logger:   logger.With("component", "retrieval"),
	}
}

// SetCorpus replaces the fallback corpus.
func (r *Retriever) SetCorpus(docs []Document) {
	r.corpus = docs
}

// Config returns the effective retrieval configuration.
func (r *Retriever) Config() Config {
	return r.cfg
}

// Retrieve returns the chunks relevant to query. It never fails: store errors
// are logged and answered from the fallback corpus.
func (r *Retriever) Retrieve(ctx context.Context, query string) RetrievalContext {
	rc := RetrievalContext{
		Query:          query,
		MaxTokenBudget: r.cfg.MaxTokenBudget,
		Threshold:      r.cfg.Threshold,
		Source:         SourceNone,
	}

	sanitized := Sanitize(query)
	if sanitized == "" {
		metrics.RetrievalSource.WithLabelValues(SourceNone).Inc()
		return rc
	}

	docs, source := r.search(ctx, sanitized)
	rc.Source = source

	chunks := make([]ContentChunk, 0, len(docs))
	for _, d := range docs {
		c := d.Chunk(r.cfg.DefaultRelevance)
		if c.RelevanceScore < r.cfg.Threshold {
			continue
		}
		chunks = append(chunks, c)
	}
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].RelevanceScore > chunks[j].RelevanceScore
	})
	rc.Chunks = trimToBudget(chunks, r.cfg.MaxTokenBudget)

	if len(rc.Chunks) == 0 {
		source = SourceNone
	}
	metrics.RetrievalSource.WithLabelValues(source).Inc()

	r.logger.Debug("retrieval done",
		"query", sanitized,
		"source", rc.Source,
		"chunks", len(rc.Chunks),
	)
	return rc
}

func (r *Retriever) search(ctx context.Context, sanitized string) ([]Document, string) {
	if r.searcher != nil {
		sctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		docs, err := r.searcher.SearchDocuments(sctx, sanitized, r.cfg.Limit)
		cancel()
		if err == nil {
			return docs, SourceStore
		}
		r.logger.Warn("document store unavailable, using fallback corpus", "error", err)
	}
	return MatchFallback(r.corpus, sanitized, r.cfg.Limit), SourceFallback
}

// trimToBudget keeps chunks in order until the estimated token total would
// exceed budget. The first chunk is always kept.
func trimToBudget(chunks []ContentChunk, budget int) []ContentChunk {
	if budget <= 0 || len(chunks) == 0 {
		return chunks
	}
	used := 0
	for i, c := range chunks {
		used += estimateTokens(c.Content)
		if used > budget && i > 0 {
			return chunks[:i]
		}
	}
	return chunks
}
