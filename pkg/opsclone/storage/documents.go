package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jholhewres/opsclone/pkg/opsclone/database"
	"github.com/jholhewres/opsclone/pkg/opsclone/knowledge"
	"github.com/jholhewres/opsclone/pkg/opsclone/metrics"
)

const documentColumns = "id, title, content, type, department, author, access_level, date_created, last_updated, is_active"

// DocumentInput is a new document submitted to the store.
type DocumentInput struct {
	Title       string `json:"title" validate:"required"`
	Content     string `json:"content" validate:"required"`
	Type        string `json:"type" validate:"required,oneof=policy procedure guideline memo report"`
	Department  string `json:"department,omitempty"`
	Author      string `json:"author" validate:"required"`
	AccessLevel string `json:"access_level" validate:"omitempty,oneof=public management executive"`
}

// DocumentFilter narrows ListDocuments. Zero fields do not filter.
type DocumentFilter struct {
	Type        string
	Department  string
	AccessLevel string
	Active      *bool
}

// SearchDocuments finds active documents matching the query. Full-text
// search is tried first; when it is unavailable or fails the search
// degrades to a case-insensitive substring match. An error is returned only
// when both strategies fail.
func (s *Store) SearchDocuments(ctx context.Context, query string, limit int) ([]knowledge.Document, error) {
	sanitized := knowledge.Sanitize(query)
	if sanitized == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	if s.fts {
		docs, err := s.searchFullText(ctx, sanitized, limit)
		if err == nil {
			metrics.StoreSearches.WithLabelValues("fts", "ok").Inc()
			return docs, nil
		}
		metrics.StoreSearches.WithLabelValues("fts", "error").Inc()
		s.logger.Warn("full-text search failed, falling back to substring match", "error", err)
	}

	docs, err := s.searchLike(ctx, sanitized, limit)
	if err != nil {
		metrics.StoreSearches.WithLabelValues("like", "error").Inc()
		return nil, fmt.Errorf("search documents: %w", err)
	}
	metrics.StoreSearches.WithLabelValues("like", "ok").Inc()
	return docs, nil
}

func (s *Store) searchFullText(ctx context.Context, sanitized string, limit int) ([]knowledge.Document, error) {
	var rows *sql.Rows
	var err error

	if s.dialect == database.BackendPostgreSQL {
		rows, err = s.query(ctx, `
			SELECT `+documentColumns+` FROM document_store
			WHERE search_vector @@ plainto_tsquery('english', ?) AND is_active = 1
			ORDER BY ts_rank(search_vector, plainto_tsquery('english', ?)) DESC
			LIMIT ?`, sanitized, sanitized, limit)
	} else {
		rows, err = s.query(ctx, `
			SELECT d.id, d.title, d.content, d.type, d.department, d.author, d.access_level,
			       d.date_created, d.last_updated, d.is_active
			FROM document_fts
			JOIN document_store d ON d.rowid = document_fts.rowid
			WHERE document_fts MATCH ? AND d.is_active = 1
			ORDER BY rank
			LIMIT ?`, ftsQuery(sanitized), limit)
	}
	if err != nil {
		return nil, err
	}
	return scanDocuments(rows)
}

func (s *Store) searchLike(ctx context.Context, sanitized string, limit int) ([]knowledge.Document, error) {
	pattern := "%" + sanitized + "%"
	op := s.likeOp()
	rows, err := s.query(ctx, `
		SELECT `+documentColumns+` FROM document_store
		WHERE (title `+op+` ? OR content `+op+` ?) AND is_active = 1
		ORDER BY last_updated DESC
		LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		return nil, err
	}
	return scanDocuments(rows)
}

// ftsQuery turns sanitized words into an FTS5 query requiring every term.
// Each term is quoted so FTS5 operators in user text are inert.
func ftsQuery(sanitized string) string {
	words := strings.Fields(sanitized)
	for i, w := range words {
		words[i] = `"` + w + `"`
	}
	return strings.Join(words, " ")
}

// StoreDocument validates and inserts a new active document.
func (s *Store) StoreDocument(ctx context.Context, in DocumentInput) (knowledge.Document, error) {
	if in.AccessLevel == "" {
		in.AccessLevel = "public"
	}
	if err := s.validate.Struct(in); err != nil {
		return knowledge.Document{}, fmt.Errorf("invalid document: %w", err)
	}

	// Round-trip through the stored layout so the returned value matches a later read.
	now := parseTime(s.timestamp())
	doc := knowledge.Document{
		ID:          uuid.New().String(),
		Title:       strings.TrimSpace(in.Title),
		Content:     in.Content,
		Type:        in.Type,
		Department:  in.Department,
		Author:      in.Author,
		AccessLevel: in.AccessLevel,
		CreatedAt:   now,
		UpdatedAt:   now,
		Active:      true,
	}

	if err := s.insertDocument(ctx, doc); err != nil {
		return knowledge.Document{}, err
	}
	return doc, nil
}

func (s *Store) insertDocument(ctx context.Context, doc knowledge.Document) error {
	_, err := s.exec(ctx, `
		INSERT INTO document_store (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Title, doc.Content, doc.Type, doc.Department, doc.Author, doc.AccessLevel,
		formatTime(doc.CreatedAt), formatTime(doc.UpdatedAt), boolInt(doc.Active))
	if err != nil {
		return fmt.Errorf("insert document %s: %w", doc.ID, err)
	}
	return nil
}

// ListDocuments returns documents matching the filter, most recently
// updated first.
func (s *Store) ListDocuments(ctx context.Context, filter DocumentFilter) ([]knowledge.Document, error) {
	var where []string
	var args []any

	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.Department != "" {
		where = append(where, "department = ?")
		args = append(args, filter.Department)
	}
	if filter.AccessLevel != "" {
		where = append(where, "access_level = ?")
		args = append(args, filter.AccessLevel)
	}
	if filter.Active != nil {
		where = append(where, "is_active = ?")
		args = append(args, boolInt(*filter.Active))
	}

	q := "SELECT " + documentColumns + " FROM document_store"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY last_updated DESC"

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return scanDocuments(rows)
}

// CountDocuments returns the number of stored documents.
func (s *Store) CountDocuments(ctx context.Context) (int, error) {
	var n int
	if err := s.queryRow(ctx, "SELECT COUNT(*) FROM document_store").Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// SeedFallback inserts the built-in reference documents when the store is
// empty and returns how many were inserted.
func (s *Store) SeedFallback(ctx context.Context) (int, error) {
	n, err := s.CountDocuments(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}

	corpus := knowledge.FallbackCorpus()
	for _, doc := range corpus {
		if err := s.insertDocument(ctx, doc); err != nil {
			return 0, err
		}
	}
	s.logger.Info("seeded document store with reference documents", "count", len(corpus))
	return len(corpus), nil
}

func scanDocuments(rows *sql.Rows) ([]knowledge.Document, error) {
	defer rows.Close()

	var docs []knowledge.Document
	for rows.Next() {
		var (
			doc              knowledge.Document
			department       sql.NullString
			created, updated string
		)
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.Content, &doc.Type, &department, &doc.Author,
			&doc.AccessLevel, &created, &updated, &doc.Active); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc.Department = department.String
		doc.CreatedAt = parseTime(created)
		doc.UpdatedAt = parseTime(updated)
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}
