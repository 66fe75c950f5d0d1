package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Well-known file keys. Consumers must tolerate additive optional fields
// inside these documents.
const (
	KeyTree              = "hta_tree.json"
	KeyCompletionHistory = "completion_history.json"
	KeyAccumulatedCtx    = "accumulated_context.json"
)

// DefaultPath is the path name used when the caller does not scope the
// tree to a named learning path.
const DefaultPath = "general"

// Store is the persistence gateway: whole-document loads and saves keyed
// by project, path, and file key.
type Store interface {
	Load(ctx context.Context, projectID, pathName, fileKey string) (json.RawMessage, error)
	Save(ctx context.Context, projectID, pathName, fileKey string, doc any) error
}

// SQLStore persists documents in SQLite.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a document store over an open database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// DB returns the underlying database handle.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Load returns the stored document, or nil with no error when missing.
func (s *SQLStore) Load(ctx context.Context, projectID, pathName, fileKey string) (json.RawMessage, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT doc_json FROM documents WHERE project_id=? AND path_name=? AND file_key=?`,
		projectID, pathName, fileKey)
	var doc string
	if err := row.Scan(&doc); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load %s/%s/%s: %w", projectID, pathName, fileKey, err)
	}
	return json.RawMessage(doc), nil
}

// Save replaces the stored document.
func (s *SQLStore) Save(ctx context.Context, projectID, pathName, fileKey string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", fileKey, err)
	}
	updatedAt := time.Now().UTC().Format(time.RFC3339)
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO documents(project_id, path_name, file_key, doc_json, updated_at)
		 VALUES(?, ?, ?, ?, ?)
		 ON CONFLICT(project_id, path_name, file_key) DO UPDATE SET doc_json=excluded.doc_json, updated_at=excluded.updated_at`,
		projectID, pathName, fileKey, string(raw), updatedAt); err != nil {
		return fmt.Errorf("save %s/%s/%s: %w", projectID, pathName, fileKey, err)
	}
	return nil
}
