// Package vector provides semantic indexing of frontier tasks. The
// gateway is optional: when absent, task selection falls back to
// priority and difficulty ordering.
package vector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"
)

// Dim is the embedding dimensionality used by the local embedder.
const Dim = 64

// Entry is one indexable unit of text with attached metadata.
type Entry struct {
	ID       string
	Text     string
	Metadata map[string]any
}

// Match is one query hit.
type Match struct {
	Metadata map[string]any
	Score    float64
}

// Index stores embeddings and answers nearest-neighbor queries.
type Index interface {
	Index(ctx context.Context, projectID, pathName string, entries []Entry) error
	Query(ctx context.Context, projectID string, embedding []float64, topK int, minScore float64) ([]Match, error)
}

// Embed produces a deterministic local embedding by hashing tokens into a
// fixed number of buckets and normalizing. It is a stand-in for a real
// embedder behind the same interface.
func Embed(text string) []float64 {
	vec := make([]float64, Dim)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		token = strings.Trim(token, ".,;:!?\"'()")
		if token == "" {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		vec[h.Sum32()%Dim]++
	}
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	dot, na, nb := 0.0, 0.0, 0.0
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// SQLIndex is a brute-force cosine index stored in the same SQLite
// database as the document store. Fine at frontier-task scale.
type SQLIndex struct {
	db *sql.DB
}

// NewSQLIndex creates an index over an open database handle.
func NewSQLIndex(db *sql.DB) *SQLIndex {
	return &SQLIndex{db: db}
}

// Index upserts entries, embedding their text locally.
func (x *SQLIndex) Index(ctx context.Context, projectID, pathName string, entries []Entry) error {
	tx, err := x.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin index: %w", err)
	}
	for _, entry := range entries {
		embedding, err := json.Marshal(Embed(entry.Text))
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("marshal embedding: %w", err)
		}
		metadata, err := json.Marshal(entry.Metadata)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("marshal metadata: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO vectors(project_id, path_name, entry_id, text, metadata_json, embedding)
			 VALUES(?, ?, ?, ?, ?, ?)
			 ON CONFLICT(project_id, path_name, entry_id) DO UPDATE SET text=excluded.text, metadata_json=excluded.metadata_json, embedding=excluded.embedding`,
			projectID, pathName, entry.ID, entry.Text, string(metadata), string(embedding)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert vector %s: %w", entry.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit index: %w", err)
	}
	return nil
}

// Query returns the topK entries above minScore, best first.
func (x *SQLIndex) Query(ctx context.Context, projectID string, embedding []float64, topK int, minScore float64) ([]Match, error) {
	rows, err := x.db.QueryContext(ctx,
		`SELECT metadata_json, embedding FROM vectors WHERE project_id=?`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var matches []Match
	for rows.Next() {
		var metadataJSON, embeddingJSON string
		if err := rows.Scan(&metadataJSON, &embeddingJSON); err != nil {
			return nil, fmt.Errorf("scan vector: %w", err)
		}
		var stored []float64
		if err := json.Unmarshal([]byte(embeddingJSON), &stored); err != nil {
			continue
		}
		score := cosine(embedding, stored)
		if score < minScore {
			continue
		}
		var metadata map[string]any
		_ = json.Unmarshal([]byte(metadataJSON), &metadata)
		matches = append(matches, Match{Metadata: metadata, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vectors: %w", err)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}
