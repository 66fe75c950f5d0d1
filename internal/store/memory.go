package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory document store. It backs the degraded mode
// used when durable persistence is unavailable, and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]json.RawMessage
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: map[string]json.RawMessage{}}
}

func memKey(projectID, pathName, fileKey string) string {
	return projectID + "\x00" + pathName + "\x00" + fileKey
}

// Load returns the stored document, or nil when missing.
func (s *MemoryStore) Load(_ context.Context, projectID, pathName, fileKey string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[memKey(projectID, pathName, fileKey)]
	if !ok {
		return nil, nil
	}
	out := make(json.RawMessage, len(doc))
	copy(out, doc)
	return out, nil
}

// Save replaces the stored document.
func (s *MemoryStore) Save(_ context.Context, projectID, pathName, fileKey string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", fileKey, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[memKey(projectID, pathName, fileKey)] = raw
	return nil
}
