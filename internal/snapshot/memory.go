package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/terra-clan/exam-engine/internal/models"
)

// MemoryStore implements Store in process memory. Used in tests and as the
// `memory` backend for running the engine without external services. Values go
// through JSON so load/save behaves exactly like the durable backends.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory snapshot store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) load(category string, questionID int, out interface{}) (bool, error) {
	s.mu.RLock()
	data, ok := s.data[key(category, questionID)]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to decode %s snapshot: %w", category, err)
	}
	return true, nil
}

func (s *MemoryStore) save(category string, questionID int, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s snapshot: %w", category, err)
	}
	s.mu.Lock()
	s.data[key(category, questionID)] = data
	s.mu.Unlock()
	return nil
}

// LoadWorkspace restores a workspace snapshot, or (nil, nil) if none exists
func (s *MemoryStore) LoadWorkspace(ctx context.Context, questionID int) (*models.Workspace, error) {
	var ws models.Workspace
	found, err := s.load(CategoryWorkspace, questionID, &ws)
	if err != nil || !found {
		return nil, err
	}
	return &ws, nil
}

// SaveWorkspace persists a workspace snapshot
func (s *MemoryStore) SaveWorkspace(ctx context.Context, questionID int, ws *models.Workspace) error {
	return s.save(CategoryWorkspace, questionID, ws)
}

// LoadRunResult restores the last run result, or (nil, nil) if none exists
func (s *MemoryStore) LoadRunResult(ctx context.Context, questionID int) (*models.ExecutionResult, error) {
	var res models.ExecutionResult
	found, err := s.load(CategoryRunResult, questionID, &res)
	if err != nil || !found {
		return nil, err
	}
	return &res, nil
}

// SaveRunResult persists the latest run result
func (s *MemoryStore) SaveRunResult(ctx context.Context, questionID int, res *models.ExecutionResult) error {
	return s.save(CategoryRunResult, questionID, res)
}

// LoadAttachments restores the attachment set, or (nil, nil) if none exists
func (s *MemoryStore) LoadAttachments(ctx context.Context, questionID int) (models.AttachmentSet, error) {
	var atts models.AttachmentSet
	found, err := s.load(CategoryAttachments, questionID, &atts)
	if err != nil || !found {
		return nil, err
	}
	return atts, nil
}

// SaveAttachments persists the attachment set
func (s *MemoryStore) SaveAttachments(ctx context.Context, questionID int, atts models.AttachmentSet) error {
	return s.save(CategoryAttachments, questionID, atts)
}

// Ping always succeeds for the memory store
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for the memory store
func (s *MemoryStore) Close() error {
	return nil
}
