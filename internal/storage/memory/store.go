package memory

import (
	"context"
	"sync"

	"activeoi/internal/models"
	"activeoi/internal/storage"
)

// Store is an in-memory implementation of storage.Store.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*models.Table
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{tables: make(map[string]*models.Table)}
}

// Read returns a copy of the table under key, or an empty table.
func (s *Store) Read(_ context.Context, key string) (*models.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[key]
	if !ok {
		return &models.Table{}, nil
	}
	return storage.CloneTable(t), nil
}

// Write stores a copy of t under key.
func (s *Store) Write(_ context.Context, key string, t *models.Table) error {
	if err := storage.ValidateTable(t); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[key] = storage.CloneTable(t)
	return nil
}

// Path returns key; the memory store has no files.
func (s *Store) Path(key string) string { return key }

// Keys returns the number of stored tables.
func (s *Store) Keys() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables)
}
