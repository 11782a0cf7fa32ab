package roles

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/roledir/roledir/internal/shared"
)

// Store is the persistence contract for role documents. Implementations
// provide per-document atomicity: Insert must be atomically conditioned on
// absence so two concurrent creates of the same role_id cannot both
// succeed. Query result order is not guaranteed.
type Store interface {
	Get(ctx context.Context, roleID string) (Document, error)
	Query(ctx context.Context, p Predicate) ([]Document, error)
	Insert(ctx context.Context, doc Document) error
	Replace(ctx context.Context, doc Document) error
	Delete(ctx context.Context, roleID string) error
}

// MemoryStore is an in-process Store used by tests and single-node
// deployments without a database.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]Document
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Document)}
}

// Get fetches a document by role_id.
func (s *MemoryStore) Get(_ context.Context, roleID string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[roleID]
	if !ok {
		return Document{}, fmt.Errorf("memstore: get %q: %w", roleID, shared.ErrNotFound)
	}
	return doc.Clone(), nil
}

// Query returns all documents matching the predicate, ordered by role_id
// for determinism.
func (s *MemoryStore) Query(_ context.Context, p Predicate) ([]Document, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("memstore: query: %w", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Document
	for _, doc := range s.docs {
		if p.Matches(doc) {
			out = append(out, doc.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoleID < out[j].RoleID })
	return out, nil
}

// Insert stores a new document; the check and the write happen under one
// lock so concurrent duplicate creates cannot both succeed.
func (s *MemoryStore) Insert(_ context.Context, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doc.RoleID]; exists {
		return fmt.Errorf("memstore: insert %q: %w", doc.RoleID, shared.ErrDuplicate)
	}
	s.docs[doc.RoleID] = doc.Clone()
	return nil
}

// Replace overwrites an existing document in full.
func (s *MemoryStore) Replace(_ context.Context, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doc.RoleID]; !exists {
		return fmt.Errorf("memstore: replace %q: %w", doc.RoleID, shared.ErrNotFound)
	}
	s.docs[doc.RoleID] = doc.Clone()
	return nil
}

// Delete removes a document by role_id.
func (s *MemoryStore) Delete(_ context.Context, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[roleID]; !exists {
		return fmt.Errorf("memstore: delete %q: %w", roleID, shared.ErrNotFound)
	}
	delete(s.docs, roleID)
	return nil
}
