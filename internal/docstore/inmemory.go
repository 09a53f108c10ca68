package docstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore keeps documents and chat history for the process lifetime.
type InMemoryStore struct {
	mu       sync.RWMutex
	docs     map[string]Document
	messages map[string][]MessageRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		docs:     make(map[string]Document),
		messages: make(map[string][]MessageRecord),
	}
}

func (s *InMemoryStore) SaveDocument(_ context.Context, doc Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc
	return nil
}

func (s *InMemoryStore) GetDocument(_ context.Context, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return Document{}, ErrDocumentNotFound
	}
	return doc, nil
}

func (s *InMemoryStore) ListDocuments(_ context.Context, limit int) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Document, 0, len(s.docs))
	for _, doc := range s.docs {
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) SaveMessage(_ context.Context, rec MessageRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[rec.DocumentID] = append(s.messages[rec.DocumentID], rec)
	return nil
}

func (s *InMemoryStore) RecentMessages(_ context.Context, documentID string, limit int) ([]MessageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[documentID]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]MessageRecord, limit)
	copy(out, all[len(all)-limit:])
	return out, nil
}

func (s *InMemoryStore) Close() {}
