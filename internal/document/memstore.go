package document

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nikhilbhutani/docpipeline/internal/models"
)

// MemoryStore is an in-process Store. A single lock serializes all writes.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	docs   map[int64]models.Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1, docs: make(map[int64]models.Document)}
}

func copyDocument(d models.Document) models.Document {
	if d.OCRText != nil {
		text := *d.OCRText
		d.OCRText = &text
	}
	return d
}

func (s *MemoryStore) Add(_ context.Context, doc models.Document) (models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	doc.ID = s.nextID
	doc.CreatedAt = now
	doc.UpdatedAt = now
	s.nextID++
	s.docs[doc.ID] = copyDocument(doc)
	return copyDocument(doc), nil
}

func (s *MemoryStore) GetByID(_ context.Context, id int64) (models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return models.Document{}, fmt.Errorf("get document %d: %w", id, ErrNotFound)
	}
	return copyDocument(doc), nil
}

func (s *MemoryStore) GetAll(_ context.Context) ([]models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := make([]models.Document, 0, len(s.docs))
	for _, d := range s.docs {
		docs = append(docs, copyDocument(d))
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (s *MemoryStore) Update(_ context.Context, doc models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[doc.ID]; !ok {
		return nil
	}
	doc.UpdatedAt = time.Now().UTC()
	s.docs[doc.ID] = copyDocument(doc)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	return nil
}

func (s *MemoryStore) Contains(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.docs[id]
	return ok, nil
}

func (s *MemoryStore) Mutate(_ context.Context, id int64, fn MutateFunc) (models.Document, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.docs[id]
	if !ok {
		return models.Document{}, false, fmt.Errorf("mutate document %d: %w", id, ErrNotFound)
	}

	doc := copyDocument(current)
	changed, err := fn(&doc)
	if err != nil {
		return models.Document{}, false, err
	}
	if !changed {
		return copyDocument(current), false, nil
	}

	doc.ID = id
	doc.UpdatedAt = time.Now().UTC()
	s.docs[id] = copyDocument(doc)
	return doc, true, nil
}
