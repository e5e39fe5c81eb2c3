package search

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/agnivade/levenshtein"
	"github.com/nikhilbhutani/docpipeline/internal/models"
)

// Memory is an in-process index used when no Elasticsearch cluster is
// configured. Fuzzy matching compares whole words by edit distance.
type Memory struct {
	mu            sync.RWMutex
	indices       map[string]map[int64]Record
	fuzzyDistance int
}

func NewMemory(fuzzyDistance int) *Memory {
	return &Memory{
		indices:       make(map[string]map[int64]Record),
		fuzzyDistance: fuzzyDistance,
	}
}

func (m *Memory) EnsureIndexExists(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.indices[name]; !ok {
		m.indices[name] = make(map[int64]Record)
	}
	return nil
}

func (m *Memory) Index(_ context.Context, doc models.Document, index string) (Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	records, ok := m.indices[index]
	if !ok {
		records = make(map[int64]Record)
		m.indices[index] = records
	}
	records[doc.ID] = RecordFrom(doc)
	return Response{OK: true, DebugInfo: "indexed"}, nil
}

func (m *Memory) Delete(_ context.Context, id int64, index string) (Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.indices[index], id)
	return Response{OK: true}, nil
}

func (m *Memory) Search(_ context.Context, q Query) ([]models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	terms := words(q.Text)
	needle := strings.ToLower(q.Text)

	docs := []models.Document{}
	for id, rec := range m.indices[q.Index] {
		var hit bool
		if q.Mode == ModeFuzzy {
			hit = m.fuzzyMatch(terms, words(rec.OCRText))
		} else {
			hit = needle != "" && strings.Contains(strings.ToLower(rec.OCRText), needle)
		}
		if hit {
			docs = append(docs, rec.Document(id))
		}
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// fuzzyMatch reports whether any query word is within the edit distance of
// any text word.
func (m *Memory) fuzzyMatch(query, text []string) bool {
	for _, q := range query {
		for _, w := range text {
			if levenshtein.ComputeDistance(q, w) <= m.fuzzyDistance {
				return true
			}
		}
	}
	return false
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
