package workers_test

import (
	"context"
	"errors"
	"testing"

	"github.com/nikhilbhutani/docpipeline/internal/document"
	"github.com/nikhilbhutani/docpipeline/internal/models"
	"github.com/nikhilbhutani/docpipeline/internal/queue"
	"github.com/nikhilbhutani/docpipeline/internal/queue/workers"
	"github.com/nikhilbhutani/docpipeline/internal/search"
)

func resultPayload(id int64, text string) []byte {
	l := &loopback{}
	_ = l.PublishResult(context.Background(), id, text)
	return l.results[0]
}

func newIngestFixture(t *testing.T) (*workers.IngestWorker, *document.MemoryStore, *countingIndex) {
	t.Helper()
	store := document.NewMemoryStore()
	index := &countingIndex{inner: search.NewMemory(4)}
	return workers.NewIngestWorker(store, index, "documents", discardLogger()), store, index
}

func TestIngestWorkerStoresAndIndexes(t *testing.T) {
	w, store, index := newIngestFixture(t)
	ctx := context.Background()
	doc, _ := store.Add(ctx, models.Document{Name: "sample", FileType: "application/pdf", FileSize: "20kB"})

	if err := w.Handle(ctx, resultPayload(doc.ID, "Test test")); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got, _ := store.GetByID(ctx, doc.ID)
	if got.OCRText == nil || *got.OCRText != "Test test" {
		t.Errorf("OCRText = %v, want Test test", got.OCRText)
	}
	if got.Name != "sample" || got.FileSize != "20kB" {
		t.Errorf("metadata changed: %+v", got)
	}

	hits, _ := index.Search(ctx, search.Query{Text: "test", Mode: search.ModeTerm, Index: "documents"})
	if len(hits) != 1 || hits[0].ID != doc.ID {
		t.Errorf("Search() = %+v", hits)
	}
}

func TestIngestWorkerKeepsFirstText(t *testing.T) {
	w, store, index := newIngestFixture(t)
	ctx := context.Background()
	doc, _ := store.Add(ctx, models.Document{Name: "sample"})

	_ = w.Handle(ctx, resultPayload(doc.ID, "first"))
	if err := w.Handle(ctx, resultPayload(doc.ID, "second")); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got, _ := store.GetByID(ctx, doc.ID)
	if *got.OCRText != "first" {
		t.Errorf("OCRText = %q, want first", *got.OCRText)
	}
	if index.indexed != 1 {
		t.Errorf("indexed %d times, want 1", index.indexed)
	}
}

func TestIngestWorkerDrops(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    error
	}{
		{"legacy delimited", []byte("1|Test test"), queue.ErrMalformedMessage},
		{"bad id", []byte(`{"document_id":-1,"text":"x"}`), queue.ErrMalformedMessage},
		{"empty text", resultPayload(1, ""), queue.ErrEmptyText},
		{"unknown document", resultPayload(404, "text"), document.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, store, index := newIngestFixture(t)
			ctx := context.Background()
			doc, _ := store.Add(ctx, models.Document{Name: "sample"})

			if err := w.Handle(ctx, tt.payload); !errors.Is(err, tt.want) {
				t.Fatalf("Handle() error = %v, want %v", err, tt.want)
			}

			got, _ := store.GetByID(ctx, doc.ID)
			if got.HasText() {
				t.Error("store updated for dropped message")
			}
			if index.indexed != 0 {
				t.Errorf("index called %d times for dropped message", index.indexed)
			}
		})
	}
}

func TestIngestWorkerIndexFailureKeepsText(t *testing.T) {
	w, store, index := newIngestFixture(t)
	index.fail = true
	ctx := context.Background()
	doc, _ := store.Add(ctx, models.Document{Name: "sample"})

	if err := w.Handle(ctx, resultPayload(doc.ID, "kept")); err != nil {
		t.Fatalf("Handle() error = %v, want nil", err)
	}

	got, _ := store.GetByID(ctx, doc.ID)
	if got.OCRText == nil || *got.OCRText != "kept" {
		t.Errorf("OCRText = %v, want kept", got.OCRText)
	}
}

// deletingStore simulates a delete that commits right after the text update.
type deletingStore struct {
	*document.MemoryStore
}

func (s deletingStore) Mutate(ctx context.Context, id int64, fn document.MutateFunc) (models.Document, bool, error) {
	doc, changed, err := s.MemoryStore.Mutate(ctx, id, fn)
	if err == nil {
		s.MemoryStore.Delete(ctx, id)
	}
	return doc, changed, err
}

func TestIngestWorkerDeletedDuringIngestion(t *testing.T) {
	ctx := context.Background()
	store := deletingStore{document.NewMemoryStore()}
	index := &countingIndex{inner: search.NewMemory(4)}
	w := workers.NewIngestWorker(store, index, "documents", discardLogger())

	doc, _ := store.Add(ctx, models.Document{Name: "sample"})
	if err := w.Handle(ctx, resultPayload(doc.ID, "Test test")); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	hits, _ := index.Search(ctx, search.Query{Text: "test", Mode: search.ModeTerm, Index: "documents"})
	if len(hits) != 0 {
		t.Errorf("Search() = %+v, want no record for a deleted document", hits)
	}
}

func TestIngestWorkerManualTextWins(t *testing.T) {
	w, store, index := newIngestFixture(t)
	ctx := context.Background()

	manual := "typed by hand"
	doc, _ := store.Add(ctx, models.Document{Name: "sample", OCRText: &manual})

	if err := w.Handle(ctx, resultPayload(doc.ID, "Test test")); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got, _ := store.GetByID(ctx, doc.ID)
	if *got.OCRText != manual {
		t.Errorf("OCRText = %q, want the text set before ingestion", *got.OCRText)
	}
	if index.indexed != 0 {
		t.Errorf("indexed %d times, want 0", index.indexed)
	}
}
