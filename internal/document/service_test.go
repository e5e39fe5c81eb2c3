package document_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/nikhilbhutani/docpipeline/internal/document"
	"github.com/nikhilbhutani/docpipeline/internal/document/pdftest"
	"github.com/nikhilbhutani/docpipeline/internal/lifecycle"
	"github.com/nikhilbhutani/docpipeline/internal/search"
	"github.com/nikhilbhutani/docpipeline/internal/storage"
)

type published struct {
	id  int64
	key string
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (p *fakePublisher) PublishUpload(_ context.Context, id int64, key string) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{id, key})
	return nil
}

type serviceFixture struct {
	svc   *document.Service
	store *document.MemoryStore
	blobs *storage.Memory
	index *search.Memory
	pub   *fakePublisher
	ready *lifecycle.Signal
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		store: document.NewMemoryStore(),
		blobs: storage.NewMemory(),
		index: search.NewMemory(4),
		pub:   &fakePublisher{},
		ready: lifecycle.NewSignal(),
	}
	f.svc = document.NewService(f.store, f.blobs, f.index, f.pub, f.ready, document.ServiceConfig{
		Bucket:        "files",
		Index:         "documents",
		MaxUploadSize: 1 << 20,
		ReadyTimeout:  50 * time.Millisecond,
	}, discardLogger())
	return f
}

func TestUpload(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	data := pdftest.New("Test test")

	doc, err := f.svc.Upload(ctx, document.UploadRequest{FileName: "sample.pdf", Data: data})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	if doc.ID <= 0 || doc.Name != "sample" || doc.FileType != "application/pdf" {
		t.Errorf("Upload() = %+v", doc)
	}
	if doc.HasText() {
		t.Error("uploaded document should not have text yet")
	}
	if !strings.HasSuffix(doc.BlobKey, "_sample.pdf") {
		t.Errorf("BlobKey = %q, want suffix _sample.pdf", doc.BlobKey)
	}
	if !strings.HasSuffix(doc.FileSize, "B") {
		t.Errorf("FileSize = %q, want unit suffix", doc.FileSize)
	}

	rc, err := f.blobs.Get(ctx, "files", doc.BlobKey)
	if err != nil {
		t.Fatalf("blob not stored: %v", err)
	}
	stored, _ := io.ReadAll(rc)
	if len(stored) != len(data) {
		t.Errorf("stored %d bytes, want %d", len(stored), len(data))
	}

	if len(f.pub.msgs) != 1 || f.pub.msgs[0].id != doc.ID || f.pub.msgs[0].key != doc.BlobKey {
		t.Errorf("published = %+v", f.pub.msgs)
	}
}

func TestUploadRejects(t *testing.T) {
	tests := []struct {
		name string
		req  document.UploadRequest
		want error
	}{
		{"not a pdf", document.UploadRequest{FileName: "a.txt", Data: []byte("plain text")}, document.ErrInvalidFile},
		{"empty", document.UploadRequest{FileName: "a.pdf"}, document.ErrInvalidFile},
		{"truncated pdf", document.UploadRequest{FileName: "a.pdf", Data: []byte("%PDF-1.4\n1 0 obj")}, document.ErrInvalidFile},
		{"too large", document.UploadRequest{FileName: "a.pdf", Data: make([]byte, 2<<20)}, document.ErrFileTooLarge},
		{"long name", document.UploadRequest{Name: strings.Repeat("n", 101), FileName: "a.pdf", Data: pdftest.New("x")}, document.ErrInvalidDocument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture(t)
			_, err := f.svc.Upload(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Upload() error = %v, want %v", err, tt.want)
			}
			if all, _ := f.store.GetAll(context.Background()); len(all) != 0 {
				t.Errorf("rejected upload created %d records", len(all))
			}
		})
	}
}

func TestUploadPublishFailureKeepsRecord(t *testing.T) {
	f := newServiceFixture(t)
	publishErr := errors.New("queue down")
	f.pub.err = publishErr

	doc, err := f.svc.Upload(context.Background(), document.UploadRequest{FileName: "scan.pdf", Data: pdftest.New("hi")})
	if !errors.Is(err, publishErr) {
		t.Fatalf("Upload() error = %v, want publish error", err)
	}
	if ok, _ := f.store.Contains(context.Background(), doc.ID); !ok {
		t.Error("record should remain after publish failure")
	}
}

func TestUpdateReindexesText(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.ready.Resolve(nil)

	doc, err := f.svc.Upload(ctx, document.UploadRequest{FileName: "notes.pdf", Data: pdftest.New("x")})
	if err != nil {
		t.Fatal(err)
	}

	name := "Meeting notes"
	text := "quarterly VOCABULARY review"
	updated, err := f.svc.Update(ctx, doc.ID, document.UpdateRequest{Name: &name, OCRText: &text})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Name != name || updated.OCRText == nil || *updated.OCRText != text {
		t.Errorf("Update() = %+v", updated)
	}

	hits, err := f.svc.Search(ctx, "VOCABLUARY", search.ModeFuzzy)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 1 || hits[0].ID != doc.ID || hits[0].Name != name {
		t.Errorf("Search() = %+v", hits)
	}

	if _, err := f.svc.Update(ctx, 999, document.UpdateRequest{Name: &name}); !errors.Is(err, document.ErrNotFound) {
		t.Errorf("Update() of missing id error = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.ready.Resolve(nil)

	doc, _ := f.svc.Upload(ctx, document.UploadRequest{FileName: "gone.pdf", Data: pdftest.New("x")})
	text := "Test test"
	if _, err := f.svc.Update(ctx, doc.ID, document.UpdateRequest{OCRText: &text}); err != nil {
		t.Fatal(err)
	}

	if err := f.svc.Delete(ctx, doc.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := f.svc.Get(ctx, doc.ID); !errors.Is(err, document.ErrNotFound) {
		t.Errorf("Get() after Delete error = %v", err)
	}
	if _, err := f.blobs.Get(ctx, "files", doc.BlobKey); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("blob still present: %v", err)
	}
	if hits, _ := f.svc.Search(ctx, "Test", search.ModeTerm); len(hits) != 0 {
		t.Errorf("index entry still present: %+v", hits)
	}

	if err := f.svc.Delete(ctx, 12345); err != nil {
		t.Errorf("Delete() of missing id error = %v, want nil", err)
	}
}

func TestSearchWaitsForReadiness(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Search(context.Background(), "test", search.ModeTerm)
	if !errors.Is(err, search.ErrNotReady) {
		t.Fatalf("Search() before readiness error = %v, want ErrNotReady", err)
	}

	f.ready.Resolve(errors.New("cluster unreachable"))
	_, err = f.svc.Search(context.Background(), "test", search.ModeTerm)
	if !errors.Is(err, search.ErrNotReady) {
		t.Errorf("Search() after failed check error = %v, want ErrNotReady", err)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	f := newServiceFixture(t)
	f.ready.Resolve(nil)

	if _, err := f.svc.Search(context.Background(), "  ", search.ModeTerm); !errors.Is(err, search.ErrInvalidQuery) {
		t.Errorf("Search() error = %v, want ErrInvalidQuery", err)
	}
}
