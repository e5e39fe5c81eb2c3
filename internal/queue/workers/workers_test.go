package workers_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/nikhilbhutani/docpipeline/internal/models"
	"github.com/nikhilbhutani/docpipeline/internal/queue"
	"github.com/nikhilbhutani/docpipeline/internal/search"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// loopback records messages as the JSON payloads the broker would deliver.
type loopback struct {
	mu      sync.Mutex
	uploads [][]byte
	results [][]byte
	err     error
}

func (l *loopback) PublishUpload(_ context.Context, id int64, key string) error {
	data, _ := json.Marshal(queue.NewUploadMessage(id, key))
	l.mu.Lock()
	defer l.mu.Unlock()
	l.uploads = append(l.uploads, data)
	return nil
}

func (l *loopback) PublishResult(_ context.Context, id int64, text string) error {
	if l.err != nil {
		return l.err
	}
	data, _ := json.Marshal(queue.NewResultMessage(id, text))
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = append(l.results, data)
	return nil
}

type staticExtractor struct {
	text  string
	err   error
	calls int
}

func (e *staticExtractor) Extract(context.Context, []byte) (string, error) {
	e.calls++
	return e.text, e.err
}

type memClaims struct {
	mu   sync.Mutex
	keys map[string]bool
	err  error
}

func newMemClaims() *memClaims { return &memClaims{keys: map[string]bool{}} }

func (c *memClaims) Claim(_ context.Context, key string, _ time.Duration) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keys[key] {
		return false, nil
	}
	c.keys[key] = true
	return true, nil
}

func (c *memClaims) Release(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.keys, key)
	return nil
}

// countingIndex wraps an index and counts writes.
type countingIndex struct {
	inner   search.Index
	indexed int
	fail    bool
}

func (c *countingIndex) EnsureIndexExists(ctx context.Context, name string) error {
	return c.inner.EnsureIndexExists(ctx, name)
}

func (c *countingIndex) Index(ctx context.Context, doc models.Document, index string) (search.Response, error) {
	c.indexed++
	if c.fail {
		return search.Response{DebugInfo: "503 unavailable"}, &search.Error{Op: "index", Status: 503, Debug: "unavailable"}
	}
	return c.inner.Index(ctx, doc, index)
}

func (c *countingIndex) Delete(ctx context.Context, id int64, index string) (search.Response, error) {
	return c.inner.Delete(ctx, id, index)
}

func (c *countingIndex) Search(ctx context.Context, q search.Query) ([]models.Document, error) {
	return c.inner.Search(ctx, q)
}

var errBoom = errors.New("boom")
