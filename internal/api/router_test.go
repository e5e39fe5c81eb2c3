package api_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nikhilbhutani/docpipeline/internal/api"
	"github.com/nikhilbhutani/docpipeline/internal/api/handlers"
	"github.com/nikhilbhutani/docpipeline/internal/config"
	"github.com/nikhilbhutani/docpipeline/internal/document"
	"github.com/nikhilbhutani/docpipeline/internal/lifecycle"
	"github.com/nikhilbhutani/docpipeline/internal/search"
	"github.com/nikhilbhutani/docpipeline/internal/storage"
)

type nopPublisher struct{}

func (nopPublisher) PublishUpload(context.Context, int64, string) error { return nil }

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := &config.Config{Server: config.ServerConfig{
		MaxUploadSize:  "1MB",
		AllowedOrigins: []string{"*"},
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	}}

	ready := lifecycle.NewSignal()
	ready.Resolve(nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := document.NewService(document.NewMemoryStore(), storage.NewMemory(), search.NewMemory(4), nopPublisher{}, ready,
		document.ServiceConfig{Bucket: "files", Index: "documents", MaxUploadSize: cfg.MaxUploadBytes(), ReadyTimeout: time.Second}, logger)

	checks := map[string]handlers.Check{
		"index": func(ctx context.Context) error { return ready.Wait(ctx) },
	}
	return api.NewRouter(cfg, svc, checks).Setup()
}

func TestRoutes(t *testing.T) {
	h := newTestRouter(t)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/readyz", http.StatusOK},
		{http.MethodGet, "/api/v1/documents", http.StatusOK},
		{http.MethodGet, "/api/v1/documents/search?q=anything", http.StatusOK},
		{http.MethodGet, "/api/v1/documents/42", http.StatusNotFound},
		{http.MethodDelete, "/api/v1/documents/42", http.StatusOK},
		{http.MethodGet, "/api/v1/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.want)
		}
	}
}

func TestPreflight(t *testing.T) {
	h := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/documents", nil)
	req.Header.Set("Origin", "http://ui.local")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
}
