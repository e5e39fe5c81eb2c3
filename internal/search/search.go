// Package search keeps recognized document text in a full-text index and
// answers term and fuzzy queries over it.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nikhilbhutani/docpipeline/internal/models"
)

var (
	ErrIndexFailure = errors.New("index failure")
	ErrNotReady     = errors.New("search index not ready")
	ErrInvalidQuery = errors.New("invalid search query")
)

type Mode string

const (
	ModeTerm  Mode = "term"
	ModeFuzzy Mode = "fuzzy"
)

// ParseMode maps a query parameter to a Mode; empty means term.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case "", ModeTerm:
		return ModeTerm, nil
	case ModeFuzzy:
		return ModeFuzzy, nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidQuery, s)
	}
}

type Query struct {
	Text  string
	Mode  Mode
	Index string
}

// Response mirrors what the index reported for a write.
type Response struct {
	OK        bool   `json:"ok"`
	DebugInfo string `json:"debug_info,omitempty"`
}

// Record is the indexed projection of a document.
type Record struct {
	Name     string `json:"name"`
	FileType string `json:"fileType"`
	FileSize string `json:"fileSize"`
	OCRText  string `json:"ocrText"`
}

func RecordFrom(doc models.Document) Record {
	r := Record{Name: doc.Name, FileType: doc.FileType, FileSize: doc.FileSize}
	if doc.OCRText != nil {
		r.OCRText = *doc.OCRText
	}
	return r
}

func (r Record) Document(id int64) models.Document {
	text := r.OCRText
	return models.Document{
		ID:       id,
		Name:     r.Name,
		FileType: r.FileType,
		FileSize: r.FileSize,
		OCRText:  &text,
	}
}

// Error is an index-layer failure. It unwraps to ErrIndexFailure and keeps
// the status and body the index returned.
type Error struct {
	Op     string
	Status int
	Debug  string
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("search %s: %s", e.Op, e.Debug)
	}
	return fmt.Sprintf("search %s: status %d: %s", e.Op, e.Status, e.Debug)
}

func (e *Error) Unwrap() error {
	return ErrIndexFailure
}

type Index interface {
	EnsureIndexExists(ctx context.Context, name string) error
	Index(ctx context.Context, doc models.Document, index string) (Response, error)
	Delete(ctx context.Context, id int64, index string) (Response, error)
	Search(ctx context.Context, q Query) ([]models.Document, error)
}
