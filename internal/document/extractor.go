package document

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Extractor rasterizes a file and recognizes each page, joining page texts in
// page order with no separator.
type Extractor struct {
	rasterizer Rasterizer
	recognizer Recognizer
	workers    int
	logger     *slog.Logger
}

func NewExtractor(rasterizer Rasterizer, recognizer Recognizer, workers int, logger *slog.Logger) *Extractor {
	if workers < 1 {
		workers = 1
	}
	return &Extractor{
		rasterizer: rasterizer,
		recognizer: recognizer,
		workers:    workers,
		logger:     logger.With("component", "extractor"),
	}
}

type pageResult struct {
	text string
	err  error
}

// Extract returns the text of every page up to the first page that fails.
// When a page fails, the text gathered before it is returned together with
// the error, so callers can still publish partial output.
func (e *Extractor) Extract(ctx context.Context, data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extract panic: %v", r)
		}
	}()

	pages, err := e.rasterizer.Open(data)
	if err != nil {
		return "", fmt.Errorf("open pages: %w", err)
	}
	defer pages.Close()

	count := pages.Count()
	results := make([]pageResult, count)

	// Pages after a known failure are skipped; their text would be dropped.
	var mu sync.Mutex
	firstFailure := count

	g := new(errgroup.Group)
	g.SetLimit(e.workers)

	for i := range count {
		g.Go(func() error {
			mu.Lock()
			skip := i > firstFailure
			mu.Unlock()
			if skip {
				return nil
			}

			text, err := e.page(ctx, pages, i+1)
			results[i] = pageResult{text: text, err: err}

			if err != nil {
				mu.Lock()
				if i < firstFailure {
					firstFailure = i
				}
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	var sb strings.Builder
	for i, r := range results {
		if r.err != nil {
			return sb.String(), fmt.Errorf("page %d of %d: %w", i+1, count, r.err)
		}
		sb.WriteString(r.text)
	}

	e.logger.Debug("text extracted", "pages", count, "chars", sb.Len())
	return sb.String(), nil
}

func (e *Extractor) page(ctx context.Context, pages Pages, n int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	img, err := pages.Render(n)
	if err != nil {
		return "", err
	}
	return e.recognizer.Recognize(ctx, img)
}
