package workers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nikhilbhutani/docpipeline/internal/document"
	"github.com/nikhilbhutani/docpipeline/internal/models"
	"github.com/nikhilbhutani/docpipeline/internal/queue"
	"github.com/nikhilbhutani/docpipeline/internal/search"
)

// IngestWorker merges OCR results into the document store and the search
// index.
type IngestWorker struct {
	store     document.Store
	index     search.Index
	indexName string
	logger    *slog.Logger
}

func NewIngestWorker(store document.Store, index search.Index, indexName string, logger *slog.Logger) *IngestWorker {
	return &IngestWorker{
		store:     store,
		index:     index,
		indexName: indexName,
		logger:    logger.With("worker", "ingest"),
	}
}

// Handle stores the text only when the document has none yet, then indexes
// it. An index failure is logged; the stored text is kept.
func (w *IngestWorker) Handle(ctx context.Context, payload []byte) error {
	msg, err := queue.DecodeResult(payload)
	if err != nil {
		return err
	}

	log := w.logger.With("document_id", msg.DocumentID, "message_id", msg.MessageID)

	doc, changed, err := w.store.Mutate(ctx, msg.DocumentID, func(d *models.Document) (bool, error) {
		if d.HasText() {
			return false, nil
		}
		text := msg.Text
		d.OCRText = &text
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("ingest result: %w", err)
	}

	if !changed {
		log.Info("document already has text, result ignored")
		return nil
	}

	res, err := w.index.Index(ctx, doc, w.indexName)
	if err != nil {
		log.Warn("failed to index document, text stored only", "error", err, "debug", res.DebugInfo)
		return nil
	}

	// A delete that committed while indexing must not leave a stale record.
	if exists, err := w.store.Contains(ctx, doc.ID); err == nil && !exists {
		if _, err := w.index.Delete(ctx, doc.ID, w.indexName); err != nil {
			log.Warn("failed to remove index entry of deleted document", "error", err)
		}
		log.Info("document deleted during ingestion, index entry removed")
		return nil
	}

	log.Info("ocr text ingested", "chars", len(msg.Text))
	return nil
}
