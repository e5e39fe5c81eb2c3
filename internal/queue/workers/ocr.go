package workers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nikhilbhutani/docpipeline/internal/queue"
	"github.com/nikhilbhutani/docpipeline/internal/storage"
)

type TextExtractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

type ResultPublisher interface {
	PublishResult(ctx context.Context, documentID int64, text string) error
}

// Claimer suppresses duplicate deliveries of the same message.
type Claimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// OCRWorker consumes upload messages, recognizes the stored file and
// publishes the text for ingestion.
type OCRWorker struct {
	blobs     storage.Storage
	bucket    string
	extractor TextExtractor
	publisher ResultPublisher
	claims    Claimer
	claimTTL  time.Duration
	logger    *slog.Logger
}

func NewOCRWorker(blobs storage.Storage, bucket string, extractor TextExtractor, publisher ResultPublisher, claims Claimer, claimTTL time.Duration, logger *slog.Logger) *OCRWorker {
	return &OCRWorker{
		blobs:     blobs,
		bucket:    bucket,
		extractor: extractor,
		publisher: publisher,
		claims:    claims,
		claimTTL:  claimTTL,
		logger:    logger.With("worker", "ocr"),
	}
}

// Handle processes one upload message. Extraction failures degrade to the
// text recognized so far, which is still published.
func (w *OCRWorker) Handle(ctx context.Context, payload []byte) error {
	msg, err := queue.DecodeUpload(payload)
	if err != nil {
		return err
	}

	log := w.logger.With("document_id", msg.DocumentID, "message_id", msg.MessageID)
	log.Info("processing document", "blob_key", msg.BlobKey)

	if w.claims != nil {
		ok, err := w.claims.Claim(ctx, msg.MessageID, w.claimTTL)
		if err != nil {
			log.Warn("claim check failed, processing anyway", "error", err)
		} else if !ok {
			log.Info("duplicate delivery ignored")
			return nil
		}
	}

	text, err := w.process(ctx, log, msg)
	if err != nil {
		w.release(ctx, log, msg.MessageID)
		return err
	}

	if err := w.publisher.PublishResult(ctx, msg.DocumentID, text); err != nil {
		w.release(ctx, log, msg.MessageID)
		return fmt.Errorf("publish result for document %d: %w", msg.DocumentID, err)
	}

	log.Info("ocr result published", "chars", len(text))
	return nil
}

func (w *OCRWorker) process(ctx context.Context, log *slog.Logger, msg queue.UploadMessage) (string, error) {
	rc, err := w.blobs.Get(ctx, w.bucket, msg.BlobKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", fmt.Errorf("blob for document %d missing: %w", msg.DocumentID, err)
		}
		return "", fmt.Errorf("fetch blob: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read blob: %w", err)
	}

	text, err := w.extractor.Extract(ctx, data)
	if err != nil {
		log.Error("ocr failed, publishing partial text", "error", err, "chars", len(text))
	}
	return text, nil
}

func (w *OCRWorker) release(ctx context.Context, log *slog.Logger, key string) {
	if w.claims == nil {
		return
	}
	if err := w.claims.Release(ctx, key); err != nil {
		log.Warn("failed to release claim", "error", err)
	}
}
