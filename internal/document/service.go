package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/nikhilbhutani/docpipeline/internal/lifecycle"
	"github.com/nikhilbhutani/docpipeline/internal/models"
	"github.com/nikhilbhutani/docpipeline/internal/search"
	"github.com/nikhilbhutani/docpipeline/internal/storage"
)

const maxNameLength = 100

// UploadPublisher announces stored uploads to the OCR stage.
type UploadPublisher interface {
	PublishUpload(ctx context.Context, documentID int64, blobKey string) error
}

type ServiceConfig struct {
	Bucket        string
	Index         string
	MaxUploadSize int64
	ReadyTimeout  time.Duration
}

// Service is the pipeline entry point used by the REST handlers. Each step
// of an upload is committed independently; a later failure does not undo an
// earlier step.
type Service struct {
	store     Store
	blobs     storage.Storage
	index     search.Index
	publisher UploadPublisher
	ready     *lifecycle.Signal
	cfg       ServiceConfig
	logger    *slog.Logger
}

func NewService(store Store, blobs storage.Storage, index search.Index, publisher UploadPublisher, ready *lifecycle.Signal, cfg ServiceConfig, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		blobs:     blobs,
		index:     index,
		publisher: publisher,
		ready:     ready,
		cfg:       cfg,
		logger:    logger.With("component", "documents"),
	}
}

type UploadRequest struct {
	Name     string
	FileName string
	Data     []byte
}

type UpdateRequest struct {
	Name    *string `json:"name,omitempty"`
	OCRText *string `json:"ocr_text,omitempty"`
}

func (s *Service) Upload(ctx context.Context, req UploadRequest) (models.Document, error) {
	if s.cfg.MaxUploadSize > 0 && int64(len(req.Data)) > s.cfg.MaxUploadSize {
		return models.Document{}, fmt.Errorf("%w: %s exceeds %s",
			ErrFileTooLarge, units.HumanSize(float64(len(req.Data))), units.HumanSize(float64(s.cfg.MaxUploadSize)))
	}

	contentType, err := validatePDF(req.Data)
	if err != nil {
		return models.Document{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(req.FileName), filepath.Ext(req.FileName))
	}
	if err := validateName(name); err != nil {
		return models.Document{}, err
	}

	doc, err := s.store.Add(ctx, models.Document{
		Name:     name,
		FileType: contentType,
		FileSize: units.HumanSize(float64(len(req.Data))),
		BlobKey:  BlobKey(req.FileName),
	})
	if err != nil {
		return models.Document{}, fmt.Errorf("add document: %w", err)
	}

	if err := s.blobs.EnsureBucketExists(ctx, s.cfg.Bucket); err != nil {
		return doc, fmt.Errorf("ensure bucket: %w", err)
	}
	if err := s.blobs.Put(ctx, s.cfg.Bucket, doc.BlobKey, bytes.NewReader(req.Data), int64(len(req.Data))); err != nil {
		return doc, fmt.Errorf("store blob: %w", err)
	}

	if err := s.publisher.PublishUpload(ctx, doc.ID, doc.BlobKey); err != nil {
		return doc, fmt.Errorf("notify ocr: %w", err)
	}

	s.logger.Info("document uploaded", "document_id", doc.ID, "blob_key", doc.BlobKey, "size", doc.FileSize)
	return doc, nil
}

func (s *Service) Get(ctx context.Context, id int64) (models.Document, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]models.Document, error) {
	return s.store.GetAll(ctx)
}

// Update edits the stored record. When the result carries text, the index is
// refreshed as well; an index failure is logged and does not fail the update.
// Text set here before OCR finishes is kept, and the later OCR result for the
// document is ignored by ingestion.
func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest) (models.Document, error) {
	if req.Name != nil {
		if err := validateName(strings.TrimSpace(*req.Name)); err != nil {
			return models.Document{}, err
		}
	}

	doc, changed, err := s.store.Mutate(ctx, id, func(d *models.Document) (bool, error) {
		changed := false
		if req.Name != nil {
			if name := strings.TrimSpace(*req.Name); name != d.Name {
				d.Name = name
				changed = true
			}
		}
		if req.OCRText != nil && (d.OCRText == nil || *d.OCRText != *req.OCRText) {
			text := *req.OCRText
			d.OCRText = &text
			changed = true
		}
		return changed, nil
	})
	if err != nil {
		return models.Document{}, err
	}

	if changed && doc.HasText() {
		s.reindex(ctx, doc)
	}
	return doc, nil
}

// Delete removes the record, its blob and its index entry. Deleting an
// unknown id succeeds.
func (s *Service) Delete(ctx context.Context, id int64) error {
	doc, err := s.store.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	if doc.BlobKey != "" {
		if err := s.blobs.Remove(ctx, s.cfg.Bucket, doc.BlobKey); err != nil {
			s.logger.Warn("failed to remove blob", "document_id", id, "blob_key", doc.BlobKey, "error", err)
		}
	}
	if _, err := s.index.Delete(ctx, id, s.cfg.Index); err != nil {
		s.logger.Warn("failed to remove index entry", "document_id", id, "error", err)
	}

	s.logger.Info("document deleted", "document_id", id)
	return nil
}

// Search waits for the index readiness check before querying.
func (s *Service) Search(ctx context.Context, text string, mode search.Mode) ([]models.Document, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: query text is required", search.ErrInvalidQuery)
	}

	if s.ready != nil {
		waitCtx := ctx
		if s.cfg.ReadyTimeout > 0 {
			var cancel context.CancelFunc
			waitCtx, cancel = context.WithTimeout(ctx, s.cfg.ReadyTimeout)
			defer cancel()
		}
		if err := s.ready.Wait(waitCtx); err != nil {
			return nil, fmt.Errorf("%w: %v", search.ErrNotReady, err)
		}
	}

	return s.index.Search(ctx, search.Query{Text: text, Mode: mode, Index: s.cfg.Index})
}

func (s *Service) reindex(ctx context.Context, doc models.Document) {
	res, err := s.index.Index(ctx, doc, s.cfg.Index)
	if err != nil {
		s.logger.Warn("failed to index document", "document_id", doc.ID, "error", err, "debug", res.DebugInfo)
	}
}

// BlobKey derives a unique object key that keeps the uploaded file name
// readable.
func BlobKey(fileName string) string {
	return uuid.NewString() + "_" + sanitizeFilename(fileName)
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	replacer := strings.NewReplacer(
		" ", "_",
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	return replacer.Replace(name)
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidDocument)
	}
	if len([]rune(name)) > maxNameLength {
		return fmt.Errorf("%w: name must not exceed %d characters", ErrInvalidDocument, maxNameLength)
	}
	return nil
}

// validatePDF checks that data is a readable PDF with at least one page and
// returns its content type.
func validatePDF(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: file is empty", ErrInvalidFile)
	}

	contentType := http.DetectContentType(data)
	if contentType != pdfContentType {
		return "", fmt.Errorf("%w: unsupported content type %s", ErrInvalidFile, contentType)
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	if err := api.Validate(bytes.NewReader(data), conf); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}

	count, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	if count < 1 {
		return "", fmt.Errorf("%w: document has no pages", ErrInvalidFile)
	}

	return contentType, nil
}
