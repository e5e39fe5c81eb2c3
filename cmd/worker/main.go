package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nikhilbhutani/docpipeline/internal/cache"
	"github.com/nikhilbhutani/docpipeline/internal/config"
	"github.com/nikhilbhutani/docpipeline/internal/database"
	"github.com/nikhilbhutani/docpipeline/internal/document"
	"github.com/nikhilbhutani/docpipeline/internal/lifecycle"
	"github.com/nikhilbhutani/docpipeline/internal/queue"
	"github.com/nikhilbhutani/docpipeline/internal/queue/workers"
	"github.com/nikhilbhutani/docpipeline/internal/search"
	"github.com/nikhilbhutani/docpipeline/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Logging.SlogLevel()}))
	slog.SetDefault(logger)

	if err := cfg.RequireDatabase(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	lc := lifecycle.New()
	ctx := lc.Context()

	db, err := database.Connect(ctx, cfg.Database, cfg.Queue.ConnectAttempts, cfg.Queue.ConnectDelayDuration(), logger)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	qc, err := queue.Connect(ctx, cfg.Redis, cfg.Queue, logger)
	if err != nil {
		slog.Error("queue unavailable", "error", err)
		os.Exit(1)
	}
	defer qc.Close()

	blobs, err := storage.NewS3Storage(ctx, cfg.Storage)
	if err != nil {
		slog.Error("failed to create blob storage", "error", err)
		os.Exit(1)
	}

	index, err := search.NewElastic(cfg.Search, logger)
	if err != nil {
		slog.Error("failed to create search index client", "error", err)
		os.Exit(1)
	}
	if err := search.EnsureReady(ctx, index, cfg.Search.Index, cfg.Queue.ConnectAttempts, cfg.Queue.ConnectDelayDuration(), lifecycle.NewSignal(), logger); err != nil {
		slog.Warn("search index check failed, ingestion will only log index errors", "error", err)
	}

	extractor := document.NewExtractor(
		document.NewImageMagickRasterizer(cfg.OCR.DPI, cfg.OCR.Contrast, cfg.OCR.Sharpen),
		document.NewTesseractEngine(cfg.OCR.Language, cfg.OCR.DPI),
		cfg.OCR.PageWorkers,
		logger,
	)

	claims := cache.NewCache(qc.Redis(), "ocr:claim:")
	ocrWorker := workers.NewOCRWorker(blobs, cfg.Storage.Bucket, extractor, qc, claims, cfg.Queue.ClaimTTLDuration(), logger)
	ingestWorker := workers.NewIngestWorker(document.NewPGStore(db), index, cfg.Search.Index, logger)

	consumer := queue.NewConsumer(cfg.Redis, cfg.Queue, logger)
	consumer.Consume(queue.TypeDocumentUploaded, ocrWorker.Handle)
	consumer.Consume(queue.TypeOCRCompleted, ingestWorker.Handle)

	slog.Info("starting worker", "concurrency", cfg.Queue.Concurrency, "dead_letter", cfg.Queue.DeadLetter)
	if err := consumer.Start(); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	consumer.Shutdown()
	if err := lc.Shutdown(cfg.ShutdownTimeout()); err != nil {
		slog.Error("shutdown hooks did not finish", "error", err)
	}
	slog.Info("worker stopped")
}
