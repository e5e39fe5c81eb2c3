package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nikhilbhutani/docpipeline/internal/api"
	"github.com/nikhilbhutani/docpipeline/internal/api/handlers"
	"github.com/nikhilbhutani/docpipeline/internal/config"
	"github.com/nikhilbhutani/docpipeline/internal/database"
	"github.com/nikhilbhutani/docpipeline/internal/document"
	"github.com/nikhilbhutani/docpipeline/internal/lifecycle"
	"github.com/nikhilbhutani/docpipeline/internal/queue"
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

	if err := database.RunMigrations(ctx, db); err != nil {
		slog.Error("migrations failed", "error", err)
		os.Exit(1)
	}

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

	// Index creation runs in the background; searches wait on indexReady.
	indexReady := lifecycle.NewSignal()
	lc.OnStartup(func() {
		err := search.EnsureReady(ctx, index, cfg.Search.Index, cfg.Queue.ConnectAttempts, cfg.Queue.ConnectDelayDuration(), indexReady, logger)
		if errors.Is(err, context.Canceled) {
			return
		}
		if err != nil {
			slog.Error("search index unavailable", "index", cfg.Search.Index, "error", err)
			os.Exit(1)
		}
		slog.Info("search index ready", "index", cfg.Search.Index)
	})
	go func() {
		lc.WaitForStartup()
		slog.Info("startup complete")
	}()

	svc := document.NewService(document.NewPGStore(db), blobs, index, qc, indexReady, document.ServiceConfig{
		Bucket:        cfg.Storage.Bucket,
		Index:         cfg.Search.Index,
		MaxUploadSize: cfg.MaxUploadBytes(),
		ReadyTimeout:  cfg.Search.ReadyTimeoutDuration(),
	}, logger)

	checks := map[string]handlers.Check{
		"startup": func(context.Context) error {
			if !lc.Ready() {
				return errors.New("starting or shutting down")
			}
			return nil
		},
		"database": db.Ping,
		"queue":    qc.Ping,
		"index": func(ctx context.Context) error {
			if !indexReady.Resolved() {
				return errors.New("index check pending")
			}
			return indexReady.Wait(ctx)
		},
	}

	router := api.NewRouter(cfg, svc, checks)
	lc.OnShutdown(func() {
		router.Limiter().Cleanup(ctx, time.Minute, 3*time.Minute)
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	if err := lc.Shutdown(cfg.ShutdownTimeout()); err != nil {
		slog.Error("shutdown hooks did not finish", "error", err)
	}
	slog.Info("server stopped")
}
