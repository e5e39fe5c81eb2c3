package document_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikhilbhutani/docpipeline/internal/database"
	"github.com/nikhilbhutani/docpipeline/internal/document"
)

func newPGStore(t *testing.T) *document.PGStore {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := database.RunMigrations(ctx, pool); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	return document.NewPGStore(pool)
}

func TestPGStoreRoundTrip(t *testing.T) {
	testStoreRoundTrip(t, newPGStore(t))
}

func TestPGStoreMutateSerializes(t *testing.T) {
	testStoreMutateSerializes(t, newPGStore(t))
}
