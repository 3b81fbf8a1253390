package storage_test

import (
	"context"
	"path/filepath"
	"testing"

	"financeflow/internal/storage"
	"financeflow/internal/storage/storagetest"
)

func newSQLite(t *testing.T) storage.Store {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository(t *testing.T) {
	storagetest.Run(t, newSQLite)
}

func TestRunMigrationsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "twice.db")
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	repo.Close()

	if err := storage.RunMigrations(dbPath); err != nil {
		t.Fatalf("second migration run should be a no-op: %v", err)
	}

	repo, err = storage.NewSQLiteRepository(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer repo.Close()
	if err := repo.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
