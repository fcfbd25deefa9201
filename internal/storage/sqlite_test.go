//go:build sqlite

package storage

import (
	"context"
	"path/filepath"
	"testing"

	"methuselah/internal/model"
)

func TestSQLiteStoreRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "methuselah.db")

	store := NewSQLiteStore(dbPath)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	input := sampleRun("run-1", "2026-01-02T00:00:00Z")
	if err := store.SaveRun(ctx, input); err != nil {
		t.Fatalf("save run: %v", err)
	}
	output, ok, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted run")
	}
	if output.BestFitness != input.BestFitness || output.BestGrid[1][0] != 1 {
		t.Fatalf("unexpected run loaded: %+v", output)
	}

	diagnostics := []model.GenerationDiagnostics{{Generation: 0, BestGrowth: 1}, {Generation: 1, BestGrowth: 2}}
	if err := store.SaveGenerationDiagnostics(ctx, "run-1", diagnostics); err != nil {
		t.Fatalf("save diagnostics: %v", err)
	}
	loaded, ok, err := store.GetGenerationDiagnostics(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get diagnostics: ok=%t err=%v", ok, err)
	}
	if len(loaded) != 2 || loaded[1].BestGrowth != 2 {
		t.Fatalf("unexpected diagnostics: %+v", loaded)
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "methuselah.db")

	first := NewSQLiteStore(dbPath)
	if err := first.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	for _, run := range []model.RunRecord{
		sampleRun("b", "2026-01-03T00:00:00Z"),
		sampleRun("a", "2026-01-01T00:00:00Z"),
	} {
		if err := first.SaveRun(ctx, run); err != nil {
			t.Fatalf("save run: %v", err)
		}
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second := NewSQLiteStore(dbPath)
	if err := second.Init(ctx); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() {
		_ = second.Close()
	})
	runs, err := second.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "a" || runs[1].ID != "b" {
		t.Fatalf("unexpected runs after reopen: %+v", runs)
	}

	if err := second.DeleteRun(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := second.GetRun(ctx, "a"); ok {
		t.Fatal("expected run deleted")
	}
	if err := second.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	runs, err = second.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected no runs after reset, got %d", len(runs))
	}
}

func TestNewStoreSQLite(t *testing.T) {
	store, err := NewStore("sqlite", filepath.Join(t.TempDir(), "factory.db"))
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := CloseIfSupported(store); err != nil {
		t.Fatalf("close: %v", err)
	}
}
