package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func createRun(t *testing.T, store *SQLiteStore, id string, startedAt time.Time) *Run {
	t.Helper()

	run := &Run{
		ID:         id,
		Document:   "values.yaml",
		Iterations: 100,
		Workers:    2,
		StartedAt:  startedAt,
	}
	if err := store.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("failed to create run %s: %v", id, err)
	}
	return run
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "history.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); err == nil {
		t.Error("expected health check to fail before init")
	}

	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("expected error for empty path")
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, table := range []string{"runs", "strategies"} {
		var count int
		if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}

	// Running again is a no-op
	if err := store.Migrate(ctx); err != nil {
		t.Errorf("expected repeated migration to succeed, got %v", err)
	}
}

func TestMigrate_RequiresInit(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := store.Migrate(context.Background()); err == nil {
		t.Error("expected error when migrating before init")
	}
}

// TestRunCRUD tests Run CRUD operations
func TestRunCRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	run := createRun(t, store, "run-001", started)

	retrieved, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if retrieved.Status != RunStatusRunning {
		t.Errorf("expected status %s, got %s", RunStatusRunning, retrieved.Status)
	}
	if !retrieved.StartedAt.Equal(started) {
		t.Errorf("expected StartedAt %s, got %s", started, retrieved.StartedAt)
	}
	if retrieved.CompletedAt != nil {
		t.Errorf("expected no CompletedAt, got %s", retrieved.CompletedAt)
	}

	run.Duration = 1500 * time.Millisecond
	run.OpsPerSecond = 66.5
	run.ObjectsPerClone = 12
	run.StrategyCacheSize = 4
	if err := store.FinishRun(ctx, run); err != nil {
		t.Fatalf("failed to finish run: %v", err)
	}

	finished, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get finished run: %v", err)
	}

	want := &Run{
		ID:                "run-001",
		Document:          "values.yaml",
		Iterations:        100,
		Workers:           2,
		Status:            RunStatusCompleted,
		Duration:          1500 * time.Millisecond,
		OpsPerSecond:      66.5,
		ObjectsPerClone:   12,
		StrategyCacheSize: 4,
	}
	ignoreTimes := cmp.FilterPath(func(p cmp.Path) bool {
		switch p.Last().String() {
		case ".StartedAt", ".CompletedAt", ".CreatedAt":
			return true
		}
		return false
	}, cmp.Ignore())
	if diff := cmp.Diff(want, finished, ignoreTimes); diff != "" {
		t.Errorf("finished run mismatch (-want +got):\n%s", diff)
	}
	if finished.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}

	if err := store.DeleteRun(ctx, run.ID); err != nil {
		t.Fatalf("failed to delete run: %v", err)
	}

	if _, err := store.GetRun(ctx, run.ID); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestFinishRun_Failed(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	run := createRun(t, store, "run-failed", time.Now().UTC())
	msg := "copy verification failed"
	run.Error = &msg
	if err := store.FinishRun(ctx, run); err != nil {
		t.Fatalf("failed to finish run: %v", err)
	}

	got, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if got.Status != RunStatusFailed {
		t.Errorf("expected status %s, got %s", RunStatusFailed, got.Status)
	}
	if got.Error == nil || *got.Error != msg {
		t.Errorf("expected error %q, got %v", msg, got.Error)
	}
}

func TestRunNotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"get", func() error { _, err := store.GetRun(ctx, "missing"); return err }},
		{"finish", func() error { return store.FinishRun(ctx, &Run{ID: "missing"}) }},
		{"delete", func() error { return store.DeleteRun(ctx, "missing") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, ErrRunNotFound) {
				t.Errorf("expected ErrRunNotFound, got %v", err)
			}
		})
	}
}

func TestCreateRun_Validation(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.CreateRun(ctx, &Run{}); err == nil {
		t.Error("expected error for run without ID")
	}

	createRun(t, store, "dup", time.Now().UTC())
	if err := store.CreateRun(ctx, &Run{ID: "dup"}); err == nil {
		t.Error("expected error for duplicate run ID")
	}
}

func TestListRuns(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-a", "run-b", "run-c"} {
		createRun(t, store, id, base.Add(time.Duration(i)*time.Minute))
	}

	tests := []struct {
		name   string
		limit  int
		offset int
		want   []string
	}{
		{"all, newest first", 10, 0, []string{"run-c", "run-b", "run-a"}},
		{"limited", 2, 0, []string{"run-c", "run-b"}},
		{"offset", 2, 2, []string{"run-a"}},
		{"past the end", 10, 5, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := store.ListRuns(ctx, tt.limit, tt.offset)
			if err != nil {
				t.Fatalf("failed to list runs: %v", err)
			}
			got := []string{}
			for _, r := range runs {
				got = append(got, r.ID)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("runs mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStrategies(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	run := createRun(t, store, "run-strategies", time.Now().UTC())

	records := []StrategyRecord{
		{TypeName: "yaml.Node", Category: "value", Deep: true, Walked: []string{"Alias", "Content"}},
		{TypeName: "*yaml.Node", Category: "reference", Deep: true},
		{TypeName: "config.Config", Category: "value", Deep: true, Walked: []string{"Ignore"}, Cleared: []string{"mu"}},
	}
	if err := store.SaveStrategies(ctx, run.ID, records); err != nil {
		t.Fatalf("failed to save strategies: %v", err)
	}

	got, err := store.ListStrategies(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to list strategies: %v", err)
	}

	want := []StrategyRecord{
		{RunID: run.ID, TypeName: "*yaml.Node", Category: "reference", Deep: true},
		{RunID: run.ID, TypeName: "config.Config", Category: "value", Deep: true, Walked: []string{"Ignore"}, Cleared: []string{"mu"}},
		{RunID: run.ID, TypeName: "yaml.Node", Category: "value", Deep: true, Walked: []string{"Alias", "Content"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("strategies mismatch (-want +got):\n%s", diff)
	}

	// Saving again replaces the set
	if err := store.SaveStrategies(ctx, run.ID, records[:1]); err != nil {
		t.Fatalf("failed to replace strategies: %v", err)
	}
	got, err = store.ListStrategies(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to list strategies: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected 1 strategy after replace, got %d", len(got))
	}

	// Deleting the run removes its strategies
	if err := store.DeleteRun(ctx, run.ID); err != nil {
		t.Fatalf("failed to delete run: %v", err)
	}
	got, err = store.ListStrategies(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to list strategies: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected strategies to be deleted with the run, got %d", len(got))
	}
}

func TestSaveStrategies_UnknownRun(t *testing.T) {
	store := setupTestStore(t)

	err := store.SaveStrategies(context.Background(), "missing", []StrategyRecord{{TypeName: "int", Category: "safe"}})
	if err == nil {
		t.Error("expected foreign key error for unknown run")
	}
}

func TestStoreInterface(t *testing.T) {
	var _ Store = (*SQLiteStore)(nil)
}
