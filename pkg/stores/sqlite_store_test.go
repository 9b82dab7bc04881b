package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/htrlab/laia/pkg/engine"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: MemoryPath,
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

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("expected error for empty path")
	}

	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "laia.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); err == nil {
		t.Error("expected health check to fail before Init")
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	// Migrations are idempotent.
	for i := 0; i < 2; i++ {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("migration %d failed: %v", i, err)
		}
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestMemoryStoreUsesSingleConnection(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: MemoryPath, MaxOpenConns: 10})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if store.cfg.MaxOpenConns != 1 {
		t.Errorf("expected 1 open connection for :memory:, got %d", store.cfg.MaxOpenConns)
	}
}

// TestRunCRUD tests Run CRUD operations
func TestRunCRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	// Create
	run := &Run{
		ID:       "run-001",
		Name:     "train",
		Role:     "engine",
		Status:   RunStatusRunning,
		Metadata: `{"syms":"syms.txt"}`,
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}
	if run.StartedAt.IsZero() || run.CreatedAt.IsZero() {
		t.Error("expected timestamps to be filled in")
	}

	// Read
	retrieved, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if retrieved.Name != "train" || retrieved.Role != "engine" {
		t.Errorf("unexpected run: %+v", retrieved)
	}
	if retrieved.Status != RunStatusRunning {
		t.Errorf("expected Status %s, got %s", RunStatusRunning, retrieved.Status)
	}
	if retrieved.Metadata != run.Metadata {
		t.Errorf("expected Metadata %s, got %s", run.Metadata, retrieved.Metadata)
	}
	if retrieved.CompletedAt != nil {
		t.Error("running run must not have CompletedAt")
	}

	// Update
	errMsg := "model diverged"
	if err := store.UpdateRunStatus(ctx, run.ID, RunStatusFailed, &errMsg); err != nil {
		t.Fatalf("failed to update run status: %v", err)
	}

	updated, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get updated run: %v", err)
	}
	if updated.Status != RunStatusFailed {
		t.Errorf("expected Status %s, got %s", RunStatusFailed, updated.Status)
	}
	if updated.Error == nil || *updated.Error != errMsg {
		t.Errorf("expected Error %s, got %v", errMsg, updated.Error)
	}
	if updated.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}

	// Delete
	if err := store.DeleteRun(ctx, run.ID); err != nil {
		t.Fatalf("failed to delete run: %v", err)
	}
	if _, err := store.GetRun(ctx, run.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMissingRows(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.UpdateRunStatus(ctx, "nope", RunStatusCompleted, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound updating missing run, got %v", err)
	}
	if err := store.DeleteRun(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting missing run, got %v", err)
	}
	if err := store.RecordEpochProgress(ctx, 42, 1, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing epoch, got %v", err)
	}
	if err := store.RecordEpochEnd(ctx, 42, EpochStatusCompleted, 1, 1, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing epoch, got %v", err)
	}
}

func TestListRunsPagination(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		run := &Run{ID: id, Name: id, Role: "engine", Status: RunStatusCompleted, StartedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := store.CreateRun(ctx, run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}
	}

	runs, err := store.ListRuns(ctx, 2, 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
		t.Errorf("expected [c b], got %v", runIDs(runs))
	}

	runs, err = store.ListRuns(ctx, 2, 2)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "a" {
		t.Errorf("expected [a], got %v", runIDs(runs))
	}
}

func runIDs(runs []*Run) []string {
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	return ids
}

func TestEpochOperations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.CreateRun(ctx, &Run{ID: "run-1", Name: "valid", Role: "evaluator", Status: RunStatusRunning}); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	epoch := &Epoch{RunID: "run-1", Engine: "valid", Number: 1, FirstIteration: 1}
	if err := store.RecordEpochStart(ctx, epoch); err != nil {
		t.Fatalf("failed to record epoch start: %v", err)
	}
	if epoch.ID == 0 || epoch.Status != EpochStatusRunning {
		t.Fatalf("unexpected epoch after insert: %+v", epoch)
	}

	// Epoch numbers are unique per run and engine.
	dup := &Epoch{RunID: "run-1", Engine: "valid", Number: 1}
	if err := store.RecordEpochStart(ctx, dup); err == nil {
		t.Error("expected duplicate epoch to be rejected")
	}

	if err := store.RecordEpochProgress(ctx, epoch.ID, 5, 5); err != nil {
		t.Fatalf("failed to record progress: %v", err)
	}
	if err := store.RecordEpochEnd(ctx, epoch.ID, EpochStatusCompleted, 8, 8, nil); err != nil {
		t.Fatalf("failed to record epoch end: %v", err)
	}

	epochs, err := store.ListEpochs(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to list epochs: %v", err)
	}
	if len(epochs) != 1 {
		t.Fatalf("expected 1 epoch, got %d", len(epochs))
	}
	got := epochs[0]
	if got.Status != EpochStatusCompleted || got.Batches != 8 || got.FirstIteration != 1 || got.LastIteration != 8 {
		t.Errorf("unexpected epoch: %+v", got)
	}
	if got.CompletedAt == nil || got.Error != nil {
		t.Errorf("expected completed epoch without error: %+v", got)
	}
}

// TestCascadeDelete tests foreign key cascading
func TestCascadeDelete(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.CreateRun(ctx, &Run{ID: "run-cascade", Name: "train", Role: "engine", Status: RunStatusRunning}); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}
	for n := 1; n <= 2; n++ {
		if err := store.RecordEpochStart(ctx, &Epoch{RunID: "run-cascade", Engine: "train", Number: n}); err != nil {
			t.Fatalf("failed to record epoch: %v", err)
		}
	}

	if err := store.DeleteRun(ctx, "run-cascade"); err != nil {
		t.Fatalf("failed to delete run: %v", err)
	}

	epochs, err := store.ListEpochs(ctx, "run-cascade")
	if err != nil {
		t.Fatalf("failed to list epochs: %v", err)
	}
	if len(epochs) != 0 {
		t.Errorf("expected 0 epochs after cascade delete, got %d", len(epochs))
	}

	// Foreign keys are enforced.
	if err := store.RecordEpochStart(ctx, &Epoch{RunID: "missing", Engine: "train", Number: 1}); err == nil {
		t.Error("expected epoch without run to be rejected")
	}
}

func identityEngine(t *testing.T, batches ...interface{}) *engine.Engine {
	t.Helper()
	model := engine.ModelFunc(func(in interface{}) (interface{}, error) { return in, nil })
	e, err := engine.New(model, engine.SliceSource(batches), engine.WithName("train"))
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return e
}

func TestRecorder(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	e := identityEngine(t, 1, 2, 3)
	rec, err := NewRecorder(ctx, store, e,
		WithRunID("rec-1"),
		WithProgressInterval(2),
		WithMetadata(map[string]interface{}{"levels": []int{1, 2}}),
	)
	if err != nil {
		t.Fatalf("failed to create recorder: %v", err)
	}
	if rec.RunID() != "rec-1" {
		t.Errorf("expected run id rec-1, got %s", rec.RunID())
	}

	for i := 0; i < 2; i++ {
		if _, err := e.Run(); err != nil {
			t.Fatalf("run failed: %v", err)
		}
	}
	if err := rec.Finish(RunStatusCompleted, nil); err != nil {
		t.Fatalf("failed to finish run: %v", err)
	}

	run, err := store.GetRun(ctx, "rec-1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if run.Status != RunStatusCompleted || run.Name != "train" || run.Role != engine.RoleTrainer {
		t.Errorf("unexpected run: %+v", run)
	}
	if run.Metadata != `{"levels":[1,2]}` {
		t.Errorf("unexpected metadata: %s", run.Metadata)
	}

	epochs, err := store.ListEpochs(ctx, "rec-1")
	if err != nil {
		t.Fatalf("failed to list epochs: %v", err)
	}
	if len(epochs) != 2 {
		t.Fatalf("expected 2 epochs, got %d", len(epochs))
	}
	want := []struct{ number, first, last int }{{1, 1, 3}, {2, 4, 6}}
	for i, w := range want {
		got := epochs[i]
		if got.Number != w.number || got.FirstIteration != w.first || got.LastIteration != w.last || got.Batches != 3 {
			t.Errorf("epoch %d: got %+v", i, got)
		}
		if got.Status != EpochStatusCompleted {
			t.Errorf("epoch %d: expected completed, got %s", i, got.Status)
		}
	}
}

func TestRecorderFail(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	boom := errors.New("bad batch")
	model := engine.ModelFunc(func(in interface{}) (interface{}, error) {
		if in.(int) == 3 {
			return nil, boom
		}
		return in, nil
	})
	e, _ := engine.New(model, engine.SliceSource{1, 2, 3}, engine.WithName("valid"))

	rec, err := NewRecorder(ctx, store, e)
	if err != nil {
		t.Fatalf("failed to create recorder: %v", err)
	}

	_, runErr := e.Run()
	if !errors.Is(runErr, boom) {
		t.Fatalf("expected model error, got %v", runErr)
	}
	if err := rec.Finish(RunStatusFailed, runErr); err != nil {
		t.Fatalf("failed to finish run: %v", err)
	}

	epochs, _ := store.ListEpochs(ctx, rec.RunID())
	if len(epochs) != 1 {
		t.Fatalf("expected 1 epoch, got %d", len(epochs))
	}
	got := epochs[0]
	if got.Status != EpochStatusFailed || got.Batches != 2 || got.Error == nil || *got.Error != "bad batch" {
		t.Errorf("unexpected failed epoch: %+v", got)
	}

	run, _ := store.GetRun(ctx, rec.RunID())
	if run.Status != RunStatusFailed || run.Error == nil {
		t.Errorf("unexpected failed run: %+v", run)
	}

	// No open epoch left.
	if err := rec.Fail(runErr); err != nil {
		t.Errorf("expected Fail without open epoch to be a no-op, got %v", err)
	}
}

func TestRecorderCancelledRun(t *testing.T) {
	store := setupTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := identityEngine(t, 1, 2, 3)
	if _, err := e.AddHookFunc(engine.BatchStart, func(ev engine.Event) error {
		if ev.BatchNum == 2 {
			cancel()
		}
		return ctx.Err()
	}); err != nil {
		t.Fatalf("failed to add hook: %v", err)
	}

	rec, err := NewRecorder(ctx, store, e, WithRunID("cancelled"))
	if err != nil {
		t.Fatalf("failed to create recorder: %v", err)
	}

	_, runErr := e.Run()
	if !errors.Is(runErr, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", runErr)
	}
	if err := rec.Finish(RunStatusCancelled, runErr); err != nil {
		t.Fatalf("failed to finish cancelled run: %v", err)
	}

	run, err := store.GetRun(context.Background(), "cancelled")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if run.Status != RunStatusCancelled || run.CompletedAt == nil {
		t.Errorf("expected a completed cancelled run, got %+v", run)
	}

	epochs, err := store.ListEpochs(context.Background(), "cancelled")
	if err != nil {
		t.Fatalf("failed to list epochs: %v", err)
	}
	if len(epochs) != 1 {
		t.Fatalf("expected 1 epoch, got %d", len(epochs))
	}
	if got := epochs[0]; got.Status != EpochStatusFailed || got.Batches != 1 || got.Error == nil {
		t.Errorf("expected a failed epoch after 1 batch, got %+v", got)
	}
}

func TestRecorderErrors(t *testing.T) {
	store := setupTestStore(t)
	e := identityEngine(t)

	if _, err := NewRecorder(context.Background(), nil, e); !engine.IsInvalidArgument(err) {
		t.Errorf("expected invalid argument for nil store, got %v", err)
	}
	if _, err := NewRecorder(context.Background(), store, nil); !engine.IsInvalidArgument(err) {
		t.Errorf("expected invalid argument for nil engine, got %v", err)
	}

	if _, err := NewRecorder(context.Background(), store, e, WithRunID("dup")); err != nil {
		t.Fatalf("failed to create recorder: %v", err)
	}
	if _, err := NewRecorder(context.Background(), store, e, WithRunID("dup")); err == nil {
		t.Error("expected duplicate run id to be rejected")
	}
}
