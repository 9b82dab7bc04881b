package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/htrlab/laia/pkg/engine"
)

// DefaultProgressInterval is the number of batches between progress writes.
const DefaultProgressInterval = 100

// Recorder persists the epochs of one engine as a run.
type Recorder struct {
	ctx      context.Context
	store    Store
	runID    string
	name     string
	interval int

	mu      sync.Mutex
	epoch   *Epoch
	batches int
	last    int
}

// RecorderOption configures a Recorder.
type RecorderOption func(*recorderOptions)

type recorderOptions struct {
	runID    string
	interval int
	metadata map[string]interface{}
}

// WithRunID sets the run ID instead of generating one.
func WithRunID(id string) RecorderOption {
	return func(o *recorderOptions) { o.runID = id }
}

// WithProgressInterval sets how many batches pass between progress writes.
// Zero or less disables progress writes.
func WithProgressInterval(n int) RecorderOption {
	return func(o *recorderOptions) { o.interval = n }
}

// WithMetadata attaches a JSON object to the run row.
func WithMetadata(md map[string]interface{}) RecorderOption {
	return func(o *recorderOptions) { o.metadata = md }
}

// NewRecorder creates the run row for e and registers the hooks that record
// each of its epochs.
func NewRecorder(ctx context.Context, store Store, e *engine.Engine, opts ...RecorderOption) (*Recorder, error) {
	if store == nil {
		return nil, engine.NewInvalidArgumentError("store", "store is required")
	}
	if e == nil {
		return nil, engine.NewInvalidArgumentError("engine", "engine is required")
	}

	o := recorderOptions{interval: DefaultProgressInterval}
	for _, opt := range opts {
		opt(&o)
	}
	if o.runID == "" {
		o.runID = uuid.New().String()
	}

	metadata := "{}"
	if len(o.metadata) > 0 {
		raw, err := json.Marshal(o.metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal run metadata: %w", err)
		}
		metadata = string(raw)
	}

	run := &Run{
		ID:       o.runID,
		Name:     e.Name(),
		Role:     e.Role(),
		Status:   RunStatusRunning,
		Metadata: metadata,
	}
	if err := store.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	r := &Recorder{
		ctx:      ctx,
		store:    store,
		runID:    o.runID,
		name:     e.Name(),
		interval: o.interval,
	}

	if _, err := e.AddHookFunc(engine.EpochStart, r.onEpochStart); err != nil {
		return nil, err
	}
	if _, err := e.AddHookFunc(engine.BatchEnd, r.onBatchEnd); err != nil {
		return nil, err
	}
	if _, err := e.AddHookFunc(engine.EpochEnd, r.onEpochEnd); err != nil {
		return nil, err
	}
	return r, nil
}

// RunID returns the ID of the run row.
func (r *Recorder) RunID() string {
	return r.runID
}

func (r *Recorder) onEpochStart(ev engine.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.epoch != nil {
		if err := r.failLocked(fmt.Errorf("epoch aborted")); err != nil {
			return err
		}
	}

	first := 1
	if ev.Caller != nil {
		first = ev.Caller.Iterations() + 1
	}
	epoch := &Epoch{
		RunID:          r.runID,
		Engine:         r.name,
		Number:         ev.Epoch,
		FirstIteration: first,
		LastIteration:  first - 1,
		Status:         EpochStatusRunning,
	}
	if err := r.store.RecordEpochStart(r.ctx, epoch); err != nil {
		return err
	}

	r.epoch = epoch
	r.batches = 0
	r.last = epoch.LastIteration
	return nil
}

func (r *Recorder) onBatchEnd(ev engine.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.epoch == nil {
		return nil
	}
	r.batches++
	r.last = ev.Iteration

	if r.interval > 0 && r.batches%r.interval == 0 {
		return r.store.RecordEpochProgress(r.ctx, r.epoch.ID, r.batches, r.last)
	}
	return nil
}

func (r *Recorder) onEpochEnd(engine.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.epoch == nil {
		return nil
	}
	err := r.store.RecordEpochEnd(r.ctx, r.epoch.ID, EpochStatusCompleted, r.batches, r.last, nil)
	r.epoch = nil
	return err
}

// Fail marks the open epoch as failed with err. Engines stop without EpochEnd
// on failure, so callers invoke Fail with the error returned by Run. It does
// nothing when no epoch is open and writes even when the recorder context is
// cancelled.
func (r *Recorder) Fail(err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failLocked(err)
}

func (r *Recorder) failLocked(err error) error {
	if r.epoch == nil {
		return nil
	}
	var msg *string
	if err != nil {
		s := err.Error()
		msg = &s
	}
	id := r.epoch.ID
	r.epoch = nil
	return r.store.RecordEpochEnd(r.finalContext(), id, EpochStatusFailed, r.batches, r.last, msg)
}

// Finish closes the run with the given status. A non-nil err is stored as the
// run error and fails any open epoch. It writes even when the recorder
// context is cancelled.
func (r *Recorder) Finish(status RunStatus, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ferr := r.failLocked(err); ferr != nil {
		return ferr
	}
	var msg *string
	if err != nil {
		s := err.Error()
		msg = &s
	}
	return r.store.UpdateRunStatus(r.finalContext(), r.runID, status, msg)
}

// finalContext keeps the values of the recorder context but not its
// cancellation, so a cancelled run can still be closed.
func (r *Recorder) finalContext() context.Context {
	return context.WithoutCancel(r.ctx)
}
