package telemetry

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/htrlab/laia/pkg/engine"
)

// EngineHooks instruments one engine: every epoch gets a span, a metrics
// sample and started/completed events, and every batch gets a child span, a
// latency observation and a batch.completed event.
type EngineHooks struct {
	tel    *Telemetry
	runID  string
	name   string
	role   string
	parent context.Context
	logger *Logger

	mu         sync.Mutex
	epoch      int
	batches    int
	epochCtx   context.Context
	epochSpan  trace.Span
	epochTimer *Timer
	batchSpan  trace.Span
	batchTimer *Timer
}

// Attach registers telemetry hooks on e. An empty runID gets a fresh UUID.
// ctx is the parent of every epoch span.
func Attach(ctx context.Context, e *engine.Engine, tel *Telemetry, runID string) (*EngineHooks, error) {
	if e == nil {
		return nil, engine.NewInvalidArgumentError("engine", "engine is required")
	}
	if tel == nil {
		return nil, engine.NewInvalidArgumentError("telemetry", "telemetry is required")
	}
	if runID == "" {
		runID = uuid.New().String()
	}

	h := &EngineHooks{
		tel:    tel,
		runID:  runID,
		name:   e.Name(),
		role:   e.Role(),
		parent: ctx,
		logger: tel.Logger.NewComponentLogger("engine").WithRunID(runID).WithEngine(e.Name(), e.Role()),
	}

	for _, reg := range []struct {
		kind engine.EventKind
		fn   func(engine.Event) error
	}{
		{engine.EpochStart, h.onEpochStart},
		{engine.BatchStart, h.onBatchStart},
		{engine.BatchEnd, h.onBatchEnd},
		{engine.EpochEnd, h.onEpochEnd},
	} {
		if _, err := e.AddHookFunc(reg.kind, reg.fn); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// RunID returns the run ID attached to every span, log line and event.
func (h *EngineHooks) RunID() string {
	return h.runID
}

func (h *EngineHooks) onEpochStart(ev engine.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	// A previous epoch that never reached EpochEnd was aborted.
	if h.epochSpan != nil {
		h.failLocked(errors.New("epoch aborted"))
	}

	h.epoch = ev.Epoch
	h.batches = 0
	h.epochTimer = NewTimer()
	h.epochCtx, h.epochSpan = h.tel.Tracer.StartEpochSpan(h.parent, h.runID, h.name, ev.Epoch)
	h.epochSpan.SetAttributes(AttrEngineRole.String(h.role))

	h.tel.Metrics.RecordEpochStarted(h.name)
	_ = h.tel.Events.PublishEpochStarted(h.runID, h.name, ev.Epoch)
	h.logger.WithEpoch(ev.Epoch).Debug("Epoch started")
	return nil
}

func (h *EngineHooks) onBatchStart(ev engine.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	parent := h.epochCtx
	if parent == nil {
		parent = h.parent
	}
	_, h.batchSpan = h.tel.Tracer.StartBatchSpan(parent, ev.BatchNum, ev.Iteration)
	h.batchTimer = NewTimer()
	return nil
}

func (h *EngineHooks) onBatchEnd(ev engine.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.batches++
	if h.batchTimer != nil {
		h.tel.Metrics.RecordBatch(h.name, h.batchTimer.Duration())
		h.batchTimer = nil
	}
	if h.batchSpan != nil {
		RecordSuccess(h.batchSpan)
		h.batchSpan.End()
		h.batchSpan = nil
	}
	_ = h.tel.Events.PublishBatchCompleted(h.runID, h.name, ev.Epoch, ev.BatchNum, ev.Iteration)
	return nil
}

func (h *EngineHooks) onEpochEnd(ev engine.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	duration := h.epochTimer.Duration()
	if h.epochSpan != nil {
		h.epochSpan.SetAttributes(AttrBatchNum.Int(h.batches))
		RecordSuccess(h.epochSpan)
		h.epochSpan.End()
		h.epochSpan = nil
	}
	h.epochCtx = nil

	h.tel.Metrics.RecordEpochCompleted(h.name, "completed", duration)
	_ = h.tel.Events.PublishEpochCompleted(h.runID, h.name, ev.Epoch, h.batches, duration)
	h.logger.WithEpoch(ev.Epoch).WithFields(map[string]interface{}{
		"batches":    h.batches,
		"duration_s": duration.Seconds(),
	}).Info("Epoch completed")
	return nil
}

// Fail closes the spans of an epoch aborted by err. Engines stop without
// EpochEnd on failure, so callers invoke Fail with the error returned by Run.
// It does nothing when no epoch is open.
func (h *EngineHooks) Fail(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failLocked(err)
}

func (h *EngineHooks) failLocked(err error) {
	if h.epochSpan == nil {
		return
	}
	if err == nil {
		err = errors.New("epoch aborted")
	}

	code := "UNKNOWN"
	var engErr *engine.EngineError
	if errors.As(err, &engErr) {
		code = string(engErr.Code)
	}

	if h.batchSpan != nil {
		RecordError(h.batchSpan, err)
		h.batchSpan.End()
		h.batchSpan = nil
	}
	h.epochSpan.SetAttributes(AttrErrorCode.String(code))
	RecordError(h.epochSpan, err)
	h.epochSpan.End()
	h.epochSpan = nil
	h.epochCtx = nil

	h.tel.Metrics.RecordEpochCompleted(h.name, "failed", h.epochTimer.Duration())
	h.tel.Metrics.RecordError(h.name, code)
	_ = h.tel.Events.PublishEpochFailed(h.runID, h.name, h.epoch, err.Error())
	h.logger.WithEpoch(h.epoch).WithError(err).Error("Epoch failed")
}
