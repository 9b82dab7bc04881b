package engine

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Engine role names.
const (
	RoleTrainer   = "trainer"
	RoleEvaluator = "evaluator"
)

// Engine drives one epoch of batches through a model per Run call,
// dispatching lifecycle events to registered hooks.
type Engine struct {
	name     string
	role     string
	model    Model
	evalMode func()
	source   DataSource

	batchInputFn  ExtractFunc
	batchTargetFn ExtractFunc

	progress    Progress
	progressOut io.Writer
	logger      zerolog.Logger

	hooks [numEventKinds][]Hook

	epochs     int
	iterations int
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithBatchInput sets the function used to extract the model input from a batch.
func WithBatchInput(fn ExtractFunc) Option {
	return func(e *Engine) {
		e.batchInputFn = fn
	}
}

// WithBatchTarget sets the function used to extract the target from a batch.
func WithBatchTarget(fn ExtractFunc) Option {
	return func(e *Engine) {
		e.batchTargetFn = fn
	}
}

// WithProgress shows a progress bar with the default label for each epoch.
func WithProgress() Option {
	return func(e *Engine) {
		e.progress = Progress{Enabled: true}
	}
}

// WithProgressLabel shows a progress bar prefixed by label for each epoch.
func WithProgressLabel(label string) Option {
	return func(e *Engine) {
		e.progress = Progress{Enabled: true, Label: label}
	}
}

// WithProgressConfig sets the progress bar configuration.
func WithProgressConfig(p Progress) Option {
	return func(e *Engine) {
		e.progress = p
	}
}

// WithProgressWriter sets where the progress bar is drawn (default: stderr).
// A nil writer disables the bar.
func WithProgressWriter(w io.Writer) Option {
	return func(e *Engine) {
		e.progressOut = w
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithName sets a human-readable engine name used in logs.
func WithName(name string) Option {
	return func(e *Engine) {
		e.name = name
	}
}

// New creates an engine for the given model and data source.
func New(model Model, source DataSource, opts ...Option) (*Engine, error) {
	return newEngine(RoleTrainer, model, source, opts...)
}

func newEngine(role string, model Model, source DataSource, opts ...Option) (*Engine, error) {
	if model == nil {
		return nil, NewInvalidArgumentError("model", "model is required")
	}
	if source == nil {
		return nil, NewInvalidArgumentError("data_source", "data source is required")
	}

	e := &Engine{
		name:        role,
		role:        role,
		model:       model,
		evalMode:    func() {},
		source:      source,
		progressOut: os.Stderr,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if m, ok := model.(EvalModeSetter); ok {
		e.evalMode = m.Eval
	}

	e.logger = e.logger.With().Str("component", "engine").Str("engine", e.name).Logger()
	if e.progress.Enabled && e.progressOut == nil {
		e.logger.Debug().Msg("A progress bar cannot be shown because no output writer is set")
	}

	return e, nil
}

// Name returns the engine name.
func (e *Engine) Name() string {
	return e.name
}

// Role returns RoleTrainer or RoleEvaluator. It has no effect on behavior.
func (e *Engine) Role() string {
	return e.role
}

// Model returns the model driven by the engine.
func (e *Engine) Model() Model {
	return e.model
}

// DataSource returns the data source iterated by Run.
func (e *Engine) DataSource() DataSource {
	return e.source
}

// Epochs returns the number of epochs started since creation or the last Reset.
func (e *Engine) Epochs() int {
	return e.epochs
}

// Iterations returns the number of batches started since creation or the last Reset.
func (e *Engine) Iterations() int {
	return e.iterations
}

// Progress returns the progress bar configuration.
func (e *Engine) Progress() Progress {
	return e.progress
}

// Logger returns the engine logger.
func (e *Engine) Logger() *zerolog.Logger {
	return &e.logger
}

// BatchInputFn returns the input extractor, or nil if batches are fed as-is.
func (e *Engine) BatchInputFn() ExtractFunc {
	return e.batchInputFn
}

// BatchTargetFn returns the target extractor, or nil if none is set.
func (e *Engine) BatchTargetFn() ExtractFunc {
	return e.batchTargetFn
}

// Hooks returns a copy of the hooks registered for kind, in invocation order.
func (e *Engine) Hooks(kind EventKind) []Hook {
	if !kind.Valid() {
		return nil
	}
	out := make([]Hook, len(e.hooks[kind]))
	copy(out, e.hooks[kind])
	return out
}

// Reset zeroes the epoch and iteration counters. Hooks and collaborators are kept.
func (e *Engine) Reset() *Engine {
	e.epochs = 0
	e.iterations = 0
	return e
}

// SetBatchInputFn replaces the input extractor. fn may be nil (feed batches as-is),
// an ExtractFunc, a func(interface{}) (interface{}, error) or a
// func(interface{}) interface{}. Any other value is rejected.
func (e *Engine) SetBatchInputFn(fn interface{}) (*Engine, error) {
	f, err := toExtractFunc("batch_input_fn", fn)
	if err != nil {
		return e, err
	}
	e.batchInputFn = f
	return e, nil
}

// SetBatchTargetFn replaces the target extractor. Accepted values are the same as
// for SetBatchInputFn; nil means batches have no target.
func (e *Engine) SetBatchTargetFn(fn interface{}) (*Engine, error) {
	f, err := toExtractFunc("batch_target_fn", fn)
	if err != nil {
		return e, err
	}
	e.batchTargetFn = f
	return e, nil
}

// AddHook appends hook to the list for kind. Hooks for the same kind run in the
// order they were added; adding the same hook twice makes it run twice.
func (e *Engine) AddHook(kind EventKind, hook Hook) (*Engine, error) {
	if !kind.Valid() {
		return e, NewInvalidArgumentError("event_kind", "%s is not a valid hook event", kind)
	}
	if hook == nil {
		return e, NewInvalidArgumentError("hook", "hook is required")
	}
	e.hooks[kind] = append(e.hooks[kind], hook)
	return e, nil
}

// AddHookFunc is a shorthand for AddHook(kind, HookFunc(fn)).
func (e *Engine) AddHookFunc(kind EventKind, fn func(Event) error) (*Engine, error) {
	if fn == nil {
		return e, NewInvalidArgumentError("hook", "hook is required")
	}
	return e.AddHook(kind, HookFunc(fn))
}

// Run executes a single epoch over the data source.
func (e *Engine) Run() (*Engine, error) {
	return e, e.runEpoch()
}

func (e *Engine) callHooks(ev Event) error {
	ev.Caller = e
	for _, hook := range e.hooks[ev.Kind] {
		if err := hook.OnEvent(ev); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) runEpoch() error {
	e.epochs++
	epoch := e.epochs

	if err := e.callHooks(Event{Kind: EpochStart, Epoch: epoch}); err != nil {
		e.logFailure("epoch_start", 0, err)
		return err
	}

	it, done := e.batches()
	defer done()

	for num := 1; ; num++ {
		batch, ok, err := it.Next()
		if err != nil {
			e.logFailure("data_source", num, err)
			return err
		}
		if !ok {
			break
		}
		if err := e.runIteration(epoch, num, batch); err != nil {
			return err
		}
	}

	if err := e.callHooks(Event{Kind: EpochEnd, Epoch: epoch}); err != nil {
		e.logFailure("epoch_end", 0, err)
		return err
	}

	e.logger.Debug().
		Int("epoch", epoch).
		Int("iterations", e.iterations).
		Msg("Epoch completed")
	return nil
}

func (e *Engine) runIteration(epoch, num int, batch interface{}) error {
	e.iterations++

	input := batch
	if e.batchInputFn != nil {
		v, err := e.batchInputFn(batch)
		if err != nil {
			e.logFailure("batch_input", num, err)
			return err
		}
		input = v
	}

	var target interface{}
	if e.batchTargetFn != nil {
		v, err := e.batchTargetFn(batch)
		if err != nil {
			e.logFailure("batch_target", num, err)
			return err
		}
		target = v
	}

	ev := Event{
		Kind:        BatchStart,
		Epoch:       epoch,
		Batch:       batch,
		BatchNum:    num,
		Iteration:   e.iterations,
		BatchInput:  input,
		BatchTarget: target,
	}
	if err := e.callHooks(ev); err != nil {
		e.logFailure("batch_start", num, err)
		return err
	}

	e.evalMode()
	output, err := e.model.Forward(input)
	if err != nil {
		e.logFailure("model", num, err)
		return err
	}

	ev.Kind = BatchEnd
	ev.BatchOutput = output
	if err := e.callHooks(ev); err != nil {
		e.logFailure("batch_end", num, err)
		return err
	}
	return nil
}

func (e *Engine) logFailure(stage string, batchNum int, err error) {
	e.logger.Debug().
		Err(err).
		Str("stage", stage).
		Int("epoch", e.epochs).
		Int("iteration", e.iterations).
		Int("batch_num", batchNum).
		Msg("Epoch aborted")
}
