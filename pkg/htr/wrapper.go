// Package htr wires meters and decoding into training and validation engines
// for handwritten text recognition experiments.
package htr

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/htrlab/laia/pkg/engine"
	"github.com/htrlab/laia/pkg/meters"
)

// LossFunc computes the loss of a batch from the model output and the target.
type LossFunc func(output, target interface{}) (float64, error)

// Report summarizes one training epoch.
type Report struct {
	Epoch     int
	TrainLoss float64
	TrainCER  float64
	TrainTime float64
	HasValid  bool
	ValidLoss float64
	ValidCER  float64
	ValidTime float64
}

// Option configures a Wrapper.
type Option func(*Wrapper)

// WithLossFunc sets the loss accumulated on every batch. Without it, the
// loss meters stay empty.
func WithLossFunc(fn LossFunc) Option {
	return func(w *Wrapper) {
		w.loss = fn
	}
}

// WithDecoder replaces the default greedy CTC decoder.
func WithDecoder(d Decoder) Option {
	return func(w *Wrapper) {
		w.decoder = d
	}
}

// WithLogger sets the logger used for epoch reports.
func WithLogger(logger zerolog.Logger) Option {
	return func(w *Wrapper) {
		w.logger = logger
	}
}

// WithReportFunc registers a callback receiving every epoch report.
func WithReportFunc(fn func(Report)) Option {
	return func(w *Wrapper) {
		w.onReport = fn
	}
}

type phase struct {
	timer *meters.Time
	loss  *meters.RunningAverage
	cer   *meters.SequenceError
}

func newPhase() *phase {
	return &phase{
		timer: meters.NewTime(),
		loss:  meters.NewRunningAverage(),
		cer:   meters.NewSequenceError(),
	}
}

func (p *phase) reset() {
	p.timer.Reset()
	p.loss.Reset()
	p.cer.Reset()
}

// Wrapper attaches HTR meters to a training engine and an optional
// validation engine. The validation engine runs after every training epoch.
type Wrapper struct {
	train    *engine.Engine
	valid    *engine.Engine
	decoder  Decoder
	loss     LossFunc
	logger   zerolog.Logger
	onReport func(Report)

	trainPhase *phase
	validPhase *phase
}

// NewWrapper registers the wrapper hooks on train and, when not nil, valid.
func NewWrapper(train, valid *engine.Engine, opts ...Option) (*Wrapper, error) {
	if train == nil {
		return nil, engine.NewInvalidArgumentError("train", "a training engine is required")
	}
	if valid == train {
		return nil, engine.NewInvalidArgumentError("valid", "the validation engine must differ from the training engine")
	}

	w := &Wrapper{
		train:      train,
		valid:      valid,
		decoder:    CTCGreedyDecoder{},
		logger:     zerolog.Nop(),
		trainPhase: newPhase(),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.attach(train, w.trainPhase); err != nil {
		return nil, err
	}
	if valid == nil {
		if _, err := train.AddHookFunc(engine.EpochEnd, w.onReportEpochEnd); err != nil {
			return nil, err
		}
		return w, nil
	}

	w.validPhase = newPhase()
	if err := w.attach(valid, w.validPhase); err != nil {
		return nil, err
	}
	if _, err := train.AddHookFunc(engine.EpochEnd, func(engine.Event) error {
		if _, err := w.valid.Run(); err != nil {
			return fmt.Errorf("validation epoch failed: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if _, err := valid.AddHookFunc(engine.EpochEnd, w.onReportEpochEnd); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Wrapper) onReportEpochEnd(engine.Event) error {
	w.report()
	return nil
}

// attach registers the meter hooks of p on e.
func (w *Wrapper) attach(e *engine.Engine, p *phase) error {
	for _, reg := range []struct {
		kind engine.EventKind
		fn   func(engine.Event) error
	}{
		{engine.EpochStart, func(engine.Event) error {
			p.reset()
			return nil
		}},
		{engine.BatchEnd, func(ev engine.Event) error {
			if w.loss != nil {
				loss, err := w.loss(ev.BatchOutput, ev.BatchTarget)
				if err != nil {
					return fmt.Errorf("failed to compute loss: %w", err)
				}
				p.loss.Add(loss)
			}
			// Extra costs, like the validation epoch, stay out of the timer.
			p.timer.Stop()
			return nil
		}},
		{engine.BatchEnd, func(ev engine.Event) error {
			hyps, err := w.decoder.Decode(ev.BatchOutput)
			if err != nil {
				return fmt.Errorf("failed to decode batch output: %w", err)
			}
			return addTargets(p.cer, ev.BatchTarget, hyps)
		}},
	} {
		if _, err := e.AddHookFunc(reg.kind, reg.fn); err != nil {
			return fmt.Errorf("failed to register %s hook: %w", reg.kind, err)
		}
	}
	return nil
}

func addTargets(m *meters.SequenceError, target interface{}, hyps [][]int) error {
	refs, ok := target.([][]int)
	if !ok {
		return fmt.Errorf("unsupported batch target of type %T, expected [][]int", target)
	}
	return m.AddInts(refs, hyps)
}

// Run runs one training epoch (and the validation epoch, if any).
func (w *Wrapper) Run() (*Wrapper, error) {
	if _, err := w.train.Run(); err != nil {
		return w, err
	}
	return w, nil
}

// TrainLoss returns the training loss meter.
func (w *Wrapper) TrainLoss() *meters.RunningAverage { return w.trainPhase.loss }

// TrainCER returns the training character error meter.
func (w *Wrapper) TrainCER() *meters.SequenceError { return w.trainPhase.cer }

// TrainTimer returns the training time meter.
func (w *Wrapper) TrainTimer() *meters.Time { return w.trainPhase.timer }

// ValidLoss returns the validation loss meter, or nil without a validation engine.
func (w *Wrapper) ValidLoss() *meters.RunningAverage {
	if w.validPhase == nil {
		return nil
	}
	return w.validPhase.loss
}

// ValidCER returns the validation character error meter, or nil without a
// validation engine.
func (w *Wrapper) ValidCER() *meters.SequenceError {
	if w.validPhase == nil {
		return nil
	}
	return w.validPhase.cer
}

// ValidTimer returns the validation time meter, or nil without a validation engine.
func (w *Wrapper) ValidTimer() *meters.Time {
	if w.validPhase == nil {
		return nil
	}
	return w.validPhase.timer
}

func (w *Wrapper) report() {
	r := Report{
		Epoch:     w.train.Epochs(),
		TrainLoss: w.trainPhase.loss.Value(),
		TrainCER:  w.trainPhase.cer.Value(),
		TrainTime: w.trainPhase.timer.Value(),
	}

	event := w.logger.Info().
		Int("epoch", r.Epoch).
		Float64("train_loss", r.TrainLoss).
		Float64("train_cer", r.TrainCER).
		Float64("train_time_s", r.TrainTime)

	if w.validPhase != nil {
		r.HasValid = true
		r.ValidLoss = w.validPhase.loss.Value()
		r.ValidCER = w.validPhase.cer.Value()
		r.ValidTime = w.validPhase.timer.Value()
		event = event.
			Float64("valid_loss", r.ValidLoss).
			Float64("valid_cer", r.ValidCER).
			Float64("valid_time_s", r.ValidTime)
	}
	event.Msg("Epoch report")

	if w.onReport != nil {
		w.onReport(r)
	}
}
