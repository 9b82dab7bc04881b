package engine

import (
	"fmt"
)

// Model maps a batch input to an output.
type Model interface {
	// Forward runs the model on a single batch input.
	Forward(input interface{}) (interface{}, error)
}

// EvalModeSetter is implemented by models that distinguish training and inference
// modes. The engine switches such models to inference mode before every forward call.
type EvalModeSetter interface {
	Eval()
}

// ModelFunc adapts a plain function to the Model interface.
type ModelFunc func(input interface{}) (interface{}, error)

// Forward calls f(input).
func (f ModelFunc) Forward(input interface{}) (interface{}, error) {
	return f(input)
}

// Iterator yields the batches of one pass over a data source.
// Next returns ok=false once the sequence is exhausted.
type Iterator interface {
	Next() (batch interface{}, ok bool, err error)
}

// IteratorFunc adapts a function to the Iterator interface.
type IteratorFunc func() (interface{}, bool, error)

// Next calls f().
func (f IteratorFunc) Next() (interface{}, bool, error) {
	return f()
}

// DataSource produces the batch sequence consumed by one Run call.
// Whether a second call starts over or resumes is up to the source.
type DataSource interface {
	Batches() Iterator
}

// SourceFunc adapts a function to the DataSource interface.
type SourceFunc func() Iterator

// Batches calls f().
func (f SourceFunc) Batches() Iterator {
	return f()
}

// Sized is implemented by data sources that know their length in advance.
// It is only used to size the progress bar.
type Sized interface {
	Len() int
}

// SliceSource is a repeatable data source over a fixed slice of batches.
type SliceSource []interface{}

// Batches returns an iterator starting at the first batch.
func (s SliceSource) Batches() Iterator {
	i := 0
	return IteratorFunc(func() (interface{}, bool, error) {
		if i >= len(s) {
			return nil, false, nil
		}
		b := s[i]
		i++
		return b, true, nil
	})
}

// Len returns the number of batches.
func (s SliceSource) Len() int {
	return len(s)
}

// ExtractFunc derives a value (model input or target) from a batch.
type ExtractFunc func(batch interface{}) (interface{}, error)

// toExtractFunc accepts the callable shapes supported by the extractor setters.
// A nil value (untyped or typed) means "absent".
func toExtractFunc(field string, v interface{}) (ExtractFunc, error) {
	switch fn := v.(type) {
	case nil:
		return nil, nil
	case ExtractFunc:
		return fn, nil
	case func(interface{}) (interface{}, error):
		if fn == nil {
			return nil, nil
		}
		return ExtractFunc(fn), nil
	case func(interface{}) interface{}:
		if fn == nil {
			return nil, nil
		}
		return func(batch interface{}) (interface{}, error) {
			return fn(batch), nil
		}, nil
	default:
		return nil, NewInvalidArgumentError(field, "%T is not a callable extractor", v)
	}
}

// EventKind is one of the four lifecycle events of an epoch.
type EventKind int

const (
	// EpochStart fires once per Run, before the first batch.
	EpochStart EventKind = iota
	// BatchStart fires once per batch, before the model is invoked.
	BatchStart
	// BatchEnd fires once per batch, after the model is invoked.
	BatchEnd
	// EpochEnd fires once per Run, after the last batch.
	EpochEnd

	numEventKinds
)

var eventKindNames = [numEventKinds]string{
	EpochStart: "ON_EPOCH_START",
	BatchStart: "ON_BATCH_START",
	BatchEnd:   "ON_BATCH_END",
	EpochEnd:   "ON_EPOCH_END",
}

// EventKinds lists every event kind in dispatch order within an epoch.
func EventKinds() []EventKind {
	return []EventKind{EpochStart, BatchStart, BatchEnd, EpochEnd}
}

// Valid reports whether k is one of the enumerated event kinds.
func (k EventKind) Valid() bool {
	return k >= EpochStart && k < numEventKinds
}

// String returns the conventional event name, e.g. "ON_BATCH_END".
func (k EventKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
	return eventKindNames[k]
}

// ParseEventKind converts an event name back to its kind.
func ParseEventKind(name string) (EventKind, error) {
	for k, n := range eventKindNames {
		if n == name {
			return EventKind(k), nil
		}
	}
	return 0, NewInvalidArgumentError("event_kind", "%q is not a valid hook event", name)
}

// Event is the payload delivered to hooks. Fields that do not apply to the
// event kind are left at their zero value.
type Event struct {
	// Kind is the lifecycle event being dispatched.
	Kind EventKind

	// Caller is the engine dispatching the event.
	Caller *Engine

	// Epoch is the current epoch number (1-based, global to the engine).
	Epoch int

	// Batch is the raw batch read from the data source.
	Batch interface{}

	// BatchNum is the ordinal of the batch within the epoch, starting at 1.
	BatchNum int

	// Iteration is the global iteration number.
	Iteration int

	// BatchInput is the value passed to the model.
	BatchInput interface{}

	// BatchTarget is the extracted target, or nil if no target extractor is set.
	BatchTarget interface{}

	// BatchOutput is the model output. Only set for BatchEnd.
	BatchOutput interface{}
}

// Hook observes engine events. Returning an error aborts the epoch.
type Hook interface {
	OnEvent(ev Event) error
}

// HookFunc adapts a function to the Hook interface.
type HookFunc func(ev Event) error

// OnEvent calls f(ev).
func (f HookFunc) OnEvent(ev Event) error {
	return f(ev)
}

// Progress configures the per-epoch progress bar.
// The zero value disables it.
type Progress struct {
	// Enabled shows a progress bar while iterating the data source.
	Enabled bool

	// Label is printed before the bar, if not empty.
	Label string
}
