// Package engine provides the run-loop that drives a model over a data source.
//
// # Overview
//
// An Engine composes three collaborators supplied by the caller:
//
//  1. Model - anything that maps a batch input to an output (Model interface)
//  2. DataSource - a producer of batches, iterated once per Run call
//  3. Hooks - ordered observers registered per lifecycle event
//
// Run executes exactly one epoch. The engine itself knows nothing about losses,
// optimizers or checkpoints: training, validation and reporting are all built as
// hooks on top of the same loop.
//
// # Event Protocol
//
// Every epoch dispatches a fixed sequence of events:
//
//	ON_EPOCH_START
//	ON_BATCH_START, (model forward), ON_BATCH_END    (once per batch, in source order)
//	ON_EPOCH_END
//
// Hooks receive an Event record. Batch events carry the batch, its 1-based ordinal
// within the epoch, the epoch number, the global iteration number, the extracted
// input and target, and (for ON_BATCH_END) the model output.
//
// Hooks run synchronously in registration order. An error returned by a hook, the
// model, an extractor or the data source aborts the epoch and is returned from Run
// unchanged; counters keep the values they reached and ON_EPOCH_END is not
// dispatched.
//
// # Counters
//
// Epochs() increases by one per Run call and Iterations() by one per batch. Both
// persist across Run calls and are zeroed only by Reset.
//
// # Usage
//
//	eng, err := engine.New(model, engine.SliceSource{b1, b2, b3},
//	    engine.WithProgressLabel("train"),
//	)
//	if err != nil {
//	    return err
//	}
//	eng.AddHook(engine.BatchEnd, engine.HookFunc(func(ev engine.Event) error {
//	    log.Info().Int("iteration", ev.Iteration).Msg("batch done")
//	    return nil
//	}))
//	if _, err := eng.Run(); err != nil {
//	    return err
//	}
//
// # Concurrency
//
// An Engine is not safe for concurrent use. Concurrent Run calls on the same engine
// are unsupported, and hooks must not register further hooks while an event is
// being dispatched.
package engine
