// Package telemetry provides observability instrumentation for laia engines.
//
// The telemetry package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus), and event publishing, and plugs all four
// into an engine through its hook mechanism.
//
// # Architecture
//
// The telemetry system is built on four pillars:
//
//  1. Structured Logging - Context-aware logging with zerolog
//  2. Distributed Tracing - OpenTelemetry spans per epoch and per batch
//  3. Metrics Collection - Prometheus counters and latency histograms
//  4. Event Publishing - Ordered event delivery to subscribers
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
// Instrument an engine:
//
//	hooks, err := telemetry.Attach(ctx, eng, tel, "")
//	if err != nil {
//	    return err
//	}
//	if _, err := eng.Run(); err != nil {
//	    hooks.Fail(err)
//	    return err
//	}
//
// Engines stop without an EpochEnd event when a hook, the model or the data
// source fails, so the caller reports the failure through Fail.
//
// # Structured Logging
//
//	logger := tel.Logger.NewComponentLogger("engine")
//	logger.WithRunID(runID).WithEpoch(3).Info("Epoch completed")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Distributed Tracing
//
// Each epoch is an "engine.epoch" span; each batch is an "engine.batch" child
// span. Work around an engine run is wrapped in an operation whose span
// becomes the parent of the epoch spans:
//
//	ic := telemetry.StartOperation(tel.WithContext(ctx), "cer.evaluate")
//	defer func() { ic.End(err) }()
//	hooks, err := telemetry.Attach(ic.Ctx, eng, tel, "")
//
//  Supported exporters: OTLP over gRPC (production) and stdout
// (development).
//
// # Metrics
//
// All metrics live in a private registry exposed through Metrics.Handler:
//
//   - <ns>_epochs_started_total{engine}
//   - <ns>_epochs_completed_total{engine,status}
//   - <ns>_epoch_duration_seconds{engine}
//   - <ns>_batches_processed_total{engine}
//   - <ns>_batch_duration_seconds{engine}
//   - <ns>_errors_total{engine,code}
//   - <ns>_sequence_error_ratio{engine,unit}
//   - <ns>_active_epochs
//
// A disabled Metrics value is a no-op.
//
// # Events
//
// Subscribers receive epoch.started, batch.completed, epoch.completed and
// epoch.failed events in publishing order:
//
//	tel.Events.Subscribe(func(e telemetry.Event) {
//	    fmt.Println(e.Type, e.Epoch)
//	}, telemetry.FilterByType(telemetry.EventTypeEpochCompleted))
package telemetry
