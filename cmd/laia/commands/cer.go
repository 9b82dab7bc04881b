package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/htrlab/laia/pkg/config"
	"github.com/htrlab/laia/pkg/engine"
	"github.com/htrlab/laia/pkg/meters"
	"github.com/htrlab/laia/pkg/stores"
	"github.com/htrlab/laia/pkg/telemetry"
)

const watchDebounce = 500 * time.Millisecond

type cerOptions struct {
	ref         string
	hyp         string
	batchSize   int
	separator   string
	progress    string
	store       string
	watch       bool
	metricsAddr string
}

// cerResult is the outcome of one evaluation.
type cerResult struct {
	RunID      string   `json:"run_id"`
	TraceID    string   `json:"trace_id,omitempty"`
	Lines      int      `json:"lines"`
	Missing    []string `json:"missing,omitempty"`
	CER        float64  `json:"cer"`
	CharErrors int      `json:"char_errors"`
	Chars      int      `json:"chars"`
	WER        float64  `json:"wer"`
	WordErrors int      `json:"word_errors"`
	Words      int      `json:"words"`
}

func newCERCommand(root *rootOptions) *cobra.Command {
	opts := &cerOptions{}

	cmd := &cobra.Command{
		Use:   "cer",
		Short: "Compute character and word error rates",
		Long: `Compute the character (CER) and word (WER) error rates of hypotheses
against references.

Both files hold one transcript per line: an ID followed by its tokens. Words
are the tokens between separator tokens. Each evaluation is one epoch of an
evaluator engine, so it is logged, traced, counted and optionally recorded in
the run history.`,
		Example: `  # Score a decoding
  laia cer --ref test.txt --hyp decode.txt

  # Record the run and re-score whenever the decoding changes
  laia cer --ref test.txt --hyp decode.txt --store runs.db --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if opts.store == "" {
				opts.store = cfg.Store.Path
			}
			return runCER(cmd.Context(), cmd.OutOrStdout(), cfg, opts, root.jsonOutput)
		},
	}

	cmd.Flags().StringVar(&opts.ref, "ref", "", "reference transcripts file")
	cmd.Flags().StringVar(&opts.hyp, "hyp", "", "hypothesis transcripts file")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 16, "transcripts per batch")
	cmd.Flags().StringVar(&opts.separator, "separator", DefaultWordSeparator, "token that separates words")
	cmd.Flags().StringVar(&opts.progress, "progress", "", "show a progress bar with this label")
	cmd.Flags().StringVar(&opts.store, "store", "", "record the run in this SQLite database")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "re-run whenever the hypothesis file changes")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics", "", "serve Prometheus metrics on this address")
	_ = cmd.MarkFlagRequired("ref")
	_ = cmd.MarkFlagRequired("hyp")

	return cmd
}

func runCER(ctx context.Context, out io.Writer, cfg *config.Config, opts *cerOptions, jsonOutput bool) error {
	tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	if opts.metricsAddr != "" {
		srv := tel.Metrics.NewMetricsServer(opts.metricsAddr)
		if srv == nil {
			return fmt.Errorf("metrics are disabled in the configuration")
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Str("addr", opts.metricsAddr).Msg("Metrics server failed")
			}
		}()
		defer func() { _ = srv.Shutdown(context.Background()) }()
	}

	var store stores.Store
	if opts.store != "" {
		storeCfg := cfg.StoreConfig()
		storeCfg.Path = opts.store
		s, err := openStore(ctx, storeCfg)
		if err != nil {
			return err
		}
		defer s.Close()
		store = s
	}

	evaluateAndPrint := func() error {
		res, err := evaluate(ctx, cfg, tel, store, opts)
		if ferr := tel.Flush(ctx); ferr != nil {
			tel.Logger.WithError(ferr).Warn("Failed to flush telemetry")
		}
		if err != nil {
			return err
		}
		return printCER(out, res, jsonOutput)
	}

	if err := evaluateAndPrint(); err != nil {
		return err
	}
	if !opts.watch {
		return nil
	}

	return watchFile(ctx, opts.hyp, func() {
		if err := evaluateAndPrint(); err != nil {
			tel.Logger.WithError(err).WithField("hyp", opts.hyp).Error("Evaluation failed")
		}
	})
}

// evaluate scores the hypothesis file in one evaluator epoch. The epoch span
// is a child of the cer.evaluate operation span.
func evaluate(ctx context.Context, cfg *config.Config, tel *telemetry.Telemetry, store stores.Store, opts *cerOptions) (res *cerResult, err error) {
	ic := telemetry.StartOperation(tel.WithContext(ctx), "cer.evaluate",
		attribute.String("cer.ref", opts.ref),
		attribute.String("cer.hyp", opts.hyp),
	)
	defer func() { ic.End(err) }()

	refs, err := readTranscripts(opts.ref)
	if err != nil {
		return nil, err
	}
	hyps, err := readTranscripts(opts.hyp)
	if err != nil {
		return nil, err
	}
	batches, missing := pairBatches(refs, hyps, opts.batchSize)
	telemetry.AddEvent(telemetry.SpanFromContext(ic.Ctx), "transcripts.loaded",
		attribute.Int("refs", len(refs)),
		attribute.Int("hyps", len(hyps)),
		attribute.Int("batches", len(batches)),
	)
	if len(missing) > 0 {
		ic.Logger.WithFields(map[string]interface{}{
			"count": len(missing),
			"ids":   missing,
		}).Warn("References without hypothesis are scored as empty")
	}

	engOpts := []engine.Option{
		engine.WithName("cer"),
		engine.WithLogger(tel.Logger.Zerolog()),
		engine.WithBatchInput(func(b interface{}) (interface{}, error) { return b.(*cerBatch).Hyps, nil }),
		engine.WithBatchTarget(func(b interface{}) (interface{}, error) { return b.(*cerBatch).Refs, nil }),
	}
	switch {
	case opts.progress != "":
		engOpts = append(engOpts, engine.WithProgressLabel(opts.progress))
	case cfg.Engine.Progress:
		engOpts = append(engOpts, engine.WithProgressLabel(cfg.Engine.ProgressLabel))
	}

	// Hypotheses are the model output.
	identity := engine.ModelFunc(func(in interface{}) (interface{}, error) { return in, nil })
	eval, err := engine.NewEvaluator(identity, engine.SliceSource(batches), engOpts...)
	if err != nil {
		return nil, err
	}

	cer := meters.NewSequenceError()
	wer := meters.NewSequenceError()
	if _, err := eval.AddHookFunc(engine.BatchStart, func(engine.Event) error {
		return ctx.Err()
	}); err != nil {
		return nil, err
	}
	if _, err := eval.AddHookFunc(engine.BatchEnd, func(ev engine.Event) error {
		refs := ev.BatchTarget.([][]string)
		hyps := ev.BatchOutput.([][]string)
		if err := cer.Add(refs, hyps); err != nil {
			return err
		}
		return wer.Add(splitAllWords(refs, opts.separator), splitAllWords(hyps, opts.separator))
	}); err != nil {
		return nil, err
	}

	hooks, err := telemetry.Attach(ic.Ctx, eval, tel, "")
	if err != nil {
		return nil, err
	}

	var rec *stores.Recorder
	if store != nil {
		rec, err = stores.NewRecorder(ic.Ctx, store, eval,
			stores.WithRunID(hooks.RunID()),
			stores.WithMetadata(map[string]interface{}{"ref": opts.ref, "hyp": opts.hyp}),
		)
		if err != nil {
			return nil, err
		}
	}

	if _, runErr := eval.Run(); runErr != nil {
		hooks.Fail(runErr)
		if rec != nil {
			status := stores.RunStatusFailed
			if errors.Is(runErr, context.Canceled) {
				status = stores.RunStatusCancelled
			}
			if ferr := rec.Finish(status, runErr); ferr != nil {
				ic.Logger.WithError(ferr).Warn("Failed to record run failure")
			}
		}
		return nil, fmt.Errorf("evaluation failed: %w", runErr)
	}
	if rec != nil {
		if err := rec.Finish(stores.RunStatusCompleted, nil); err != nil {
			return nil, err
		}
	}

	tel.Metrics.SetSequenceError(eval.Name(), "char", cer.Value())
	tel.Metrics.SetSequenceError(eval.Name(), "word", wer.Value())

	return &cerResult{
		RunID:      hooks.RunID(),
		TraceID:    telemetry.TraceID(ic.Ctx),
		Lines:      len(refs),
		Missing:    missing,
		CER:        cer.Value(),
		CharErrors: cer.Errors(),
		Chars:      cer.RefLength(),
		WER:        wer.Value(),
		WordErrors: wer.Errors(),
		Words:      wer.RefLength(),
	}, nil
}

func printCER(w io.Writer, res *cerResult, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	_, err := fmt.Fprintf(w, "CER=%.2f%% (%d/%d) WER=%.2f%% (%d/%d)\n",
		100*res.CER, res.CharErrors, res.Chars,
		100*res.WER, res.WordErrors, res.Words)
	return err
}

// watchFile calls fn after path changes, until ctx is done. The parent
// directory is watched so files replaced by rename are still seen.
func watchFile(ctx context.Context, path string, fn func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	path = filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	log.Info().Str("path", path).Msg("Watching for changes")

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			log.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("File changed")
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(watchDebounce)
			fire = timer.C

		case <-fire:
			fire = nil
			fn()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Watcher error")
		}
	}
}
