package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/htrlab/laia/pkg/stores"
)

type runWithEpochs struct {
	*stores.Run
	Epochs []*stores.Epoch `json:"epochs,omitempty"`
}

func newRunsCommand(root *rootOptions) *cobra.Command {
	var (
		storePath  string
		limit      int
		offset     int
		showEpochs bool
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		Long:  `List the runs recorded in the run history, most recent first.`,
		Example: `  laia runs --store runs.db --epochs`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			storeCfg := cfg.StoreConfig()
			if storePath != "" {
				storeCfg.Path = storePath
			}
			if storeCfg.Path == "" {
				return fmt.Errorf("no store configured: use --store or store.path")
			}

			ctx := cmd.Context()
			store, err := openStore(ctx, storeCfg)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(ctx, limit, offset)
			if err != nil {
				return err
			}

			listed := make([]runWithEpochs, len(runs))
			for i, run := range runs {
				listed[i].Run = run
				if showEpochs {
					if listed[i].Epochs, err = store.ListEpochs(ctx, run.ID); err != nil {
						return err
					}
				}
			}

			if root.jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(listed)
			}
			printRuns(cmd.OutOrStdout(), listed)
			return nil
		},
	}

	cmd.Flags().StringVar(&storePath, "store", "", "SQLite database (default from config)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of runs to skip")
	cmd.Flags().BoolVar(&showEpochs, "epochs", false, "list the epochs of each run")

	return cmd
}

func printRuns(w io.Writer, runs []runWithEpochs) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %-10s %-9s %-9s %s\n",
			r.ID, r.Name, r.Role, r.Status, r.StartedAt.Local().Format(time.RFC3339))
		if r.Error != nil {
			fmt.Fprintf(w, "    error: %s\n", *r.Error)
		}
		for _, ep := range r.Epochs {
			fmt.Fprintf(w, "    epoch %d: %s, %d batches, iterations %d-%d\n",
				ep.Number, ep.Status, ep.Batches, ep.FirstIteration, ep.LastIteration)
		}
	}
}
