package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/htrlab/laia/pkg/phoc"
	"github.com/htrlab/laia/pkg/symbols"
)

func newPHOCCommand(root *rootOptions) *cobra.Command {
	var (
		symsPath      string
		levels        []int
		ignoreMissing bool
	)

	cmd := &cobra.Command{
		Use:   "phoc WORD...",
		Short: "Print the PHOC vector of each word",
		Long: `Print the Pyramidal Histogram Of Characters of each word.

The symbols file maps each character to its index, one "<symbol> <id>" pair
per line. Levels default to the phoc section of the configuration.`,
		Example: `  laia phoc --syms syms.txt --levels 1,2,3 hello world`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("levels") {
				levels = cfg.PHOC.Levels
			}
			if !cmd.Flags().Changed("ignore-missing") {
				ignoreMissing = cfg.PHOC.IgnoreMissing
			}

			f, err := os.Open(symsPath)
			if err != nil {
				return fmt.Errorf("failed to open symbols: %w", err)
			}
			table, err := symbols.Load(f)
			_ = f.Close()
			if err != nil {
				return err
			}

			var encOpts []phoc.EncoderOption
			if ignoreMissing {
				encOpts = append(encOpts, phoc.IgnoreMissing())
			}
			enc, err := phoc.NewEncoder(table, levels, cfg.PHOC.CacheSize, encOpts...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, word := range args {
				vec, err := enc.Encode(word)
				if err != nil {
					return fmt.Errorf("word %q: %w", word, err)
				}
				if root.jsonOutput {
					line, err := json.Marshal(map[string]interface{}{"word": word, "phoc": vec})
					if err != nil {
						return err
					}
					fmt.Fprintln(out, string(line))
					continue
				}
				fmt.Fprintf(out, "%s %s\n", word, formatVector(vec))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&symsPath, "syms", "", "symbols table file")
	cmd.Flags().IntSliceVar(&levels, "levels", nil, "pyramid levels (default from config)")
	cmd.Flags().BoolVar(&ignoreMissing, "ignore-missing", false, "skip characters missing from the symbols table")
	_ = cmd.MarkFlagRequired("syms")

	return cmd
}

func formatVector(vec []float64) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}
