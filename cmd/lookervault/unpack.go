package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/z3z1ma/lookervault-sub000/internal/pack"
	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

var (
	unpackOutput   string
	unpackStrategy string
)

var unpackCmd = &cobra.Command{
	Use:   "unpack",
	Short: "Export repository content to an editable YAML tree",
	Long: `Unpack writes every stored item as a YAML file under the output
directory, plus a metadata.json manifest recording counts, the folder
tree, and a checksum. The full strategy groups files by content type;
the folder strategy mirrors the Looker folder hierarchy for dashboards
and looks.`,
	Example: `  lookervault unpack --output ./export
  lookervault unpack --output ./export --strategy folder`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		strategy := pack.Strategy(unpackStrategy)
		if !strategy.Valid() {
			return exitWith(exitValidation,
				fmt.Errorf("unknown strategy %q (use full or folder)", unpackStrategy))
		}

		engine := pack.New(store, nil)
		res, err := engine.Unpack(rootCtx, pack.UnpackOptions{
			OutputDir:      unpackOutput,
			Strategy:       strategy,
			SourceDatabase: cfg.Database,
		})
		if err != nil {
			return err
		}

		if jsonOutput {
			outputJSON(res)
			return nil
		}
		printHeader("Exported %d items to %s (%s layout)", res.TotalItems, res.OutputDir, res.Strategy)
		for _, ct := range types.AllContentTypes() {
			if n := res.Counts[ct]; n > 0 {
				fmt.Printf("  %-14s %5d\n", ct, n)
			}
		}
		fmt.Printf("\nchecksum %s in %s\n", res.Checksum, formatDuration(res.Duration))
		return nil
	},
}

func init() {
	unpackCmd.Flags().StringVar(&unpackOutput, "output", "looker_export", "directory to write the YAML tree into")
	unpackCmd.Flags().StringVar(&unpackStrategy, "strategy", "full", "tree layout: full or folder")
	rootCmd.AddCommand(unpackCmd)
}
