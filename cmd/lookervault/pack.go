package main

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/z3z1ma/lookervault-sub000/internal/looker"
	"github.com/z3z1ma/lookervault-sub000/internal/pack"
)

var (
	packInput     string
	packDryRun    bool
	packForce     bool
	packBatchSize int
	packWatch     bool
)

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Import an edited YAML tree back into the repository",
	Long: `Pack validates every YAML file under the input directory and writes the
changed ones back to the repository in transactional batches. Edited
dashboard queries are recreated on the Looker instance first so the
stored dashboards reference real query IDs. Nothing is written until
the whole tree validates.`,
	Example: `  lookervault pack --input ./export --dry-run
  lookervault pack --input ./export
  lookervault pack --input ./export --watch`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := pack.PackOptions{
			InputDir:  packInput,
			DryRun:    packDryRun,
			Force:     packForce,
			BatchSize: packBatchSize,
		}

		// Query remapping needs the API only for a real import. Dry runs
		// and watch mode plan remaps without creating anything, so missing
		// credentials must not block them.
		var client looker.Client
		if !packDryRun && !packWatch {
			c, err := restClient(cfg)
			if err != nil {
				log.WithFields(log.Fields{"error": err}).
					Debug("no API client, pack will fail if queries need remapping")
			} else {
				client = c
			}
		}
		engine := pack.New(store, client)

		if packWatch {
			err := engine.Watch(rootCtx, opts, printWatchResult)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		res, err := engine.Pack(rootCtx, opts)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(res)
			return nil
		}
		printPackResult(res)
		return nil
	},
}

func init() {
	packCmd.Flags().StringVar(&packInput, "input", "", "export directory to import (required)")
	packCmd.Flags().BoolVar(&packDryRun, "dry-run", false, "validate and plan without writing")
	packCmd.Flags().BoolVar(&packForce, "force", false, "mark items deleted when their file was removed from the tree")
	packCmd.Flags().IntVar(&packBatchSize, "batch-size", 0, "items per write transaction")
	packCmd.Flags().BoolVar(&packWatch, "watch", false, "re-validate the tree on every file change")
	_ = packCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(packCmd)
}

func printPackResult(res *pack.PackResult) {
	title := "Pack"
	if res.DryRun {
		title = "Pack (dry run)"
	}
	printHeader("%s: %d files", title, res.Files)
	fmt.Printf("  unchanged  %5d\n", res.Unchanged)
	fmt.Printf("  modified   %5d\n", res.Modified)
	fmt.Printf("  new        %5d\n", res.New)
	if res.Deleted > 0 {
		fmt.Printf("  deleted    %5d\n", res.Deleted)
	}
	if res.QueriesCreated > 0 {
		fmt.Printf("  queries    %5d remapped\n", res.QueriesCreated)
	}
	fmt.Printf("\ndone in %s\n", formatDuration(res.Duration))
}

// printWatchResult reports one watch cycle. Validation failures are the
// interesting output here, not a reason to stop watching.
func printWatchResult(res *pack.PackResult, err error) {
	if err != nil {
		var invalid *pack.ValidationErrors
		if errors.As(err, &invalid) {
			failColor.Printf("✗ %v\n", err)
			return
		}
		failColor.Printf("✗ watch run failed: %v\n", err)
		return
	}
	if res.Modified == 0 && res.New == 0 && res.Deleted == 0 {
		dimColor.Printf("✓ %d files clean\n", res.Files)
		return
	}
	okColor.Printf("✓ %d files: %d modified, %d new", res.Files, res.Modified, res.New)
	if res.Deleted > 0 {
		fmt.Printf(", %d deleted", res.Deleted)
	}
	fmt.Println()
}
