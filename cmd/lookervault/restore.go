package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/z3z1ma/lookervault-sub000/internal/metrics"
	"github.com/z3z1ma/lookervault-sub000/internal/restore"
	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

var (
	restoreFlags  runFlags
	restoreDryRun bool
	restoreForce  bool
	restoreSource string
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore repository content to a Looker instance",
	Long: `Restore pushes stored content back to the instance named by
LOOKERSDK_BASE_URL. Items are created when absent and updated in place
when present. Failures that survive retries land in the dead-letter
queue for later inspection.`,
}

// newRestoreOrchestrator builds the orchestrator plus the options every
// restore subcommand shares. The destination instance comes from the
// client so session rows record where content actually went.
func newRestoreOrchestrator() (*restore.Orchestrator, restore.Options, error) {
	client, err := restClient(cfg)
	if err != nil {
		return nil, restore.Options{}, err
	}

	folderIDs, err := expandFolderIDs(rootCtx, restoreFlags.folderIDs, restoreFlags.recursive)
	if err != nil {
		return nil, restore.Options{}, err
	}

	orch := restore.New(store, client, restoreFlags.limiter(cfg), metrics.NewSession())
	opts := restore.Options{
		Workers:             restoreFlags.effectiveWorkers(cfg),
		CheckpointInterval:  orZero(restoreFlags.checkpointInterval, cfg.CheckpointInterval),
		MaxRetries:          orZero(restoreFlags.maxRetries, cfg.MaxRetries),
		FolderIDs:           folderIDs,
		DryRun:              restoreDryRun,
		Force:               restoreForce,
		SourceInstance:      restoreSource,
		DestinationInstance: client.BaseURL(),
	}
	return orch, opts, nil
}

var restoreSingleCmd = &cobra.Command{
	Use:   "single TYPE ID",
	Short: "Restore one content item",
	Example: `  lookervault restore single dashboard 42
  lookervault restore single look 7 --dry-run`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ct, err := types.ParseContentType(args[0])
		if err != nil {
			return exitWith(exitValidation, err)
		}

		orch, opts, err := newRestoreOrchestrator()
		if err != nil {
			return err
		}

		res, err := orch.RestoreSingle(rootCtx, ct, args[1], opts)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(res)
		} else {
			printRestorationResult(res)
		}
		if res.Err != nil {
			return fmt.Errorf("restore %s %s: %w", ct, res.ContentID, res.Err)
		}
		return nil
	},
}

var restoreBulkCmd = &cobra.Command{
	Use:   "bulk TYPE",
	Short: "Restore every stored item of one content type",
	Example: `  lookervault restore bulk dashboard
  lookervault restore bulk look --folder-ids 42 --recursive --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ct, err := types.ParseContentType(args[0])
		if err != nil {
			return exitWith(exitValidation, err)
		}

		orch, opts, err := newRestoreOrchestrator()
		if err != nil {
			return err
		}

		res, err := orch.RestoreBulk(rootCtx, ct, opts)
		if err != nil {
			return err
		}
		reportRestoreResult(res)
		return nil
	},
}

var restoreAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Restore every restorable content type in dependency order",
	Long: `Restore all pushes folders first, then the content that lives in them,
so references resolve on the destination. This touches everything in the
repository; pass --force or answer the prompt to proceed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, opts, err := newRestoreOrchestrator()
		if err != nil {
			return err
		}

		if !opts.Force && !opts.DryRun {
			ok, err := confirm(
				fmt.Sprintf("Restore all stored content to %s?", opts.DestinationInstance),
				"Restore everything",
			)
			if err != nil {
				return fmt.Errorf("%w (or use --dry-run to preview)", err)
			}
			if !ok {
				fmt.Println("Aborted.")
				return nil
			}
			opts.Force = true
		}

		res, err := orch.RestoreAll(rootCtx, opts)
		if err != nil {
			if errors.Is(err, restore.ErrForceRequired) {
				return fmt.Errorf("%w (pass --force, or --dry-run to preview)", err)
			}
			return err
		}
		reportRestoreResult(res)
		return nil
	},
}

var restoreResumeCmd = &cobra.Command{
	Use:   "resume SESSION_ID",
	Short: "Resume an interrupted restoration session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, _, err := newRestoreOrchestrator()
		if err != nil {
			return err
		}
		res, err := orch.Resume(rootCtx, args[0])
		if err != nil {
			return err
		}
		reportRestoreResult(res)
		return nil
	},
}

var restoreStatusCmd = &cobra.Command{
	Use:   "status [SESSION_ID]",
	Short: "Show restoration sessions, or one session in detail",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return showRestorationSession(args[0])
		}
		return listRestorationSessions()
	},
}

func init() {
	pf := restoreCmd.PersistentFlags()
	restoreFlags.register(pf)
	restoreFlags.registerFolderFilter(pf)
	pf.BoolVar(&restoreDryRun, "dry-run", false, "report what would change without writing")
	pf.BoolVar(&restoreForce, "force", false, "skip confirmation prompts")
	pf.StringVar(&restoreSource, "source-instance", "", "translate IDs recorded under this source instance URL")

	restoreCmd.AddCommand(restoreSingleCmd)
	restoreCmd.AddCommand(restoreBulkCmd)
	restoreCmd.AddCommand(restoreAllCmd)
	restoreCmd.AddCommand(restoreResumeCmd)
	restoreCmd.AddCommand(restoreStatusCmd)
	rootCmd.AddCommand(restoreCmd)
}

func printRestorationResult(res *types.RestorationResult) {
	switch {
	case res.Err != nil:
		failColor.Printf("✗ %s %s: %v\n", res.ContentType, res.ContentID, res.Err)
	case res.Action == types.ActionSkipped:
		fmt.Printf("- %s %s skipped\n", res.ContentType, res.ContentID)
	default:
		okColor.Printf("✓ %s %s %s", res.ContentType, res.ContentID, res.Action)
		if res.DestinationID != "" && res.DestinationID != res.ContentID {
			fmt.Printf(" as %s", res.DestinationID)
		}
		if res.Attempts > 1 {
			fmt.Printf(" (%d attempts)", res.Attempts)
		}
		fmt.Println()
	}
}

// reportRestoreResult prints a bulk summary. Per-item failures are data
// problems recorded in the dead-letter queue, not command failures, so
// the command still exits zero after printing where to look.
func reportRestoreResult(res *restore.Result) {
	if jsonOutput {
		outputJSON(res)
		return
	}
	title := "Restoration " + res.SessionID
	if res.DryRun {
		title += " (dry run)"
	}
	printHeader("%s", title)
	for _, ts := range res.Types {
		line := fmt.Sprintf("  %-14s %d created, %d updated, %d skipped",
			ts.ContentType, ts.Created, ts.Updated, ts.Skipped)
		if ts.Failed > 0 {
			line += failColor.Sprintf(", %d failed", ts.Failed)
		}
		fmt.Println(line)
	}
	fmt.Printf("\n%d created, %d updated, %d skipped in %s\n",
		res.Created, res.Updated, res.Skipped, formatDuration(res.Duration))
	if res.Failed > 0 && !res.DryRun {
		warnColor.Printf("%d items dead-lettered; inspect with: lookervault restore dlq list --session %s\n",
			res.Failed, res.SessionID)
	}
}

func listRestorationSessions() error {
	sessions, err := store.ListRestorationSessions(rootCtx, 20)
	if err != nil {
		return err
	}
	if jsonOutput {
		outputJSON(sessions)
		return nil
	}
	if len(sessions) == 0 {
		fmt.Println("No restoration sessions.")
		return nil
	}
	printHeader("%-36s  %-10s  %7s  %6s  %s", "SESSION", "STATUS", "ITEMS", "FAILED", "STARTED")
	for _, s := range sessions {
		fmt.Printf("%-36s  %-10s  %7d  %6d  %s\n",
			s.ID, s.Status, s.TotalItems, s.ErrorCount, formatTime(s.StartedAt))
	}
	return nil
}

func showRestorationSession(id string) error {
	sess, err := store.GetRestorationSession(rootCtx, id)
	if err != nil {
		return err
	}
	checkpoints, err := store.ListRestorationCheckpoints(rootCtx, id)
	if err != nil {
		return err
	}
	dlq, err := store.ListDLQ(rootCtx, types.DLQFilter{SessionID: id})
	if err != nil {
		return err
	}

	if jsonOutput {
		outputJSON(map[string]interface{}{
			"session":     sess,
			"checkpoints": checkpoints,
			"dlq_count":   len(dlq),
		})
		return nil
	}

	printHeader("Session %s", sess.ID)
	fmt.Printf("  status:      %s\n", sess.Status)
	fmt.Printf("  destination: %s\n", sess.DestinationInstance)
	fmt.Printf("  started:     %s\n", formatTime(sess.StartedAt))
	fmt.Printf("  completed:   %s\n", formatOptionalTime(sess.CompletedAt))
	fmt.Printf("  items:       %d total, %d succeeded, %d failed\n",
		sess.TotalItems, sess.SuccessCount, sess.ErrorCount)
	if len(checkpoints) > 0 {
		fmt.Println("  checkpoints:")
		for _, cp := range checkpoints {
			state := "in progress"
			if cp.Complete() {
				state = "complete"
			}
			fmt.Printf("    %-14s %d processed, %s\n", cp.ContentType, cp.ItemCount, state)
		}
	}
	if len(dlq) > 0 {
		warnColor.Printf("  %d dead-lettered items; see: lookervault restore dlq list --session %s\n", len(dlq), sess.ID)
	}
	return nil
}
