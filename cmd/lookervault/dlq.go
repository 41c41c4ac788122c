package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/z3z1ma/lookervault-sub000/internal/codec"
	"github.com/z3z1ma/lookervault-sub000/internal/timeparsing"
	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

var (
	dlqSession string
	dlqType    string
	dlqSince   string
	dlqLimit   int
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect and retry dead-lettered restore failures",
	Long: `Items that exhaust their retries during a restore land in the dead-letter
queue with their full payload, so nothing is lost when an instance
misbehaves. List what failed, inspect a single entry, retry once the
underlying problem is fixed, or clear entries that no longer matter.`,
}

// dlqFilter builds the shared list/retry filter from flags. --since
// accepts the same forms as other time flags: -7d, 2025-01-15, RFC3339,
// or natural language.
func dlqFilter() (types.DLQFilter, error) {
	filter := types.DLQFilter{
		SessionID: dlqSession,
		Limit:     dlqLimit,
	}
	if dlqType != "" {
		ct, err := types.ParseContentType(dlqType)
		if err != nil {
			return filter, exitWith(exitValidation, err)
		}
		filter.ContentType = ct
	}
	if dlqSince != "" {
		since, err := timeparsing.ParseSince(dlqSince, time.Now())
		if err != nil {
			return filter, exitWith(exitValidation, fmt.Errorf("--since: %w", err))
		}
		filter.Since = &since
	}
	return filter, nil
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered items",
	Example: `  lookervault restore dlq list
  lookervault restore dlq list --session 0198c5f2-... --type dashboard --since -7d`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := dlqFilter()
		if err != nil {
			return err
		}
		items, err := store.ListDLQ(rootCtx, filter)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(items)
			return nil
		}
		if len(items) == 0 {
			fmt.Println("Dead-letter queue is empty.")
			return nil
		}
		printHeader("%6s  %-14s  %-12s  %-12s  %7s  %s", "ID", "TYPE", "CONTENT", "ERROR", "RETRIES", "FAILED AT")
		for _, it := range items {
			fmt.Printf("%6d  %-14s  %-12s  %-12s  %7d  %s\n",
				it.ID, it.ContentType, it.ContentID, it.ErrorType, it.RetryCount, formatTime(it.FailedAt))
		}
		return nil
	},
}

var dlqShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show one dead-lettered item, payload included",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseDLQID(args[0])
		if err != nil {
			return err
		}
		item, err := store.GetDLQItem(rootCtx, id)
		if err != nil {
			return err
		}

		payload, decodeErr := codec.Decode(item.ContentData)

		if jsonOutput {
			out := map[string]interface{}{"item": item}
			if decodeErr == nil {
				out["payload"] = payload
			}
			outputJSON(out)
			return nil
		}

		printHeader("Dead-letter entry %d", item.ID)
		fmt.Printf("  session:  %s\n", item.SessionID)
		fmt.Printf("  content:  %s %s\n", item.ContentType, item.ContentID)
		fmt.Printf("  error:    [%s] %s\n", item.ErrorType, item.ErrorMessage)
		fmt.Printf("  retries:  %d\n", item.RetryCount)
		fmt.Printf("  failed:   %s\n", formatTime(item.FailedAt))
		if decodeErr != nil {
			warnColor.Printf("  payload undecodable: %v\n", decodeErr)
			return nil
		}
		fmt.Println("  payload:")
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(payload); err != nil {
			return fmt.Errorf("render payload: %w", err)
		}
		return enc.Close()
	},
}

var dlqRetryCmd = &cobra.Command{
	Use:   "retry [ID]",
	Short: "Retry dead-lettered items against the destination",
	Long: `Retry re-runs the stored payload through the normal restoration path.
With an ID it retries that entry alone; without one it retries every
entry matching the filter flags. Entries that succeed leave the queue,
entries that fail again go back with their retry count bumped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, opts, err := newRestoreOrchestrator()
		if err != nil {
			return err
		}

		if len(args) == 1 {
			id, err := parseDLQID(args[0])
			if err != nil {
				return err
			}
			res, err := orch.RetryDLQItem(rootCtx, id, opts)
			if err != nil {
				return err
			}
			if jsonOutput {
				outputJSON(res)
			} else {
				printRestorationResult(res)
			}
			if res.Err != nil {
				return fmt.Errorf("retry %d: %w", id, res.Err)
			}
			return nil
		}

		filter, err := dlqFilter()
		if err != nil {
			return err
		}
		res, err := orch.RetryDLQ(rootCtx, filter, opts)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(res)
			return nil
		}
		for _, r := range res.Results {
			printRestorationResult(r)
		}
		fmt.Printf("\n%d attempted, %d succeeded", res.Attempted, res.Succeeded)
		if res.Failed > 0 {
			failColor.Printf(", %d failed", res.Failed)
		}
		fmt.Println()
		return nil
	},
}

var dlqClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete dead-lettered items",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		scope := "all dead-lettered items"
		if dlqSession != "" {
			scope = "dead-lettered items for session " + dlqSession
		}
		if !restoreForce {
			ok, err := confirm(fmt.Sprintf("Delete %s?", scope), "Delete")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("Aborted.")
				return nil
			}
		}
		n, err := store.ClearDLQ(rootCtx, dlqSession)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(map[string]int{"deleted": n})
			return nil
		}
		fmt.Printf("Deleted %d items.\n", n)
		return nil
	},
}

func parseDLQID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, exitWith(exitValidation, fmt.Errorf("invalid dead-letter ID %q", raw))
	}
	return id, nil
}

func init() {
	for _, c := range []*cobra.Command{dlqListCmd, dlqRetryCmd, dlqClearCmd} {
		c.Flags().StringVar(&dlqSession, "session", "", "filter by restoration session ID")
	}
	for _, c := range []*cobra.Command{dlqListCmd, dlqRetryCmd} {
		c.Flags().StringVar(&dlqType, "type", "", "filter by content type")
		c.Flags().StringVar(&dlqSince, "since", "", "only items failed after this time (-7d, 2025-01-15, yesterday)")
		c.Flags().IntVar(&dlqLimit, "limit", 0, "maximum items")
	}

	dlqCmd.AddCommand(dlqListCmd)
	dlqCmd.AddCommand(dlqShowCmd)
	dlqCmd.AddCommand(dlqRetryCmd)
	dlqCmd.AddCommand(dlqClearCmd)
	restoreCmd.AddCommand(dlqCmd)
}
