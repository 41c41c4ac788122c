package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what the repository holds and recent session activity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		counts := make(map[string]int)
		total := 0
		for _, ct := range types.AllContentTypes() {
			n, err := store.CountContent(rootCtx, ct, types.ContentFilter{})
			if err != nil {
				return err
			}
			if n > 0 {
				counts[string(ct)] = n
				total += n
			}
		}

		extractions, err := store.ListExtractionSessions(rootCtx, 5)
		if err != nil {
			return err
		}
		restorations, err := store.ListRestorationSessions(rootCtx, 5)
		if err != nil {
			return err
		}
		dlq, err := store.ListDLQ(rootCtx, types.DLQFilter{})
		if err != nil {
			return err
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"database":             cfg.Database,
				"content_counts":       counts,
				"total_items":          total,
				"extraction_sessions":  extractions,
				"restoration_sessions": restorations,
				"dlq_count":            len(dlq),
			})
			return nil
		}

		printHeader("Repository %s", cfg.Database)
		if total == 0 {
			fmt.Println("  empty; run: lookervault extract")
		}
		for _, ct := range types.AllContentTypes() {
			if n := counts[string(ct)]; n > 0 {
				fmt.Printf("  %-14s %6d\n", ct, n)
			}
		}

		if len(extractions) > 0 {
			fmt.Println()
			printHeader("Recent extractions")
			for _, s := range extractions {
				printSessionLine(s.ID, string(s.Status), s.TotalItems, s.ErrorCount, formatTime(s.StartedAt))
			}
		}
		if len(restorations) > 0 {
			fmt.Println()
			printHeader("Recent restorations")
			for _, s := range restorations {
				printSessionLine(s.ID, string(s.Status), s.TotalItems, s.ErrorCount, formatTime(s.StartedAt))
			}
		}
		if len(dlq) > 0 {
			fmt.Println()
			warnColor.Printf("%d dead-lettered items; see: lookervault restore dlq list\n", len(dlq))
		}
		return nil
	},
}

func printSessionLine(id, status string, items, failed int, started string) {
	line := fmt.Sprintf("  %-36s  %-10s  %6d items", id, status, items)
	if failed > 0 {
		line += failColor.Sprintf("  %d failed", failed)
	}
	fmt.Printf("%s  %s\n", line, started)
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
