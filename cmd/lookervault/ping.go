package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/z3z1ma/lookervault-sub000/internal/codec"
	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check connectivity and credentials against the Looker instance",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := restClient(cfg)
		if err != nil {
			return err
		}

		me, err := client.Me(rootCtx)
		if err != nil {
			return exitWith(exitConnection, fmt.Errorf("ping %s: %w", client.BaseURL(), err))
		}
		versions, err := client.Versions(rootCtx)
		if err != nil {
			return exitWith(exitConnection, fmt.Errorf("ping %s: %w", client.BaseURL(), err))
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"instance": client.BaseURL(),
				"user":     me,
				"versions": versions,
			})
			return nil
		}

		okColor.Printf("✓ %s\n", client.BaseURL())
		if name := codec.DisplayName(types.TypeUser, me); name != "" {
			fmt.Printf("  authenticated as %s\n", name)
		}
		if cv, ok := versions["current_version"].(map[string]any); ok {
			if v, ok := codec.StringField(cv, "version"); ok {
				fmt.Printf("  API version %s\n", v)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
