package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/z3z1ma/lookervault-sub000/internal/config"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage lookervault settings",
}

var configInitCmd = &cobra.Command{
	Use:   "init [PATH]",
	Short: "Write a commented config file with the default settings",
	Long: `Init writes lookervault.toml (or PATH) with every setting at its default,
commented for editing. Credentials never live in this file; they are
read from LOOKERSDK_BASE_URL, LOOKERSDK_CLIENT_ID, and
LOOKERSDK_CLIENT_SECRET.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "lookervault.toml"
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.WriteDefault(path, configInitForce); err != nil {
			return exitWith(exitValidation, err)
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective settings after file, env, and flag overrides",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if jsonOutput {
			outputJSON(cfg)
			return nil
		}
		return toml.NewEncoder(os.Stdout).Encode(cfg)
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
