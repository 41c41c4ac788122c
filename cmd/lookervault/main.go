// Command lookervault backs up, restores, and bulk-edits Looker content.
//
// Credentials are read from LOOKERSDK_BASE_URL, LOOKERSDK_CLIENT_ID, and
// LOOKERSDK_CLIENT_SECRET. Everything else comes from lookervault.toml,
// LOOKERVAULT_* environment variables, or flags.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/z3z1ma/lookervault-sub000/internal/config"
	"github.com/z3z1ma/lookervault-sub000/internal/storage"
	"github.com/z3z1ma/lookervault-sub000/internal/storage/sqlite"
	"github.com/z3z1ma/lookervault-sub000/internal/telemetry"
)

// Version and Build are set via ldflags at release time.
var (
	Version = "dev"
	Build   = "unknown"
)

// Globals shared by all commands. Set once in PersistentPreRunE and torn
// down in PersistentPostRun.
var (
	cfgFile     string
	dbPath      string
	jsonOutput  bool
	verboseFlag bool
	quietFlag   bool

	rootCtx    context.Context
	rootCancel context.CancelFunc

	cfg   *config.Config
	store storage.Store
)

// noStoreCommands run without opening the repository database. The check
// covers the command and its parent so "config init" matches via "config".
var noStoreCommands = []string{"config", "ping", "help", "completion", "version", "__complete"}

func isNoStoreCommand(cmd *cobra.Command) bool {
	if cmd.Parent() != nil && slices.Contains(noStoreCommands, cmd.Parent().Name()) {
		return true
	}
	if slices.Contains(noStoreCommands, cmd.Name()) {
		return true
	}
	// Bare "lookervault" just shows help.
	if cmd.Parent() == nil {
		return true
	}
	return false
}

var rootCmd = &cobra.Command{
	Use:   "lookervault",
	Short: "lookervault - Looker content backup and restore",
	Long: `Extract Looker content into a local SQLite repository, restore it to the
same or another instance, and round-trip it through editable YAML files.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("lookervault version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupSignalContext()
		applyVerbosityFlags()

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return exitWith(exitValidation, err)
		}
		if dbPath != "" {
			cfg.Database = dbPath
		}

		if err := telemetry.Init(rootCtx, "lookervault", Version); err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}

		if isNoStoreCommand(cmd) {
			return nil
		}
		return openStore()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			if err := store.Close(); err != nil {
				log.WithFields(log.Fields{"error": err}).Warn("closing repository")
			}
			store = nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.Shutdown(ctx)
		if rootCancel != nil {
			rootCancel()
		}
	},
}

// setupSignalContext installs the root context cancelled by Ctrl-C or
// SIGTERM. Orchestrators checkpoint on cancellation, so an interrupted
// run is resumable.
func setupSignalContext() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func applyVerbosityFlags() {
	log.SetOutput(os.Stderr)
	switch {
	case verboseFlag || os.Getenv("LOOKERVAULT_DEBUG") == "1":
		log.SetLevel(log.DebugLevel)
	case quietFlag:
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
	if jsonOutput {
		log.SetFormatter(&log.JSONFormatter{})
	}
}

func openStore() error {
	s, err := sqlite.New(rootCtx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open repository %s: %w", cfg.Database, err)
	}
	store = telemetry.WrapStore(s)
	return nil
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default lookervault.toml, then user config dir)")
	pf.StringVar(&dbPath, "db", "", "repository database path (overrides config)")
	pf.BoolVar(&jsonOutput, "json", false, "machine-readable JSON output")
	pf.BoolVarP(&verboseFlag, "verbose", "v", false, "debug logging")
	pf.BoolVarP(&quietFlag, "quiet", "q", false, "errors only")
	rootCmd.Flags().BoolP("version", "V", false, "print version and exit")
}

func main() {
	rootCmd.InitDefaultHelpCmd()
	if err := rootCmd.Execute(); err != nil {
		code := exitCode(err)
		if code == exitInterrupted {
			fmt.Fprintln(os.Stderr, "Interrupted.")
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(code)
	}
}
