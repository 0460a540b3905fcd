package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/statuswatch/internal/config"
	"github.com/hazz-dev/statuswatch/internal/history"
	"github.com/hazz-dev/statuswatch/internal/statestore"
	"github.com/hazz-dev/statuswatch/internal/version"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "statuswatch",
		Short:        "Periodic external-service prober with incident notifications",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "config.yml", "config file path")

	root.AddCommand(versionCmd())
	root.AddCommand(runCmd())
	root.AddCommand(notifyCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(cleanupCmd())

	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("statuswatch %s (commit %s, built %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one cycle of all configured checks and append results to the day log",
		RunE:  runRun,
	}
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := statestore.Open(cfg.Storage.StatePath)
	if err != nil {
		return fmt.Errorf("opening state store: %w", err)
	}
	defer db.Close()

	return executeRun(cmd, cfg, db, history.New(cfg.Storage.DataDir), slog.Default())
}

func notifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notify",
		Short: "Evaluate incident transitions from the latest results and deliver notifications",
		RunE:  runNotify,
	}
}

func runNotify(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := statestore.Open(cfg.Storage.StatePath)
	if err != nil {
		return fmt.Errorf("opening state store: %w", err)
	}
	defer db.Close()

	return executeNotify(cmd, cfg, db, history.New(cfg.Storage.DataDir), slog.Default())
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the latest result per check from the day log",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return executeStatus(cmd, cfg, history.New(cfg.Storage.DataDir))
}

func cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove day logs older than the retention window",
		RunE:  runCleanup,
	}
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := history.New(cfg.Storage.DataDir)
	removed, err := log.Cleanup(cfg.Storage.RetentionDays, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("cleaning up history: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "cleanup: removed %d file(s) older than %d days\n", removed, cfg.Storage.RetentionDays)
	return nil
}
