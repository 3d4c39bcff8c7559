// ============================================================================
// Catalog Replicator CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: cobra commands around the replicator
//
// Command Structure:
//   replicator                     # Root command
//   ├── run                        # Start pollers, workers and servers
//   ├── sync                       # Run every replicator config once
//   ├── status                     # Print sites, filters and watermarks
//   ├── demo                       # Replicate between in-memory sites
//   └── --config, -c               # Config file (all commands)
//
// run Command:
//   1. Load config (YAML + .env + REPLICATOR_* overrides)
//   2. Open the store and write the configured seeds
//   3. Start the controller, metrics and health servers
//   4. Stop gracefully on SIGINT / SIGTERM
//
// ============================================================================

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ChuLiYu/catalog-replicator/internal/adapter/memory"
	"github.com/ChuLiYu/catalog-replicator/internal/config"
)

// Version is stamped at build time.
var Version = "dev"

const defaultConfigPath = "configs/replicator.yaml"

// BuildCLI returns the root command.
func BuildCLI() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:   "replicator",
		Short: "Catalog replicator: keeps catalog sites in sync",
		Long: `The replicator polls remote catalog sites for changed records,
queues them per site by priority and copies them to the local site,
keeping a per-item history so failed transfers are retried.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", defaultConfigPath, "config file path")

	rootCmd.AddCommand(buildRunCommand(&configFile))
	rootCmd.AddCommand(buildSyncCommand(&configFile))
	rootCmd.AddCommand(buildStatusCommand(&configFile))
	rootCmd.AddCommand(buildDemoCommand())
	return rootCmd
}

func buildRunCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the replicator",
		Long:  "Start polling remote sites and replicating their records to the local site",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runReplicator(ctx, *configFile, cmd.ErrOrStderr())
		},
	}
}

func runReplicator(ctx context.Context, path string, logOut io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cfg.Log, logOut)

	app, err := NewApp(ctx, cfg, logger, memory.NewNetwork())
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}()
	return app.Run(ctx)
}

func buildSyncCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run every replicator config once",
		Long:  "Reconcile source and destination of each active replicator config and print a report",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return syncOnce(ctx, *configFile, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

func syncOnce(ctx context.Context, path string, out, logOut io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app, err := NewApp(ctx, cfg, newLogger(cfg.Log, logOut), memory.NewNetwork())
	if err != nil {
		return err
	}
	defer app.Close()

	reports, err := app.SyncOnce(ctx)
	for _, r := range reports {
		fmt.Fprintf(out, "%s: %s\n", r.ConfigID, r)
	}
	if len(reports) == 0 && err == nil {
		fmt.Fprintln(out, "no active replicator configs")
	}
	return err
}

func buildStatusCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sites, filters and replication watermarks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus(cmd.Context(), *configFile, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

func showStatus(ctx context.Context, path string, out, logOut io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app, err := NewApp(ctx, cfg, newLogger(config.LogConfig{Level: "error"}, logOut), memory.NewNetwork())
	if err != nil {
		return err
	}
	defer app.Close()

	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "  config file:      %s\n", path)
	fmt.Fprintf(out, "  local site:       %s (parallelism %d)\n", cfg.Local.Site, cfg.Local.Parallelism)
	fmt.Fprintf(out, "  queue capacity:   %d\n", cfg.Queue.Capacity)
	fmt.Fprintf(out, "  store:            %s\n", cfg.Store.Driver)
	fmt.Fprintf(out, "  poll period:      %s\n", cfg.Controller.PollPeriod)
	if cfg.Metrics.Enabled {
		fmt.Fprintf(out, "  metrics:          %s/metrics\n", cfg.Metrics.Addr)
	}
	if cfg.Health.Enabled {
		fmt.Fprintf(out, "  health:           %s\n", cfg.Health.Addr)
	}
	fmt.Fprintln(out)

	return app.printStore(ctx, out)
}

func (a *App) printStore(ctx context.Context, out io.Writer) error {
	sites, err := a.store.Sites(ctx)
	if err != nil {
		return fmt.Errorf("list sites: %w", err)
	}
	fmt.Fprintln(out, "Sites:")
	for _, s := range sites {
		role := "remote"
		if s.ID == a.cfg.Local.Site {
			role = "local"
		}
		support := ""
		if !a.registry.Supports(s.Kind) {
			support = " (unsupported kind)"
		}
		fmt.Fprintf(out, "  %s [%s] %s %s%s\n", s.ID, role, s.Kind, s.URL, support)

		filters, err := a.store.Filters(ctx, s.ID)
		if err != nil {
			return fmt.Errorf("list filters of %s: %w", s.ID, err)
		}
		for _, f := range filters {
			idx, err := a.store.GetOrCreateIndex(ctx, f)
			if err != nil {
				return fmt.Errorf("watermark of %s: %w", f.ID, err)
			}
			state := ""
			if f.Suspended {
				state = " suspended"
			}
			fmt.Fprintf(out, "    filter %s priority=%d query=%q watermark=%s%s\n",
				f.ID, f.Priority, f.Query, formatTime(idx.ModifiedSince), state)
		}
	}
	fmt.Fprintln(out)

	configs, err := a.store.Configs(ctx)
	if err != nil {
		return fmt.Errorf("list configs: %w", err)
	}
	fmt.Fprintln(out, "Replicators:")
	if len(configs) == 0 {
		fmt.Fprintln(out, "  none")
	}
	for _, c := range configs {
		dir := "->"
		if c.Bidirectional {
			dir = "<->"
		}
		fmt.Fprintf(out, "  %s: %s %s %s watermark=%s\n", c.ID, c.Source, dir, c.Destination, formatTime(c.LastMetadataModified))
	}
	return nil
}
