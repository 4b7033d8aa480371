// Package main provides the entry point for the speicherwald disk-space
// analyzer.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/speicherwald/speicherwald/internal/api"
	"github.com/speicherwald/speicherwald/internal/config"
	"github.com/speicherwald/speicherwald/internal/db"
	"github.com/speicherwald/speicherwald/internal/scan"
	"github.com/speicherwald/speicherwald/internal/scheduler"
)

// Injected at build time via -ldflags; defaults to "dev".
var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "speicherwald",
		Short: "Disk-space analyzer: scan, aggregate, and serve usage reports",
	}
	root.AddCommand(serveCmd(), scanCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			configureLogging(cfg.LogLevel)

			slog.Info("speicherwald starting", "version", version, "http_addr", cfg.HTTPAddr, "db_path", cfg.DBPath)

			database, store, err := openStore(cfg.DBPath)
			if err != nil {
				return err
			}
			defer database.Close()

			bus := scan.NewEventBus()
			scanCfg := scanConfigFrom(cfg)
			mgr := scan.NewManager(store, bus, scanCfg, slog.Default())

			sched := scheduler.New()
			if cfg.Scheduler.Enabled && cfg.Scheduler.Cron != "" {
				rootPaths := cfg.Scan.RootPaths
				excludes := cfg.Scan.Excludes
				if err := sched.SetJob(cfg.Scheduler.Cron, func() {
					slog.Info("scheduled rescan triggered", "roots", rootPaths)
					opts := scan.DefaultOptions()
					opts.RootPaths = rootPaths
					opts.Excludes = excludes
					if _, err := mgr.Start(context.Background(), opts); err != nil {
						slog.Warn("scheduled rescan start", "error", err)
					}
				}); err != nil {
					slog.Warn("invalid cron expression", "expr", cfg.Scheduler.Cron, "error", err)
				}
			}
			sched.Start()
			defer sched.Stop()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := api.New(cfg.HTTPAddr, store, mgr, bus, sched, version)
			if err := srv.Run(ctx); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			slog.Info("speicherwald stopped")
			return nil
		},
	}
}

func scanCmd() *cobra.Command {
	var excludes []string
	var followSymlinks, includeHidden bool

	cmd := &cobra.Command{
		Use:   "scan [paths...]",
		Short: "Run a one-shot scan from the terminal and print a summary",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			configureLogging(cfg.LogLevel)

			database, store, err := openStore(cfg.DBPath)
			if err != nil {
				return err
			}
			defer database.Close()

			bus := scan.NewEventBus()
			mgr := scan.NewManager(store, bus, scanConfigFrom(cfg), slog.Default())

			opts := scan.DefaultOptions()
			opts.RootPaths = args
			opts.Excludes = excludes
			opts.FollowSymlinks = followSymlinks
			opts.IncludeHidden = includeHidden

			id, err := mgr.Start(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("start scan: %w", err)
			}
			fmt.Printf("scan %s started for %s\n", id, strings.Join(args, ", "))

			if err := mgr.Wait(cmd.Context(), id); err != nil {
				return fmt.Errorf("wait for scan: %w", err)
			}

			s, err := store.GetScan(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("load scan summary: %w", err)
			}
			printSummary(s)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&excludes, "exclude", nil, "glob patterns to exclude")
	cmd.Flags().BoolVar(&followSymlinks, "follow-symlinks", false, "descend into symlinked directories")
	cmd.Flags().BoolVar(&includeHidden, "include-hidden", true, "include hidden/system entries")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			database, err := db.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer database.Close()
			if err := db.RunMigrations(database); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

func openStore(path string) (*sql.DB, *db.Store, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.RunMigrations(database); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	return database, db.NewStore(database), nil
}

func scanConfigFrom(cfg *config.Config) scan.Config {
	c := scan.DefaultConfig()
	if cfg.Scan.BatchSize > 0 {
		c.BatchSize = cfg.Scan.BatchSize
	}
	if cfg.Scan.FlushThreshold > 0 {
		c.FlushThreshold = cfg.Scan.FlushThreshold
	}
	if cfg.Scan.FlushIntervalMs > 0 {
		c.FlushIntervalMs = cfg.Scan.FlushIntervalMs
	}
	if cfg.Scan.DirConcurrency > 0 {
		c.DirConcurrency = cfg.Scan.DirConcurrency
	}
	if cfg.Scan.ProgressIntervalMs > 0 {
		c.ProgressIntervalMs = cfg.Scan.ProgressIntervalMs
	}
	if cfg.Scan.SizeCacheEntries > 0 {
		c.SizeCacheEntries = cfg.Scan.SizeCacheEntries
	}
	return c
}

func printSummary(s *db.ScanSummary) {
	fmt.Printf("scan %s: %s\n", s.ID, s.Status)
	if s.TotalAllocatedSize != nil {
		fmt.Printf("  allocated: %s\n", humanize.Bytes(uint64(*s.TotalAllocatedSize)))
	}
	if s.TotalLogicalSize != nil {
		fmt.Printf("  logical:   %s\n", humanize.Bytes(uint64(*s.TotalLogicalSize)))
	}
	if s.FileCount != nil {
		fmt.Printf("  files:     %d\n", *s.FileCount)
	}
	if s.DirCount != nil {
		fmt.Printf("  dirs:      %d\n", *s.DirCount)
	}
	if s.WarningCount != nil && *s.WarningCount > 0 {
		fmt.Printf("  warnings:  %d\n", *s.WarningCount)
	}
}

func configureLogging(level string) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(level),
	})))
}

// parseLogLevel converts a config string ("debug", "info", "warn", "error")
// to its slog.Level equivalent. Unknown values default to Info.
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
