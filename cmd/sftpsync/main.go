package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/schaermu/sftpsync/internal/config"
	"github.com/schaermu/sftpsync/internal/remote"
	"github.com/schaermu/sftpsync/internal/sync"
	"github.com/spf13/cobra"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	statePath string
	logLevel  string
	logFormat string
	dryRun    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sftpsync",
	Short: "Synchronize files from an SFTP server to local storage",
	Long: `sftpsync performs a one-time download of files from an SFTP server into a
local directory.

Remote entries are selected by one of several modes: an explicit file list,
a recursive clone of the remote root, the direct children of one directory,
or a prefix-filtered walk. After a successful transfer the remote copies can
be pruned under a run-wide deletion cap, and an incremental mode discards
local files whose content was already captured in a previous run.`,
	SilenceUsage: true,
	RunE:         runSync,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sftpsync %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (required)")
	rootCmd.PersistentFlags().StringVar(&statePath, "state", "", "content-hash ledger file (required when incremental_mode is enabled)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be done without making changes")

	rootCmd.AddCommand(versionCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	// Setup logger
	logger := setupLogger()

	// Load configuration
	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// The state path is part of the configuration surface: catch it here,
	// before any connection is attempted.
	if cfg.IncrementalMode && statePath == "" {
		return fmt.Errorf("--state is required when incremental_mode is enabled")
	}

	// Create the remote store client
	store := remote.NewSFTPClient(cfg.Addr(), remote.Credentials{
		Username:   cfg.Username,
		Password:   cfg.Password,
		PrivateKey: cfg.PrivateKey,
		KnownHosts: cfg.KnownHosts,
	}, logger)

	// Create sync engine
	engine := sync.NewEngine(cfg, store, logger, statePath, dryRun)

	// Run sync
	logger.Info("starting sync operation")
	if err := engine.Run(ctx); err != nil {
		logger.Error("sync failed", "error", err)
		return err
	}

	return nil
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Create handler based on format
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	if cfgFile == "" {
		return nil, fmt.Errorf("--config is required")
	}

	logger.Info("loading configuration", "path", cfgFile)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"host", cfg.Host,
		"mode", string(cfg.Mode()),
		"target_dir", cfg.TargetDir,
		"delete_after_sync", cfg.DeleteAfterSync,
		"incremental_mode", cfg.IncrementalMode)

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
