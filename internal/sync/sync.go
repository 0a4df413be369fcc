package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"

	"github.com/schaermu/sftpsync/internal/config"
	"github.com/schaermu/sftpsync/internal/remote"
	"github.com/schaermu/sftpsync/internal/selection"
)

// Engine orchestrates the sync process
type Engine struct {
	cfg       *config.Config
	store     remote.Client
	logger    *slog.Logger
	statePath string
	dryRun    bool
}

// NewEngine creates a new sync engine
func NewEngine(cfg *config.Config, store remote.Client, logger *slog.Logger, statePath string, dryRun bool) *Engine {
	return &Engine{
		cfg:       cfg,
		store:     store,
		logger:    logger,
		statePath: statePath,
		dryRun:    dryRun,
	}
}

// Run executes the complete sync process
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("starting sync",
		"host", e.cfg.Host,
		"mode", string(e.cfg.Mode()),
		"auth", e.cfg.AuthMethod(),
		"dry_run", e.dryRun)

	if e.cfg.IncrementalMode && e.statePath == "" {
		return fmt.Errorf("state file path is required when incremental_mode is enabled")
	}

	// Load previous ledger before touching the network
	var ledger Ledger
	if e.cfg.IncrementalMode {
		var err error
		ledger, err = e.loadLedger()
		if err != nil {
			e.logger.Warn("failed to load ledger (will treat every file as new)", "error", err)
			ledger = make(Ledger)
		}
	}

	// Connect
	e.logger.Info("connecting to remote store", "addr", e.cfg.Addr())
	if err := e.store.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() {
		_ = e.store.Close()
	}()

	// Select files for the configured mode
	items, err := selection.Select(e.store, e.cfg)
	if err != nil {
		return fmt.Errorf("failed to select remote files: %w", err)
	}
	e.logger.Info("selected remote files", "count", len(items))

	// check for dry-run mode
	if e.dryRun {
		e.logDryRun(items)
		return nil
	}

	// Download phase
	downloaded, err := e.downloadAll(ctx, items)
	if err != nil {
		return fmt.Errorf("failed to download files: %w", err)
	}

	// One budget per run, shared by the deletion phase and the
	// reconciliation phase
	budget := NewBudget(e.cfg.MaxFileCount)

	// Deletion phase
	if e.cfg.DeleteAfterSync {
		if err := e.deletePhase(downloaded, budget); err != nil {
			return fmt.Errorf("failed to prune remote files: %w", err)
		}
	}

	// Reconciliation phase
	if e.cfg.IncrementalMode {
		if err := e.reconcile(ledger, budget); err != nil {
			return fmt.Errorf("failed to reconcile against ledger: %w", err)
		}
		if err := e.saveLedger(ledger); err != nil {
			return fmt.Errorf("failed to save ledger: %w", err)
		}
	}

	e.logger.Info("sync completed successfully",
		"downloaded", len(downloaded),
		"remote_removed", budget.Removed())
	return nil
}

// downloadAll fetches the selected items in order and returns the items
// actually downloaded. With a configured file cap this may be fewer than
// were selected.
func (e *Engine) downloadAll(ctx context.Context, items []selection.Item) ([]selection.Item, error) {
	// Ensure target directory exists
	if err := os.MkdirAll(e.cfg.TargetDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create target directory: %w", err)
	}

	var store remote.Client = e.store
	if e.cfg.MaxFileCount > 0 {
		store = remote.NewBoundedClient(e.store, e.cfg.MaxFileCount, e.logger)
	}

	downloaded := make([]selection.Item, 0, len(items))
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return downloaded, err
		}

		if err := store.Download(item.RemotePath, item.LocalPath); err != nil {
			if errors.Is(err, remote.ErrDownloadLimit) {
				e.logger.Info("stopping downloads, file cap reached", "downloaded", len(downloaded))
				break
			}
			return downloaded, err
		}

		e.logger.Info("downloaded file", "remote", item.RemotePath, "local", item.LocalPath)
		downloaded = append(downloaded, item)
	}
	return downloaded, nil
}

// deletePhase prunes remote copies of what was downloaded. A recursive
// clone prunes the whole remote root as one tree; every other mode
// prunes the individual files that were fetched.
func (e *Engine) deletePhase(downloaded []selection.Item, budget *Budget) error {
	if e.cfg.Mode() == config.ModeRecursiveClone {
		removed, err := e.removeRemoteTree(path.Clean(e.cfg.PathPrefix), budget)
		if err != nil {
			return err
		}
		e.logger.Info("pruned remote tree", "dir", e.cfg.PathPrefix, "removed", removed)
		return nil
	}

	removed := 0
	for _, item := range downloaded {
		removed += e.removeRemoteFile(item.RemotePath, budget)
	}
	e.logger.Info("pruned remote files", "removed", removed)
	return nil
}

// logDryRun logs what a real run would do
func (e *Engine) logDryRun(items []selection.Item) {
	for _, item := range items {
		e.logger.Info("[dry-run] would download", "remote", item.RemotePath, "local", item.LocalPath)
	}
	if e.cfg.DeleteAfterSync {
		e.logger.Info("[dry-run] would prune remote copies after download", "max_file_count", e.cfg.MaxFileCount)
	}
	if e.cfg.IncrementalMode {
		e.logger.Info("[dry-run] would reconcile against ledger", "state", e.statePath)
	}
	e.logger.Info("dry-run complete, no changes applied")
}
