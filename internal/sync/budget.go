package sync

// Budget caps remote deletions for one run. A single Budget is created
// per run and passed by reference into every deletion path, so the cap
// holds across the main deletion phase and the reconciliation phase.
type Budget struct {
	max     int // zero means unbounded
	removed int
}

// NewBudget creates a deletion budget. max <= 0 means unbounded.
func NewBudget(max int) *Budget {
	return &Budget{max: max}
}

// HasCapacity reports whether another removal may be issued
func (b *Budget) HasCapacity() bool {
	return b.max <= 0 || b.removed < b.max
}

// Spend records one performed removal
func (b *Budget) Spend() {
	b.removed++
}

// Removed returns the number of removals performed so far
func (b *Budget) Removed() int {
	return b.removed
}

// removeRemoteFile deletes one remote file against the shared budget and
// returns how many removals were performed. A failed removal is logged
// and skipped so one bad file never blocks the rest of the run. No-op
// when remote pruning is disabled.
func (e *Engine) removeRemoteFile(remotePath string, budget *Budget) int {
	if !e.cfg.DeleteAfterSync {
		return 0
	}
	if !budget.HasCapacity() {
		e.logger.Debug("deletion budget exhausted, keeping remote file", "path", remotePath)
		return 0
	}

	if err := e.store.Remove(remotePath); err != nil {
		e.logger.Warn("failed to remove remote file, skipping", "path", remotePath, "error", err)
		return 0
	}

	budget.Spend()
	e.logger.Info("removed remote file", "path", remotePath)
	return 1
}

// removeRemoteTree deletes every file under dir in listing order against
// the shared budget. Once the budget is exhausted the walk continues for
// accounting but issues no further removals. Directories themselves are
// never removed, so emptied parents stay in place.
func (e *Engine) removeRemoteTree(dir string, budget *Budget) (int, error) {
	if !e.cfg.DeleteAfterSync {
		return 0, nil
	}

	entries, err := e.store.List(dir)
	if err != nil {
		return 0, err
	}

	count := 0
	skipped := 0
	for _, entry := range entries {
		if entry.IsDir {
			n, err := e.removeRemoteTree(entry.Path, budget)
			count += n
			if err != nil {
				return count, err
			}
			continue
		}

		if !budget.HasCapacity() {
			skipped++
			continue
		}
		count += e.removeRemoteFile(entry.Path, budget)
	}

	if skipped > 0 {
		e.logger.Info("deletion budget exhausted, remote files left in place",
			"dir", dir,
			"skipped", skipped)
	}
	return count, nil
}
