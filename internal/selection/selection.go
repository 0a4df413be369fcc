package selection

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/schaermu/sftpsync/internal/config"
	"github.com/schaermu/sftpsync/internal/remote"
)

// Item pairs a remote file with the local path it is downloaded to
type Item struct {
	RemotePath string
	LocalPath  string
}

// Lister is the subset of the remote client needed to select entries
type Lister interface {
	List(dir string) ([]remote.Entry, error)
	IsDir(remotePath string) (bool, error)
}

// Select enumerates the remote files to download for the configured
// mode, in traversal order. A listing failure aborts the whole
// selection; there is no per-directory retry.
func Select(store Lister, cfg *config.Config) ([]Item, error) {
	switch cfg.Mode() {
	case config.ModeFlat:
		return selectFlat(cfg), nil
	case config.ModeExactDirectory:
		return selectExactDirectory(store, cfg)
	case config.ModePatternFiltered:
		return selectPatternFiltered(store, cfg)
	default:
		return selectRecursiveClone(store, cfg)
	}
}

// selectFlat maps each configured remote file onto its base name under
// the target directory. Structure is flattened, so paths sharing a base
// name collide; the later entry wins because downloads run in order.
func selectFlat(cfg *config.Config) []Item {
	items := make([]Item, 0, len(cfg.Files))
	for _, remotePath := range cfg.Files {
		items = append(items, Item{
			RemotePath: remotePath,
			LocalPath:  filepath.Join(cfg.TargetDir, path.Base(remotePath)),
		})
	}
	return items
}

// selectRecursiveClone clones the entire subtree under the remote root,
// preserving relative structure.
func selectRecursiveClone(store Lister, cfg *config.Config) ([]Item, error) {
	root := path.Clean(cfg.PathPrefix)
	if err := ensureDirectory(store, root); err != nil {
		return nil, err
	}

	var items []Item
	err := walkFiles(store, root, func(entry remote.Entry) {
		items = append(items, Item{
			RemotePath: entry.Path,
			LocalPath:  relTarget(cfg.TargetDir, root, entry.Path),
		})
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// selectExactDirectory picks only the direct file children of the remote
// root; subdirectories are not descended into.
func selectExactDirectory(store Lister, cfg *config.Config) ([]Item, error) {
	root := path.Clean(cfg.PathPrefix)
	if err := ensureDirectory(store, root); err != nil {
		return nil, err
	}

	entries, err := store.List(root)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir {
			continue
		}
		items = append(items, Item{
			RemotePath: entry.Path,
			LocalPath:  filepath.Join(cfg.TargetDir, entry.Name),
		})
	}
	return items, nil
}

// selectPatternFiltered walks the tree under the remote root and
// collects files by name prefix. Matching governs collection only, never
// pruning: the walk descends into every subdirectory. A directory whose
// name matches contributes its entire subtree. Every file is visited
// exactly once, so no file is collected twice regardless of how many
// prefixes or parent directories match it.
func selectPatternFiltered(store Lister, cfg *config.Config) ([]Item, error) {
	root := path.Clean(cfg.PathPrefix)
	if err := ensureDirectory(store, root); err != nil {
		return nil, err
	}

	c := &collector{
		store:    store,
		root:     root,
		target:   cfg.TargetDir,
		prefixes: cfg.Tables,
	}
	if err := c.walkDir(root, false); err != nil {
		return nil, err
	}
	return c.items, nil
}

// collector accumulates pattern-filtered matches during a walk
type collector struct {
	store    Lister
	root     string
	target   string
	prefixes []string
	items    []Item
}

// walkDir visits one directory level. collectAll is set underneath a
// matched directory, where every file belongs to the selection.
func (c *collector) walkDir(dir string, collectAll bool) error {
	entries, err := c.store.List(dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir {
			// Descend regardless of match
			descendAll := collectAll || matchesAny(entry.Name, c.prefixes)
			if err := c.walkDir(entry.Path, descendAll); err != nil {
				return err
			}
			continue
		}

		if collectAll || matchesAny(entry.Name, c.prefixes) {
			c.items = append(c.items, Item{
				RemotePath: entry.Path,
				LocalPath:  relTarget(c.target, c.root, entry.Path),
			})
		}
	}
	return nil
}

// matchesAny returns true if name starts with one of the prefixes
func matchesAny(name string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// walkFiles calls fn for every file under dir, depth-first in listing
// order.
func walkFiles(store Lister, dir string, fn func(remote.Entry)) error {
	entries, err := store.List(dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir {
			if err := walkFiles(store, entry.Path, fn); err != nil {
				return err
			}
			continue
		}
		fn(entry)
	}
	return nil
}

// ensureDirectory fails when the remote root is missing or not a directory
func ensureDirectory(store Lister, root string) error {
	isDir, err := store.IsDir(root)
	if err != nil {
		return err
	}
	if !isDir {
		return fmt.Errorf("remote path %s is not a directory", root)
	}
	return nil
}

// relTarget maps a remote file onto the target directory, preserving its
// path relative to root.
func relTarget(targetDir, root, remotePath string) string {
	rel := strings.TrimPrefix(remotePath, root)
	rel = strings.TrimPrefix(rel, "/")
	return filepath.Join(targetDir, filepath.FromSlash(rel))
}
