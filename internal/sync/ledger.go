package sync

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Ledger maps remote paths to the content hash last captured for them.
// Entries are only added or overwritten, never pruned.
type Ledger map[string]string

// loadLedger reads the ledger from the state path. A missing file means
// a first run and yields an empty ledger.
func (e *Engine) loadLedger() (Ledger, error) {
	data, err := os.ReadFile(e.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return make(Ledger), nil
		}
		return nil, err
	}

	var ledger Ledger
	if err := json.Unmarshal(data, &ledger); err != nil {
		return nil, err
	}
	if ledger == nil {
		ledger = make(Ledger)
	}
	return ledger, nil
}

// saveLedger persists the ledger as indented JSON, written once at the
// end of a successful run.
func (e *Engine) saveLedger(ledger Ledger) error {
	if err := os.MkdirAll(filepath.Dir(e.statePath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(ledger, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(e.statePath, data, 0644)
}

// reconcile walks every regular file under the target directory and
// decides keep or discard against the ledger. A file whose content hash
// matches its ledger entry was captured in a previous run: the local
// copy is deleted and the remote copy is left alone. New or changed
// files are kept, and their remote counterpart is pruned through the
// shared deletion budget when remote pruning is enabled. Every computed
// hash overwrites the ledger entry for its remote path.
func (e *Engine) reconcile(ledger Ledger, budget *Budget) error {
	localRoot := e.cfg.TargetDir
	remoteRoot := e.cfg.PathPrefix

	if _, err := os.Stat(localRoot); os.IsNotExist(err) {
		e.logger.Info("target directory does not exist, nothing to reconcile", "dir", localRoot)
		return nil
	}

	kept := 0
	discarded := 0

	err := filepath.Walk(localRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		hash, err := fileHash(path)
		if err != nil {
			return err
		}

		remotePath := remotePathFor(path, localRoot, remoteRoot)

		if prev, ok := ledger[remotePath]; ok && prev == hash {
			// Already captured in a previous run, drop the local copy
			if err := os.Remove(path); err != nil {
				return err
			}
			discarded++
		} else {
			kept++
			e.removeRemoteFile(remotePath, budget)
		}

		ledger[remotePath] = hash
		return nil
	})
	if err != nil {
		return err
	}

	e.logger.Info("reconciliation finished",
		"kept", kept,
		"discarded", discarded,
		"ledger_entries", len(ledger))
	return nil
}

// remotePathFor maps a local file back to its remote path by replacing
// the local root prefix with the remote root, first occurrence only.
func remotePathFor(localPath, localRoot, remoteRoot string) string {
	return strings.Replace(filepath.ToSlash(localPath), filepath.ToSlash(localRoot), remoteRoot, 1)
}

// fileHash computes the SHA256 hash of a file
func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = f.Close()
	}()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
