package remote

import (
	"context"
	"errors"
	"fmt"
)

// Entry describes a single remote directory entry. Entries are produced
// by listing calls and are never persisted.
type Entry struct {
	Name  string // base name
	Path  string // full remote path
	IsDir bool
}

// Client provides operations against a remote file store
type Client interface {
	// Connect opens an authenticated session to the remote host
	Connect(ctx context.Context) error
	// Close tears down the session and removes session-scoped credentials
	Close() error
	// List returns the entries of a remote directory
	List(dir string) ([]Entry, error)
	// IsDir reports whether the remote path is a directory
	IsDir(remotePath string) (bool, error)
	// Download copies a remote file to a local path, creating parent
	// directories as needed
	Download(remotePath, localPath string) error
	// Remove deletes a single remote file
	Remove(remotePath string) error
	// RemoveDirectory deletes a remote directory; fails if it is not empty
	RemoveDirectory(remotePath string) error
}

// ErrDownloadLimit is returned by a bounded client once its download cap
// has been reached.
var ErrDownloadLimit = errors.New("download limit reached")

// ErrNotConnected is returned when an operation is attempted before
// Connect or after Close.
var ErrNotConnected = errors.New("not connected")

// Error describes a failed remote store operation
type Error struct {
	Op   string // operation: connect, list, stat, download, remove, rmdir
	Path string // remote path, empty for session-level failures
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("remote: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("remote: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op, path string, err error) *Error {
	return &Error{Op: op, Path: path, Err: err}
}
