package selection

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"testing"

	"github.com/schaermu/sftpsync/internal/config"
	"github.com/schaermu/sftpsync/internal/remote"
)

// mockStore implements Lister over an in-memory tree. Entries list in
// insertion order, like a server would return them.
type mockStore struct {
	children map[string][]remote.Entry
	dirs     map[string]bool
	listErr  map[string]error
}

func newMockStore(files ...string) *mockStore {
	m := &mockStore{
		children: make(map[string][]remote.Entry),
		dirs:     make(map[string]bool),
		listErr:  make(map[string]error),
	}
	for _, f := range files {
		m.addFile(f)
	}
	return m
}

func (m *mockStore) addFile(p string) {
	dir := path.Dir(p)
	m.addDir(dir)
	m.children[dir] = append(m.children[dir], remote.Entry{
		Name: path.Base(p),
		Path: p,
	})
}

func (m *mockStore) addDir(p string) {
	if m.dirs[p] {
		return
	}
	m.dirs[p] = true
	if p == "/" || p == "." {
		return
	}
	parent := path.Dir(p)
	m.addDir(parent)
	m.children[parent] = append(m.children[parent], remote.Entry{
		Name:  path.Base(p),
		Path:  p,
		IsDir: true,
	})
}

func (m *mockStore) List(dir string) ([]remote.Entry, error) {
	if err := m.listErr[dir]; err != nil {
		return nil, err
	}
	if !m.dirs[dir] {
		return nil, fmt.Errorf("no such directory: %s", dir)
	}
	return m.children[dir], nil
}

func (m *mockStore) IsDir(p string) (bool, error) {
	return m.dirs[p], nil
}

func remotePaths(items []Item) []string {
	paths := make([]string, 0, len(items))
	for _, item := range items {
		paths = append(paths, item.RemotePath)
	}
	return paths
}

func TestSelect_Flat(t *testing.T) {
	cfg := &config.Config{
		Files:     []string{"/x/a.csv", "/y/b.csv"},
		TargetDir: "/data",
	}

	items, err := Select(newMockStore(), cfg)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].LocalPath != filepath.Join("/data", "a.csv") {
		t.Errorf("item 0 local path = %s, want %s", items[0].LocalPath, filepath.Join("/data", "a.csv"))
	}
	if items[1].LocalPath != filepath.Join("/data", "b.csv") {
		t.Errorf("item 1 local path = %s, want %s", items[1].LocalPath, filepath.Join("/data", "b.csv"))
	}
}

func TestSelect_FlatCollision(t *testing.T) {
	// Two sources sharing a base name map onto the same target; the
	// later download overwrites the earlier one.
	cfg := &config.Config{
		Files:     []string{"/x/1.csv", "/y/1.csv"},
		TargetDir: "/out",
	}

	items, err := Select(newMockStore(), cfg)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	want := filepath.Join("/out", "1.csv")
	if items[0].LocalPath != want || items[1].LocalPath != want {
		t.Errorf("expected both items to map to %s, got %s and %s", want, items[0].LocalPath, items[1].LocalPath)
	}
	if items[0].RemotePath != "/x/1.csv" || items[1].RemotePath != "/y/1.csv" {
		t.Errorf("selection order not preserved: %v", remotePaths(items))
	}
}

func TestSelect_RecursiveClone(t *testing.T) {
	store := newMockStore(
		"/exports/a.csv",
		"/exports/sub/b.csv",
		"/exports/sub/deep/c.csv",
	)
	cfg := &config.Config{
		PathPrefix:     "/exports",
		TargetDir:      "/data",
		RecursiveClone: true,
	}

	items, err := Select(store, cfg)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d: %v", len(items), remotePaths(items))
	}

	wantLocal := map[string]string{
		"/exports/a.csv":          filepath.Join("/data", "a.csv"),
		"/exports/sub/b.csv":      filepath.Join("/data", "sub", "b.csv"),
		"/exports/sub/deep/c.csv": filepath.Join("/data", "sub", "deep", "c.csv"),
	}
	for _, item := range items {
		if want := wantLocal[item.RemotePath]; item.LocalPath != want {
			t.Errorf("local path for %s = %s, want %s", item.RemotePath, item.LocalPath, want)
		}
	}
}

func TestSelect_RecursiveClone_RootNotDirectory(t *testing.T) {
	store := newMockStore("/exports")
	cfg := &config.Config{
		PathPrefix:     "/exports",
		TargetDir:      "/data",
		RecursiveClone: true,
	}

	if _, err := Select(store, cfg); err == nil {
		t.Error("expected error when the remote root is not a directory")
	}
}

func TestSelect_ExactDirectory(t *testing.T) {
	store := newMockStore(
		"/exports/a.csv",
		"/exports/b.csv",
		"/exports/sub/c.csv",
	)
	cfg := &config.Config{
		PathPrefix:     "/exports",
		TargetDir:      "/data",
		ExactDirectory: true,
	}

	items, err := Select(store, cfg)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	// Only direct file children; no descent into sub
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d: %v", len(items), remotePaths(items))
	}
	for _, item := range items {
		if item.RemotePath == "/exports/sub/c.csv" {
			t.Error("exact directory mode must not descend into subdirectories")
		}
	}
}

func TestSelect_PatternFiltered(t *testing.T) {
	store := newMockStore(
		"/a/foo.csv",
		"/a/bar.csv",
		"/a/sub/foo2.csv",
	)
	cfg := &config.Config{
		PathPrefix: "/a",
		TargetDir:  "/data",
		Tables:     []string{"foo"},
	}

	items, err := Select(store, cfg)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	got := remotePaths(items)
	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d: %v", len(got), got)
	}
	if got[0] != "/a/foo.csv" || got[1] != "/a/sub/foo2.csv" {
		t.Errorf("selection = %v, want [/a/foo.csv /a/sub/foo2.csv]", got)
	}
}

func TestSelect_PatternFiltered_MatchedDirectoryPullsSubtree(t *testing.T) {
	store := newMockStore(
		"/data/orders_2024/readme.txt",
		"/data/orders_2024/orders_jan.csv",
		"/data/misc.csv",
	)
	cfg := &config.Config{
		PathPrefix: "/data",
		TargetDir:  "/local",
		Tables:     []string{"orders"},
	}

	items, err := Select(store, cfg)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	// The matched directory contributes its whole subtree, and a file
	// matching both by itself and through its parent is collected once.
	counts := make(map[string]int)
	for _, item := range items {
		counts[item.RemotePath]++
	}

	if counts["/data/orders_2024/readme.txt"] != 1 {
		t.Errorf("readme.txt collected %d times, want 1", counts["/data/orders_2024/readme.txt"])
	}
	if counts["/data/orders_2024/orders_jan.csv"] != 1 {
		t.Errorf("orders_jan.csv collected %d times, want 1", counts["/data/orders_2024/orders_jan.csv"])
	}
	if counts["/data/misc.csv"] != 0 {
		t.Errorf("misc.csv must not be collected, got %d", counts["/data/misc.csv"])
	}
}

func TestSelect_PatternFiltered_ListError(t *testing.T) {
	store := newMockStore(
		"/a/foo.csv",
		"/a/sub/foo2.csv",
	)
	store.listErr["/a/sub"] = errors.New("permission denied")

	cfg := &config.Config{
		PathPrefix: "/a",
		TargetDir:  "/data",
		Tables:     []string{"foo"},
	}

	if _, err := Select(store, cfg); err == nil {
		t.Error("expected listing error to abort selection")
	}
}

func TestRelTarget(t *testing.T) {
	tests := []struct {
		name       string
		targetDir  string
		root       string
		remotePath string
		want       string
	}{
		{
			name:       "direct child",
			targetDir:  "/data",
			root:       "/exports",
			remotePath: "/exports/a.csv",
			want:       filepath.Join("/data", "a.csv"),
		},
		{
			name:       "nested file",
			targetDir:  "/data",
			root:       "/exports",
			remotePath: "/exports/sub/deep/c.csv",
			want:       filepath.Join("/data", "sub", "deep", "c.csv"),
		},
		{
			name:       "root is slash",
			targetDir:  "/data",
			root:       "/",
			remotePath: "/a/b.csv",
			want:       filepath.Join("/data", "a", "b.csv"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := relTarget(tt.targetDir, tt.root, tt.remotePath); got != tt.want {
				t.Errorf("relTarget() = %s, want %s", got, tt.want)
			}
		})
	}
}
