// Package vaultfs is the filesystem collaborator used by the journal store
// and the para-ID registry. All paths are relative to the vault root, the
// directory the user points their editor and file-sync tool at.
//
// Writes are atomic (temp file + rename) so an interrupted process never
// leaves a partially-written journal behind, and appends are synced to disk
// before returning so a registry record is durable by the time its ID is
// handed out.
package vaultfs

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FS abstracts the vault filesystem so stores can be tested against an
// in-memory implementation and so the mobile build can route through a
// sandboxed document directory.
type FS interface {
	// ReadFile returns the file's contents. A missing file surfaces as an
	// error satisfying os.IsNotExist / errors.Is(err, fs.ErrNotExist).
	ReadFile(path string) ([]byte, error)

	// WriteFile replaces the file's contents atomically: the data is written
	// to a temp file in the same directory, synced, and renamed over the
	// target. Parent directories are created as needed.
	WriteFile(path string, data []byte) error

	// AppendFile appends data to the file, creating it if absent, and syncs
	// before returning. Used for the registry's append-only log.
	AppendFile(path string, data []byte) error

	// Exists reports whether the path exists.
	Exists(path string) bool

	// ListDir returns the names of the entries in the directory.
	ListDir(path string) ([]string, error)

	// EnsureDir creates the directory and any missing parents.
	EnsureDir(path string) error
}

// OS implements FS on the real filesystem under a root directory.
type OS struct {
	root string
}

var _ FS = (*OS)(nil)

// NewOS creates an FS rooted at root.
func NewOS(root string) *OS {
	return &OS{root: root}
}

// Root returns the vault root directory.
func (v *OS) Root() string { return v.root }

func (v *OS) abs(path string) string {
	return filepath.Join(v.root, filepath.FromSlash(path))
}

// ReadFile implements FS.
func (v *OS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(v.abs(path))
}

// WriteFile implements FS. The temp file lives in the target's directory so
// the rename never crosses filesystems.
func (v *OS) WriteFile(path string, data []byte) error {
	target := v.abs(path)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("vaultfs: mkdir %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".voxlog-*.tmp")
	if err != nil {
		return fmt.Errorf("vaultfs: create temp for %q: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("vaultfs: write temp for %q: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("vaultfs: sync temp for %q: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("vaultfs: close temp for %q: %w", path, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("vaultfs: rename into %q: %w", path, err)
	}
	return nil
}

// AppendFile implements FS.
func (v *OS) AppendFile(path string, data []byte) error {
	target := v.abs(path)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("vaultfs: mkdir for %q: %w", path, err)
	}
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("vaultfs: open %q for append: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("vaultfs: append to %q: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("vaultfs: sync %q: %w", path, err)
	}
	return f.Close()
}

// Exists implements FS.
func (v *OS) Exists(path string) bool {
	_, err := os.Stat(v.abs(path))
	return err == nil
}

// ListDir implements FS.
func (v *OS) ListDir(path string) ([]string, error) {
	entries, err := os.ReadDir(v.abs(path))
	if err != nil {
		return nil, fmt.Errorf("vaultfs: list %q: %w", path, err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, nil
}

// EnsureDir implements FS.
func (v *OS) EnsureDir(path string) error {
	if err := os.MkdirAll(v.abs(path), 0o755); err != nil {
		return fmt.Errorf("vaultfs: mkdir %q: %w", path, err)
	}
	return nil
}

// AssetPath returns the vault-relative location for a captured asset:
// assets/YYYY-MM/YYYY-MM-DD_HHMMSS_<kind>.<ext>. Journal entries reference
// assets by exactly this relative path.
func AssetPath(ts time.Time, kind, ext string) string {
	return fmt.Sprintf("assets/%s/%s_%s.%s",
		ts.Format("2006-01"),
		ts.Format("2006-01-02_150405"),
		kind, ext)
}
