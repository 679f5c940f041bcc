package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"

	"catsync-go/internal/catsync"
)

const snapshotsDir = "snapshots"

// FileSystemVault is a filesystem-based implementation of the Vault interface.
// It stores snapshot files in a directory structure:
//
//	<root>/
//	  snapshots/
//	    catsync-20240115T103000Z.json.gz.age
type FileSystemVault struct {
	name string
	fs   afero.Fs
}

// NewFileSystemVault creates a new filesystem vault rooted at the given path.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create vault root: %w", err)
	}
	return newFileSystemVault(name, afero.NewBasePathFs(afero.NewOsFs(), root))
}

func newFileSystemVault(name string, fsys afero.Fs) (*FileSystemVault, error) {
	if err := fsys.MkdirAll(snapshotsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshots directory: %w", err)
	}
	return &FileSystemVault{name: name, fs: fsys}, nil
}

func (v *FileSystemVault) snapshotPath(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid snapshot name %q", name)
	}
	return path.Join(snapshotsDir, name), nil
}

// PutSnapshot stores a snapshot file, replacing any existing one with the same name.
func (v *FileSystemVault) PutSnapshot(ctx context.Context, name string, r io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest, err := v.snapshotPath(name)
	if err != nil {
		return err
	}
	return v.writeFile(dest, r, size)
}

// GetSnapshot writes the named snapshot file to w.
func (v *FileSystemVault) GetSnapshot(ctx context.Context, name string, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := v.snapshotPath(name)
	if err != nil {
		return err
	}

	f, err := v.fs.Open(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("snapshot not found: %s", name)
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	return nil
}

// ListSnapshots returns every stored snapshot file, newest first.
// Temp files from interrupted writes are skipped.
func (v *FileSystemVault) ListSnapshots(ctx context.Context) ([]catsync.SnapshotInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := afero.ReadDir(v.fs, snapshotsDir)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	infos := make([]catsync.SnapshotInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		infos = append(infos, catsync.SnapshotInfo{Name: e.Name(), Size: e.Size(), ModifiedAt: e.ModTime()})
	}
	sortNewestFirst(infos)
	return infos, nil
}

// DeleteSnapshot removes the named snapshot file.
func (v *FileSystemVault) DeleteSnapshot(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := v.snapshotPath(name)
	if err != nil {
		return err
	}
	if err := v.fs.Remove(target); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("snapshot not found: %s", name)
		}
		return fmt.Errorf("deleting snapshot: %w", err)
	}
	return nil
}

// ValidateSetup verifies that the snapshots directory is accessible.
func (v *FileSystemVault) ValidateSetup(ctx context.Context) error {
	info, err := v.fs.Stat(snapshotsDir)
	if err != nil {
		return fmt.Errorf("vault directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault path is not a directory: %s", snapshotsDir)
	}
	return nil
}

// writeFile writes data from r to destPath using atomic write (temp file + rename).
func (v *FileSystemVault) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	// Create temp file in the same directory to ensure atomic rename works
	tmpFile, err := afero.TempFile(v.fs, path.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			v.fs.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := v.fs.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true
	return nil
}

// Compile-time check that FileSystemVault implements catsync.Vault interface
var _ catsync.Vault = (*FileSystemVault)(nil)
