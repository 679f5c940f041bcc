package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"catsync-go/internal/catsync"
)

// MemoryVault is an in-memory implementation of the Vault interface.
// It keeps every snapshot file in memory, making it useful for testing.
// This implementation is safe for concurrent use.
type MemoryVault struct {
	name  string
	files map[string]memoryFile
	now   func() time.Time
	mu    sync.RWMutex
}

type memoryFile struct {
	data    []byte
	modTime time.Time
}

// NewMemoryVault creates a new in-memory vault with the given name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:  name,
		files: make(map[string]memoryFile),
		now:   time.Now,
	}
}

// PutSnapshot stores a snapshot file, replacing any existing one with the same name.
func (m *MemoryVault) PutSnapshot(ctx context.Context, name string, r io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = memoryFile{data: data, modTime: m.now()}
	return nil
}

// GetSnapshot writes the named snapshot file to w.
func (m *MemoryVault) GetSnapshot(ctx context.Context, name string, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	f, ok := m.files[name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("snapshot not found: %s", name)
	}

	if _, err := io.Copy(w, bytes.NewReader(f.data)); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns every stored snapshot file, newest first.
func (m *MemoryVault) ListSnapshots(ctx context.Context) ([]catsync.SnapshotInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]catsync.SnapshotInfo, 0, len(m.files))
	for name, f := range m.files {
		infos = append(infos, catsync.SnapshotInfo{Name: name, Size: int64(len(f.data)), ModifiedAt: f.modTime})
	}
	sortNewestFirst(infos)
	return infos, nil
}

// DeleteSnapshot removes the named snapshot file.
func (m *MemoryVault) DeleteSnapshot(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.files[name]; !ok {
		return fmt.Errorf("snapshot not found: %s", name)
	}
	delete(m.files, name)
	return nil
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup(ctx context.Context) error {
	return nil
}

// sortNewestFirst orders by modification time, then by name. Snapshot names
// embed their export time, so the name breaks ties between files written
// within the same clock tick.
func sortNewestFirst(infos []catsync.SnapshotInfo) {
	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].ModifiedAt.Equal(infos[j].ModifiedAt) {
			return infos[i].ModifiedAt.After(infos[j].ModifiedAt)
		}
		return infos[i].Name > infos[j].Name
	})
}

// Compile-time check that MemoryVault implements catsync.Vault interface
var _ catsync.Vault = (*MemoryVault)(nil)
