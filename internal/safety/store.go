package safety

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"catsync-go/internal/catsync"
	"catsync-go/internal/model"
)

const snapshotExt = ".json"

// FileStore keeps one JSON document per safety snapshot on an afero filesystem.
// Documents are written to a temporary name and renamed into place, so a
// snapshot is either fully stored or absent.
//
// Layout:
//
//	<root>/
//	  <snapshot_id>.json
//	  .<snapshot_id>.json.tmp   (only while a save is in flight)
//
// FileStore is safe for concurrent use.
type FileStore struct {
	fs afero.Fs
	mu sync.Mutex
}

// snapshotFile is the stored form of a catsync.SafetySnapshot.
type snapshotFile struct {
	ID        string                  `json:"id"`
	SessionID string                  `json:"session_id"`
	CreatedAt time.Time               `json:"created_at"`
	Domains   map[string]snapshotItem `json:"domains"`
}

type snapshotItem struct {
	Present bool   `json:"present"`
	Value   []byte `json:"value,omitempty"`
}

// NewFileStore creates a FileStore on an existing filesystem.
func NewFileStore(fsys afero.Fs) *FileStore {
	return &FileStore{fs: fsys}
}

// NewMemoryStore creates a FileStore backed by an in-memory filesystem.
func NewMemoryStore() *FileStore {
	return NewFileStore(afero.NewMemMapFs())
}

// NewFileSystemStore creates a FileStore rooted at dir, creating it if needed.
func NewFileSystemStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create safety directory: %w", err)
	}
	return NewFileStore(afero.NewBasePathFs(afero.NewOsFs(), dir)), nil
}

func snapshotPath(id string) string {
	return "/" + id + snapshotExt
}

// validID rejects IDs that would escape the store root or collide with temp files.
func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && !strings.HasPrefix(id, ".")
}

func (s *FileStore) SaveSnapshot(ctx context.Context, snap *catsync.SafetySnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validID(snap.ID) {
		return fmt.Errorf("invalid safety snapshot id %q", snap.ID)
	}

	doc := snapshotFile{
		ID:        snap.ID,
		SessionID: snap.SessionID,
		CreatedAt: snap.CreatedAt.UTC(),
		Domains:   make(map[string]snapshotItem, len(snap.Domains)),
	}
	for d, v := range snap.Domains {
		doc.Domains[string(d)] = snapshotItem{Present: v != nil, Value: v}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding safety snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	final := snapshotPath(snap.ID)
	if _, err := s.fs.Stat(final); err == nil {
		return fmt.Errorf("safety snapshot %s already exists", snap.ID)
	}

	tmp := "/." + snap.ID + snapshotExt + ".tmp"
	if err := s.writeSynced(tmp, data); err != nil {
		s.fs.Remove(tmp)
		return fmt.Errorf("writing safety snapshot: %w", err)
	}
	if err := s.fs.Rename(tmp, final); err != nil {
		s.fs.Remove(tmp)
		return fmt.Errorf("finalizing safety snapshot: %w", err)
	}
	return nil
}

func (s *FileStore) writeSynced(name string, data []byte) error {
	f, err := s.fs.OpenFile(name, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *FileStore) GetSnapshot(ctx context.Context, id string) (*catsync.SafetySnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validID(id) {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(snapshotPath(id))
}

// read returns nil, nil if the file does not exist.
func (s *FileStore) read(name string) (*catsync.SafetySnapshot, error) {
	data, err := afero.ReadFile(s.fs, name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading safety snapshot: %w", err)
	}

	var doc snapshotFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding safety snapshot %s: %w", name, err)
	}

	snap := &catsync.SafetySnapshot{
		ID:        doc.ID,
		SessionID: doc.SessionID,
		CreatedAt: doc.CreatedAt,
		Domains:   make(map[model.Domain][]byte, len(doc.Domains)),
	}
	for d, item := range doc.Domains {
		var v []byte
		if item.Present {
			v = item.Value
			if v == nil {
				v = []byte{}
			}
		}
		snap.Domains[model.Domain(d)] = v
	}
	return snap, nil
}

func (s *FileStore) ListSnapshots(ctx context.Context) ([]*catsync.SafetySnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := afero.ReadDir(s.fs, "/")
	if err != nil {
		return nil, fmt.Errorf("listing safety snapshots: %w", err)
	}

	var snaps []*catsync.SafetySnapshot
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || path.Ext(name) != snapshotExt {
			continue
		}
		snap, err := s.read("/" + name)
		if err != nil {
			return nil, err
		}
		if snap != nil {
			snaps = append(snaps, snap)
		}
	}

	sort.Slice(snaps, func(i, j int) bool {
		if !snaps[i].CreatedAt.Equal(snaps[j].CreatedAt) {
			return snaps[i].CreatedAt.After(snaps[j].CreatedAt)
		}
		return snaps[i].ID > snaps[j].ID
	})
	return snaps, nil
}

func (s *FileStore) DeleteSnapshot(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validID(id) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.Remove(snapshotPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting safety snapshot: %w", err)
	}
	return nil
}

var _ catsync.SafetyStore = (*FileStore)(nil)
