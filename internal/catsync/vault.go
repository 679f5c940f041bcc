package catsync

import (
	"context"
	"io"
	"time"
)

// SnapshotInfo describes a snapshot file held by a vault.
type SnapshotInfo struct {
	Name       string
	Size       int64
	ModifiedAt time.Time
}

// Vault stores exported snapshot files remotely.
// Reads and writes stream through io.Reader/io.Writer.
type Vault interface {
	// PutSnapshot stores a snapshot file under name, replacing any existing one.
	// size is the number of bytes that will be read from r.
	PutSnapshot(ctx context.Context, name string, r io.Reader, size int64) error

	// GetSnapshot writes the named snapshot to w.
	GetSnapshot(ctx context.Context, name string, w io.Writer) error

	// ListSnapshots returns the stored snapshots, newest first.
	ListSnapshots(ctx context.Context) ([]SnapshotInfo, error)

	// DeleteSnapshot removes the named snapshot.
	DeleteSnapshot(ctx context.Context, name string) error

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup(ctx context.Context) error
}
