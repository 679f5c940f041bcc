package catsync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"catsync-go/internal/model"
)

// Exporter builds snapshots of the local dataset.
type Exporter struct {
	store  Store
	clock  Clock
	logger Logger
}

// NewExporter creates an Exporter reading from store.
func NewExporter(store Store, clock Clock, logger Logger) *Exporter {
	return &Exporter{store: store, clock: clock, logger: logger}
}

// Export reads every domain and returns a current-version snapshot.
func (x *Exporter) Export(ctx context.Context) (*model.Snapshot, error) {
	ds, err := LoadDataset(ctx, x.store)
	if err != nil {
		return nil, fmt.Errorf("loading local dataset: %w", err)
	}
	snap := model.NewSnapshot(ds, x.clock.Now())
	x.logger.Info("dataset exported", "videos", len(ds.Videos), "actors", len(ds.Actors))
	return snap, nil
}

// SnapshotName returns the vault file name for a snapshot taken at ts.
// ext is appended as is, e.g. ".json.gz".
func SnapshotName(ts time.Time, ext string) string {
	return "catsync-" + ts.UTC().Format("20060102T150405Z") + ext
}

// IsSnapshotName reports whether name was produced by SnapshotName.
func IsSnapshotName(name string) bool {
	return strings.HasPrefix(name, "catsync-") && strings.Contains(name, ".json")
}
