package catsync

import (
	"context"
	"fmt"

	"catsync-go/internal/model"
)

// DefaultRetention is the number of safety snapshots kept after a successful restore.
const DefaultRetention = 5

// SafetyManager captures the local store before a commit and restores it on rollback.
type SafetyManager struct {
	store     SafetyStore
	local     Store
	retention int
	logger    Logger
	clock     Clock
	idgen     IDGenerator
}

// NewSafetyManager creates a SafetyManager over the given snapshot store and
// local store. A retention of zero or less disables pruning.
func NewSafetyManager(store SafetyStore, local Store, retention int, logger Logger, clock Clock, idgen IDGenerator) *SafetyManager {
	return &SafetyManager{
		store:     store,
		local:     local,
		retention: retention,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
	}
}

// Capture persists a copy of the given raw domain values. The copy is read
// back before Capture returns, so a nil error means rollback is possible.
func (m *SafetyManager) Capture(ctx context.Context, sessionID string, domains map[model.Domain][]byte) (*SafetySnapshot, error) {
	snap := &SafetySnapshot{
		ID:        m.idgen.New(),
		SessionID: sessionID,
		CreatedAt: m.clock.Now().UTC(),
		Domains:   make(map[model.Domain][]byte, len(domains)),
	}
	for d, v := range domains {
		if v != nil {
			v = append([]byte{}, v...)
		}
		snap.Domains[d] = v
	}

	if err := m.store.SaveSnapshot(ctx, snap); err != nil {
		return nil, wrapError(KindSnapshotPersist, err, "saving safety snapshot")
	}
	stored, err := m.store.GetSnapshot(ctx, snap.ID)
	if err != nil {
		return nil, wrapError(KindSnapshotPersist, err, "verifying safety snapshot")
	}
	if stored == nil || len(stored.Domains) != len(snap.Domains) {
		return nil, newError(KindSnapshotPersist, "safety snapshot %s did not persist", snap.ID)
	}

	m.logger.Info("safety snapshot saved", "id", snap.ID, "session", sessionID, "bytes", snap.Size())
	return snap, nil
}

// List returns all safety snapshots, newest first.
func (m *SafetyManager) List(ctx context.Context) ([]*SafetySnapshot, error) {
	snaps, err := m.store.ListSnapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing safety snapshots: %w", err)
	}
	return snaps, nil
}

// Get returns a snapshot by ID. An empty ID selects the newest snapshot.
func (m *SafetyManager) Get(ctx context.Context, id string) (*SafetySnapshot, error) {
	if id == "" {
		snaps, err := m.List(ctx)
		if err != nil {
			return nil, err
		}
		if len(snaps) == 0 {
			return nil, newError(KindSnapshotNotFound, "no safety snapshots")
		}
		return snaps[0], nil
	}

	snap, err := m.store.GetSnapshot(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting safety snapshot: %w", err)
	}
	if snap == nil {
		return nil, newError(KindSnapshotNotFound, "safety snapshot %s not found", id)
	}
	return snap, nil
}

// Rollback writes every captured domain back verbatim, deletes domains that
// were absent at capture time, and then discards the snapshot. If a write
// fails the snapshot is kept so the rollback can be retried.
// Cancellation is honoured only before the first write.
func (m *SafetyManager) Rollback(ctx context.Context, id string) (*SafetySnapshot, error) {
	snap, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, wrapError(KindCancelled, err, "rollback cancelled")
	}

	wctx := context.WithoutCancel(ctx)
	for _, d := range model.AllDomains {
		value, captured := snap.Domains[d]
		if !captured {
			continue
		}
		if value == nil {
			err = m.local.Delete(wctx, d)
		} else {
			err = m.local.Put(wctx, d, value)
		}
		if err != nil {
			return nil, fmt.Errorf("restoring %s from safety snapshot %s: %w", d, snap.ID, err)
		}
	}

	if err := m.store.DeleteSnapshot(wctx, snap.ID); err != nil {
		return nil, fmt.Errorf("discarding safety snapshot %s: %w", snap.ID, err)
	}
	m.logger.Info("rolled back to safety snapshot", "id", snap.ID, "created_at", snap.CreatedAt)
	return snap, nil
}

// Prune deletes all but the newest snapshots allowed by the retention count.
// It returns the number of snapshots deleted.
func (m *SafetyManager) Prune(ctx context.Context) (int, error) {
	if m.retention <= 0 {
		return 0, nil
	}
	snaps, err := m.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(snaps) <= m.retention {
		return 0, nil
	}

	deleted := 0
	for _, snap := range snaps[m.retention:] {
		if err := m.store.DeleteSnapshot(ctx, snap.ID); err != nil {
			return deleted, fmt.Errorf("pruning safety snapshot %s: %w", snap.ID, err)
		}
		deleted++
	}
	m.logger.Info("pruned safety snapshots", "deleted", deleted, "retention", m.retention)
	return deleted, nil
}
