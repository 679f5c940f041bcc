package testutil

import (
	"context"
	"encoding/json"
	"testing"

	"catsync-go/internal/catsync"
	"catsync-go/internal/model"
)

// Video builds a valid video record.
func Video(id string, status model.Status, updatedAt int64) model.VideoRecord {
	return model.VideoRecord{
		ID:        id,
		Title:     "Title " + id,
		Status:    status,
		Tags:      []string{},
		ListIDs:   []string{},
		CreatedAt: model.Millis(updatedAt),
		UpdatedAt: model.Millis(updatedAt),
	}
}

// Actor builds a valid actor record.
func Actor(id, name string, updatedAt int64) model.ActorRecord {
	return model.ActorRecord{
		ID:        id,
		Name:      name,
		Gender:    model.GenderUnknown,
		Category:  model.CategoryUnknown,
		Aliases:   []string{},
		CreatedAt: model.Millis(updatedAt),
		UpdatedAt: model.Millis(updatedAt),
	}
}

// Settings returns a settings blob holding every required section.
func Settings() model.Settings {
	return model.Settings{
		"display":   json.RawMessage(`{"theme":"light"}`),
		"sync":      json.RawMessage(`{"auto":false}`),
		"actorSync": json.RawMessage(`{"enabled":true}`),
	}
}

// Seed writes ds into store.
func Seed(t *testing.T, store catsync.Store, ds *model.Dataset) {
	t.Helper()
	if err := catsync.SaveDataset(context.Background(), store, ds); err != nil {
		t.Fatalf("seeding store: %v", err)
	}
}

// Load reads the whole dataset from store.
func Load(t *testing.T, store catsync.Store) *model.Dataset {
	t.Helper()
	ds, err := catsync.LoadDataset(context.Background(), store)
	if err != nil {
		t.Fatalf("loading store: %v", err)
	}
	return ds
}

// SnapshotJSON marshals a current-version snapshot of ds.
func SnapshotJSON(t *testing.T, ds *model.Dataset) []byte {
	t.Helper()
	data, err := json.Marshal(model.NewSnapshot(ds, FixedClock().Now()))
	if err != nil {
		t.Fatalf("marshalling snapshot: %v", err)
	}
	return data
}
