package catsync

import (
	"context"
	"fmt"
	"time"

	"catsync-go/internal/model"
)

// Store is the local key-value store holding the live dataset.
// Each domain is stored as one JSON value under the domain name.
type Store interface {
	// Get returns the stored value of a domain.
	// Returns nil, nil if the domain has never been written.
	Get(ctx context.Context, domain model.Domain) ([]byte, error)

	// Put replaces the stored value of a domain.
	Put(ctx context.Context, domain model.Domain, value []byte) error

	// Delete removes a domain. Deleting an absent domain is not an error.
	Delete(ctx context.Context, domain model.Domain) error
}

// SafetySnapshot is a verbatim copy of the local store taken before a commit.
// Domains maps every captured domain to its stored bytes; a nil value records
// that the domain was absent.
type SafetySnapshot struct {
	ID        string
	SessionID string
	CreatedAt time.Time
	Domains   map[model.Domain][]byte
}

// Size returns the total number of captured bytes.
func (s *SafetySnapshot) Size() int {
	n := 0
	for _, v := range s.Domains {
		n += len(v)
	}
	return n
}

// SafetyStore persists safety snapshots.
type SafetyStore interface {
	// SaveSnapshot stores a new snapshot. Saving must be durable before it returns.
	SaveSnapshot(ctx context.Context, snap *SafetySnapshot) error

	// GetSnapshot returns a snapshot by ID, or nil, nil if it does not exist.
	GetSnapshot(ctx context.Context, id string) (*SafetySnapshot, error)

	// ListSnapshots returns all snapshots, newest first.
	ListSnapshots(ctx context.Context) ([]*SafetySnapshot, error)

	// DeleteSnapshot removes a snapshot. Deleting a missing snapshot is not an error.
	DeleteSnapshot(ctx context.Context, id string) error
}

// readDomains reads the raw stored value of every domain.
func readDomains(ctx context.Context, store Store) (map[model.Domain][]byte, error) {
	raw := make(map[model.Domain][]byte, len(model.AllDomains))
	for _, d := range model.AllDomains {
		v, err := store.Get(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", d, err)
		}
		raw[d] = v
	}
	return raw, nil
}

// decodeDomains builds a dataset from raw stored values.
func decodeDomains(raw map[model.Domain][]byte) (*model.Dataset, error) {
	ds := &model.Dataset{}
	for _, d := range model.AllDomains {
		if err := ds.DecodeDomain(d, raw[d]); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

// LoadDataset reads and decodes the whole local dataset.
func LoadDataset(ctx context.Context, store Store) (*model.Dataset, error) {
	raw, err := readDomains(ctx, store)
	if err != nil {
		return nil, err
	}
	return decodeDomains(raw)
}

// SaveDataset writes every present domain of ds and deletes the absent ones.
func SaveDataset(ctx context.Context, store Store, ds *model.Dataset) error {
	for _, d := range model.AllDomains {
		data, err := ds.EncodeDomain(d)
		if err != nil {
			return err
		}
		if data == nil {
			err = store.Delete(ctx, d)
		} else {
			err = store.Put(ctx, d, data)
		}
		if err != nil {
			return fmt.Errorf("writing %s: %w", d, err)
		}
	}
	return nil
}
