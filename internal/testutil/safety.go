package testutil

import (
	"context"
	"sync"

	"catsync-go/internal/catsync"
	"catsync-go/internal/safety"
)

// FaultySafetyStore wraps a SafetyStore and can be told to fail saves.
type FaultySafetyStore struct {
	catsync.SafetyStore

	mu      sync.Mutex
	saveErr error
	drop    bool
}

// NewFaultySafetyStore wraps an in-memory safety store.
func NewFaultySafetyStore() *FaultySafetyStore {
	return &FaultySafetyStore{SafetyStore: safety.NewMemoryStore()}
}

// FailSaves makes SaveSnapshot return err. A nil err clears the fault.
func (s *FaultySafetyStore) FailSaves(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

// DropSaves makes SaveSnapshot report success without storing anything.
func (s *FaultySafetyStore) DropSaves(drop bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drop = drop
}

func (s *FaultySafetyStore) SaveSnapshot(ctx context.Context, snap *catsync.SafetySnapshot) error {
	s.mu.Lock()
	err, drop := s.saveErr, s.drop
	s.mu.Unlock()

	if err != nil {
		return err
	}
	if drop {
		return nil
	}
	return s.SafetyStore.SaveSnapshot(ctx, snap)
}
