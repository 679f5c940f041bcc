package testutil

import (
	"context"
	"sync"

	"catsync-go/internal/catsync"
	"catsync-go/internal/model"
)

// MemoryStore is an in-memory catsync.Store with fault injection.
// Safe for concurrent use.
type MemoryStore struct {
	mu       sync.Mutex
	data     map[model.Domain][]byte
	faults   map[model.Domain]*fault
	getErr   error
	writes   []model.Domain
	attempts map[model.Domain]int
}

type fault struct {
	err       error
	remaining int // < 0 fails forever
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:     make(map[model.Domain][]byte),
		faults:   make(map[model.Domain]*fault),
		attempts: make(map[model.Domain]int),
	}
}

// FailWrites makes Put and Delete of domain fail with err. times bounds the
// number of failures; zero or less fails every write.
func (s *MemoryStore) FailWrites(domain model.Domain, err error, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if times <= 0 {
		times = -1
	}
	s.faults[domain] = &fault{err: err, remaining: times}
}

// FailReads makes every Get fail with err. A nil err clears the fault.
func (s *MemoryStore) FailReads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getErr = err
}

func (s *MemoryStore) Get(ctx context.Context, domain model.Domain) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	v, ok := s.data[domain]
	if !ok {
		return nil, nil
	}
	return append([]byte{}, v...), nil
}

func (s *MemoryStore) Put(ctx context.Context, domain model.Domain, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(domain); err != nil {
		return err
	}
	s.data[domain] = append([]byte{}, value...)
	s.writes = append(s.writes, domain)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, domain model.Domain) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(domain); err != nil {
		return err
	}
	delete(s.data, domain)
	s.writes = append(s.writes, domain)
	return nil
}

// injected counts the attempt and returns the configured fault, if any.
// Callers hold s.mu.
func (s *MemoryStore) injected(domain model.Domain) error {
	s.attempts[domain]++
	f, ok := s.faults[domain]
	if !ok || f.remaining == 0 {
		return nil
	}
	if f.remaining > 0 {
		f.remaining--
	}
	return f.err
}

// Writes returns the domains successfully written, in order.
func (s *MemoryStore) Writes() []model.Domain {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Domain(nil), s.writes...)
}

// Attempts returns how many times a write of domain was attempted.
func (s *MemoryStore) Attempts(domain model.Domain) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[domain]
}

// ResetWrites clears the write log and attempt counters.
func (s *MemoryStore) ResetWrites() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = nil
	s.attempts = make(map[model.Domain]int)
}

// Raw returns a copy of every stored domain.
func (s *MemoryStore) Raw() map[model.Domain][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[model.Domain][]byte, len(s.data))
	for d, v := range s.data {
		out[d] = append([]byte{}, v...)
	}
	return out
}

var _ catsync.Store = (*MemoryStore)(nil)
