package catsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"catsync-go/internal/model"
)

// EngineConfig tunes the restore engine.
type EngineConfig struct {
	// RequiredSettings are the settings sections a restored settings document must have.
	RequiredSettings []string
	// LegacyCollisions decides keys found in more than one legacy collection.
	LegacyCollisions CollisionPolicy
	// CommitAttempts is the number of tries per domain write. Zero means 3.
	CommitAttempts uint
	// CommitDelay is the pause between write attempts.
	CommitDelay time.Duration
}

// Engine reconciles the local dataset with exported snapshots.
// At most one session may be past Previewing at any time.
type Engine struct {
	store     Store
	safety    *SafetyManager
	migrator  *Migrator
	validator *Validator
	attempts  uint
	delay     time.Duration
	logger    Logger
	clock     Clock
	idgen     IDGenerator

	mu      sync.Mutex
	current *Session
	busy    bool
}

// NewEngine creates an Engine over the local store and safety snapshot manager.
func NewEngine(store Store, safety *SafetyManager, cfg EngineConfig, logger Logger, clock Clock, idgen IDGenerator) *Engine {
	attempts := cfg.CommitAttempts
	if attempts == 0 {
		attempts = 3
	}
	return &Engine{
		store:     store,
		safety:    safety,
		migrator:  NewMigrator(clock, cfg.LegacyCollisions, logger),
		validator: NewValidator(cfg.RequiredSettings),
		attempts:  attempts,
		delay:     cfg.CommitDelay,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
	}
}

// Preview starts a new session: it normalizes the raw snapshot, reads the
// local dataset and computes the diff. Nothing is written. A session that is
// still only previewing is superseded by the new one; a session that is
// already applying makes Preview fail with a concurrent-session error.
func (e *Engine) Preview(ctx context.Context, raw []byte, opts MergeOptions) (*Session, error) {
	if err := checkOptions(opts); err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.busy {
		e.mu.Unlock()
		return nil, newError(KindConcurrentSession, "another restore or rollback is in progress")
	}
	s := newSession(e, e.idgen.New(), opts)
	e.current = s
	e.mu.Unlock()

	if err := s.preview(ctx, raw); err != nil {
		s.setState(StateAborted)
		e.logger.Error("restore preview failed", "session", s.ID, "error", err)
		return nil, err
	}
	return s, nil
}

// Rollback restores the local store from a safety snapshot. An empty ID
// selects the newest one. It is rejected while a session is being applied.
func (e *Engine) Rollback(ctx context.Context, id string) (*SafetySnapshot, error) {
	if err := e.lock(); err != nil {
		return nil, err
	}
	defer e.unlock()
	return e.safety.Rollback(ctx, id)
}

// Prune applies the safety snapshot retention policy.
func (e *Engine) Prune(ctx context.Context) (int, error) {
	if err := e.lock(); err != nil {
		return 0, err
	}
	defer e.unlock()
	return e.safety.Prune(ctx)
}

// SafetySnapshots lists the safety snapshots, newest first.
func (e *Engine) SafetySnapshots(ctx context.Context) ([]*SafetySnapshot, error) {
	return e.safety.List(ctx)
}

// Migrator returns the migrator used for incoming snapshots.
func (e *Engine) Migrator() *Migrator {
	return e.migrator
}

// acquire marks s as the applying session.
func (e *Engine) acquire(s *Session) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != s {
		return newError(KindInvalidState, "session %s was superseded by a newer preview", s.ID)
	}
	if e.busy {
		return newError(KindConcurrentSession, "session %s is being applied", s.ID)
	}
	e.busy = true
	return nil
}

func (e *Engine) release(s *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == s {
		e.busy = false
	}
}

func (e *Engine) discard(s *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == s && !e.busy {
		e.current = nil
	}
}

// lock reserves the engine for a maintenance operation.
func (e *Engine) lock() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy {
		return newError(KindConcurrentSession, "a restore is being applied")
	}
	e.busy = true
	e.current = nil
	return nil
}

func (e *Engine) unlock() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.busy = false
}

func checkOptions(opts MergeOptions) error {
	if _, ok := strategyNames[opts.Strategy]; !ok {
		return fmt.Errorf("unknown strategy %v", opts.Strategy)
	}
	if opts.RemoteExclusive && opts.Strategy != StrategyRemote {
		return fmt.Errorf("remote-exclusive mode requires the remote strategy")
	}
	for d, keys := range opts.Overrides {
		if !knownDomain(d) {
			return fmt.Errorf("override for unknown domain %q", d)
		}
		for key, r := range keys {
			if _, err := ParseResolution(string(r)); err != nil {
				return fmt.Errorf("override %s:%s: %w", d, key, err)
			}
		}
	}
	for _, d := range opts.Domains {
		if !knownDomain(d) {
			return fmt.Errorf("unknown domain %q", d)
		}
	}
	return nil
}

func knownDomain(d model.Domain) bool {
	for _, x := range model.AllDomains {
		if x == d {
			return true
		}
	}
	return false
}
