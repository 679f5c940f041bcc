package catsync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/avast/retry-go/v4"

	"catsync-go/internal/model"
)

// State is the position of a session in the restore state machine:
//
//	Idle -> Previewing -> Resolving -> Validating -> SnapshottingLocal -> Committing -> Done
//
// Any state may move to Aborted on error.
type State int

const (
	StateIdle State = iota
	StatePreviewing
	StateResolving
	StateValidating
	StateSnapshottingLocal
	StateCommitting
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreviewing:
		return "previewing"
	case StateResolving:
		return "resolving"
	case StateValidating:
		return "validating"
	case StateSnapshottingLocal:
		return "snapshotting_local"
	case StateCommitting:
		return "committing"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MergeResult reports the outcome of applying a session.
type MergeResult struct {
	SessionID string
	Success   bool
	Err       error
	Warnings  []error
	// Merged is the full candidate dataset, set once resolution succeeded.
	Merged  *model.Dataset
	Summary map[model.Domain]DomainSummary
	// Written lists the domains actually written, in commit order.
	Written []model.Domain
	// SafetySnapshotID names the pre-commit snapshot, set once it was saved.
	SafetySnapshotID string
}

// Session carries one restore attempt through the state machine. Its diff,
// options and overrides are private to it; the engine only tracks which
// session is current.
type Session struct {
	ID string

	engine *Engine

	mu    sync.Mutex
	state State
	opts  MergeOptions

	localRaw map[model.Domain][]byte
	local    *model.Dataset
	remote   *model.Dataset
	version  SchemaVersion
	warnings []error
	diff     *DatasetDiff
}

func newSession(e *Engine, id string, opts MergeOptions) *Session {
	overrides := make(Overrides, len(opts.Overrides))
	for d, keys := range opts.Overrides {
		for k, r := range keys {
			overrides.Set(d, k, r)
		}
	}
	opts.Overrides = overrides
	if opts.Domains != nil {
		opts.Domains = append([]model.Domain{}, opts.Domains...)
	}
	return &Session{ID: id, engine: e, state: StateIdle, opts: opts}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// transition moves the session forward and logs the step.
func (s *Session) transition(state State) {
	s.setState(state)
	s.engine.logger.Debug("restore state", "session", s.ID, "state", state)
}

// Diff returns the diff computed by Previewing.
func (s *Session) Diff() *DatasetDiff { return s.diff }

// Version returns the detected schema generation of the snapshot.
func (s *Session) Version() SchemaVersion { return s.version }

// Warnings returns the non-fatal problems found so far.
func (s *Session) Warnings() []error { return s.warnings }

// Options returns the options of the session.
func (s *Session) Options() MergeOptions { return s.opts }

// SetOverride records an explicit resolution for one conflicting key.
// Overrides can only change while the session is previewing.
func (s *Session) SetOverride(domain model.Domain, key string, r Resolution) error {
	if _, err := ParseResolution(string(r)); err != nil {
		return err
	}
	if !knownDomain(domain) {
		return fmt.Errorf("unknown domain %q", domain)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePreviewing {
		return newError(KindInvalidState, "cannot change overrides in state %s", s.state)
	}
	s.opts.Overrides.Set(domain, key, r)
	return nil
}

// Discard abandons a previewing session.
func (s *Session) Discard() {
	s.mu.Lock()
	if s.state == StatePreviewing || s.state == StateIdle {
		s.state = StateAborted
	}
	s.mu.Unlock()
	s.engine.discard(s)
}

func (s *Session) preview(ctx context.Context, raw []byte) error {
	s.transition(StatePreviewing)
	e := s.engine

	if err := ctx.Err(); err != nil {
		return wrapError(KindCancelled, err, "preview cancelled")
	}

	norm, err := e.migrator.Normalize(raw)
	if err != nil {
		return err
	}

	localRaw, err := readDomains(ctx, e.store)
	if err != nil {
		return fmt.Errorf("reading local dataset: %w", err)
	}
	local, err := decodeDomains(localRaw)
	if err != nil {
		return fmt.Errorf("decoding local dataset: %w", err)
	}

	s.localRaw = localRaw
	s.local = local
	s.remote = norm.Snapshot.Dataset()
	s.version = norm.Version
	s.warnings = norm.Warnings
	s.diff = DiffDatasets(local, s.remote, s.opts)

	e.logger.Info("restore previewed",
		"session", s.ID,
		"schema", norm.Version,
		"strategy", s.opts.Strategy,
		"warnings", len(norm.Warnings))
	return nil
}

// Apply resolves, validates, snapshots the local store and commits. It can
// only be called once, on a previewing session that is still the engine's
// current one. The returned result is filled as far as the session got; on
// failure its Err is the returned error.
//
// Cancellation of ctx is honoured until the safety snapshot is saved. From
// then on the commit runs to completion.
func (s *Session) Apply(ctx context.Context) (*MergeResult, error) {
	e := s.engine

	s.mu.Lock()
	if s.state != StatePreviewing {
		state := s.state
		s.mu.Unlock()
		return nil, newError(KindInvalidState, "cannot apply a session in state %s", state)
	}
	if err := e.acquire(s); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()
	defer e.release(s)

	result := &MergeResult{SessionID: s.ID, Warnings: append([]error(nil), s.warnings...)}
	fail := func(err error) (*MergeResult, error) {
		s.setState(StateAborted)
		result.Err = err
		e.logger.Error("restore aborted", "session", s.ID, "error", err)
		return result, err
	}

	s.transition(StateResolving)
	if err := ctx.Err(); err != nil {
		return fail(wrapError(KindCancelled, err, "restore cancelled"))
	}
	resolved, err := ResolveDataset(s.local, s.diff, s.opts)
	if err != nil {
		return fail(err)
	}
	result.Merged = resolved.Merged
	result.Summary = resolved.Summary

	s.transition(StateValidating)
	if err := e.validator.Validate(resolved.Merged, resolved.Domains); err != nil {
		return fail(err)
	}

	s.transition(StateSnapshottingLocal)
	if err := ctx.Err(); err != nil {
		return fail(wrapError(KindCancelled, err, "restore cancelled"))
	}
	current, err := readDomains(ctx, e.store)
	if err != nil {
		return fail(wrapError(KindSnapshotPersist, err, "reading local dataset"))
	}
	if changed := changedDomains(s.localRaw, current); len(changed) > 0 {
		return fail(&Error{
			Kind:    KindLocalChanged,
			Domain:  changed[0],
			Message: fmt.Sprintf("%d domains changed since the preview; preview again", len(changed)),
		})
	}
	snap, err := e.safety.Capture(ctx, s.ID, current)
	if err != nil {
		return fail(err)
	}
	result.SafetySnapshotID = snap.ID
	if err := ctx.Err(); err != nil {
		if derr := e.safety.store.DeleteSnapshot(context.WithoutCancel(ctx), snap.ID); derr != nil {
			e.logger.Warn("discarding unused safety snapshot", "id", snap.ID, "error", derr)
		}
		result.SafetySnapshotID = ""
		return fail(wrapError(KindCancelled, err, "restore cancelled"))
	}

	s.transition(StateCommitting)
	cctx := context.WithoutCancel(ctx)
	written, failed, errs := s.commit(cctx, resolved)
	result.Written = written
	if len(failed) > 0 {
		return fail(&Error{
			Kind:             KindCommitPartial,
			Domain:           failed[0],
			Message:          fmt.Sprintf("%d domain writes failed; roll back with safety snapshot %s", len(failed), snap.ID),
			Written:          written,
			Failed:           failed,
			SafetySnapshotID: snap.ID,
			Err:              errors.Join(errs...),
		})
	}

	s.transition(StateDone)
	result.Success = true
	e.logger.Info("restore committed", "session", s.ID, "written", len(written), "safety_snapshot", snap.ID)

	if _, err := e.safety.Prune(cctx); err != nil {
		e.logger.Warn("pruning safety snapshots", "error", err)
		result.Warnings = append(result.Warnings, err)
	}
	return result, nil
}

// commit writes every resolved domain whose encoding differs from local.
// A failed domain does not stop the remaining writes.
func (s *Session) commit(ctx context.Context, resolved *Resolved) (written, failed []model.Domain, errs []error) {
	e := s.engine
	for _, d := range resolved.Domains {
		next, err := resolved.Merged.EncodeDomain(d)
		if err != nil {
			failed = append(failed, d)
			errs = append(errs, err)
			continue
		}
		prev, err := s.local.EncodeDomain(d)
		if err == nil && bytes.Equal(next, prev) {
			continue
		}

		err = retry.Do(
			func() error {
				if next == nil {
					return e.store.Delete(ctx, d)
				}
				return e.store.Put(ctx, d, next)
			},
			retry.Context(ctx),
			retry.Attempts(e.attempts),
			retry.Delay(e.delay),
			retry.DelayType(retry.FixedDelay),
			retry.LastErrorOnly(true),
			retry.OnRetry(func(n uint, err error) {
				e.logger.Warn("retrying domain write", "domain", d, "attempt", n+1, "error", err)
			}),
		)
		if err != nil {
			e.logger.Error("domain write failed", "domain", d, "error", err)
			failed = append(failed, d)
			errs = append(errs, fmt.Errorf("%s: %w", d, err))
			continue
		}
		e.logger.Info("domain committed", "domain", d, "bytes", len(next))
		written = append(written, d)
	}
	return written, failed, errs
}

func changedDomains(before, after map[model.Domain][]byte) []model.Domain {
	var changed []model.Domain
	for _, d := range model.AllDomains {
		if !bytes.Equal(before[d], after[d]) {
			changed = append(changed, d)
		}
	}
	return changed
}
