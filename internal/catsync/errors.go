package catsync

import (
	"fmt"
	"strings"

	"catsync-go/internal/model"
)

// ErrorKind classifies engine errors so callers can render specific guidance.
type ErrorKind string

const (
	KindSchema            ErrorKind = "schema"
	KindValidation        ErrorKind = "validation"
	KindMissingOverride   ErrorKind = "missing_override"
	KindConcurrentSession ErrorKind = "concurrent_session"
	KindSnapshotPersist   ErrorKind = "snapshot_persist"
	KindCommitPartial     ErrorKind = "commit_partial"
	KindInvalidState      ErrorKind = "invalid_state"
	KindLocalChanged      ErrorKind = "local_changed"
	KindCancelled         ErrorKind = "cancelled"
	KindSnapshotNotFound  ErrorKind = "snapshot_not_found"
)

// Sentinels for errors.Is. Any *Error matches the sentinel of its kind.
var (
	ErrSchema            = &Error{Kind: KindSchema}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrMissingOverride   = &Error{Kind: KindMissingOverride}
	ErrConcurrentSession = &Error{Kind: KindConcurrentSession}
	ErrSnapshotPersist   = &Error{Kind: KindSnapshotPersist}
	ErrCommitPartial     = &Error{Kind: KindCommitPartial}
	ErrInvalidState      = &Error{Kind: KindInvalidState}
	ErrLocalChanged      = &Error{Kind: KindLocalChanged}
	ErrCancelled         = &Error{Kind: KindCancelled}
	ErrSnapshotNotFound  = &Error{Kind: KindSnapshotNotFound}
)

// Violation is one broken dataset invariant.
type Violation struct {
	Domain model.Domain
	Key    string
	Rule   string
}

func (v Violation) String() string {
	if v.Key == "" {
		return fmt.Sprintf("%s: %s", v.Domain, v.Rule)
	}
	return fmt.Sprintf("%s[%s]: %s", v.Domain, v.Key, v.Rule)
}

// DomainKey identifies one record.
type DomainKey struct {
	Domain model.Domain
	Key    string
}

// Error is the structured error returned by the engine.
// Domain and Key name the offending record where there is one; the remaining
// fields are filled depending on Kind.
type Error struct {
	Kind    ErrorKind
	Domain  model.Domain
	Key     string
	Message string

	// Violations lists every failed rule of a validation error.
	Violations []Violation
	// Missing lists every conflict left without an override under the manual strategy.
	Missing []DomainKey
	// Written and Failed split the domains of a partially failed commit.
	Written []model.Domain
	Failed  []model.Domain
	// SafetySnapshotID names the snapshot to roll back to after a partial commit.
	SafetySnapshotID string

	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Domain != "" {
		b.WriteString(" ")
		b.WriteString(string(e.Domain))
		if e.Key != "" {
			fmt.Fprintf(&b, "[%s]", e.Key)
		}
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any error of the same kind, so errors.Is(err, ErrValidation) works
// for every validation error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func validationError(violations []Violation) *Error {
	e := &Error{
		Kind:       KindValidation,
		Violations: violations,
		Domain:     violations[0].Domain,
		Key:        violations[0].Key,
	}
	if len(violations) == 1 {
		e.Message = violations[0].Rule
	} else {
		e.Message = fmt.Sprintf("%s (and %d more violations)", violations[0].Rule, len(violations)-1)
	}
	return e
}

func missingOverrideError(missing []DomainKey) *Error {
	e := &Error{
		Kind:    KindMissingOverride,
		Missing: missing,
		Domain:  missing[0].Domain,
		Key:     missing[0].Key,
	}
	e.Message = fmt.Sprintf("%d conflicts have no override", len(missing))
	return e
}
