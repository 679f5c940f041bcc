package model

// Status is the watch state of a video record.
//
// Statuses form a total order used to decide whether a new observation may
// replace an existing one:
//
//	viewed(3) > want(2) > browsed(1) > untracked(0)
type Status string

const (
	StatusViewed    Status = "viewed"
	StatusWant      Status = "want"
	StatusBrowsed   Status = "browsed"
	StatusUntracked Status = "untracked"
)

// Priority returns the rank of s in the status order.
// Unknown statuses rank below untracked (-1) so any known status upgrades them.
func (s Status) Priority() int {
	switch s {
	case StatusViewed:
		return 3
	case StatusWant:
		return 2
	case StatusBrowsed:
		return 1
	case StatusUntracked:
		return 0
	default:
		return -1
	}
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s.Priority() >= 0
}

// CanUpgrade reports whether moving from one status to another raises its priority.
func CanUpgrade(from, to Status) bool {
	return to.Priority() > from.Priority()
}

// SafeUpdate returns to if it is an upgrade over from, otherwise from.
// A viewed record is never downgraded by a later, less certain observation.
func SafeUpdate(from, to Status) Status {
	if CanUpgrade(from, to) {
		return to
	}
	return from
}
