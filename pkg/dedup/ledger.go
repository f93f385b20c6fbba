// Package dedup tracks which message ids have already been applied to a
// room's visible log. One ledger instance lives per active room view and
// is owned by that view's session loop; the ledger itself does no locking.
package dedup

// Ledger is the set of message ids seen within the current session. It
// grows unbounded for the session's lifetime; entries are never pruned.
type Ledger struct {
	room string
	seen map[string]struct{}
}

// NewLedger returns an empty ledger scoped to one room.
func NewLedger(room string) *Ledger {
	return &Ledger{room: room, seen: make(map[string]struct{})}
}

// Room returns the room this ledger is scoped to.
func (l *Ledger) Room() string { return l.room }

// Seen reports whether id has already been applied.
func (l *Ledger) Seen(id string) bool {
	_, ok := l.seen[id]
	return ok
}

// Add records id as applied.
func (l *Ledger) Add(id string) {
	l.seen[id] = struct{}{}
}

// Admit is the check-then-add gate used by every insertion path. It
// returns true exactly once per id.
func (l *Ledger) Admit(id string) bool {
	if id == "" {
		return false
	}
	if _, ok := l.seen[id]; ok {
		return false
	}
	l.seen[id] = struct{}{}
	return true
}

// Len returns the number of ids recorded.
func (l *Ledger) Len() int { return len(l.seen) }
