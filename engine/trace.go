// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package engine

// Event kinds emitted during resolution.
const (
	EventPass       = "pass"       // a resolution pass started
	EventRound      = "round"      // a round was tallied
	EventTie        = "tie"        // an exact split stopped a role
	EventEliminated = "eliminated" // lowest scorer removed from a role
	EventSeat       = "seat"       // a seat was decided
	EventConflict   = "conflict"   // a candidate won two or more roles
	EventExcluded   = "excluded"   // a conflict exclusion was recorded
)

// Event is one step of the resolution trace. Fields are populated per Kind;
// zero values mean not applicable.
type Event struct {
	Kind      string
	Pass      int
	Role      string
	Seat      int
	Round     int
	Counts    map[string]int
	Total     int
	Candidate string
	Reason    string
	Roles     []string
	Tied      []string
}

// TraceFunc receives resolution events. The engine never logs on its own;
// callers opt in by setting Resolver.Trace.
type TraceFunc func(Event)

func (r *Resolver) trace(ev Event) {
	if r.Trace != nil {
		r.Trace(ev)
	}
}
