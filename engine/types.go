// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package engine

import "strings"

// RON is the sentinel "re-open nominations" candidate. A role with no eligible
// candidates falls back to RON, and RON is exempt from the rule that no
// candidate may win more than one role.
const RON = "RON"

// RoleVotes holds one role's normalized ranked ballots:
// candidate -> preference rank (1 = first choice) -> voter IDs at that rank.
type RoleVotes map[string]map[int][]string

// Ballots maps role name -> that role's normalized ranked ballots.
// Immutable for the duration of one Resolve call.
type Ballots map[string]RoleVotes

// Seats maps role name -> number of seats to fill. Roles absent from the map
// get a single seat.
type Seats map[string]int

// FirstChoices maps candidate name -> the role that candidate declared as
// their own top preference. Consulted only when the candidate wins more than
// one role; a conflicted candidate missing from the table is a fatal error.
type FirstChoices map[string]string

// Outcome reasons.
const (
	ReasonDefault   = "default"   // zero or one eligible candidate, no rounds run
	ReasonMajority  = "majority"  // round leader met the majority threshold
	ReasonPlurality = "plurality" // rounds exhausted, highest cumulative total
	ReasonTie       = "tie"       // exact split the engine cannot break
)

// Outcome is the result of one seat: either a single winner or an exact tie.
type Outcome struct {
	Winner string   `json:"winner,omitempty"`
	Tied   []string `json:"tied,omitempty"`
	Reason string   `json:"reason"`
	Round  int      `json:"round,omitempty"` // deciding round, 0 for defaults
}

// IsTie reports whether the seat ended in an exact split.
func (o Outcome) IsTie() bool {
	return len(o.Tied) > 0
}

func (o Outcome) String() string {
	if o.IsTie() {
		return "TIE: " + strings.Join(o.Tied, " and ")
	}
	return o.Winner
}

// Assignment maps role name -> ordered seat outcomes (one per seat).
type Assignment map[string][]Outcome
