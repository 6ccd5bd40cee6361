// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package engine resolves the winners of multiple independent elections ("roles")
from ranked-preference ballots using instant-runoff voting, and enforces the
global rule that no candidate may win more than one role.

# Inputs

The engine is a pure, deterministic function of three inputs:

  - Ballots: role -> candidate -> rank -> voter IDs (normalized upstream)
  - Seats: role -> seat count (absent roles get one seat)
  - FirstChoices: candidate -> their declared top-preference role

It performs no I/O and holds no state between calls.

# Tabulation

Each round credits every voter to the earliest rank at which they ranked a
still-eligible candidate; voters with no eligible choice abstain for that
round. A candidate whose count meets or exceeds half the round total wins the
seat. Two or more candidates at exactly half the total is an exact tie,
surfaced as a first-class Outcome rather than broken arbitrarily. Otherwise
the lowest scorer is eliminated and the next round runs. If every round is
exhausted without a majority, the highest cumulative total across rounds wins
(plurality fallback).

Roles with zero eligible candidates default to RON ("re-open nominations");
roles with exactly one default to that candidate, with no rounds run.

# Multi-seat roles

A role's seats are filled one at a time. Each seat winner is excluded before
the next seat is resolved, so nobody fills two seats of the same role.

# Conflict resolution

After all roles resolve, any non-RON candidate winning two or more roles keeps
their declared first-choice role and is excluded from the others, and every
role re-resolves with the grown exclusion sets. The loop repeats until no
candidate holds two roles. A double winner missing from the first-choice table
is a *MissingFirstChoiceError. The loop is bounded: it fails with
ErrNoConvergence after MaxPasses passes, or as soon as a pass adds no new
exclusion.

# Determinism

All iteration is lexicographic: candidate scans, voter scans, role order,
leader and elimination tie-breaks. The same inputs always produce the same
assignment and the same trace.

# Tracing

Set Resolver.Trace to receive Events (round tallies, eliminations, seat
decisions, conflicts). The engine never logs on its own.

# Example

	r := &engine.Resolver{
		Ballots:      ballots,
		Seats:        engine.Seats{"Events Officer": 2},
		FirstChoices: engine.FirstChoices{"Sam": "President"},
	}
	assignment, err := r.Resolve()
*/
package engine
