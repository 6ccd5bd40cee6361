// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package engine

import "sort"

// DefaultMaxPasses bounds the conflict-resolution loop when Resolver.MaxPasses
// is left zero.
const DefaultMaxPasses = 8

// Resolver resolves the winners of every role in one ballot set. The zero
// value plus Ballots is usable; Seats, FirstChoices, MaxPasses, and Trace are
// optional. A Resolver is a pure function of its inputs: exclusion state is
// created fresh inside Resolve, never shared between calls.
type Resolver struct {
	Ballots      Ballots
	Seats        Seats
	FirstChoices FirstChoices
	MaxPasses    int
	Trace        TraceFunc
}

// resolvePass runs the role resolver for every role using this pass's working
// exclusion sets. Seat winners and round eliminations grow the sets; they are
// discarded with the pass.
func (r *Resolver) resolvePass(pass int, excluded map[string][]string) Assignment {
	assignment := make(Assignment, len(r.Ballots))

	for _, role := range sortedRoles(r.Ballots) {
		seats := r.Seats[role]
		if seats < 1 {
			seats = 1
		}

		outcomes := make([]Outcome, 0, seats)
		for seat := 1; seat <= seats; seat++ {
			outcome := r.resolveRole(pass, role, seat, excluded)
			outcomes = append(outcomes, outcome)

			// A seat winner cannot fill a second seat of the same role.
			// Tie members stay eligible: the tie is unresolved.
			if !outcome.IsTie() {
				excluded[role] = appendMissing(excluded[role], outcome.Winner)
			}
		}
		assignment[role] = outcomes
	}

	return assignment
}

// resolveRole decides one seat of one role by instant-runoff elimination.
func (r *Resolver) resolveRole(pass int, role string, seat int, excluded map[string][]string) Outcome {
	votes := r.Ballots[role]
	remaining := remainingCandidates(votes, excluded[role])

	// Degenerate pools resolve by default, without running any round.
	switch len(remaining) {
	case 0:
		r.trace(Event{Kind: EventSeat, Pass: pass, Role: role, Seat: seat, Candidate: RON, Reason: ReasonDefault})
		return Outcome{Winner: RON, Reason: ReasonDefault}
	case 1:
		r.trace(Event{Kind: EventSeat, Pass: pass, Role: role, Seat: seat, Candidate: remaining[0], Reason: ReasonDefault})
		return Outcome{Winner: remaining[0], Reason: ReasonDefault}
	}

	cumulative := make(map[string]int)

	for round := 1; round <= maxRank(votes); round++ {
		counts, total := CountRound(votes, excluded[role], round)
		if total == 0 {
			continue
		}
		r.trace(Event{Kind: EventRound, Pass: pass, Role: role, Seat: seat, Round: round, Counts: counts, Total: total})

		// A dead-even split at exactly half the round total cannot be
		// broken procedurally; surface it before the majority check.
		if tied := atThreshold(counts, total); len(tied) >= 2 {
			r.trace(Event{Kind: EventTie, Pass: pass, Role: role, Seat: seat, Round: round, Tied: tied})
			return Outcome{Tied: tied, Reason: ReasonTie, Round: round}
		}

		leader, score := topCandidate(counts)
		if 2*score >= total {
			r.trace(Event{Kind: EventSeat, Pass: pass, Role: role, Seat: seat, Round: round, Candidate: leader, Reason: ReasonMajority})
			return Outcome{Winner: leader, Reason: ReasonMajority, Round: round}
		}

		for name, count := range counts {
			cumulative[name] += count
		}

		// Eliminate the lowest scorer. Equal-lowest candidates break
		// lexicographically so elimination order is deterministic.
		low, _ := bottomCandidate(counts)
		excluded[role] = appendMissing(excluded[role], low)
		r.trace(Event{Kind: EventEliminated, Pass: pass, Role: role, Seat: seat, Round: round, Candidate: low})
	}

	// No ranked choice was ever counted for this role.
	if len(cumulative) == 0 {
		r.trace(Event{Kind: EventSeat, Pass: pass, Role: role, Seat: seat, Candidate: RON, Reason: ReasonDefault})
		return Outcome{Winner: RON, Reason: ReasonDefault}
	}

	// Rounds exhausted without a majority: fall back to the highest
	// cumulative total across all rounds.
	winner, _ := topCandidate(cumulative)
	r.trace(Event{Kind: EventSeat, Pass: pass, Role: role, Seat: seat, Candidate: winner, Reason: ReasonPlurality})
	return Outcome{Winner: winner, Reason: ReasonPlurality}
}

// remainingCandidates returns the candidate pool minus the exclusion set, in
// lexicographic order.
func remainingCandidates(votes RoleVotes, excluded []string) []string {
	remaining := make([]string, 0, len(votes))
	for _, name := range candidateNames(votes) {
		if !contains(excluded, name) {
			remaining = append(remaining, name)
		}
	}
	return remaining
}

// atThreshold returns the candidates whose count equals exactly half the round
// total, sorted. Only possible when the total is even.
func atThreshold(counts map[string]int, total int) []string {
	var tied []string
	for name, count := range counts {
		if 2*count == total {
			tied = append(tied, name)
		}
	}
	sort.Strings(tied)
	return tied
}

// topCandidate returns the highest-count candidate, breaking equal counts by
// lexicographically smaller name.
func topCandidate(counts map[string]int) (string, int) {
	best, bestCount := "", -1
	for _, name := range sortedCounted(counts) {
		if counts[name] > bestCount {
			best, bestCount = name, counts[name]
		}
	}
	return best, bestCount
}

// bottomCandidate returns the lowest-count candidate, breaking equal counts by
// lexicographically smaller name.
func bottomCandidate(counts map[string]int) (string, int) {
	worst, worstCount := "", -1
	for _, name := range sortedCounted(counts) {
		if worstCount == -1 || counts[name] < worstCount {
			worst, worstCount = name, counts[name]
		}
	}
	return worst, worstCount
}

func sortedCounted(counts map[string]int) []string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedRoles(ballots Ballots) []string {
	roles := make([]string, 0, len(ballots))
	for role := range ballots {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

func appendMissing(names []string, name string) []string {
	if contains(names, name) {
		return names
	}
	return append(names, name)
}
