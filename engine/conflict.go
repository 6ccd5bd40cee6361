// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNoConvergence is returned when repeated conflict-resolution passes fail
// to reach an assignment in which no candidate holds two roles.
var ErrNoConvergence = errors.New("conflict resolution did not converge")

// MissingFirstChoiceError reports a candidate who won multiple roles but has
// no entry in the first-choice table, which makes the conflict unarbitrable.
type MissingFirstChoiceError struct {
	Candidate string
	Roles     []string
}

func (e *MissingFirstChoiceError) Error() string {
	return fmt.Sprintf("no first-choice role recorded for %q (won %s)",
		e.Candidate, strings.Join(e.Roles, ", "))
}

// DoubleWinners reports every non-RON candidate holding seats in two or more
// roles, mapped to the sorted list of those roles. Tie outcomes are
// unresolved and do not count as held seats. Pure: the assignment is never
// mutated.
func DoubleWinners(assignment Assignment) map[string][]string {
	rolesWon := make(map[string][]string)
	for role, outcomes := range assignment {
		for _, outcome := range outcomes {
			if outcome.IsTie() || outcome.Winner == RON {
				continue
			}
			if !contains(rolesWon[outcome.Winner], role) {
				rolesWon[outcome.Winner] = append(rolesWon[outcome.Winner], role)
			}
		}
	}

	doubled := make(map[string][]string)
	for name, roles := range rolesWon {
		if len(roles) > 1 {
			sort.Strings(roles)
			doubled[name] = roles
		}
	}
	return doubled
}

// Resolve drives the role resolver and conflict detector to a fixed point: an
// assignment in which no non-RON candidate wins more than one role. Each
// double winner keeps their declared first-choice role and is excluded from
// the others before the next pass. Conflict exclusions persist and grow
// across passes; per-pass eliminations and seat winners do not.
func (r *Resolver) Resolve() (Assignment, error) {
	maxPasses := r.MaxPasses
	if maxPasses < 1 {
		maxPasses = DefaultMaxPasses
	}

	conflictExcluded := make(map[string][]string)

	for pass := 1; pass <= maxPasses; pass++ {
		r.trace(Event{Kind: EventPass, Pass: pass})

		assignment := r.resolvePass(pass, cloneExclusions(conflictExcluded))

		doubled := DoubleWinners(assignment)
		if len(doubled) == 0 {
			return assignment, nil
		}

		grew := false
		for _, name := range sortedConflicted(doubled) {
			roles := doubled[name]
			r.trace(Event{Kind: EventConflict, Pass: pass, Candidate: name, Roles: roles})

			favorite, ok := r.FirstChoices[name]
			if !ok {
				return nil, &MissingFirstChoiceError{Candidate: name, Roles: roles}
			}

			for _, role := range roles {
				if role == favorite {
					// The candidate keeps their declared first choice.
					continue
				}
				if !contains(conflictExcluded[role], name) {
					conflictExcluded[role] = append(conflictExcluded[role], name)
					grew = true
					r.trace(Event{Kind: EventExcluded, Pass: pass, Role: role, Candidate: name})
				}
			}
		}

		// A pass that adds no new exclusion can never change the next
		// assignment; fail instead of looping to the pass bound.
		if !grew {
			return nil, fmt.Errorf("%w: conflict set unchanged after pass %d", ErrNoConvergence, pass)
		}
	}

	return nil, fmt.Errorf("%w: %d passes exhausted", ErrNoConvergence, maxPasses)
}

func sortedConflicted(doubled map[string][]string) []string {
	names := make([]string, 0, len(doubled))
	for name := range doubled {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func cloneExclusions(excluded map[string][]string) map[string][]string {
	cloned := make(map[string][]string, len(excluded))
	for role, names := range excluded {
		cloned[role] = append([]string(nil), names...)
	}
	return cloned
}
