// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package engine

import "sort"

// CountRound tallies one elimination round for a role. Each voter is credited
// to the earliest rank <= round at which they ranked a still-eligible
// candidate; voters with no eligible ranked choice up to this round abstain.
// Returns per-candidate counts and the total number of counted votes.
func CountRound(votes RoleVotes, excluded []string, round int) (map[string]int, int) {
	counts := make(map[string]int)
	total := 0

	for _, voter := range roleVoters(votes) {
		name, ok := effectiveChoice(votes, excluded, voter, round)
		if !ok {
			continue
		}
		counts[name]++
		total++
	}

	return counts, total
}

// effectiveChoice finds the voter's effective first choice among eligible
// candidates as of the given round. Candidates sharing a rank are scanned in
// lexicographic order so the credit is deterministic.
func effectiveChoice(votes RoleVotes, excluded []string, voter string, round int) (string, bool) {
	names := candidateNames(votes)
	for rank := 1; rank <= round; rank++ {
		for _, name := range names {
			if contains(excluded, name) {
				continue
			}
			if contains(votes[name][rank], voter) {
				return name, true
			}
		}
	}
	return "", false
}

// candidateNames returns the role's full candidate pool in lexicographic order.
func candidateNames(votes RoleVotes) []string {
	names := make([]string, 0, len(votes))
	for name := range votes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// roleVoters returns every distinct voter ID appearing anywhere in the role's
// ballots, in lexicographic order.
func roleVoters(votes RoleVotes) []string {
	seen := make(map[string]bool)
	for _, ranks := range votes {
		for _, voters := range ranks {
			for _, voter := range voters {
				seen[voter] = true
			}
		}
	}

	voters := make([]string, 0, len(seen))
	for voter := range seen {
		voters = append(voters, voter)
	}
	sort.Strings(voters)
	return voters
}

// maxRank returns the deepest preference rank present in the role's ballots.
func maxRank(votes RoleVotes) int {
	deepest := 0
	for _, ranks := range votes {
		for rank := range ranks {
			if rank > deepest {
				deepest = rank
			}
		}
	}
	return deepest
}

func contains(names []string, target string) bool {
	for _, name := range names {
		if name == target {
			return true
		}
	}
	return false
}
