// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"fmt"
	"log/slog"

	"runoff/engine"
)

// tallyResult is the output of one engine run over an election's ballots.
type tallyResult struct {
	Winners     engine.Assignment `json:"winners"`
	Passes      int               `json:"passes"`
	BallotCount int               `json:"ballot_count"`
}

// runTally loads an election's roles, ballots, and first-choice table, runs
// the resolution engine, and returns the final assignment. Engine errors
// (MissingFirstChoiceError, ErrNoConvergence) pass through unwrapped so
// callers can map them to status codes.
func runTally(db *sql.DB, electionID string) (*tallyResult, error) {
	ballots, seats, err := loadBallots(db, electionID)
	if err != nil {
		return nil, err
	}

	firstChoices, err := loadFirstChoices(db, electionID)
	if err != nil {
		return nil, err
	}

	ballotCount, err := countBallots(db, electionID)
	if err != nil {
		return nil, err
	}

	passes := 0
	resolver := &engine.Resolver{
		Ballots:      ballots,
		Seats:        seats,
		FirstChoices: firstChoices,
		Trace: func(ev engine.Event) {
			traceToLog(electionID, ev)
			if ev.Kind == engine.EventPass {
				passes = ev.Pass
			}
		},
	}

	winners, err := resolver.Resolve()
	if err != nil {
		return nil, err
	}

	return &tallyResult{
		Winners:     winners,
		Passes:      passes,
		BallotCount: ballotCount,
	}, nil
}

// loadBallots builds the engine's normalized ballot map from the ranking
// table. Every role of the election appears in the map, so roles nobody
// ranked still resolve (to RON by default).
func loadBallots(db *sql.DB, electionID string) (engine.Ballots, engine.Seats, error) {
	roleRows, err := db.Query(`
		SELECT name, seats FROM role WHERE election_id = $1
	`, electionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer roleRows.Close()

	ballots := make(engine.Ballots)
	seats := make(engine.Seats)
	for roleRows.Next() {
		var name string
		var count int
		if err := roleRows.Scan(&name, &count); err != nil {
			return nil, nil, fmt.Errorf("failed to scan role: %w", err)
		}
		ballots[name] = make(engine.RoleVotes)
		seats[name] = count
	}
	if err := roleRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read roles: %w", err)
	}

	rankRows, err := db.Query(`
		SELECT r.ballot_id, r.role, r.candidate, r.rank
		FROM ranking r
		JOIN ballot b ON b.id = r.ballot_id
		WHERE b.election_id = $1
		ORDER BY r.ballot_id, r.role, r.rank
	`, electionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query rankings: %w", err)
	}
	defer rankRows.Close()

	for rankRows.Next() {
		var ballotID, role, candidate string
		var rank int
		if err := rankRows.Scan(&ballotID, &role, &candidate, &rank); err != nil {
			return nil, nil, fmt.Errorf("failed to scan ranking: %w", err)
		}

		votes, ok := ballots[role]
		if !ok {
			// Rankings for roles removed after ballots arrived are dropped.
			continue
		}
		if votes[candidate] == nil {
			votes[candidate] = make(map[int][]string)
		}
		votes[candidate][rank] = append(votes[candidate][rank], ballotID)
	}
	if err := rankRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read rankings: %w", err)
	}

	return ballots, seats, nil
}

// loadFirstChoices reads the election's candidate -> preferred role table.
func loadFirstChoices(db *sql.DB, electionID string) (engine.FirstChoices, error) {
	rows, err := db.Query(`
		SELECT candidate, role FROM first_choice WHERE election_id = $1
	`, electionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query first choices: %w", err)
	}
	defer rows.Close()

	firstChoices := make(engine.FirstChoices)
	for rows.Next() {
		var candidate, role string
		if err := rows.Scan(&candidate, &role); err != nil {
			return nil, fmt.Errorf("failed to scan first choice: %w", err)
		}
		firstChoices[candidate] = role
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read first choices: %w", err)
	}

	return firstChoices, nil
}

func countBallots(db *sql.DB, electionID string) (int, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM ballot WHERE election_id = $1`, electionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count ballots: %w", err)
	}
	return count, nil
}

// traceToLog mirrors engine events into the structured log at debug level,
// except the decisions an operator actually cares about.
func traceToLog(electionID string, ev engine.Event) {
	switch ev.Kind {
	case engine.EventPass:
		slog.Debug("tally pass", "election_id", electionID, "pass", ev.Pass)
	case engine.EventRound:
		slog.Debug("tally round", "election_id", electionID, "pass", ev.Pass,
			"role", ev.Role, "seat", ev.Seat, "round", ev.Round, "total", ev.Total)
	case engine.EventEliminated:
		slog.Debug("candidate eliminated", "election_id", electionID,
			"role", ev.Role, "round", ev.Round, "candidate", ev.Candidate)
	case engine.EventSeat:
		slog.Info("seat decided", "election_id", electionID, "role", ev.Role,
			"seat", ev.Seat, "winner", ev.Candidate, "reason", ev.Reason, "round", ev.Round)
	case engine.EventTie:
		slog.Info("exact tie", "election_id", electionID, "role", ev.Role,
			"round", ev.Round, "tied", ev.Tied)
	case engine.EventConflict:
		slog.Info("double winner", "election_id", electionID,
			"candidate", ev.Candidate, "roles", ev.Roles)
	case engine.EventExcluded:
		slog.Info("conflict exclusion", "election_id", electionID,
			"role", ev.Role, "candidate", ev.Candidate)
	}
}
