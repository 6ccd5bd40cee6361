// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package sheet

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"runoff/engine"
)

// rankColumn is one "<Role> [<rank>]" header column.
type rankColumn struct {
	role  string
	rank  int
	index int
}

// ParseBallots normalizes a ranked-ballot CSV grid. The first record is the
// header; every column named "<Role> [<n>]" holds the candidate a voter ranked
// n-th for that role. A ranking only counts if all earlier rank columns for
// the same role are filled on that row: partial or skipped chains are ignored,
// never promoted. Returns the normalized ballots and the number of ballot
// rows.
func ParseBallots(records [][]string) (engine.Ballots, int, error) {
	if len(records) == 0 {
		return nil, 0, fmt.Errorf("empty sheet")
	}

	columns, err := rankColumns(records[0])
	if err != nil {
		return nil, 0, err
	}

	// role -> rank -> column index, for the monotonic-chain walk.
	byRole := make(map[string]map[int]int)
	for _, col := range columns {
		if byRole[col.role] == nil {
			byRole[col.role] = make(map[int]int)
		}
		byRole[col.role][col.rank] = col.index
	}

	ballots := make(engine.Ballots, len(byRole))
	for role := range byRole {
		ballots[role] = make(engine.RoleVotes)
	}

	rows := records[1:]
	for i, row := range rows {
		voter := "row" + strconv.Itoa(i+1)

		for role, ranks := range byRole {
			for rank := 1; ; rank++ {
				index, ok := ranks[rank]
				if !ok || index >= len(row) {
					break
				}
				name := strings.TrimSpace(row[index])
				if name == "" {
					// A gap ends the voter's chain for this role.
					break
				}

				if ballots[role][name] == nil {
					ballots[role][name] = make(map[int][]string)
				}
				ballots[role][name][rank] = append(ballots[role][name][rank], voter)
			}
		}
	}

	return ballots, len(rows), nil
}

// rankColumns extracts the "<Role> [<n>]" columns from the header record.
// Columns without a bracketed rank (timestamps, free-form fields) are ignored.
func rankColumns(header []string) ([]rankColumn, error) {
	var columns []rankColumn
	for i, col := range header {
		role, bracket, found := strings.Cut(col, " [")
		if !found {
			continue
		}

		digits := strings.TrimSuffix(strings.TrimSpace(bracket), "]")
		rank, err := strconv.Atoi(digits)
		if err != nil || rank < 1 {
			return nil, fmt.Errorf("bad rank in column %q", col)
		}

		columns = append(columns, rankColumn{role: strings.TrimSpace(role), rank: rank, index: i})
	}
	return columns, nil
}

// ParseKeyValue reads colon-delimited "key: value" lines, trimming whitespace
// around both sides. Blank lines are skipped. This is the format of the
// first-choice and seats-per-role tables.
func ParseKeyValue(r io.Reader) (map[string]string, error) {
	data := make(map[string]string)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		key, value, found := strings.Cut(line, ":")
		if !found {
			return nil, fmt.Errorf("line %q is not key: value", line)
		}
		data[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read key-value data: %w", err)
	}

	return data, nil
}

// ParseSeats converts a "role: seats" table into engine.Seats. Every value
// must be a positive integer.
func ParseSeats(table map[string]string) (engine.Seats, error) {
	seats := make(engine.Seats, len(table))
	for role, value := range table {
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("seat count for %q must be a positive integer, got %q", role, value)
		}
		seats[role] = n
	}
	return seats, nil
}
