// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package sheet loads ranked ballots and election tables from outside the
resolution engine.

# Google Sheets import

A shared spreadsheet link is converted to its CSV export endpoint and fetched:

	records, err := sheet.FetchCSV(ctx, nil, shareURL)
	ballots, rows, err := sheet.ParseBallots(records)

The ballot grid follows the Google Forms ranked-question convention: one
column per role and rank, headed "<Role> [<n>]", with the candidate name in
the cell. A voter's chain for a role ends at the first empty rank; later
entries on that row are ignored rather than promoted.

# Key-value tables

The first-choice table (candidate: role) and the seats-per-role table
(role: seats) are colon-delimited text:

	Sam: President
	Events Officer: 2

Parsed with ParseKeyValue and, for seat counts, ParseSeats.
*/
package sheet
