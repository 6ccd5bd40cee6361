// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the Runoff API.

# Handler Types

Each handler is a struct with database and config dependencies:

  - ElectionHandler: Election lifecycle (create, roles, candidates, publish, close)
  - VotingHandler: Username claims and ranked-ballot submission
  - ResultsHandler: Election info and results retrieval
  - ImportHandler: Google Sheets ballot import
  - DeviceHandler: Device registration and election history

Handlers are created via constructor functions that accept *sql.DB and Config:

	electionHandler := handlers.NewElectionHandler(db, cfg)

# Election Lifecycle

Elections progress through three states: draft → open → closed

	POST /elections                     → CreateElection (returns admin_key)
	POST /elections/{id}/roles          → AddRole (draft only)
	POST /elections/{id}/candidates     → AddCandidate (draft only)
	PUT  /elections/{id}/first-choices  → SetFirstChoices ("name: role" lines)
	PUT  /elections/{id}/seats          → SetSeats ("role: seats" lines)
	POST /elections/{id}/publish        → PublishElection (generates share_slug)
	POST /elections/{id}/import         → ImportSheet (open only)
	POST /elections/{id}/close          → CloseElection (runs the engine)

Admin operations require the X-Admin-Key header.

# Voting Flow

Voters interact via the share slug:

	POST /elections/{slug}/claim-username → ClaimUsername (returns voter_token)
	POST /elections/{slug}/ballots        → SubmitBallot (create or replace)
	GET  /elections/{slug}/my-ballot      → GetMyBallot

Voter operations require the X-Voter-Token header. Rankings are ordered
candidate lists per role; list position is the rank.

# Tallying

Closing an election runs the instant-runoff engine in tally.go:

	snapshot, err := runTally(db, electionID)

This loads the ranking rows into the engine's normalized ballot form,
resolves every role seat by seat, arbitrates double wins through the
first-choice table, and records the winners assignment with the pass and
ballot counts. MissingFirstChoiceError maps to 422 and ErrNoConvergence to
409; in both cases the election stays open.

# Device Tracking

Optional device tracking for native apps:

	POST /devices/register      → Register
	GET  /devices/me            → GetMe
	GET  /devices/my-elections  → GetMyElections

Device operations require the X-Device-UUID header.
*/
package handlers
