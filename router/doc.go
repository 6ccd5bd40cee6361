// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the Runoff API.

# Route Registration

NewRouter creates a configured http.ServeMux with all endpoints:

	mux := router.NewRouter(db, cfg)

# Endpoints

Health:

	GET /health

Election management (admin, requires X-Admin-Key):

	POST /elections                    - Create election
	GET  /elections/{id}/admin         - Get election details
	POST /elections/{id}/roles         - Add role
	POST /elections/{id}/candidates    - Register candidate
	PUT  /elections/{id}/first-choices - Replace first-choice table
	PUT  /elections/{id}/seats - Set seats per role
	POST /elections/{id}/publish       - Open for voting
	POST /elections/{id}/import        - Import sheet ballots
	POST /elections/{id}/close         - Tally and seal results

Voting (public, uses share slug):

	POST /elections/{slug}/claim-username - Claim voter identity
	POST /elections/{slug}/ballots        - Submit/replace ranked ballot
	GET  /elections/{slug}/my-ballot      - Current rankings

Results (public):

	GET /elections/{slug}              - Election info, roles, candidates
	GET /elections/{slug}/results      - Final results (closed only)
	GET /elections/{slug}/ballot-count - Ballot count
	GET /elections/{slug}/preview      - Compact preview data

Device management:

	POST /devices/register     - Register device
	GET  /devices/me           - Get device info
	GET  /devices/my-elections - List device's elections

# Handler Initialization

The router creates handler instances with dependency injection:

	electionHandler := handlers.NewElectionHandler(db, cfg)
	votingHandler := handlers.NewVotingHandler(db, cfg)
	resultsHandler := handlers.NewResultsHandler(db, cfg)
	importHandler := handlers.NewImportHandler(db, cfg, nil)
	deviceHandler := handlers.NewDeviceHandler(db, cfg)

All handlers receive the database connection and configuration.
*/
package router
