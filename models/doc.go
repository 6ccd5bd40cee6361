// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines request, response, and domain types for the API.

# Request Types

Types for parsing incoming JSON:

  - CreateElectionRequest: title, organization, creator_name, roles
  - AddRoleRequest: name, seats
  - AddCandidateRequest: role, name, first_choice
  - ClaimUsernameRequest: username
  - SubmitBallotRequest: rankings (map[string][]string, ordered per role)
  - ImportSheetRequest: sheet_url
  - RegisterDeviceRequest: platform

# Response Types

Types for JSON responses:

  - CreateElectionResponse: election_id, admin_key
  - AddRoleResponse / AddCandidateResponse: new entity IDs
  - PublishElectionResponse: share_slug, share_url
  - ClaimUsernameResponse: voter_token
  - SubmitBallotResponse: ballot_id, message
  - ImportSheetResponse: ballot_count, candidates_added
  - CloseElectionResponse: closed_at, snapshot
  - ResultsResponse / PreviewResponse: sealed-until-closed results
  - ErrorResponse: error, message

# Domain Types

Internal data structures:

  - Election: election metadata and lifecycle state
  - Role: a contest within an election, with its seat count
  - Candidate: a name contesting one role
  - Ballot: voter submission metadata (web or sheet import)
  - ResultSnapshot: immutable winners assignment from one resolution run

# Constants

Status values:

	StatusDraft  = "draft"
	StatusOpen   = "open"
	StatusClosed = "closed"

Resolution method:

	MethodIRV = "irv"

Ballot sources:

	SourceWeb   = "web"
	SourceSheet = "sheet"

Device roles:

	RoleVoter = "voter"
	RoleAdmin = "admin"

Platforms:

	PlatformIOS     = "ios"
	PlatformMacOS   = "macos"
	PlatformAndroid = "android"
	PlatformWeb     = "web"
*/
package models
