// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db handles database schema creation.

# Schema Creation

CreateSchema initializes all required tables:

	if err := db.CreateSchema(conn); err != nil {
		log.Fatal(err)
	}

Safe to call multiple times - uses IF NOT EXISTS for all tables and indexes.
The DDL avoids driver-specific types and defaults so the same schema runs on
both PostgreSQL (lib/pq) and SQLite (modernc.org/sqlite).

# Tables

The schema includes:

  - election: Election metadata and lifecycle state
  - role: Contests within an election, with seat counts
  - candidate: Names contesting one role
  - first_choice: Each candidate's declared top-preference role
  - username_claim: Maps usernames to voter tokens
  - ballot: One ballot per voter per election
  - ranking: Ordered candidate preferences per ballot and role
  - result_snapshot: Immutable winners assignments
  - device: Registered devices
  - device_election: Links devices to elections

# Relationships

	election 1──* role
	election 1──* candidate
	election 1──* first_choice
	election 1──* username_claim
	election 1──* ballot
	ballot 1──* ranking
	election 1──* result_snapshot
	device *──* election (via device_election)

All foreign keys use ON DELETE CASCADE.

# Indexes

Performance indexes on:

  - election.share_slug (unique)
  - election.status
  - role.election_id
  - candidate.election_id
  - ballot.election_id
  - ballot.(election_id, voter_token)
  - ranking.role
  - device.device_uuid (unique)
*/
package db
