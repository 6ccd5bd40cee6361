// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the Runoff API server.

Runoff is an election service for clubs and small organizations: voters rank
candidates per role, and winners are decided by instant-runoff elimination
with cross-role conflict resolution (one person, one office).

# Starting the Server

The server requires environment variables or CLI flags for configuration:

	DATABASE_URL=postgres://... go run main.go

Or with flags:

	go run main.go -p 3419 -d "postgres://..."

A local .env file is loaded at startup when present.

# Configuration

Required settings:

  - DATABASE_URL (-d): PostgreSQL connection string or SQLite DSN
  - ADMIN_KEY_SALT (--admin-salt): Secret for admin key HMAC
  - ELECTION_SLUG_SALT (--slug-salt): Secret for share slug generation

Optional settings:

  - PORT (-p): Server port (default: 3419)
  - DATABASE_TYPE (-t): "postgres" or "sqlite" (default: sqlite)
  - SHARE_BASE_URL (--share-base): Base URL for share links

# Architecture

The server uses a handler-based architecture with dependency injection:

  - engine: instant-runoff tabulation and conflict resolution (pure, no I/O)
  - sheet: Google Sheets CSV export fetching and ballot parsing
  - handlers: HTTP request handlers (elections, voting, results, import, devices)
  - router: Route definitions using Go 1.22+ routing
  - middleware: CORS, logging, JSON helpers
  - models: Request/response types
  - auth: Token generation and validation
  - db: Schema creation
  - cliparse: Configuration parsing

See package documentation for each component.
*/
package main
