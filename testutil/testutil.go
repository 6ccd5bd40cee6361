// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"runoff/auth"
	"runoff/cliparse"
	"runoff/db"
	"runoff/models"
)

var dbCounter int64

// SetupTestDB creates a fresh in-memory SQLite database with the full schema.
// Each call gets its own database, so tests can run in parallel.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// A unique shared-cache name keeps the database alive across connections
	// within one test while isolating it from other tests.
	name := fmt.Sprintf("testdb%d", atomic.AddInt64(&dbCounter, 1))
	conn, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	// Single connection so the in-memory database isn't dropped between queries
	conn.SetMaxOpenConns(1)

	if err := db.CreateSchema(conn); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	t.Cleanup(func() { conn.Close() })

	return conn
}

// GetTestConfig returns a standard test configuration
func GetTestConfig() cliparse.Config {
	return cliparse.Config{
		Port:             3419,
		DatabaseURL:      "file:unused?mode=memory",
		DatabaseType:     "sqlite",
		AdminKeySalt:     "test-admin-salt",
		ElectionSlugSalt: "test-slug-salt",
		ShareBaseURL:     "https://runoff.test",
	}
}

// CreateTestElection creates an election in the database and returns its ID,
// admin key, and share slug. status should be "draft", "open", or "closed".
func CreateTestElection(t *testing.T, conn *sql.DB, cfg cliparse.Config, status string) (electionID, adminKey, shareSlug string) {
	t.Helper()

	electionID = uuid.NewString()
	adminKey = auth.GenerateAdminKey(electionID, cfg.AdminKeySalt)

	var slug *string
	if status == models.StatusOpen || status == models.StatusClosed {
		s := auth.GenerateShareSlug(electionID, cfg.ElectionSlugSalt)
		slug = &s
		shareSlug = s
	}

	var closedAt *time.Time
	if status == models.StatusClosed {
		now := time.Now()
		closedAt = &now
	}

	_, err := conn.Exec(`
		INSERT INTO election (id, title, organization, creator_name, status, share_slug, closed_at, created_at)
		VALUES ($1, 'Test Election', 'Test Club', 'TestUser', $2, $3, $4, $5)
	`, electionID, status, slug, closedAt, time.Now())
	if err != nil {
		t.Fatalf("Failed to create test election: %v", err)
	}

	return electionID, adminKey, shareSlug
}

// AddTestRole adds a role to an election and returns the role ID
func AddTestRole(t *testing.T, conn *sql.DB, electionID, name string, seats int) string {
	t.Helper()

	roleID := uuid.NewString()
	_, err := conn.Exec(`
		INSERT INTO role (id, election_id, name, seats)
		VALUES ($1, $2, $3, $4)
	`, roleID, electionID, name, seats)
	if err != nil {
		t.Fatalf("Failed to create test role: %v", err)
	}

	return roleID
}

// AddTestCandidate registers a candidate for a role and returns the candidate ID
func AddTestCandidate(t *testing.T, conn *sql.DB, electionID, role, name string) string {
	t.Helper()

	candidateID := uuid.NewString()
	_, err := conn.Exec(`
		INSERT INTO candidate (id, election_id, role, name)
		VALUES ($1, $2, $3, $4)
	`, candidateID, electionID, role, name)
	if err != nil {
		t.Fatalf("Failed to create test candidate: %v", err)
	}

	return candidateID
}

// SetTestFirstChoice records a candidate's declared top-preference role
func SetTestFirstChoice(t *testing.T, conn *sql.DB, electionID, candidate, role string) {
	t.Helper()

	_, err := conn.Exec(`
		INSERT INTO first_choice (election_id, candidate, role)
		VALUES ($1, $2, $3)
	`, electionID, candidate, role)
	if err != nil {
		t.Fatalf("Failed to set test first choice: %v", err)
	}
}

// CreateTestVoter claims a username for an election and returns the voter token
func CreateTestVoter(t *testing.T, conn *sql.DB, electionID, username string) string {
	t.Helper()

	voterToken, _ := auth.GenerateVoterToken()
	_, err := conn.Exec(`
		INSERT INTO username_claim (election_id, username, voter_token, created_at)
		VALUES ($1, $2, $3, $4)
	`, electionID, username, voterToken, time.Now())
	if err != nil {
		t.Fatalf("Failed to create test voter: %v", err)
	}

	return voterToken
}

// SubmitTestBallot creates a ballot with per-role ranked candidate lists.
// rankings maps role name to an ordered candidate list (index 0 is rank 1).
func SubmitTestBallot(t *testing.T, conn *sql.DB, electionID, voterToken string, rankings map[string][]string) string {
	t.Helper()

	ballotID := uuid.NewString()
	_, err := conn.Exec(`
		INSERT INTO ballot (id, election_id, voter_token, source, submitted_at)
		VALUES ($1, $2, $3, $4, $5)
	`, ballotID, electionID, voterToken, models.SourceWeb, time.Now())
	if err != nil {
		t.Fatalf("Failed to create test ballot: %v", err)
	}

	for role, candidates := range rankings {
		for i, candidate := range candidates {
			_, err := conn.Exec(`
				INSERT INTO ranking (ballot_id, role, candidate, rank)
				VALUES ($1, $2, $3, $4)
			`, ballotID, role, candidate, i+1)
			if err != nil {
				t.Fatalf("Failed to create test ranking: %v", err)
			}
		}
	}

	return ballotID
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body interface{}, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}
