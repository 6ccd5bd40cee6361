// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"runoff/auth"
	"runoff/cliparse"
	"runoff/middleware"
	"runoff/models"
)

type VotingHandler struct {
	db  *sql.DB
	cfg cliparse.Config
}

func NewVotingHandler(db *sql.DB, cfg cliparse.Config) *VotingHandler {
	return &VotingHandler{db: db, cfg: cfg}
}

// ClaimUsername handles POST /elections/:slug/claim-username
func (h *VotingHandler) ClaimUsername(w http.ResponseWriter, r *http.Request) {
	shareSlug := r.PathValue("slug")
	if shareSlug == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "slug is required")
		return
	}

	// Parse request
	var req models.ClaimUsernameRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.Username == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "username is required")
		return
	}

	// Validate username (basic validation)
	if len(req.Username) < 2 || len(req.Username) > 50 {
		middleware.ErrorResponse(w, http.StatusBadRequest, "username must be 2-50 characters")
		return
	}

	// Find election by share slug
	var electionID string
	var status string
	err := h.db.QueryRow(`
		SELECT id, status FROM election WHERE share_slug = $1
	`, shareSlug).Scan(&electionID, &status)

	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Election not found")
		return
	}
	if err != nil {
		slog.Error("failed to query election", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	// Can only claim username for open elections
	if status != models.StatusOpen {
		middleware.ErrorResponse(w, http.StatusConflict, "Election is not open for voting")
		return
	}

	// Generate voter token
	voterToken, err := auth.GenerateVoterToken()
	if err != nil {
		slog.Error("failed to generate voter token", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to claim username")
		return
	}

	// Insert username claim (UNIQUE constraint will prevent duplicates)
	_, err = h.db.Exec(`
		INSERT INTO username_claim (election_id, username, voter_token, created_at)
		VALUES ($1, $2, $3, $4)
	`, electionID, req.Username, voterToken, time.Now())

	if err != nil {
		// Check if it's a uniqueness violation
		if strings.Contains(err.Error(), "UNIQUE constraint failed") ||
			strings.Contains(err.Error(), "duplicate key value") {
			middleware.ErrorResponse(w, http.StatusConflict, "Username already taken")
			return
		}
		slog.Error("failed to insert username claim", "error", err, "election_id", electionID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to claim username")
		return
	}

	// Link device to election as voter (if X-Device-UUID header present)
	deviceID, err := GetOrCreateDevice(h.db, r)
	if err != nil {
		slog.Warn("failed to get/create device", "error", err)
		// Non-fatal: username was claimed, just no device linking
	} else if deviceID != "" {
		if err := LinkDeviceToElection(h.db, deviceID, electionID, models.RoleVoter, &voterToken); err != nil {
			slog.Warn("failed to link device to election", "error", err)
		}
	}

	slog.Info("username claimed", "election_id", electionID, "username", req.Username)

	middleware.JSONResponse(w, http.StatusCreated, models.ClaimUsernameResponse{
		VoterToken: voterToken,
	})
}

// SubmitBallot handles POST /elections/:slug/ballots
// Rankings arrive as ordered candidate lists per role: index 0 is the first
// choice. Resubmitting replaces the voter's previous ballot entirely.
func (h *VotingHandler) SubmitBallot(w http.ResponseWriter, r *http.Request) {
	shareSlug := r.PathValue("slug")
	if shareSlug == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "slug is required")
		return
	}

	// Get voter token from header
	voterToken := r.Header.Get("X-Voter-Token")
	if voterToken == "" {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "X-Voter-Token header required")
		return
	}

	// Parse request
	var req models.SubmitBallotRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if len(req.Rankings) == 0 {
		middleware.ErrorResponse(w, http.StatusBadRequest, "rankings cannot be empty")
		return
	}

	// A candidate may appear at most once per role
	for role, candidates := range req.Rankings {
		seen := make(map[string]bool, len(candidates))
		for _, name := range candidates {
			if name == "" {
				middleware.ErrorResponse(w, http.StatusBadRequest, "empty candidate name in rankings for "+role)
				return
			}
			if seen[name] {
				middleware.ErrorResponse(w, http.StatusBadRequest, name+" is ranked twice for "+role)
				return
			}
			seen[name] = true
		}
	}

	// Find election by share slug
	var electionID string
	var status string
	err := h.db.QueryRow(`
		SELECT id, status FROM election WHERE share_slug = $1
	`, shareSlug).Scan(&electionID, &status)

	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Election not found")
		return
	}
	if err != nil {
		slog.Error("failed to query election", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	// Can only vote on open elections
	if status != models.StatusOpen {
		middleware.ErrorResponse(w, http.StatusConflict, "Election is not open for voting")
		return
	}

	// Verify voter token is valid for this election
	var exists bool
	err = h.db.QueryRow(`
		SELECT EXISTS(
			SELECT 1 FROM username_claim
			WHERE election_id = $1 AND voter_token = $2
		)
	`, electionID, voterToken).Scan(&exists)

	if err != nil {
		slog.Error("failed to verify voter token", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	if !exists {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid voter token for this election")
		return
	}

	// Every ranked role and candidate must be registered
	validRoles, validCandidates, err := h.registeredEntities(electionID)
	if err != nil {
		slog.Error("failed to query roles and candidates", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	for role, candidates := range req.Rankings {
		if !validRoles[role] {
			middleware.ErrorResponse(w, http.StatusBadRequest, "Unknown role: "+role)
			return
		}
		for _, name := range candidates {
			if !validCandidates[role+"\x00"+name] {
				middleware.ErrorResponse(w, http.StatusBadRequest, name+" is not a candidate for "+role)
				return
			}
		}
	}

	// Get IP hash for tracking
	clientIP := middleware.GetClientIP(r)
	ipHash := auth.HashIP(clientIP, h.cfg.AdminKeySalt) // Reuse admin salt for IP hashing
	userAgent := r.UserAgent()

	// Begin transaction for UPSERT
	tx, err := h.db.Begin()
	if err != nil {
		slog.Error("failed to begin transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer tx.Rollback()

	// Check if ballot already exists
	var existingBallotID string
	err = tx.QueryRow(`
		SELECT id FROM ballot WHERE election_id = $1 AND voter_token = $2
	`, electionID, voterToken).Scan(&existingBallotID)

	if err != nil && err != sql.ErrNoRows {
		slog.Error("failed to query ballot", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	isUpdate := err == nil
	var ballotID string

	if isUpdate {
		// Update existing ballot
		ballotID = existingBallotID
		_, err = tx.Exec(`
			UPDATE ballot
			SET submitted_at = $1, ip_hash = $2, user_agent = $3
			WHERE id = $4
		`, time.Now(), ipHash, userAgent, ballotID)

		if err != nil {
			slog.Error("failed to update ballot", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to update ballot")
			return
		}

		// Delete old rankings
		_, err = tx.Exec(`DELETE FROM ranking WHERE ballot_id = $1`, ballotID)
		if err != nil {
			slog.Error("failed to delete old rankings", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to update ballot")
			return
		}
	} else {
		// Create new ballot
		ballotID = uuid.NewString()
		_, err = tx.Exec(`
			INSERT INTO ballot (id, election_id, voter_token, source, submitted_at, ip_hash, user_agent)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, ballotID, electionID, voterToken, models.SourceWeb, time.Now(), ipHash, userAgent)

		if err != nil {
			slog.Error("failed to insert ballot", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to submit ballot")
			return
		}
	}

	// Insert rankings: list position becomes the rank, so chains are
	// contiguous from 1 by construction.
	for role, candidates := range req.Rankings {
		for i, name := range candidates {
			_, err = tx.Exec(`
				INSERT INTO ranking (ballot_id, role, candidate, rank)
				VALUES ($1, $2, $3, $4)
			`, ballotID, role, name, i+1)

			if err != nil {
				slog.Error("failed to insert ranking", "error", err)
				middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to save rankings")
				return
			}
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to submit ballot")
		return
	}

	message := "Ballot submitted successfully"
	if isUpdate {
		message = "Ballot updated successfully"
	}

	slog.Info("ballot submitted", "election_id", electionID, "ballot_id", ballotID, "is_update", isUpdate)

	middleware.JSONResponse(w, http.StatusCreated, models.SubmitBallotResponse{
		BallotID: ballotID,
		Message:  message,
	})
}

// GetMyBallot handles GET /elections/:slug/my-ballot
// Returns the voter's current rankings so clients can pre-fill edits.
func (h *VotingHandler) GetMyBallot(w http.ResponseWriter, r *http.Request) {
	shareSlug := r.PathValue("slug")
	if shareSlug == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "slug is required")
		return
	}

	voterToken := r.Header.Get("X-Voter-Token")
	if voterToken == "" {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "X-Voter-Token header required")
		return
	}

	var electionID string
	err := h.db.QueryRow(`
		SELECT id FROM election WHERE share_slug = $1
	`, shareSlug).Scan(&electionID)

	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Election not found")
		return
	}
	if err != nil {
		slog.Error("failed to query election", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	var ballotID string
	err = h.db.QueryRow(`
		SELECT id FROM ballot WHERE election_id = $1 AND voter_token = $2
	`, electionID, voterToken).Scan(&ballotID)

	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "No ballot submitted yet")
		return
	}
	if err != nil {
		slog.Error("failed to query ballot", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	rows, err := h.db.Query(`
		SELECT role, candidate FROM ranking
		WHERE ballot_id = $1
		ORDER BY role, rank
	`, ballotID)
	if err != nil {
		slog.Error("failed to query rankings", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer rows.Close()

	rankings := make(map[string][]string)
	for rows.Next() {
		var role, candidate string
		if err := rows.Scan(&role, &candidate); err != nil {
			slog.Error("failed to scan ranking", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
			return
		}
		rankings[role] = append(rankings[role], candidate)
	}

	middleware.JSONResponse(w, http.StatusOK, models.SubmitBallotRequest{
		Rankings: rankings,
	})
}

// registeredEntities returns the election's role names and its (role,
// candidate) pairs keyed by role + NUL + name.
func (h *VotingHandler) registeredEntities(electionID string) (map[string]bool, map[string]bool, error) {
	roles := make(map[string]bool)
	rows, err := h.db.Query(`SELECT name FROM role WHERE election_id = $1`, electionID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, nil, err
		}
		roles[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	candidates := make(map[string]bool)
	candRows, err := h.db.Query(`SELECT role, name FROM candidate WHERE election_id = $1`, electionID)
	if err != nil {
		return nil, nil, err
	}
	defer candRows.Close()
	for candRows.Next() {
		var role, name string
		if err := candRows.Scan(&role, &name); err != nil {
			return nil, nil, err
		}
		candidates[role+"\x00"+name] = true
	}
	if err := candRows.Err(); err != nil {
		return nil, nil, err
	}

	return roles, candidates, nil
}
