// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dustin/go-humanize"

	"runoff/cliparse"
	"runoff/middleware"
	"runoff/models"
)

type ResultsHandler struct {
	db  *sql.DB
	cfg cliparse.Config
}

func NewResultsHandler(db *sql.DB, cfg cliparse.Config) *ResultsHandler {
	return &ResultsHandler{db: db, cfg: cfg}
}

// GetElection handles GET /elections/:slug
// Returns election details, roles, and candidates, but NOT results
// (results are sealed until closed)
func (h *ResultsHandler) GetElection(w http.ResponseWriter, r *http.Request) {
	shareSlug := r.PathValue("slug")
	if shareSlug == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "slug is required")
		return
	}

	election, ok := h.electionBySlug(w, shareSlug)
	if !ok {
		return
	}

	roles, candidates, ok := rolesAndCandidates(h.db, w, election.ID)
	if !ok {
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.ElectionDetail{
		Election:   election,
		Roles:      roles,
		Candidates: candidates,
	})
}

// GetResults handles GET /elections/:slug/results
// Returns 403 if the election is open (results are sealed)
// Returns the final snapshot if the election is closed
func (h *ResultsHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	shareSlug := r.PathValue("slug")
	if shareSlug == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "slug is required")
		return
	}

	election, ok := h.electionBySlug(w, shareSlug)
	if !ok {
		return
	}

	// CRITICAL: Results are sealed while the election is open
	if election.Status != models.StatusClosed {
		middleware.ErrorResponse(w, http.StatusForbidden, "Results are hidden until election is closed")
		return
	}

	if election.FinalSnapshotID == nil {
		slog.Error("closed election has no snapshot", "slug", shareSlug)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Results not available")
		return
	}

	// Get snapshot
	var payloadJSON []byte
	err := h.db.QueryRow(`
		SELECT payload
		FROM result_snapshot
		WHERE id = $1
	`, *election.FinalSnapshotID).Scan(&payloadJSON)

	if err != nil {
		slog.Error("failed to query snapshot", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	var payload tallyResult
	if err := json.Unmarshal(payloadJSON, &payload); err != nil {
		slog.Error("failed to parse snapshot payload", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to parse results")
		return
	}

	closedAgo := ""
	if election.ClosedAt != nil {
		closedAgo = humanize.Time(*election.ClosedAt)
	}

	middleware.JSONResponse(w, http.StatusOK, models.ResultsResponse{
		Election:    election,
		Winners:     payload.Winners,
		Passes:      payload.Passes,
		BallotCount: payload.BallotCount,
		ClosedAgo:   closedAgo,
	})
}

// GetBallotCount handles GET /elections/:slug/ballot-count
// Returns the number of ballots submitted (visible even while open)
func (h *ResultsHandler) GetBallotCount(w http.ResponseWriter, r *http.Request) {
	shareSlug := r.PathValue("slug")
	if shareSlug == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "slug is required")
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

	var count int
	err = h.db.QueryRow(`
		SELECT COUNT(*) FROM ballot WHERE election_id = $1
	`, electionID).Scan(&count)

	if err != nil {
		slog.Error("failed to count ballots", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, map[string]int{
		"ballot_count": count,
	})
}

// GetPreview handles GET /elections/:slug/preview
// Returns compact election data for link previews
func (h *ResultsHandler) GetPreview(w http.ResponseWriter, r *http.Request) {
	shareSlug := r.PathValue("slug")
	if shareSlug == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "slug is required")
		return
	}

	var electionID, title, status string
	var closedAt sql.NullTime
	err := h.db.QueryRow(`
		SELECT id, title, status, closed_at FROM election WHERE share_slug = $1
	`, shareSlug).Scan(&electionID, &title, &status, &closedAt)

	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Election not found")
		return
	}
	if err != nil {
		slog.Error("failed to query election", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	var roleCount, candidateCount, ballotCount int
	err = h.db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM role WHERE election_id = $1),
			(SELECT COUNT(*) FROM candidate WHERE election_id = $1),
			(SELECT COUNT(*) FROM ballot WHERE election_id = $1)
	`, electionID).Scan(&roleCount, &candidateCount, &ballotCount)
	if err != nil {
		slog.Error("failed to count election entities", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	closedAgo := ""
	if closedAt.Valid {
		closedAgo = humanize.Time(closedAt.Time)
	}

	middleware.JSONResponse(w, http.StatusOK, models.PreviewResponse{
		Title:          title,
		Status:         status,
		RoleCount:      roleCount,
		CandidateCount: candidateCount,
		BallotCount:    ballotCount,
		ClosedAgo:      closedAgo,
	})
}

// electionBySlug loads a full election row by share slug, writing the error
// response itself on failure.
func (h *ResultsHandler) electionBySlug(w http.ResponseWriter, shareSlug string) (models.Election, bool) {
	var election models.Election
	err := h.db.QueryRow(`
		SELECT id, title, organization, creator_name, method, status,
		       share_slug, closed_at, final_snapshot_id, created_at
		FROM election
		WHERE share_slug = $1
	`, shareSlug).Scan(
		&election.ID, &election.Title, &election.Organization, &election.CreatorName,
		&election.Method, &election.Status, &election.ShareSlug,
		&election.ClosedAt, &election.FinalSnapshotID, &election.CreatedAt,
	)

	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Election not found")
		return models.Election{}, false
	}
	if err != nil {
		slog.Error("failed to query election", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return models.Election{}, false
	}

	return election, true
}

// rolesAndCandidates loads an election's role and candidate lists, writing
// the error response itself on failure.
func rolesAndCandidates(db *sql.DB, w http.ResponseWriter, electionID string) ([]models.Role, []models.Candidate, bool) {
	roleRows, err := db.Query(`
		SELECT id, election_id, name, seats
		FROM role
		WHERE election_id = $1
		ORDER BY name
	`, electionID)
	if err != nil {
		slog.Error("failed to query roles", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return nil, nil, false
	}
	defer roleRows.Close()

	roles := []models.Role{}
	for roleRows.Next() {
		var role models.Role
		if err := roleRows.Scan(&role.ID, &role.ElectionID, &role.Name, &role.Seats); err != nil {
			slog.Error("failed to scan role", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
			return nil, nil, false
		}
		roles = append(roles, role)
	}

	candRows, err := db.Query(`
		SELECT id, election_id, role, name
		FROM candidate
		WHERE election_id = $1
		ORDER BY role, name
	`, electionID)
	if err != nil {
		slog.Error("failed to query candidates", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return nil, nil, false
	}
	defer candRows.Close()

	candidates := []models.Candidate{}
	for candRows.Next() {
		var cand models.Candidate
		if err := candRows.Scan(&cand.ID, &cand.ElectionID, &cand.Role, &cand.Name); err != nil {
			slog.Error("failed to scan candidate", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
			return nil, nil, false
		}
		candidates = append(candidates, cand)
	}

	return roles, candidates, true
}
