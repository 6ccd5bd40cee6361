// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"

	"runoff/auth"
	"runoff/cliparse"
	"runoff/engine"
	"runoff/middleware"
	"runoff/models"
	"runoff/sheet"
)

type ElectionHandler struct {
	db  *sql.DB
	cfg cliparse.Config
}

func NewElectionHandler(db *sql.DB, cfg cliparse.Config) *ElectionHandler {
	return &ElectionHandler{db: db, cfg: cfg}
}

// CreateElection handles POST /elections
func (h *ElectionHandler) CreateElection(w http.ResponseWriter, r *http.Request) {
	var req models.CreateElectionRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	// Validate input
	if req.Title == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.CreatorName == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "creator_name is required")
		return
	}
	for _, role := range req.Roles {
		if role.Name == "" {
			middleware.ErrorResponse(w, http.StatusBadRequest, "role name is required")
			return
		}
		if role.Seats < 0 {
			middleware.ErrorResponse(w, http.StatusBadRequest, "seats must be positive")
			return
		}
	}

	electionID := uuid.NewString()
	adminKey := auth.GenerateAdminKey(electionID, h.cfg.AdminKeySalt)

	tx, err := h.db.Begin()
	if err != nil {
		slog.Error("failed to begin transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO election (id, title, organization, creator_name, method, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, electionID, req.Title, req.Organization, req.CreatorName, models.MethodIRV, models.StatusDraft, time.Now())

	if err != nil {
		slog.Error("failed to insert election", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create election")
		return
	}

	// Roles supplied at creation skip the separate AddRole calls
	for _, role := range req.Roles {
		seats := role.Seats
		if seats == 0 {
			seats = 1
		}
		_, err = tx.Exec(`
			INSERT INTO role (id, election_id, name, seats)
			VALUES ($1, $2, $3, $4)
		`, uuid.NewString(), electionID, role.Name, seats)
		if err != nil {
			slog.Error("failed to insert role", "error", err, "role", role.Name)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create election")
			return
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create election")
		return
	}

	slog.Info("election created", "election_id", electionID, "creator", req.CreatorName, "roles", len(req.Roles))

	middleware.JSONResponse(w, http.StatusCreated, models.CreateElectionResponse{
		ElectionID: electionID,
		AdminKey:   adminKey,
	})
}

// AddRole handles POST /elections/:id/roles
func (h *ElectionHandler) AddRole(w http.ResponseWriter, r *http.Request) {
	electionID := r.PathValue("id")
	if electionID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "election_id is required")
		return
	}

	// Validate admin key
	adminKey := r.Header.Get("X-Admin-Key")
	if err := auth.ValidateAdminKey(electionID, adminKey, h.cfg.AdminKeySalt); err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid admin key")
		return
	}

	var req models.AddRoleRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.Name == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Seats < 0 {
		middleware.ErrorResponse(w, http.StatusBadRequest, "seats must be positive")
		return
	}
	seats := req.Seats
	if seats == 0 {
		seats = 1
	}

	// Check election exists and is in draft status
	status, ok := h.electionStatus(w, electionID)
	if !ok {
		return
	}
	if status != models.StatusDraft {
		middleware.ErrorResponse(w, http.StatusConflict, "Cannot add roles to non-draft election")
		return
	}

	roleID := uuid.NewString()
	_, err := h.db.Exec(`
		INSERT INTO role (id, election_id, name, seats)
		VALUES ($1, $2, $3, $4)
	`, roleID, electionID, req.Name, seats)

	if err != nil {
		slog.Error("failed to insert role", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create role")
		return
	}

	slog.Info("role added", "election_id", electionID, "role", req.Name, "seats", seats)

	middleware.JSONResponse(w, http.StatusCreated, models.AddRoleResponse{
		RoleID: roleID,
	})
}

// AddCandidate handles POST /elections/:id/candidates
func (h *ElectionHandler) AddCandidate(w http.ResponseWriter, r *http.Request) {
	electionID := r.PathValue("id")
	if electionID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "election_id is required")
		return
	}

	// Validate admin key
	adminKey := r.Header.Get("X-Admin-Key")
	if err := auth.ValidateAdminKey(electionID, adminKey, h.cfg.AdminKeySalt); err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid admin key")
		return
	}

	var req models.AddCandidateRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.Role == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "role is required")
		return
	}
	if req.Name == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "name is required")
		return
	}

	status, ok := h.electionStatus(w, electionID)
	if !ok {
		return
	}
	if status != models.StatusDraft {
		middleware.ErrorResponse(w, http.StatusConflict, "Cannot add candidates to non-draft election")
		return
	}

	// The role must already exist
	var roleCount int
	err := h.db.QueryRow(`
		SELECT COUNT(*) FROM role WHERE election_id = $1 AND name = $2
	`, electionID, req.Role).Scan(&roleCount)
	if err != nil {
		slog.Error("failed to query role", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	if roleCount == 0 {
		middleware.ErrorResponse(w, http.StatusNotFound, "Role not found")
		return
	}

	tx, err := h.db.Begin()
	if err != nil {
		slog.Error("failed to begin transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer tx.Rollback()

	candidateID := uuid.NewString()
	_, err = tx.Exec(`
		INSERT INTO candidate (id, election_id, role, name)
		VALUES ($1, $2, $3, $4)
	`, candidateID, electionID, req.Role, req.Name)

	if err != nil {
		slog.Error("failed to insert candidate", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create candidate")
		return
	}

	// A declared first choice arbitrates double wins across roles.
	// Last write wins: re-declaring moves the preference.
	if req.FirstChoice {
		_, err = tx.Exec(`DELETE FROM first_choice WHERE election_id = $1 AND candidate = $2`, electionID, req.Name)
		if err == nil {
			_, err = tx.Exec(`
				INSERT INTO first_choice (election_id, candidate, role)
				VALUES ($1, $2, $3)
			`, electionID, req.Name, req.Role)
		}
		if err != nil {
			slog.Error("failed to record first choice", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create candidate")
			return
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create candidate")
		return
	}

	slog.Info("candidate added", "election_id", electionID, "role", req.Role, "candidate", req.Name)

	middleware.JSONResponse(w, http.StatusCreated, models.AddCandidateResponse{
		CandidateID: candidateID,
	})
}

// SetFirstChoices handles PUT /elections/:id/first-choices
// Accepts a plain-text body of "candidate: role" lines and replaces the
// election's whole first-choice table.
func (h *ElectionHandler) SetFirstChoices(w http.ResponseWriter, r *http.Request) {
	electionID := r.PathValue("id")
	if electionID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "election_id is required")
		return
	}

	// Validate admin key
	adminKey := r.Header.Get("X-Admin-Key")
	if err := auth.ValidateAdminKey(electionID, adminKey, h.cfg.AdminKeySalt); err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid admin key")
		return
	}

	if _, ok := h.electionStatus(w, electionID); !ok {
		return
	}

	defer r.Body.Close()
	table, err := sheet.ParseKeyValue(r.Body)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	tx, err := h.db.Begin()
	if err != nil {
		slog.Error("failed to begin transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer tx.Rollback()

	_, err = tx.Exec(`DELETE FROM first_choice WHERE election_id = $1`, electionID)
	if err != nil {
		slog.Error("failed to clear first choices", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to save first choices")
		return
	}

	for candidate, role := range table {
		_, err = tx.Exec(`
			INSERT INTO first_choice (election_id, candidate, role)
			VALUES ($1, $2, $3)
		`, electionID, candidate, role)
		if err != nil {
			slog.Error("failed to insert first choice", "error", err, "candidate", candidate)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to save first choices")
			return
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to save first choices")
		return
	}

	slog.Info("first choices set", "election_id", electionID, "entries", len(table))

	middleware.JSONResponse(w, http.StatusOK, models.SetFirstChoicesResponse{
		Entries: len(table),
	})
}

// SetSeats handles PUT /elections/:id/seats
// Accepts a plain-text body of "role: seats" lines. Listed roles are updated
// in place; roles the election doesn't know yet are created with that seat
// count. Unlisted roles keep their current seats.
func (h *ElectionHandler) SetSeats(w http.ResponseWriter, r *http.Request) {
	electionID := r.PathValue("id")
	if electionID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "election_id is required")
		return
	}

	// Validate admin key
	adminKey := r.Header.Get("X-Admin-Key")
	if err := auth.ValidateAdminKey(electionID, adminKey, h.cfg.AdminKeySalt); err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid admin key")
		return
	}

	status, ok := h.electionStatus(w, electionID)
	if !ok {
		return
	}
	if status != models.StatusDraft {
		middleware.ErrorResponse(w, http.StatusConflict, "Cannot change seats on a non-draft election")
		return
	}

	defer r.Body.Close()
	table, err := sheet.ParseKeyValue(r.Body)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	seats, err := sheet.ParseSeats(table)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	tx, err := h.db.Begin()
	if err != nil {
		slog.Error("failed to begin transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer tx.Rollback()

	for _, role := range sortedSeatRoles(seats) {
		result, err := tx.Exec(`
			UPDATE role SET seats = $1 WHERE election_id = $2 AND name = $3
		`, seats[role], electionID, role)
		if err != nil {
			slog.Error("failed to update seats", "error", err, "role", role)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to save seats")
			return
		}

		updated, err := result.RowsAffected()
		if err != nil {
			slog.Error("failed to read update result", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to save seats")
			return
		}
		if updated == 0 {
			_, err = tx.Exec(`
				INSERT INTO role (id, election_id, name, seats)
				VALUES ($1, $2, $3, $4)
			`, uuid.NewString(), electionID, role, seats[role])
			if err != nil {
				slog.Error("failed to insert role", "error", err, "role", role)
				middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to save seats")
				return
			}
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to save seats")
		return
	}

	slog.Info("seats set", "election_id", electionID, "entries", len(seats))

	middleware.JSONResponse(w, http.StatusOK, models.SetSeatsResponse{
		Entries: len(seats),
	})
}

func sortedSeatRoles(seats engine.Seats) []string {
	roles := make([]string, 0, len(seats))
	for role := range seats {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

// PublishElection handles POST /elections/:id/publish
func (h *ElectionHandler) PublishElection(w http.ResponseWriter, r *http.Request) {
	electionID := r.PathValue("id")
	if electionID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "election_id is required")
		return
	}

	// Validate admin key
	adminKey := r.Header.Get("X-Admin-Key")
	if err := auth.ValidateAdminKey(electionID, adminKey, h.cfg.AdminKeySalt); err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid admin key")
		return
	}

	var status string
	var roleCount, candidateCount int
	err := h.db.QueryRow(`
		SELECT e.status,
		       (SELECT COUNT(*) FROM role WHERE election_id = e.id),
		       (SELECT COUNT(*) FROM candidate WHERE election_id = e.id)
		FROM election e
		WHERE e.id = $1
	`, electionID).Scan(&status, &roleCount, &candidateCount)

	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Election not found")
		return
	}
	if err != nil {
		slog.Error("failed to query election", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	if status != models.StatusDraft {
		middleware.ErrorResponse(w, http.StatusConflict, "Election is not in draft status")
		return
	}

	if roleCount < 1 {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Election must have at least 1 role")
		return
	}
	if candidateCount < 1 {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Election must have at least 1 candidate")
		return
	}

	// Generate share slug
	shareSlug := auth.GenerateShareSlug(electionID, h.cfg.ElectionSlugSalt)

	_, err = h.db.Exec(`
		UPDATE election
		SET status = $1, share_slug = $2
		WHERE id = $3
	`, models.StatusOpen, shareSlug, electionID)

	if err != nil {
		slog.Error("failed to publish election", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to publish election")
		return
	}

	slog.Info("election published", "election_id", electionID, "share_slug", shareSlug)

	middleware.JSONResponse(w, http.StatusOK, models.PublishElectionResponse{
		ShareSlug: shareSlug,
		ShareURL:  h.cfg.ShareBaseURL + "/elections/" + shareSlug,
	})
}

// GetElectionAdmin handles GET /elections/:id/admin
// Returns election details for admin access using election ID and admin key
func (h *ElectionHandler) GetElectionAdmin(w http.ResponseWriter, r *http.Request) {
	electionID := r.PathValue("id")
	if electionID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "election_id is required")
		return
	}

	// Validate admin key
	adminKey := r.Header.Get("X-Admin-Key")
	if err := auth.ValidateAdminKey(electionID, adminKey, h.cfg.AdminKeySalt); err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid admin key")
		return
	}

	var election models.Election
	err := h.db.QueryRow(`
		SELECT id, title, organization, creator_name, method, status,
		       share_slug, closed_at, final_snapshot_id, created_at
		FROM election
		WHERE id = $1
	`, electionID).Scan(
		&election.ID, &election.Title, &election.Organization, &election.CreatorName,
		&election.Method, &election.Status, &election.ShareSlug,
		&election.ClosedAt, &election.FinalSnapshotID, &election.CreatedAt,
	)

	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Election not found")
		return
	}
	if err != nil {
		slog.Error("failed to query election", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	roles, candidates, ok := rolesAndCandidates(h.db, w, electionID)
	if !ok {
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.ElectionDetail{
		Election:   election,
		Roles:      roles,
		Candidates: candidates,
	})
}

// CloseElection handles POST /elections/:id/close
// Runs the resolution engine over all stored ballots and persists an immutable
// result snapshot. Engine failures leave the election open.
func (h *ElectionHandler) CloseElection(w http.ResponseWriter, r *http.Request) {
	electionID := r.PathValue("id")
	if electionID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "election_id is required")
		return
	}

	// Validate admin key
	adminKey := r.Header.Get("X-Admin-Key")
	if err := auth.ValidateAdminKey(electionID, adminKey, h.cfg.AdminKeySalt); err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid admin key")
		return
	}

	status, ok := h.electionStatus(w, electionID)
	if !ok {
		return
	}
	if status != models.StatusOpen {
		middleware.ErrorResponse(w, http.StatusConflict, "Election is not open")
		return
	}

	snapshot, err := runTally(h.db, electionID)
	if err != nil {
		var missing *engine.MissingFirstChoiceError
		switch {
		case errors.As(err, &missing):
			slog.Warn("close blocked: no first choice on record",
				"election_id", electionID, "candidate", missing.Candidate, "roles", missing.Roles)
			middleware.ErrorResponse(w, http.StatusUnprocessableEntity, missing.Error())
		case errors.Is(err, engine.ErrNoConvergence):
			slog.Warn("close blocked: conflicts did not converge", "election_id", electionID, "error", err)
			middleware.ErrorResponse(w, http.StatusConflict, err.Error())
		default:
			slog.Error("failed to tally election", "election_id", electionID, "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to compute results")
		}
		return
	}

	snapshotID := uuid.NewString()
	closedAt := time.Now()

	payload, err := json.Marshal(snapshot)
	if err != nil {
		slog.Error("failed to encode snapshot", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to save results")
		return
	}

	tx, err := h.db.Begin()
	if err != nil {
		slog.Error("failed to begin transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		UPDATE election
		SET status = $1, closed_at = $2, final_snapshot_id = $3
		WHERE id = $4
	`, models.StatusClosed, closedAt, snapshotID, electionID)

	if err != nil {
		slog.Error("failed to close election", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to close election")
		return
	}

	_, err = tx.Exec(`
		INSERT INTO result_snapshot (id, election_id, method, computed_at, payload)
		VALUES ($1, $2, $3, $4, $5)
	`, snapshotID, electionID, models.MethodIRV, closedAt, string(payload))

	if err != nil {
		slog.Error("failed to insert snapshot", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to save results")
		return
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to close election")
		return
	}

	slog.Info("election closed", "election_id", electionID, "snapshot_id", snapshotID,
		"passes", snapshot.Passes, "ballots", snapshot.BallotCount)

	middleware.JSONResponse(w, http.StatusOK, models.CloseElectionResponse{
		ClosedAt: closedAt,
		Snapshot: models.ResultSnapshot{
			ID:          snapshotID,
			ElectionID:  electionID,
			Method:      models.MethodIRV,
			ComputedAt:  closedAt,
			Winners:     snapshot.Winners,
			Passes:      snapshot.Passes,
			BallotCount: snapshot.BallotCount,
		},
	})
}

// electionStatus loads the election's status, writing the error response
// itself when the election is missing or the query fails.
func (h *ElectionHandler) electionStatus(w http.ResponseWriter, electionID string) (string, bool) {
	var status string
	err := h.db.QueryRow("SELECT status FROM election WHERE id = $1", electionID).Scan(&status)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Election not found")
		return "", false
	}
	if err != nil {
		slog.Error("failed to query election", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return "", false
	}
	return status, true
}
