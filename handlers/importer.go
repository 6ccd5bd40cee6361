// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"runoff/auth"
	"runoff/cliparse"
	"runoff/engine"
	"runoff/middleware"
	"runoff/models"
	"runoff/sheet"
)

type ImportHandler struct {
	db     *sql.DB
	cfg    cliparse.Config
	client *http.Client
}

func NewImportHandler(db *sql.DB, cfg cliparse.Config, client *http.Client) *ImportHandler {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &ImportHandler{db: db, cfg: cfg, client: client}
}

// ImportSheet handles POST /elections/:id/import
// Fetches the spreadsheet's CSV export, parses its "Role [n]" rank columns,
// auto-registers unseen roles and candidates, and stores one ballot per row.
// Importing again replaces all previously imported sheet ballots.
func (h *ImportHandler) ImportSheet(w http.ResponseWriter, r *http.Request) {
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

	var req models.ImportSheetRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.SheetURL == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "sheet_url is required")
		return
	}

	var status string
	err := h.db.QueryRow("SELECT status FROM election WHERE id = $1", electionID).Scan(&status)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Election not found")
		return
	}
	if err != nil {
		slog.Error("failed to query election", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	if status != models.StatusOpen {
		middleware.ErrorResponse(w, http.StatusConflict, "Election is not open")
		return
	}

	records, err := sheet.FetchCSV(r.Context(), h.client, req.SheetURL)
	if err != nil {
		slog.Warn("failed to fetch sheet", "election_id", electionID, "error", err)
		middleware.ErrorResponse(w, http.StatusBadGateway, "Failed to fetch sheet: "+err.Error())
		return
	}

	ballots, rowCount, err := sheet.ParseBallots(records)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Failed to parse sheet: "+err.Error())
		return
	}

	tx, err := h.db.Begin()
	if err != nil {
		slog.Error("failed to begin transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer tx.Rollback()

	candidatesAdded, err := registerSheetEntities(tx, electionID, ballots)
	if err != nil {
		slog.Error("failed to register sheet candidates", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to import sheet")
		return
	}

	if err := replaceSheetBallots(tx, electionID, ballots, rowCount); err != nil {
		slog.Error("failed to store sheet ballots", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to import sheet")
		return
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to import sheet")
		return
	}

	slog.Info("sheet imported", "election_id", electionID,
		"ballots", rowCount, "candidates_added", candidatesAdded)

	middleware.JSONResponse(w, http.StatusOK, models.ImportSheetResponse{
		BallotCount:     rowCount,
		CandidatesAdded: candidatesAdded,
		Message:         "Sheet imported successfully",
	})
}

// registerSheetEntities inserts any role or candidate seen in the parsed
// ballots that the election doesn't know yet. Returns the number of
// candidates added.
func registerSheetEntities(tx *sql.Tx, electionID string, ballots engine.Ballots) (int, error) {
	added := 0
	for _, role := range sortedBallotRoles(ballots) {
		var roleCount int
		err := tx.QueryRow(`
			SELECT COUNT(*) FROM role WHERE election_id = $1 AND name = $2
		`, electionID, role).Scan(&roleCount)
		if err != nil {
			return 0, err
		}
		if roleCount == 0 {
			_, err = tx.Exec(`
				INSERT INTO role (id, election_id, name, seats)
				VALUES ($1, $2, $3, 1)
			`, uuid.NewString(), electionID, role)
			if err != nil {
				return 0, err
			}
		}

		names := make([]string, 0, len(ballots[role]))
		for name := range ballots[role] {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			var count int
			err := tx.QueryRow(`
				SELECT COUNT(*) FROM candidate WHERE election_id = $1 AND role = $2 AND name = $3
			`, electionID, role, name).Scan(&count)
			if err != nil {
				return 0, err
			}
			if count > 0 {
				continue
			}
			_, err = tx.Exec(`
				INSERT INTO candidate (id, election_id, role, name)
				VALUES ($1, $2, $3, $4)
			`, uuid.NewString(), electionID, role, name)
			if err != nil {
				return 0, err
			}
			added++
		}
	}
	return added, nil
}

// replaceSheetBallots drops all previously imported sheet ballots and stores
// the parsed rows in their place. Voter tokens are deterministic per row so
// ballots stay stable across re-imports of the same sheet.
func replaceSheetBallots(tx *sql.Tx, electionID string, ballots engine.Ballots, rowCount int) error {
	_, err := tx.Exec(`
		DELETE FROM ranking WHERE ballot_id IN (
			SELECT id FROM ballot WHERE election_id = $1 AND source = $2
		)
	`, electionID, models.SourceSheet)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`
		DELETE FROM ballot WHERE election_id = $1 AND source = $2
	`, electionID, models.SourceSheet)
	if err != nil {
		return err
	}

	rankings := invertBallots(ballots)

	for row := 1; row <= rowCount; row++ {
		voter := "row" + strconv.Itoa(row)
		perRole, ok := rankings[voter]
		if !ok {
			// Row ranked nobody; no ballot to store.
			continue
		}

		ballotID := uuid.NewString()
		_, err := tx.Exec(`
			INSERT INTO ballot (id, election_id, voter_token, source, submitted_at)
			VALUES ($1, $2, $3, $4, $5)
		`, ballotID, electionID, "sheet-"+voter, models.SourceSheet, time.Now())
		if err != nil {
			return err
		}

		for _, role := range sortedKeys(perRole) {
			for i, candidate := range perRole[role] {
				_, err := tx.Exec(`
					INSERT INTO ranking (ballot_id, role, candidate, rank)
					VALUES ($1, $2, $3, $4)
				`, ballotID, role, candidate, i+1)
				if err != nil {
					return err
				}
			}
		}
	}

	return nil
}

// invertBallots turns the engine's role -> candidate -> rank -> voters map
// back into per-voter ordered candidate lists.
func invertBallots(ballots engine.Ballots) map[string]map[string][]string {
	type ranked struct {
		rank int
		name string
	}

	byVoter := make(map[string]map[string][]ranked)
	for role, votes := range ballots {
		for name, ranks := range votes {
			for rank, voters := range ranks {
				for _, voter := range voters {
					if byVoter[voter] == nil {
						byVoter[voter] = make(map[string][]ranked)
					}
					byVoter[voter][role] = append(byVoter[voter][role], ranked{rank: rank, name: name})
				}
			}
		}
	}

	rankings := make(map[string]map[string][]string, len(byVoter))
	for voter, perRole := range byVoter {
		rankings[voter] = make(map[string][]string, len(perRole))
		for role, entries := range perRole {
			sort.Slice(entries, func(i, j int) bool { return entries[i].rank < entries[j].rank })
			names := make([]string, len(entries))
			for i, entry := range entries {
				names[i] = entry.name
			}
			rankings[voter][role] = names
		}
	}
	return rankings
}

func sortedBallotRoles(ballots engine.Ballots) []string {
	roles := make([]string, 0, len(ballots))
	for role := range ballots {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
