// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http/httptest"
	"strings"
	"testing"

	"runoff/models"
	"runoff/testutil"
)

func TestCreateElection(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	handler := NewElectionHandler(db, cfg)

	t.Run("valid election with roles", func(t *testing.T) {
		req := testutil.MakeRequest("POST", "/elections", models.CreateElectionRequest{
			Title:        "Club Officers 2026",
			Organization: "Chess Club",
			CreatorName:  "Alice",
			Roles: []models.RoleSpec{
				{Name: "President"},
				{Name: "Officer", Seats: 3},
			},
		}, nil)
		w := httptest.NewRecorder()

		handler.CreateElection(w, req)

		testutil.AssertStatus(t, w, 201)

		var resp models.CreateElectionResponse
		testutil.AssertJSON(t, w, &resp)

		if resp.ElectionID == "" {
			t.Error("Expected non-empty election_id")
		}
		if resp.AdminKey == "" {
			t.Error("Expected non-empty admin_key")
		}

		// Roles supplied at creation should be persisted with their seat counts
		var seats int
		err := db.QueryRow(`
			SELECT seats FROM role WHERE election_id = $1 AND name = 'Officer'
		`, resp.ElectionID).Scan(&seats)
		if err != nil {
			t.Fatalf("Officer role not stored: %v", err)
		}
		if seats != 3 {
			t.Errorf("Expected 3 seats for Officer, got %d", seats)
		}

		// Unspecified seats default to 1
		err = db.QueryRow(`
			SELECT seats FROM role WHERE election_id = $1 AND name = 'President'
		`, resp.ElectionID).Scan(&seats)
		if err != nil {
			t.Fatalf("President role not stored: %v", err)
		}
		if seats != 1 {
			t.Errorf("Expected 1 seat for President, got %d", seats)
		}
	})

	t.Run("missing title", func(t *testing.T) {
		req := testutil.MakeRequest("POST", "/elections", models.CreateElectionRequest{
			CreatorName: "Alice",
		}, nil)
		w := httptest.NewRecorder()

		handler.CreateElection(w, req)

		testutil.AssertStatus(t, w, 400)
	})

	t.Run("missing creator name", func(t *testing.T) {
		req := testutil.MakeRequest("POST", "/elections", models.CreateElectionRequest{
			Title: "No Creator",
		}, nil)
		w := httptest.NewRecorder()

		handler.CreateElection(w, req)

		testutil.AssertStatus(t, w, 400)
	})

	t.Run("empty role name", func(t *testing.T) {
		req := testutil.MakeRequest("POST", "/elections", models.CreateElectionRequest{
			Title:       "Bad Roles",
			CreatorName: "Alice",
			Roles:       []models.RoleSpec{{Name: ""}},
		}, nil)
		w := httptest.NewRecorder()

		handler.CreateElection(w, req)

		testutil.AssertStatus(t, w, 400)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/elections", strings.NewReader("{bad json"))
		w := httptest.NewRecorder()

		handler.CreateElection(w, req)

		testutil.AssertStatus(t, w, 400)
	})
}

func TestAddRole(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	handler := NewElectionHandler(db, cfg)

	electionID, adminKey, _ := testutil.CreateTestElection(t, db, cfg, "draft")

	t.Run("success", func(t *testing.T) {
		req := testutil.MakeRequest("POST", "/elections/"+electionID+"/roles",
			models.AddRoleRequest{Name: "Treasurer"},
			map[string]string{"X-Admin-Key": adminKey})
		req.SetPathValue("id", electionID)
		w := httptest.NewRecorder()

		handler.AddRole(w, req)

		testutil.AssertStatus(t, w, 201)

		var resp models.AddRoleResponse
		testutil.AssertJSON(t, w, &resp)
		if resp.RoleID == "" {
			t.Error("Expected non-empty role_id")
		}
	})

	t.Run("invalid admin key", func(t *testing.T) {
		req := testutil.MakeRequest("POST", "/elections/"+electionID+"/roles",
			models.AddRoleRequest{Name: "Secretary"},
			map[string]string{"X-Admin-Key": "wrong-key"})
		req.SetPathValue("id", electionID)
		w := httptest.NewRecorder()

		handler.AddRole(w, req)

		testutil.AssertStatus(t, w, 401)
	})

	t.Run("missing name", func(t *testing.T) {
		req := testutil.MakeRequest("POST", "/elections/"+electionID+"/roles",
			models.AddRoleRequest{},
			map[string]string{"X-Admin-Key": adminKey})
		req.SetPathValue("id", electionID)
		w := httptest.NewRecorder()

		handler.AddRole(w, req)

		testutil.AssertStatus(t, w, 400)
	})

	t.Run("non-draft election", func(t *testing.T) {
		openID, openKey, _ := testutil.CreateTestElection(t, db, cfg, "open")

		req := testutil.MakeRequest("POST", "/elections/"+openID+"/roles",
			models.AddRoleRequest{Name: "Treasurer"},
			map[string]string{"X-Admin-Key": openKey})
		req.SetPathValue("id", openID)
		w := httptest.NewRecorder()

		handler.AddRole(w, req)

		testutil.AssertStatus(t, w, 409)
	})
}

func TestAddCandidate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	handler := NewElectionHandler(db, cfg)

	electionID, adminKey, _ := testutil.CreateTestElection(t, db, cfg, "draft")
	testutil.AddTestRole(t, db, electionID, "President", 1)

	t.Run("success", func(t *testing.T) {
		req := testutil.MakeRequest("POST", "/elections/"+electionID+"/candidates",
			models.AddCandidateRequest{Role: "President", Name: "Sam"},
			map[string]string{"X-Admin-Key": adminKey})
		req.SetPathValue("id", electionID)
		w := httptest.NewRecorder()

		handler.AddCandidate(w, req)

		testutil.AssertStatus(t, w, 201)

		var resp models.AddCandidateResponse
		testutil.AssertJSON(t, w, &resp)
		if resp.CandidateID == "" {
			t.Error("Expected non-empty candidate_id")
		}
	})

	t.Run("first choice recorded", func(t *testing.T) {
		req := testutil.MakeRequest("POST", "/elections/"+electionID+"/candidates",
			models.AddCandidateRequest{Role: "President", Name: "Kim", FirstChoice: true},
			map[string]string{"X-Admin-Key": adminKey})
		req.SetPathValue("id", electionID)
		w := httptest.NewRecorder()

		handler.AddCandidate(w, req)

		testutil.AssertStatus(t, w, 201)

		var role string
		err := db.QueryRow(`
			SELECT role FROM first_choice WHERE election_id = $1 AND candidate = 'Kim'
		`, electionID).Scan(&role)
		if err != nil {
			t.Fatalf("First choice not stored: %v", err)
		}
		if role != "President" {
			t.Errorf("Expected first choice President, got %s", role)
		}
	})

	t.Run("unknown role", func(t *testing.T) {
		req := testutil.MakeRequest("POST", "/elections/"+electionID+"/candidates",
			models.AddCandidateRequest{Role: "Janitor", Name: "Sam"},
			map[string]string{"X-Admin-Key": adminKey})
		req.SetPathValue("id", electionID)
		w := httptest.NewRecorder()

		handler.AddCandidate(w, req)

		testutil.AssertStatus(t, w, 404)
	})

	t.Run("invalid admin key", func(t *testing.T) {
		req := testutil.MakeRequest("POST", "/elections/"+electionID+"/candidates",
			models.AddCandidateRequest{Role: "President", Name: "Eve"},
			map[string]string{"X-Admin-Key": "nope"})
		req.SetPathValue("id", electionID)
		w := httptest.NewRecorder()

		handler.AddCandidate(w, req)

		testutil.AssertStatus(t, w, 401)
	})
}

func TestSetFirstChoices(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	handler := NewElectionHandler(db, cfg)

	electionID, adminKey, _ := testutil.CreateTestElection(t, db, cfg, "draft")

	t.Run("bulk replace", func(t *testing.T) {
		// Pre-existing entry should be wiped by the PUT
		testutil.SetTestFirstChoice(t, db, electionID, "Old", "President")

		body := "Sam: President\nKim: Treasurer\n\nPat: Secretary\n"
		req := httptest.NewRequest("PUT", "/elections/"+electionID+"/first-choices", strings.NewReader(body))
		req.Header.Set("X-Admin-Key", adminKey)
		req.SetPathValue("id", electionID)
		w := httptest.NewRecorder()

		handler.SetFirstChoices(w, req)

		testutil.AssertStatus(t, w, 200)

		var resp models.SetFirstChoicesResponse
		testutil.AssertJSON(t, w, &resp)
		if resp.Entries != 3 {
			t.Errorf("Expected 3 entries, got %d", resp.Entries)
		}

		var count int
		if err := db.QueryRow(`
			SELECT COUNT(*) FROM first_choice WHERE election_id = $1
		`, electionID).Scan(&count); err != nil {
			t.Fatalf("Failed to count first choices: %v", err)
		}
		if count != 3 {
			t.Errorf("Expected 3 stored entries (old table replaced), got %d", count)
		}
	})

	t.Run("malformed line", func(t *testing.T) {
		req := httptest.NewRequest("PUT", "/elections/"+electionID+"/first-choices",
			strings.NewReader("Sam President"))
		req.Header.Set("X-Admin-Key", adminKey)
		req.SetPathValue("id", electionID)
		w := httptest.NewRecorder()

		handler.SetFirstChoices(w, req)

		testutil.AssertStatus(t, w, 400)
	})
}

func TestSetSeats(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	handler := NewElectionHandler(db, cfg)

	electionID, adminKey, _ := testutil.CreateTestElection(t, db, cfg, "draft")
	testutil.AddTestRole(t, db, electionID, "Officer", 1)

	t.Run("update and create roles", func(t *testing.T) {
		body := "Officer: 3\nEvents Officer: 2\n"
		req := httptest.NewRequest("PUT", "/elections/"+electionID+"/seats", strings.NewReader(body))
		req.Header.Set("X-Admin-Key", adminKey)
		req.SetPathValue("id", electionID)
		w := httptest.NewRecorder()

		handler.SetSeats(w, req)

		testutil.AssertStatus(t, w, 200)

		var resp models.SetSeatsResponse
		testutil.AssertJSON(t, w, &resp)
		if resp.Entries != 2 {
			t.Errorf("Expected 2 entries, got %d", resp.Entries)
		}

		// Existing role updated in place
		var seats int
		if err := db.QueryRow(`
			SELECT seats FROM role WHERE election_id = $1 AND name = 'Officer'
		`, electionID).Scan(&seats); err != nil {
			t.Fatalf("Failed to query Officer: %v", err)
		}
		if seats != 3 {
			t.Errorf("Expected Officer seats 3, got %d", seats)
		}

		// Unknown role created with the given seat count
		if err := db.QueryRow(`
			SELECT seats FROM role WHERE election_id = $1 AND name = 'Events Officer'
		`, electionID).Scan(&seats); err != nil {
			t.Fatalf("Events Officer role not created: %v", err)
		}
		if seats != 2 {
			t.Errorf("Expected Events Officer seats 2, got %d", seats)
		}
	})

	t.Run("non-positive seat count", func(t *testing.T) {
		req := httptest.NewRequest("PUT", "/elections/"+electionID+"/seats",
			strings.NewReader("Officer: 0"))
		req.Header.Set("X-Admin-Key", adminKey)
		req.SetPathValue("id", electionID)
		w := httptest.NewRecorder()

		handler.SetSeats(w, req)

		testutil.AssertStatus(t, w, 400)
	})

	t.Run("non-draft election", func(t *testing.T) {
		openID, openKey, _ := testutil.CreateTestElection(t, db, cfg, "open")

		req := httptest.NewRequest("PUT", "/elections/"+openID+"/seats",
			strings.NewReader("Officer: 2"))
		req.Header.Set("X-Admin-Key", openKey)
		req.SetPathValue("id", openID)
		w := httptest.NewRecorder()

		handler.SetSeats(w, req)

		testutil.AssertStatus(t, w, 409)
	})
}

func TestPublishElection(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	handler := NewElectionHandler(db, cfg)

	t.Run("success", func(t *testing.T) {
		electionID, adminKey, _ := testutil.CreateTestElection(t, db, cfg, "draft")
		testutil.AddTestRole(t, db, electionID, "President", 1)
		testutil.AddTestCandidate(t, db, electionID, "President", "Sam")

		req := testutil.MakeRequest("POST", "/elections/"+electionID+"/publish", nil,
			map[string]string{"X-Admin-Key": adminKey})
		req.SetPathValue("id", electionID)
		w := httptest.NewRecorder()

		handler.PublishElection(w, req)

		testutil.AssertStatus(t, w, 200)

		var resp models.PublishElectionResponse
		testutil.AssertJSON(t, w, &resp)
		if resp.ShareSlug == "" {
			t.Error("Expected non-empty share_slug")
		}
		if !strings.Contains(resp.ShareURL, resp.ShareSlug) {
			t.Errorf("Expected share URL to contain slug, got %s", resp.ShareURL)
		}

		var status string
		if err := db.QueryRow(`SELECT status FROM election WHERE id = $1`, electionID).Scan(&status); err != nil {
			t.Fatalf("Failed to query election: %v", err)
		}
		if status != models.StatusOpen {
			t.Errorf("Expected status open, got %s", status)
		}
	})

	t.Run("no roles", func(t *testing.T) {
		electionID, adminKey, _ := testutil.CreateTestElection(t, db, cfg, "draft")

		req := testutil.MakeRequest("POST", "/elections/"+electionID+"/publish", nil,
			map[string]string{"X-Admin-Key": adminKey})
		req.SetPathValue("id", electionID)
		w := httptest.NewRecorder()

		handler.PublishElection(w, req)

		testutil.AssertStatus(t, w, 400)
	})

	t.Run("no candidates", func(t *testing.T) {
		electionID, adminKey, _ := testutil.CreateTestElection(t, db, cfg, "draft")
		testutil.AddTestRole(t, db, electionID, "President", 1)

		req := testutil.MakeRequest("POST", "/elections/"+electionID+"/publish", nil,
			map[string]string{"X-Admin-Key": adminKey})
		req.SetPathValue("id", electionID)
		w := httptest.NewRecorder()

		handler.PublishElection(w, req)

		testutil.AssertStatus(t, w, 400)
	})

	t.Run("already open", func(t *testing.T) {
		electionID, adminKey, _ := testutil.CreateTestElection(t, db, cfg, "open")

		req := testutil.MakeRequest("POST", "/elections/"+electionID+"/publish", nil,
			map[string]string{"X-Admin-Key": adminKey})
		req.SetPathValue("id", electionID)
		w := httptest.NewRecorder()

		handler.PublishElection(w, req)

		testutil.AssertStatus(t, w, 409)
	})
}

func TestGetElectionAdmin(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	handler := NewElectionHandler(db, cfg)

	electionID, adminKey, _ := testutil.CreateTestElection(t, db, cfg, "draft")
	testutil.AddTestRole(t, db, electionID, "President", 1)
	testutil.AddTestCandidate(t, db, electionID, "President", "Sam")

	t.Run("success", func(t *testing.T) {
		req := testutil.MakeRequest("GET", "/elections/"+electionID+"/admin", nil,
			map[string]string{"X-Admin-Key": adminKey})
		req.SetPathValue("id", electionID)
		w := httptest.NewRecorder()

		handler.GetElectionAdmin(w, req)

		testutil.AssertStatus(t, w, 200)

		var resp models.ElectionDetail
		testutil.AssertJSON(t, w, &resp)
		if resp.Election.ID != electionID {
			t.Errorf("Expected election %s, got %s", electionID, resp.Election.ID)
		}
		if len(resp.Roles) != 1 || resp.Roles[0].Name != "President" {
			t.Errorf("Expected President role, got %+v", resp.Roles)
		}
		if len(resp.Candidates) != 1 || resp.Candidates[0].Name != "Sam" {
			t.Errorf("Expected candidate Sam, got %+v", resp.Candidates)
		}
	})

	t.Run("invalid admin key", func(t *testing.T) {
		req := testutil.MakeRequest("GET", "/elections/"+electionID+"/admin", nil,
			map[string]string{"X-Admin-Key": "wrong"})
		req.SetPathValue("id", electionID)
		w := httptest.NewRecorder()

		handler.GetElectionAdmin(w, req)

		testutil.AssertStatus(t, w, 401)
	})
}

func TestCloseElection(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	handler := NewElectionHandler(db, cfg)

	t.Run("majority winner", func(t *testing.T) {
		electionID, adminKey, _ := testutil.CreateTestElection(t, db, cfg, "open")
		testutil.AddTestRole(t, db, electionID, "President", 1)
		testutil.AddTestCandidate(t, db, electionID, "President", "Sam")
		testutil.AddTestCandidate(t, db, electionID, "President", "Kim")

		for i, choice := range []string{"Sam", "Sam", "Kim"} {
			token := testutil.CreateTestVoter(t, db, electionID, "voter"+string(rune('a'+i)))
			testutil.SubmitTestBallot(t, db, electionID, token, map[string][]string{
				"President": {choice},
			})
		}

		req := testutil.MakeRequest("POST", "/elections/"+electionID+"/close", nil,
			map[string]string{"X-Admin-Key": adminKey})
		req.SetPathValue("id", electionID)
		w := httptest.NewRecorder()

		handler.CloseElection(w, req)

		testutil.AssertStatus(t, w, 200)

		var resp models.CloseElectionResponse
		testutil.AssertJSON(t, w, &resp)

		outcomes := resp.Snapshot.Winners["President"]
		if len(outcomes) != 1 {
			t.Fatalf("Expected 1 outcome for President, got %d", len(outcomes))
		}
		if outcomes[0].Winner != "Sam" {
			t.Errorf("Expected Sam to win, got %s", outcomes[0].Winner)
		}
		if resp.Snapshot.BallotCount != 3 {
			t.Errorf("Expected 3 ballots, got %d", resp.Snapshot.BallotCount)
		}

		var status string
		var snapshotID *string
		if err := db.QueryRow(`
			SELECT status, final_snapshot_id FROM election WHERE id = $1
		`, electionID).Scan(&status, &snapshotID); err != nil {
			t.Fatalf("Failed to query election: %v", err)
		}
		if status != models.StatusClosed {
			t.Errorf("Expected status closed, got %s", status)
		}
		if snapshotID == nil || *snapshotID != resp.Snapshot.ID {
			t.Error("Expected final_snapshot_id to point at the new snapshot")
		}
	})

	t.Run("missing first choice blocks close", func(t *testing.T) {
		// Sam wins both roles but has no declared first choice, so the
		// close must fail with 422 and the election must stay open.
		electionID, adminKey, _ := testutil.CreateTestElection(t, db, cfg, "open")
		testutil.AddTestRole(t, db, electionID, "President", 1)
		testutil.AddTestRole(t, db, electionID, "Treasurer", 1)
		testutil.AddTestCandidate(t, db, electionID, "President", "Sam")
		testutil.AddTestCandidate(t, db, electionID, "Treasurer", "Sam")
		testutil.AddTestCandidate(t, db, electionID, "President", "Kim")
		testutil.AddTestCandidate(t, db, electionID, "Treasurer", "Kim")

		for i := 0; i < 3; i++ {
			token := testutil.CreateTestVoter(t, db, electionID, "voter"+string(rune('a'+i)))
			testutil.SubmitTestBallot(t, db, electionID, token, map[string][]string{
				"President": {"Sam", "Kim"},
				"Treasurer": {"Sam", "Kim"},
			})
		}

		req := testutil.MakeRequest("POST", "/elections/"+electionID+"/close", nil,
			map[string]string{"X-Admin-Key": adminKey})
		req.SetPathValue("id", electionID)
		w := httptest.NewRecorder()

		handler.CloseElection(w, req)

		testutil.AssertStatus(t, w, 422)

		var status string
		if err := db.QueryRow(`SELECT status FROM election WHERE id = $1`, electionID).Scan(&status); err != nil {
			t.Fatalf("Failed to query election: %v", err)
		}
		if status != models.StatusOpen {
			t.Errorf("Expected election to stay open, got %s", status)
		}
	})

	t.Run("not open", func(t *testing.T) {
		electionID, adminKey, _ := testutil.CreateTestElection(t, db, cfg, "draft")

		req := testutil.MakeRequest("POST", "/elections/"+electionID+"/close", nil,
			map[string]string{"X-Admin-Key": adminKey})
		req.SetPathValue("id", electionID)
		w := httptest.NewRecorder()

		handler.CloseElection(w, req)

		testutil.AssertStatus(t, w, 409)
	})
}
