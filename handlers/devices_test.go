// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"runoff/models"
	"runoff/testutil"
)

func TestRegisterDevice(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	handler := NewDeviceHandler(db, cfg)

	deviceUUID := uuid.NewString()

	t.Run("new device", func(t *testing.T) {
		req := testutil.MakeRequest("POST", "/devices/register",
			models.RegisterDeviceRequest{Platform: "ios"},
			map[string]string{"X-Device-UUID": deviceUUID})
		w := httptest.NewRecorder()

		handler.Register(w, req)

		testutil.AssertStatus(t, w, 201)

		var resp models.RegisterDeviceResponse
		testutil.AssertJSON(t, w, &resp)
		if !resp.IsNew {
			t.Error("Expected is_new true for first registration")
		}
		if resp.DeviceID == "" {
			t.Error("Expected non-empty device_id")
		}
	})

	t.Run("existing device", func(t *testing.T) {
		req := testutil.MakeRequest("POST", "/devices/register",
			models.RegisterDeviceRequest{Platform: "ios"},
			map[string]string{"X-Device-UUID": deviceUUID})
		w := httptest.NewRecorder()

		handler.Register(w, req)

		testutil.AssertStatus(t, w, 200)

		var resp models.RegisterDeviceResponse
		testutil.AssertJSON(t, w, &resp)
		if resp.IsNew {
			t.Error("Expected is_new false for repeat registration")
		}
	})

	t.Run("missing header", func(t *testing.T) {
		req := testutil.MakeRequest("POST", "/devices/register",
			models.RegisterDeviceRequest{Platform: "ios"}, nil)
		w := httptest.NewRecorder()

		handler.Register(w, req)

		testutil.AssertStatus(t, w, 400)
	})

	t.Run("invalid platform", func(t *testing.T) {
		req := testutil.MakeRequest("POST", "/devices/register",
			models.RegisterDeviceRequest{Platform: "windows"},
			map[string]string{"X-Device-UUID": uuid.NewString()})
		w := httptest.NewRecorder()

		handler.Register(w, req)

		testutil.AssertStatus(t, w, 400)
	})
}

func TestGetMe(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	handler := NewDeviceHandler(db, cfg)

	deviceUUID := uuid.NewString()

	t.Run("not registered", func(t *testing.T) {
		req := testutil.MakeRequest("GET", "/devices/me", nil,
			map[string]string{"X-Device-UUID": deviceUUID})
		w := httptest.NewRecorder()

		handler.GetMe(w, req)

		testutil.AssertStatus(t, w, 404)
	})

	t.Run("registered", func(t *testing.T) {
		regReq := testutil.MakeRequest("POST", "/devices/register",
			models.RegisterDeviceRequest{Platform: "macos"},
			map[string]string{"X-Device-UUID": deviceUUID})
		regW := httptest.NewRecorder()
		handler.Register(regW, regReq)
		testutil.AssertStatus(t, regW, 201)

		req := testutil.MakeRequest("GET", "/devices/me", nil,
			map[string]string{"X-Device-UUID": deviceUUID})
		w := httptest.NewRecorder()

		handler.GetMe(w, req)

		testutil.AssertStatus(t, w, 200)

		var resp models.DeviceInfo
		testutil.AssertJSON(t, w, &resp)
		if resp.Platform != "macos" {
			t.Errorf("Expected macos platform, got %s", resp.Platform)
		}
	})
}

func TestGetMyElections(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	handler := NewDeviceHandler(db, cfg)
	votingHandler := NewVotingHandler(db, cfg)

	electionID, _, shareSlug := testutil.CreateTestElection(t, db, cfg, "open")
	adminElectionID, _, _ := testutil.CreateTestElection(t, db, cfg, "draft")
	deviceUUID := uuid.NewString()

	// Claiming a username with a device header links the device as voter
	claimReq := testutil.MakeRequest("POST", "/elections/"+shareSlug+"/claim-username",
		models.ClaimUsernameRequest{Username: "alice"},
		map[string]string{"X-Device-UUID": deviceUUID})
	claimReq.SetPathValue("slug", shareSlug)
	claimW := httptest.NewRecorder()
	votingHandler.ClaimUsername(claimW, claimReq)
	testutil.AssertStatus(t, claimW, 201)

	// Link the same device to a second election as admin, with no voter
	// token and hence no username to resolve
	var deviceID string
	if err := db.QueryRow(`SELECT id FROM device WHERE device_uuid = $1`, deviceUUID).Scan(&deviceID); err != nil {
		t.Fatalf("Device was not created by the claim: %v", err)
	}
	if err := LinkDeviceToElection(db, deviceID, adminElectionID, models.RoleAdmin, nil); err != nil {
		t.Fatalf("LinkDeviceToElection failed: %v", err)
	}

	// The test pool holds a single connection, so listing multiple linked
	// elections with usernames must complete on one connection alone.
	t.Run("linked elections resolve usernames", func(t *testing.T) {
		req := testutil.MakeRequest("GET", "/devices/my-elections", nil,
			map[string]string{"X-Device-UUID": deviceUUID})
		w := httptest.NewRecorder()

		handler.GetMyElections(w, req)

		testutil.AssertStatus(t, w, 200)

		var resp models.GetMyElectionsResponse
		testutil.AssertJSON(t, w, &resp)
		if len(resp.Elections) != 2 {
			t.Fatalf("Expected 2 linked elections, got %d", len(resp.Elections))
		}

		byID := make(map[string]models.DeviceElectionSummary, len(resp.Elections))
		for _, summary := range resp.Elections {
			byID[summary.ElectionID] = summary
		}

		voted, ok := byID[electionID]
		if !ok {
			t.Fatalf("Voted election missing from response: %+v", resp.Elections)
		}
		if voted.Role != models.RoleVoter {
			t.Errorf("Expected voter role, got %s", voted.Role)
		}
		if voted.Username == nil || *voted.Username != "alice" {
			t.Errorf("Expected username alice, got %v", voted.Username)
		}

		admined, ok := byID[adminElectionID]
		if !ok {
			t.Fatalf("Admin election missing from response: %+v", resp.Elections)
		}
		if admined.Role != models.RoleAdmin {
			t.Errorf("Expected admin role, got %s", admined.Role)
		}
		if admined.Username != nil {
			t.Errorf("Expected no username for admin link, got %v", *admined.Username)
		}
	})

	t.Run("unknown device", func(t *testing.T) {
		req := testutil.MakeRequest("GET", "/devices/my-elections", nil,
			map[string]string{"X-Device-UUID": uuid.NewString()})
		w := httptest.NewRecorder()

		handler.GetMyElections(w, req)

		testutil.AssertStatus(t, w, 404)
	})
}

func TestLinkDeviceToElection(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()

	electionID, _, _ := testutil.CreateTestElection(t, db, cfg, "open")

	req := testutil.MakeRequest("POST", "/devices/register", nil,
		map[string]string{"X-Device-UUID": uuid.NewString()})
	deviceID, err := GetOrCreateDevice(db, req)
	if err != nil {
		t.Fatalf("GetOrCreateDevice failed: %v", err)
	}

	token := "token-1"
	if err := LinkDeviceToElection(db, deviceID, electionID, models.RoleVoter, &token); err != nil {
		t.Fatalf("LinkDeviceToElection failed: %v", err)
	}

	// Re-linking as admin upgrades the role; the voter token sticks
	if err := LinkDeviceToElection(db, deviceID, electionID, models.RoleAdmin, nil); err != nil {
		t.Fatalf("Re-link failed: %v", err)
	}

	var role string
	var voterToken *string
	if err := db.QueryRow(`
		SELECT role, voter_token FROM device_election
		WHERE device_id = $1 AND election_id = $2
	`, deviceID, electionID).Scan(&role, &voterToken); err != nil {
		t.Fatalf("Failed to query link: %v", err)
	}
	if role != models.RoleAdmin {
		t.Errorf("Expected admin role after re-link, got %s", role)
	}
	if voterToken == nil || *voterToken != "token-1" {
		t.Errorf("Expected original voter token to stick, got %v", voterToken)
	}

	// Once admin, a voter re-link cannot downgrade
	if err := LinkDeviceToElection(db, deviceID, electionID, models.RoleVoter, nil); err != nil {
		t.Fatalf("Downgrade attempt failed: %v", err)
	}
	if err := db.QueryRow(`
		SELECT role FROM device_election WHERE device_id = $1 AND election_id = $2
	`, deviceID, electionID).Scan(&role); err != nil {
		t.Fatalf("Failed to query link: %v", err)
	}
	if role != models.RoleAdmin {
		t.Errorf("Expected admin role to stick, got %s", role)
	}
}
