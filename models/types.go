// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import (
	"time"

	"runoff/engine"
)

// Election status constants
const (
	StatusDraft  = "draft"
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// Resolution method constants
const (
	MethodIRV = "irv"
)

// Device roles
const (
	RoleVoter = "voter"
	RoleAdmin = "admin"
)

// Device platforms
const (
	PlatformIOS     = "ios"
	PlatformMacOS   = "macos"
	PlatformAndroid = "android"
	PlatformWeb     = "web"
)

// Ballot sources
const (
	SourceWeb   = "web"
	SourceSheet = "sheet"
)

// Request types

type RoleSpec struct {
	Name  string `json:"name"`
	Seats int    `json:"seats,omitempty"` // 0 means one seat
}

type CreateElectionRequest struct {
	Title        string     `json:"title"`
	Organization string     `json:"organization"`
	CreatorName  string     `json:"creator_name"`
	Roles        []RoleSpec `json:"roles,omitempty"`
}

type AddRoleRequest struct {
	Name  string `json:"name"`
	Seats int    `json:"seats,omitempty"`
}

type AddCandidateRequest struct {
	Role string `json:"role"`
	Name string `json:"name"`
	// FirstChoice marks this role as the candidate's declared top
	// preference, used to arbitrate double wins across roles.
	FirstChoice bool `json:"first_choice,omitempty"`
}

type ClaimUsernameRequest struct {
	Username string `json:"username"`
}

// role name -> ordered candidate names, most preferred first
type SubmitBallotRequest struct {
	Rankings map[string][]string `json:"rankings"`
}

type ImportSheetRequest struct {
	SheetURL string `json:"sheet_url"`
}

type RegisterDeviceRequest struct {
	Platform string `json:"platform"`
}

// Response types

type CreateElectionResponse struct {
	ElectionID string `json:"election_id"`
	AdminKey   string `json:"admin_key"`
}

type AddRoleResponse struct {
	RoleID string `json:"role_id"`
}

type AddCandidateResponse struct {
	CandidateID string `json:"candidate_id"`
}

type SetFirstChoicesResponse struct {
	Entries int `json:"entries"`
}

type SetSeatsResponse struct {
	Entries int `json:"entries"`
}

type PublishElectionResponse struct {
	ShareSlug string `json:"share_slug"`
	ShareURL  string `json:"share_url"`
}

type ClaimUsernameResponse struct {
	VoterToken string `json:"voter_token"`
}

type SubmitBallotResponse struct {
	BallotID string `json:"ballot_id"`
	Message  string `json:"message"`
}

type ImportSheetResponse struct {
	BallotCount     int    `json:"ballot_count"`
	CandidatesAdded int    `json:"candidates_added"`
	Message         string `json:"message"`
}

type CloseElectionResponse struct {
	ClosedAt time.Time      `json:"closed_at"`
	Snapshot ResultSnapshot `json:"snapshot"`
}

type RegisterDeviceResponse struct {
	DeviceID string `json:"device_id"`
	IsNew    bool   `json:"is_new"`
}

// Domain types

type Election struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Organization    string     `json:"organization"`
	CreatorName     string     `json:"creator_name"`
	Method          string     `json:"method"`
	Status          string     `json:"status"`
	ShareSlug       *string    `json:"share_slug,omitempty"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
	FinalSnapshotID *string    `json:"final_snapshot_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type Role struct {
	ID         string `json:"id"`
	ElectionID string `json:"election_id"`
	Name       string `json:"name"`
	Seats      int    `json:"seats"`
}

type Candidate struct {
	ID         string `json:"id"`
	ElectionID string `json:"election_id"`
	Role       string `json:"role"`
	Name       string `json:"name"`
}

type ElectionDetail struct {
	Election   Election    `json:"election"`
	Roles      []Role      `json:"roles"`
	Candidates []Candidate `json:"candidates"`
}

type Ballot struct {
	ID          string    `json:"id"`
	ElectionID  string    `json:"election_id"`
	VoterToken  string    `json:"-"` // Never expose in JSON
	Source      string    `json:"source"`
	SubmittedAt time.Time `json:"submitted_at"`
	IPHash      *string   `json:"-"` // Never expose in JSON
	UserAgent   *string   `json:"-"` // Never expose in JSON
}

// ResultSnapshot is the immutable record of one resolution run: the final
// winners assignment plus how it was reached.
type ResultSnapshot struct {
	ID          string            `json:"id"`
	ElectionID  string            `json:"election_id"`
	Method      string            `json:"method"`
	ComputedAt  time.Time         `json:"computed_at"`
	Winners     engine.Assignment `json:"winners"`
	Passes      int               `json:"passes"`
	BallotCount int               `json:"ballot_count"`
}

type ResultsResponse struct {
	Election    Election          `json:"election"`
	Winners     engine.Assignment `json:"winners"`
	Passes      int               `json:"passes"`
	BallotCount int               `json:"ballot_count"`
	ClosedAgo   string            `json:"closed_ago,omitempty"`
}

type PreviewResponse struct {
	Title          string `json:"title"`
	Status         string `json:"status"`
	RoleCount      int    `json:"role_count"`
	CandidateCount int    `json:"candidate_count"`
	BallotCount    int    `json:"ballot_count"`
	ClosedAgo      string `json:"closed_ago,omitempty"`
}

type DeviceInfo struct {
	ID         string    `json:"id"`
	Platform   string    `json:"platform"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

type DeviceElectionSummary struct {
	ElectionID  string    `json:"election_id"`
	Title       string    `json:"title"`
	Status      string    `json:"status"`
	ShareSlug   *string   `json:"share_slug,omitempty"`
	Role        string    `json:"role"`
	Username    *string   `json:"username,omitempty"`
	LinkedAt    time.Time `json:"linked_at"`
	BallotCount int       `json:"ballot_count"`
}

type GetMyElectionsResponse struct {
	Elections []DeviceElectionSummary `json:"elections"`
}

// Error response

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
