package models

import (
	"time"
)

// SessionStatus represents the current state of an exam session
type SessionStatus string

const (
	SessionLoading    SessionStatus = "loading"    // Test fetch in progress
	SessionActive     SessionStatus = "active"     // Timer ticking, answers accepted
	SessionSubmitting SessionStatus = "submitting" // Submission call in flight
	SessionSubmitted  SessionStatus = "submitted"  // Accepted upstream, read-only
)

// IsTerminal returns true if the session is in a final state. A failed test
// fetch retains no session at all, so submitted is the only terminal status.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionSubmitted
}

// CreateSessionRequest represents a request to start an exam session
type CreateSessionRequest struct {
	TestID int `json:"test_id"`
}

// SessionView is the externally visible snapshot of a session
type SessionView struct {
	ID               string         `json:"id"`
	TestID           int            `json:"test_id"`
	TestTitle        string         `json:"test_title"`
	Status           SessionStatus  `json:"status"`
	CurrentQuestion  int            `json:"current_question"`
	QuestionCount    int            `json:"question_count"`
	RemainingSeconds int            `json:"remaining_seconds"`
	Answers          map[int]string `json:"answers"`
	CreatedAt        time.Time      `json:"created_at"`
	SubmittedAt      *time.Time     `json:"submitted_at,omitempty"`
}

// SessionEvent is one message on the session events stream
type SessionEvent struct {
	Type             string        `json:"type"` // "tick" | "status"
	Status           SessionStatus `json:"status"`
	RemainingSeconds int           `json:"remaining_seconds"`
}
