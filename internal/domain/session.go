package domain

import (
	"time"
)

// Session statuses. A session moves from active to completed exactly once.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// Termination reasons recorded when a session ends.
const (
	ReasonUserEnded   = "user_ended"
	ReasonCapExceeded = "cap_exceeded"
)

// DefaultSessionCap is the maximum call duration allowed per phone number.
const DefaultSessionCap = 600 * time.Second

// VoiceSession is one call record. EndedAt, DurationSeconds and
// TerminationReason stay nil while the session is active.
type VoiceSession struct {
	ID                string     `json:"id"`
	UserID            string     `json:"userId"`
	AgentID           *string    `json:"agentId"`
	PhoneNumber       string     `json:"phoneNumber"`
	Status            string     `json:"status"`
	StartedAt         time.Time  `json:"startedAt"`
	EndedAt           *time.Time `json:"endedAt"`
	DurationSeconds   *int       `json:"durationSeconds"`
	TerminationReason *string    `json:"terminationReason"`
}

// IsActive returns true if the session has not ended yet.
func (s *VoiceSession) IsActive() bool {
	return s.Status == StatusActive
}

// Duration returns the recorded duration in seconds, or 0 while active.
func (s *VoiceSession) Duration() int {
	if s.DurationSeconds == nil {
		return 0
	}
	return *s.DurationSeconds
}

// Reason returns the termination reason, or empty string while active.
func (s *VoiceSession) Reason() string {
	if s.TerminationReason == nil {
		return ""
	}
	return *s.TerminationReason
}
