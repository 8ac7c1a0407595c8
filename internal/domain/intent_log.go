package domain

import (
	"time"
)

// IntentLog is an audit entry for a captured free-text intent.
type IntentLog struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	SessionID  *string   `json:"sessionId"`
	IntentText string    `json:"intentText"`
	IntentType string    `json:"intentType"`
	CapturedAt time.Time `json:"capturedAt"`
}
