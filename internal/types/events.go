package types

import (
	"time"
)

// DecisionEvent represents a playback direct-play decision for telemetry
type DecisionEvent struct {
	EventID       string    `json:"eventId"`
	ItemID        string    `json:"itemId,omitempty"`
	Container     string    `json:"container"`
	VideoCodec    string    `json:"videoCodec,omitempty"`
	AudioCodec    string    `json:"audioCodec,omitempty"`
	Width         int       `json:"width,omitempty"`
	Height        int       `json:"height,omitempty"`
	Bitrate       int64     `json:"bitrate,omitempty"`
	CanDirectPlay bool      `json:"canDirectPlay"`
	Score         int       `json:"score"`
	Issues        []string  `json:"issues,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// CredentialEvent represents a credential lifecycle event broadcast to the UI
type CredentialEvent struct {
	EventID   string    `json:"eventId"`
	EventType string    `json:"eventType"` // "saved", "cleared", "migrated", "rotated"
	ServerURL string    `json:"serverUrl,omitempty"`
	Username  string    `json:"username,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventType constants for type safety
const (
	EventTypeSaved    = "saved"
	EventTypeCleared  = "cleared"
	EventTypeMigrated = "migrated"
	EventTypeRotated  = "rotated"
)

// IsValidCredentialEventType checks if the provided event type is valid
func IsValidCredentialEventType(eventType string) bool {
	switch eventType {
	case EventTypeSaved, EventTypeCleared, EventTypeMigrated, EventTypeRotated:
		return true
	default:
		return false
	}
}

// DecisionCallback defines the function signature for decision event callbacks
type DecisionCallback func(event DecisionEvent)

// CredentialCallback defines the function signature for credential event callbacks
type CredentialCallback func(event CredentialEvent)
