package api

import (
	"time"

	"media-client-bridge/internal/capability"
)

// ErrorResponse is the JSON shape of every error the API returns
type ErrorResponse struct {
	Error     bool   `json:"error"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status        string    `json:"status"`
	Version       string    `json:"version"`
	Timestamp     time.Time `json:"timestamp"`
	PendingEvents int       `json:"pendingEvents,omitempty"`
}

// CapabilitiesResponse wraps the device capability snapshot
type CapabilitiesResponse struct {
	Containers  []string          `json:"containers"`
	VideoCodecs map[string]string `json:"videoCodecs"`
	AudioCodecs map[string]string `json:"audioCodecs"`
	MaxWidth    int               `json:"maxWidth"`
	MaxHeight   int               `json:"maxHeight"`
	Supports4K  bool              `json:"supports4k"`
	SupportsHDR bool              `json:"supportsHdr"`
	Tier        string            `json:"tier"`
	MaxBitrate  int64             `json:"maxBitrate"`
	ProbedAt    time.Time         `json:"probedAt"`
}

// AnalyzeRequest describes one stream to score for direct play
type AnalyzeRequest struct {
	ItemID     string `json:"itemId,omitempty"`
	Container  string `json:"container"`
	VideoCodec string `json:"videoCodec,omitempty"`
	AudioCodec string `json:"audioCodec,omitempty"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	Bitrate    int64  `json:"bitrate,omitempty"`
}

// Stream converts the request into a stream descriptor
func (r AnalyzeRequest) Stream() capability.StreamDescriptor {
	return capability.StreamDescriptor{
		Container:  r.Container,
		VideoCodec: r.VideoCodec,
		AudioCodec: r.AudioCodec,
		Width:      r.Width,
		Height:     r.Height,
		Bitrate:    r.Bitrate,
	}
}

// AnalyzeResponse is the scored compatibility report for one stream
type AnalyzeResponse struct {
	CanDirectPlay  bool     `json:"canDirectPlay"`
	Score          int      `json:"score"`
	Issues         []string `json:"issues"`
	Recommendation string   `json:"recommendation"`
}

// CanDirectPlayResponse is the boolean direct-play verdict
type CanDirectPlayResponse struct {
	CanDirectPlay bool `json:"canDirectPlay"`
}

// SaveCredentialRequest stores a password for a (server, username) pair
type SaveCredentialRequest struct {
	ServerURL string `json:"serverUrl"`
	Username  string `json:"username"`
	Password  string `json:"password"`
}

// CredentialLookupRequest identifies a stored credential
type CredentialLookupRequest struct {
	ServerURL string `json:"serverUrl"`
	Username  string `json:"username"`
}

// CredentialLookupResponse carries the lookup outcome. Password is present
// only for the "found" outcome.
type CredentialLookupResponse struct {
	Outcome  string     `json:"outcome"`
	Password string     `json:"password,omitempty"`
	SavedAt  *time.Time `json:"savedAt,omitempty"`
}

// UnlockResponse carries a short-lived unlock token minted after a
// successful biometric prompt
type UnlockResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// GateCapabilityResponse reports what the biometric gate can do
type GateCapabilityResponse struct {
	Enabled                  bool   `json:"enabled"`
	Available                bool   `json:"available"`
	StrongAvailable          bool   `json:"strongAvailable"`
	WeakOnly                 bool   `json:"weakOnly"`
	DeviceCredentialFallback bool   `json:"deviceCredentialFallback"`
	Authenticator            string `json:"authenticator"`
}

// StatusResponse is a generic success acknowledgement
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
