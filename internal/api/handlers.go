package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"media-client-bridge/internal/authgate"
	"media-client-bridge/internal/capability"
	"media-client-bridge/internal/config"
	"media-client-bridge/internal/keystore"
	"media-client-bridge/internal/telemetry"
)

// Handlers contains the HTTP handlers with their dependencies
type Handlers struct {
	config    *config.Config
	logger    *logrus.Logger
	keystore  *keystore.Store
	analyzer  *capability.Analyzer
	gate      authgate.Gate
	recorder  *telemetry.Recorder
	wsManager *WebSocketManager
	version   string
}

// NewHandlers creates handlers over the given dependencies. The gate and
// recorder may be nil when those features are disabled.
func NewHandlers(cfg *config.Config, logger *logrus.Logger, ks *keystore.Store, analyzer *capability.Analyzer, gate authgate.Gate, recorder *telemetry.Recorder, version string) *Handlers {
	return &Handlers{
		config:    cfg,
		logger:    logger,
		keystore:  ks,
		analyzer:  analyzer,
		gate:      gate,
		recorder:  recorder,
		wsManager: NewWebSocketManager(logger),
		version:   version,
	}
}

// WebSocketManager returns the event broadcast manager
func (h *Handlers) WebSocketManager() *WebSocketManager {
	return h.wsManager
}

// HealthCheck handles GET /api/v1/health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Timestamp: time.Now().UTC(),
	}

	if h.recorder != nil {
		if pending, err := h.recorder.PendingCount(); err == nil {
			response.PendingEvents = pending
		}
	}

	h.writeJSON(w, http.StatusOK, response)
}

// GetCapabilities handles GET /api/v1/capabilities
func (h *Handlers) GetCapabilities(w http.ResponseWriter, r *http.Request) {
	caps := h.analyzer.Capabilities(r.Context())
	h.writeJSON(w, http.StatusOK, capabilitiesResponse(caps))
}

// RefreshCapabilities handles POST /api/v1/capabilities/refresh. The memoized
// snapshot is discarded and the device re-probed immediately.
func (h *Handlers) RefreshCapabilities(w http.ResponseWriter, r *http.Request) {
	h.analyzer.Reset()
	caps := h.analyzer.Capabilities(r.Context())

	h.logger.Info("Device capabilities re-probed")
	h.writeJSON(w, http.StatusOK, capabilitiesResponse(caps))
}

// AnalyzePlayback handles POST /api/v1/playback/analyze
func (h *Handlers) AnalyzePlayback(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Container == "" {
		h.writeError(w, "container is required", http.StatusBadRequest)
		return
	}

	stream := req.Stream()
	analysis := h.analyzer.AnalyzeDirectPlay(r.Context(), stream)

	if h.recorder != nil {
		h.recorder.RecordDecision(req.ItemID, stream, analysis)
	}

	h.writeJSON(w, http.StatusOK, AnalyzeResponse{
		CanDirectPlay:  analysis.CanDirectPlay,
		Score:          analysis.Score,
		Issues:         analysis.Issues,
		Recommendation: analysis.Recommendation,
	})
}

// CanDirectPlay handles POST /api/v1/playback/can-direct-play
func (h *Handlers) CanDirectPlay(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Container == "" {
		h.writeError(w, "container is required", http.StatusBadRequest)
		return
	}

	ok := h.analyzer.CanDirectPlay(r.Context(), req.Container, req.VideoCodec, req.AudioCodec, req.Width, req.Height)
	h.writeJSON(w, http.StatusOK, CanDirectPlayResponse{CanDirectPlay: ok})
}

// Unlock handles POST /api/v1/auth/unlock. Runs the biometric prompt and
// mints a short-lived token that bypasses the gate on credential lookups.
func (h *Handlers) Unlock(w http.ResponseWriter, r *http.Request) {
	if h.config.API.UnlockSecret == "" {
		h.writeError(w, "Unlock tokens are not configured", http.StatusNotImplemented)
		return
	}

	if h.gate != nil && h.gate.Capability(h.config.Gate.RequireStrong).Available {
		result := h.gate.Authenticate(r.Context(), "Unlock stored media server credentials")
		if result != authgate.ResultGranted {
			h.logger.WithField("result", result.String()).Info("Unlock request refused by gate")
			h.writeError(w, "Authentication "+result.String(), http.StatusForbidden)
			return
		}
	}

	ttl := time.Duration(h.config.API.UnlockTTL) * time.Second
	expiresAt := time.Now().Add(ttl)

	claims := jwt.MapClaims{
		"scope": "unlock",
		"iat":   time.Now().Unix(),
		"exp":   expiresAt.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(h.config.API.UnlockSecret))
	if err != nil {
		h.logger.WithError(err).Error("Failed to sign unlock token")
		h.writeError(w, "Failed to mint unlock token", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, UnlockResponse{Token: token, ExpiresAt: expiresAt})
}

// GateCapability handles GET /api/v1/auth/capability
func (h *Handlers) GateCapability(w http.ResponseWriter, r *http.Request) {
	response := GateCapabilityResponse{Enabled: h.config.Gate.Enabled, Authenticator: "none"}

	if h.gate != nil {
		cap := h.gate.Capability(h.config.Gate.RequireStrong)
		response.Available = cap.Available
		response.StrongAvailable = cap.StrongAvailable
		response.WeakOnly = cap.WeakOnly
		response.DeviceCredentialFallback = cap.DeviceCredentialFallback
		response.Authenticator = cap.Authenticator
	}

	h.writeJSON(w, http.StatusOK, response)
}

// SaveCredential handles POST /api/v1/credentials
func (h *Handlers) SaveCredential(w http.ResponseWriter, r *http.Request) {
	var req SaveCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.keystore.SavePassword(r.Context(), req.ServerURL, req.Username, req.Password); err != nil {
		if errors.Is(err, keystore.ErrInvalidInput) {
			h.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.WithError(err).Error("Failed to save credential")
		h.writeError(w, "Failed to save credential", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, StatusResponse{Status: "saved"})
}

// LookupCredential handles POST /api/v1/credentials/lookup. A valid unlock
// token bypasses the biometric gate; otherwise the gate decides.
func (h *Handlers) LookupCredential(w http.ResponseWriter, r *http.Request) {
	var req CredentialLookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var result keystore.Lookup
	if h.hasValidUnlockToken(r) {
		result = h.keystore.GetPassword(r.Context(), req.ServerURL, req.Username)
	} else {
		result = h.keystore.GetPasswordGated(r.Context(), req.ServerURL, req.Username, h.credentialGate(), h.config.Gate.RequireStrong)
	}

	response := CredentialLookupResponse{Outcome: result.Outcome.String()}
	if result.Found() {
		response.Password = result.Password()
		if !result.SavedAt.IsZero() {
			savedAt := result.SavedAt
			response.SavedAt = &savedAt
		}
	}

	h.writeJSON(w, http.StatusOK, response)
}

// ClearCredential handles DELETE /api/v1/credentials
func (h *Handlers) ClearCredential(w http.ResponseWriter, r *http.Request) {
	var req CredentialLookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.keystore.ClearPassword(r.Context(), req.ServerURL, req.Username); err != nil {
		if errors.Is(err, keystore.ErrInvalidInput) {
			h.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.WithError(err).Error("Failed to clear credential")
		h.writeError(w, "Failed to clear credential", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, StatusResponse{Status: "cleared"})
}

// ClearAllCredentials handles DELETE /api/v1/credentials/all
func (h *Handlers) ClearAllCredentials(w http.ResponseWriter, r *http.Request) {
	if err := h.keystore.ClearAll(r.Context()); err != nil {
		h.logger.WithError(err).Error("Failed to clear credentials")
		h.writeError(w, "Failed to clear credentials", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, StatusResponse{Status: "cleared"})
}

// WebSocketHandler handles GET /api/v1/ws
func (h *Handlers) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.wsManager.HandleConnection(w, r); err != nil {
		h.logger.WithError(err).Error("WebSocket upgrade failed")
	}
}

// RotateKey handles POST /api/v1/credentials/rotate-key
func (h *Handlers) RotateKey(w http.ResponseWriter, r *http.Request) {
	if err := h.keystore.RotateKey(r.Context()); err != nil {
		h.logger.WithError(err).Error("Key rotation failed")
		h.writeError(w, "Key rotation failed", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, StatusResponse{Status: "rotated"})
}

// credentialGate returns the gate to apply to credential lookups, nil when
// the gate feature is disabled
func (h *Handlers) credentialGate() authgate.Gate {
	if !h.config.Gate.Enabled {
		return nil
	}
	return h.gate
}

// hasValidUnlockToken checks the X-Unlock-Token header for a live token
// minted by Unlock
func (h *Handlers) hasValidUnlockToken(r *http.Request) bool {
	tokenString := r.Header.Get("X-Unlock-Token")
	if tokenString == "" || h.config.API.UnlockSecret == "" {
		return false
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(h.config.API.UnlockSecret), nil
	})
	if err != nil || !token.Valid {
		return false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	return ok && claims["scope"] == "unlock"
}

// capabilitiesResponse flattens the capability snapshot for the wire
func capabilitiesResponse(caps capability.DirectPlayCapabilities) CapabilitiesResponse {
	video := make(map[string]string, len(caps.VideoCodecs))
	for codec, level := range caps.VideoCodecs {
		video[codec] = level.String()
	}
	audio := make(map[string]string, len(caps.AudioCodecs))
	for codec, level := range caps.AudioCodecs {
		audio[codec] = level.String()
	}

	return CapabilitiesResponse{
		Containers:  caps.Containers,
		VideoCodecs: video,
		AudioCodecs: audio,
		MaxWidth:    caps.MaxWidth,
		MaxHeight:   caps.MaxHeight,
		Supports4K:  caps.Supports4K,
		SupportsHDR: caps.SupportsHDR,
		Tier:        string(caps.Tier),
		MaxBitrate:  caps.MaxBitrate,
		ProbedAt:    caps.ProbedAt,
	}
}

// writeJSON writes a JSON response with the given status code
func (h *Handlers) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}

// writeError writes a JSON error response
func (h *Handlers) writeError(w http.ResponseWriter, message string, statusCode int) {
	h.writeJSON(w, statusCode, ErrorResponse{
		Error:     true,
		Message:   message,
		Timestamp: time.Now().Unix(),
	})
}
