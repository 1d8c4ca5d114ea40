package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-client-bridge/internal/authgate"
	"media-client-bridge/internal/capability"
	"media-client-bridge/internal/config"
	"media-client-bridge/internal/keystore"
	"media-client-bridge/internal/keystore/keyring"
	"media-client-bridge/internal/logging"
	"media-client-bridge/internal/storage"
	"media-client-bridge/internal/telemetry"
)

type testServer struct {
	server   *Server
	store    *storage.Store
	gate     *authgate.SimulatorGate
	recorder *telemetry.Recorder
}

func testFixture() *capability.Fixture {
	return &capability.Fixture{
		Decoders: []capability.Decoder{
			{Name: "h264_vaapi", Codec: "h264", Kind: capability.KindVideo, Hardware: true, MaxWidth: 3840, MaxHeight: 2160},
			{Name: "h264", Codec: "h264", Kind: capability.KindVideo},
			{Name: "hevc", Codec: "h265", Kind: capability.KindVideo},
			{Name: "aac_at", Codec: "aac", Kind: capability.KindAudio, Hardware: true},
			{Name: "flac", Codec: "flac", Kind: capability.KindAudio},
		},
		DisplayWidth:     3840,
		DisplayHeight:    2160,
		TotalMemoryBytes: 4 * 1024 * 1024 * 1024,
	}
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Gate.Enabled = true
	cfg.Gate.Provider = "simulator"
	cfg.API.UnlockSecret = "test-unlock-secret"
	if mutate != nil {
		mutate(cfg)
	}

	logger := logging.Initialize("error")

	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ks := keystore.New(store, keyring.NewMemoryProvider(), cfg.Keystore, logger)
	analyzer := capability.NewAnalyzer(
		capability.NewStaticProber(testFixture()),
		capability.NewStaticProber(testFixture()),
		capability.NewStaticProber(testFixture()),
		logger,
	)
	gate := authgate.NewSimulatorGate(logger)
	recorder := telemetry.NewRecorder(store, logger)

	handlers := NewHandlers(cfg, logger, ks, analyzer, gate, recorder, "test")
	server := NewServer(cfg, logger, handlers)

	return &testServer{server: server, store: store, gate: gate, recorder: recorder}
}

func (ts *testServer) request(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	recorder := httptest.NewRecorder()
	ts.server.router.ServeHTTP(recorder, req)
	return recorder
}

func decode[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &out))
	return out
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.request(t, "GET", "/api/v1/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	response := decode[HealthResponse](t, rec)
	assert.Equal(t, "healthy", response.Status)
	assert.Equal(t, "test", response.Version)
}

func TestGetCapabilities(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.request(t, "GET", "/api/v1/capabilities", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	response := decode[CapabilitiesResponse](t, rec)
	assert.Equal(t, "hardware", response.VideoCodecs["h264"])
	assert.Equal(t, "software", response.VideoCodecs["h265"])
	assert.Equal(t, "hardware", response.AudioCodecs["aac"])
	assert.Equal(t, 3840, response.MaxWidth)
	assert.True(t, response.Supports4K)
	assert.Equal(t, "mid_range", response.Tier)
	assert.Contains(t, response.Containers, "mkv")
}

func TestRefreshCapabilities(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.request(t, "POST", "/api/v1/capabilities/refresh", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	response := decode[CapabilitiesResponse](t, rec)
	assert.Equal(t, "mid_range", response.Tier)
}

func TestAnalyzePlayback(t *testing.T) {
	ts := newTestServer(t, nil)

	req := AnalyzeRequest{
		ItemID:     "item-1",
		Container:  "mkv",
		VideoCodec: "h264",
		AudioCodec: "aac",
		Width:      1920,
		Height:     1080,
		Bitrate:    8_000_000,
	}
	rec := ts.request(t, "POST", "/api/v1/playback/analyze", req, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	response := decode[AnalyzeResponse](t, rec)
	assert.True(t, response.CanDirectPlay)
	assert.Equal(t, 110, response.Score)
	assert.Empty(t, response.Issues)

	// Every analyze call queues one decision event
	pending, err := ts.recorder.PendingCount()
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestAnalyzePlaybackUnsupportedContainer(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.request(t, "POST", "/api/v1/playback/analyze", AnalyzeRequest{Container: "wmv"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	response := decode[AnalyzeResponse](t, rec)
	assert.False(t, response.CanDirectPlay)
	assert.Equal(t, 0, response.Score)
	assert.NotEmpty(t, response.Issues)
}

func TestAnalyzePlaybackMissingContainer(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.request(t, "POST", "/api/v1/playback/analyze", AnalyzeRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCanDirectPlay(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.request(t, "POST", "/api/v1/playback/can-direct-play", AnalyzeRequest{
		Container:  "mp4",
		VideoCodec: "h264",
		AudioCodec: "aac",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[CanDirectPlayResponse](t, rec).CanDirectPlay)

	rec = ts.request(t, "POST", "/api/v1/playback/can-direct-play", AnalyzeRequest{
		Container:  "mp4",
		VideoCodec: "av1",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[CanDirectPlayResponse](t, rec).CanDirectPlay)
}

func TestCredentialRoundTrip(t *testing.T) {
	ts := newTestServer(t, nil)

	save := SaveCredentialRequest{
		ServerURL: "https://media.example.com",
		Username:  "alice",
		Password:  "s3cret",
	}
	rec := ts.request(t, "POST", "/api/v1/credentials", save, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	lookup := CredentialLookupRequest{ServerURL: "https://media.example.com", Username: "alice"}
	rec = ts.request(t, "POST", "/api/v1/credentials/lookup", lookup, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	response := decode[CredentialLookupResponse](t, rec)
	assert.Equal(t, "found", response.Outcome)
	assert.Equal(t, "s3cret", response.Password)
	require.NotNil(t, response.SavedAt)

	rec = ts.request(t, "DELETE", "/api/v1/credentials", lookup, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.request(t, "POST", "/api/v1/credentials/lookup", lookup, nil)
	response = decode[CredentialLookupResponse](t, rec)
	assert.Equal(t, "not_found", response.Outcome)
	assert.Empty(t, response.Password)
}

func TestSaveCredentialBlankInput(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.request(t, "POST", "/api/v1/credentials", SaveCredentialRequest{Username: "alice"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLookupDeclinedByGate(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.gate.SetOutcome(authgate.ResultDenied)

	save := SaveCredentialRequest{ServerURL: "https://media.example.com", Username: "alice", Password: "pw"}
	require.Equal(t, http.StatusOK, ts.request(t, "POST", "/api/v1/credentials", save, nil).Code)

	lookup := CredentialLookupRequest{ServerURL: "https://media.example.com", Username: "alice"}
	rec := ts.request(t, "POST", "/api/v1/credentials/lookup", lookup, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	response := decode[CredentialLookupResponse](t, rec)
	assert.Equal(t, "declined", response.Outcome)
	assert.Empty(t, response.Password)
}

func TestUnlockTokenBypassesGate(t *testing.T) {
	ts := newTestServer(t, nil)

	save := SaveCredentialRequest{ServerURL: "https://media.example.com", Username: "alice", Password: "pw"}
	require.Equal(t, http.StatusOK, ts.request(t, "POST", "/api/v1/credentials", save, nil).Code)

	// Mint an unlock token while the gate still grants
	rec := ts.request(t, "POST", "/api/v1/auth/unlock", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	unlock := decode[UnlockResponse](t, rec)
	require.NotEmpty(t, unlock.Token)

	// The gate now denies, but the token carries the lookup through
	ts.gate.SetOutcome(authgate.ResultDenied)

	lookup := CredentialLookupRequest{ServerURL: "https://media.example.com", Username: "alice"}
	rec = ts.request(t, "POST", "/api/v1/credentials/lookup", lookup, map[string]string{
		"X-Unlock-Token": unlock.Token,
	})
	response := decode[CredentialLookupResponse](t, rec)
	assert.Equal(t, "found", response.Outcome)
	assert.Equal(t, "pw", response.Password)

	// A garbage token falls back to the gate
	rec = ts.request(t, "POST", "/api/v1/credentials/lookup", lookup, map[string]string{
		"X-Unlock-Token": "not-a-token",
	})
	assert.Equal(t, "declined", decode[CredentialLookupResponse](t, rec).Outcome)
}

func TestUnlockDeniedByGate(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.gate.SetOutcome(authgate.ResultDenied)

	rec := ts.request(t, "POST", "/api/v1/auth/unlock", nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUnlockWithoutSecret(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.API.UnlockSecret = ""
	})

	rec := ts.request(t, "POST", "/api/v1/auth/unlock", nil, nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestGateCapability(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.request(t, "GET", "/api/v1/auth/capability", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	response := decode[GateCapabilityResponse](t, rec)
	assert.True(t, response.Enabled)
	assert.True(t, response.Available)
	assert.True(t, response.StrongAvailable)
	assert.Equal(t, "fingerprint", response.Authenticator)
}

func TestClearAllCredentials(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, user := range []string{"alice", "bob"} {
		save := SaveCredentialRequest{ServerURL: "https://media.example.com", Username: user, Password: "pw"}
		require.Equal(t, http.StatusOK, ts.request(t, "POST", "/api/v1/credentials", save, nil).Code)
	}

	rec := ts.request(t, "DELETE", "/api/v1/credentials/all", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	lookup := CredentialLookupRequest{ServerURL: "https://media.example.com", Username: "alice"}
	rec = ts.request(t, "POST", "/api/v1/credentials/lookup", lookup, nil)
	assert.Equal(t, "not_found", decode[CredentialLookupResponse](t, rec).Outcome)
}

func TestRotateKeyEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	save := SaveCredentialRequest{ServerURL: "https://media.example.com", Username: "alice", Password: "pw"}
	require.Equal(t, http.StatusOK, ts.request(t, "POST", "/api/v1/credentials", save, nil).Code)

	rec := ts.request(t, "POST", "/api/v1/credentials/rotate-key", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Credential survives the rotation
	lookup := CredentialLookupRequest{ServerURL: "https://media.example.com", Username: "alice"}
	rec = ts.request(t, "POST", "/api/v1/credentials/lookup", lookup, nil)
	response := decode[CredentialLookupResponse](t, rec)
	assert.Equal(t, "found", response.Outcome)
	assert.Equal(t, "pw", response.Password)
}
