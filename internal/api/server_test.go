package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-client-bridge/internal/config"
)

func TestAuthenticationRequired(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.API.APIKeys = []string{"valid-key"}
	})

	// Health stays open
	rec := ts.request(t, "GET", "/api/v1/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Protected endpoint without a key
	rec = ts.request(t, "GET", "/api/v1/capabilities", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong key
	rec = ts.request(t, "GET", "/api/v1/capabilities", nil, map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// X-API-Key header
	rec = ts.request(t, "GET", "/api/v1/capabilities", nil, map[string]string{"X-API-Key": "valid-key"})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Bearer scheme
	rec = ts.request(t, "GET", "/api/v1/capabilities", nil, map[string]string{"Authorization": "Bearer valid-key"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthenticationDisabledWithoutKeys(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.request(t, "GET", "/api/v1/capabilities", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiting(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.API.RateLimit = 2
	})

	rec := ts.request(t, "GET", "/api/v1/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))

	rec = ts.request(t, "GET", "/api/v1/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = ts.request(t, "GET", "/api/v1/health", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestSecurityHeaders(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.request(t, "GET", "/api/v1/health", nil, nil)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.API.CORSOrigins = []string{"https://ui.example.com"}
	})

	rec := ts.request(t, "GET", "/api/v1/health", nil, map[string]string{
		"Origin": "https://ui.example.com",
	})
	assert.Equal(t, "https://ui.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = ts.request(t, "GET", "/api/v1/health", nil, map[string]string{
		"Origin": "https://evil.example.com",
	})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	// Preflight from a disallowed origin is refused
	rec = ts.request(t, "OPTIONS", "/api/v1/health", nil, map[string]string{
		"Origin": "https://evil.example.com",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCORSDisabledByDefault(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.request(t, "GET", "/api/v1/health", nil, map[string]string{
		"Origin": "https://ui.example.com",
	})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
