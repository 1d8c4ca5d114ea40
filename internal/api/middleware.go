package api

import (
	"crypto/subtle"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		s.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      wrapped.statusCode,
			"duration_ms": time.Since(start).Milliseconds(),
			"remote_addr": r.RemoteAddr,
		}).Info("HTTP request")
	})
}

// recoveryMiddleware recovers from panics and returns 500 error
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.WithFields(logrus.Fields{
					"error": err,
					"stack": string(debug.Stack()),
					"path":  r.URL.Path,
				}).Error("Panic recovered in HTTP handler")

				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// corsMiddleware handles CORS for the configured origins. No configured
// origins means no CORS headers at all; the API is local-first.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origins := s.config.API.CORSOrigins
		if len(origins) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		origin := r.Header.Get("Origin")
		allowed := ""
		for _, candidate := range origins {
			if candidate == "*" || candidate == origin {
				allowed = candidate
				break
			}
		}

		if allowed != "" {
			if allowed == "*" {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, X-Unlock-Token")
		}

		if r.Method == http.MethodOptions {
			if allowed != "" {
				w.WriteHeader(http.StatusOK)
			} else {
				w.WriteHeader(http.StatusForbidden)
			}
			return
		}

		next.ServeHTTP(w, r)
	})
}

// securityHeadersMiddleware adds standard security headers
func (s *Server) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")

		next.ServeHTTP(w, r)
	})
}

// authenticationMiddleware validates API key authentication. With no keys
// configured the check is skipped; the server binds loopback by default.
func (s *Server) authenticationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.config.API.APIKeys) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if apiKey != "" {
			for _, allowedKey := range s.config.API.APIKeys {
				if subtle.ConstantTimeCompare([]byte(apiKey), []byte(allowedKey)) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}
		}

		s.logger.WithFields(logrus.Fields{
			"client_ip": clientIP(r),
			"path":      r.URL.Path,
		}).Warn("Authentication failed")
		s.handlers.writeError(w, "Authentication required", http.StatusUnauthorized)
	})
}

// rateLimitEntry tracks request times for one client
type rateLimitEntry struct {
	requests []time.Time
}

// rateLimiter implements per-client sliding window rate limiting
type rateLimiter struct {
	mu             sync.Mutex
	entries        map[string]*rateLimitEntry
	requestsPerMin int
	windowSize     time.Duration
	lastCleanup    time.Time
}

// newRateLimiter creates a rate limiter with a one-minute window
func newRateLimiter(requestsPerMin int) *rateLimiter {
	return &rateLimiter{
		entries:        make(map[string]*rateLimitEntry),
		requestsPerMin: requestsPerMin,
		windowSize:     time.Minute,
		lastCleanup:    time.Now(),
	}
}

// isAllowed checks if a request is allowed and returns the remaining budget
func (rl *rateLimiter) isAllowed(key string) (bool, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastCleanup) > rl.windowSize {
		rl.cleanup(now)
		rl.lastCleanup = now
	}

	entry, ok := rl.entries[key]
	if !ok {
		entry = &rateLimitEntry{}
		rl.entries[key] = entry
	}

	cutoff := now.Add(-rl.windowSize)
	valid := entry.requests[:0]
	for _, t := range entry.requests {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	entry.requests = valid

	if len(entry.requests) >= rl.requestsPerMin {
		return false, 0
	}

	entry.requests = append(entry.requests, now)
	return true, rl.requestsPerMin - len(entry.requests)
}

// cleanup drops entries with no requests inside twice the window
func (rl *rateLimiter) cleanup(now time.Time) {
	cutoff := now.Add(-rl.windowSize * 2)
	for key, entry := range rl.entries {
		if len(entry.requests) == 0 || entry.requests[len(entry.requests)-1].Before(cutoff) {
			delete(rl.entries, key)
		}
	}
}

// rateLimitMiddleware applies sliding window rate limiting per client IP
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	if s.config.API.RateLimit <= 0 {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		allowed, remaining := s.rateLimiter.isAllowed(key)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(s.config.API.RateLimit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			s.logger.WithField("client_ip", key).Warn("Rate limit exceeded")
			s.handlers.writeError(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the client IP from the request
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
