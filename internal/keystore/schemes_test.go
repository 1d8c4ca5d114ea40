package keystore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeServerURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"already canonical", "https://jellyfin.home.lan", "https://jellyfin.home.lan"},
		{"trailing slash", "https://jellyfin.home.lan/", "https://jellyfin.home.lan"},
		{"mixed case host", "https://Jellyfin.Home.LAN", "https://jellyfin.home.lan"},
		{"mixed case scheme", "HTTPS://jellyfin.home.lan", "https://jellyfin.home.lan"},
		{"surrounding whitespace", "  https://jellyfin.home.lan  ", "https://jellyfin.home.lan"},
		{"missing scheme", "jellyfin.home.lan", "https://jellyfin.home.lan"},
		{"port preserved", "https://jellyfin.home.lan:8920", "https://jellyfin.home.lan:8920"},
		{"path preserved without trailing slash", "https://host/jellyfin/", "https://host/jellyfin"},
		{"empty", "", ""},
		{"blank", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizeServerURL(tt.input))
		})
	}
}

func TestCurrentSchemeDerivation(t *testing.T) {
	key := currentScheme.derive("https://jellyfin.home.lan", "alice", "salt")

	assert.True(t, strings.HasPrefix(key, entryPrefix))
	// 16 bytes of digest, hex encoded
	assert.Len(t, key, len(entryPrefix)+32)

	// Deterministic
	assert.Equal(t, key, currentScheme.derive("https://jellyfin.home.lan", "alice", "salt"))

	// Equivalent URL spellings collapse to the same key
	assert.Equal(t, key, currentScheme.derive("https://JELLYFIN.home.lan/", "alice", "salt"))

	// Salt, user, and server all participate
	assert.NotEqual(t, key, currentScheme.derive("https://jellyfin.home.lan", "alice", "other"))
	assert.NotEqual(t, key, currentScheme.derive("https://jellyfin.home.lan", "bob", "salt"))
	assert.NotEqual(t, key, currentScheme.derive("https://other.home.lan", "alice", "salt"))
}

func TestSchemesAreDistinct(t *testing.T) {
	server, user, salt := "https://jellyfin.home.lan", "alice", "salt"

	keys := map[string]string{
		"current": currentScheme.derive(server, user, salt),
	}
	for _, scheme := range legacySchemes {
		keys[scheme.name] = scheme.derive(server, user, salt)
	}

	seen := map[string]string{}
	for name, key := range keys {
		if other, dup := seen[key]; dup {
			t.Errorf("schemes %s and %s derive the same key", name, other)
		}
		seen[key] = name
	}
}

func TestLegacySchemeOrder(t *testing.T) {
	// The normalized scheme must be checked before the raw one
	assert.Equal(t, "legacy-normalized", legacySchemes[0].name)
	assert.Equal(t, "legacy-raw", legacySchemes[1].name)
}
