package keystore

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

const (
	// entryPrefix prefixes every storage key owned by the keystore
	entryPrefix = "pwd_"

	// timestampSuffix marks the sibling entry holding the save time
	timestampSuffix = "_timestamp"
)

// normalizeServerURL canonicalizes a user-supplied server URL so the same
// server always derives the same storage key: trimmed, lowercased scheme and
// host, https assumed when no scheme is given, trailing slashes dropped.
func normalizeServerURL(serverURL string) string {
	trimmed := strings.TrimSpace(serverURL)
	if trimmed == "" {
		return ""
	}

	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" {
		// Unparseable input still needs a stable key
		return strings.TrimRight(strings.ToLower(trimmed), "/")
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimRight(u.Path, "/")
	u.Fragment = ""

	return u.String()
}

// derivationScheme derives the storage key for a (server, username) pair.
// The current scheme is written; legacy schemes are read-only and exist so
// entries saved under older derivations migrate forward on first lookup.
type derivationScheme struct {
	name   string
	derive func(serverURL, username, appSalt string) string
}

// truncatedHashKey hashes the given material and returns the entry key built
// from the first 16 bytes of the digest, hex encoded
func truncatedHashKey(material string) string {
	digest := sha256.Sum256([]byte(material))
	return entryPrefix + hex.EncodeToString(digest[:16])
}

// currentScheme is the salted derivation every save writes under
var currentScheme = derivationScheme{
	name: "current",
	derive: func(serverURL, username, appSalt string) string {
		return truncatedHashKey(normalizeServerURL(serverURL) + "::" + username + "::" + appSalt)
	},
}

// legacySchemes are checked in order on a current-scheme miss. The
// normalized variant comes first so migration prefers the newer
// normalization when both legacy forms are present.
var legacySchemes = []derivationScheme{
	{
		name: "legacy-normalized",
		derive: func(serverURL, username, _ string) string {
			return truncatedHashKey(normalizeServerURL(serverURL) + ":" + username)
		},
	},
	{
		name: "legacy-raw",
		derive: func(serverURL, username, _ string) string {
			return truncatedHashKey(strings.TrimSpace(serverURL) + ":" + username)
		},
	},
}
