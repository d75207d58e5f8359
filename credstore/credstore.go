package credstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Token is one cached SSO token entry read from disk. Entries are owned
// by the external login flow; this package only ever reads them.
type Token struct {
	Path        string
	StartURL    string
	Region      string
	ExpiresAt   time.Time
	ExpiryKnown bool
	Raw         []byte
}

// Identity returns a stable identifier for the token: the SSO start URL
// when present, otherwise the cache file name.
func (t Token) Identity() string {
	if t.StartURL != "" {
		return t.StartURL
	}
	return filepath.Base(t.Path)
}

// ssoCacheEntry matches the JSON the AWS CLI writes into sso/cache.
// Extra fields are ignored.
type ssoCacheEntry struct {
	StartURL  string `json:"startUrl"`
	Region    string `json:"region"`
	ExpiresAt string `json:"expiresAt"`
}

// Timestamp formats seen in SSO cache entries. Older CLI versions wrote
// a "UTC"-suffixed form instead of RFC3339.
var expiryFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05UTC",
}

// ReadTokens scans the given directory for JSON token-cache entries.
// A malformed entry is logged and skipped; a missing or unreadable
// directory yields an empty slice. The caller never sees an error
// because at startup the directory may simply not exist yet.
func ReadTokens(dir string) []Token {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Debug().Err(err).Str("dir", dir).Msg("Token cache directory not readable")
		return nil
	}

	var tokens []Token
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		token, ok := readToken(path)
		if !ok {
			continue
		}
		tokens = append(tokens, token)
	}
	return tokens
}

// readToken parses a single cache entry. It returns ok=false only when
// the file cannot be read or is not valid JSON.
func readToken(path string) (Token, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to read token cache entry")
		return Token{}, false
	}

	var entry ssoCacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Skipping malformed token cache entry")
		return Token{}, false
	}

	token := Token{
		Path:     path,
		StartURL: entry.StartURL,
		Region:   entry.Region,
		Raw:      raw,
	}

	if entry.ExpiresAt == "" {
		log.Warn().Str("path", path).Msg("Token cache entry has no expiration time")
		return token, true
	}

	expiresAt, err := parseExpiry(entry.ExpiresAt)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Str("expiresAt", entry.ExpiresAt).Msg("Unparsable token expiration time")
		return token, true
	}

	token.ExpiresAt = expiresAt
	token.ExpiryKnown = true
	return token, true
}

func parseExpiry(value string) (time.Time, error) {
	var lastErr error
	for _, format := range expiryFormats {
		t, err := time.Parse(format, value)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
