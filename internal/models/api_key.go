package models

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// APIKeyPrefix starts every generated key.
const APIKeyPrefix = "ota_"

// APIKey grants permissions to a bearer token. Either the raw Key or its
// SHA-256 hex KeyHash is configured; KeyHash wins when both are set.
type APIKey struct {
	Name        string   `yaml:"name" json:"name" toml:"name"`
	Key         string   `yaml:"key,omitempty" json:"key,omitempty" toml:"key,omitempty"`
	KeyHash     string   `yaml:"key_hash,omitempty" json:"key_hash,omitempty" toml:"key_hash,omitempty"`
	Permissions []string `yaml:"permissions" json:"permissions" toml:"permissions"`
	Enabled     bool     `yaml:"enabled" json:"enabled" toml:"enabled"`
}

// GenerateAPIKey produces a new random API key in the format ota_<44 url-safe base64 chars>.
func GenerateAPIKey() (string, error) {
	b := make([]byte, 33) // 33 bytes → 44 base64url chars
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return APIKeyPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// HashAPIKey computes the SHA-256 hex digest of a raw API key.
func HashAPIKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

// Matches reports whether rawKey is this key, comparing digests in constant time.
func (ak *APIKey) Matches(rawKey string) bool {
	want := strings.ToLower(ak.KeyHash)
	if want == "" {
		if ak.Key == "" {
			return false
		}
		want = HashAPIKey(ak.Key)
	}
	return subtle.ConstantTimeCompare([]byte(HashAPIKey(rawKey)), []byte(want)) == 1
}

// HasPermission returns true when the key is enabled and possesses the required permission.
func (ak *APIKey) HasPermission(required string) bool {
	if !ak.Enabled {
		return false
	}
	for _, p := range ak.Permissions {
		switch p {
		case "*", "admin":
			return true
		case "write":
			if required == "read" || required == "write" {
				return true
			}
		case required:
			return true
		}
	}
	return false
}
