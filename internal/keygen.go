package internal

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode"
)

// KeyPrefix is the namespace shared by every key this package generates.
// Pattern removal against it only ever touches user cache entries.
const KeyPrefix = "users:"

// MaxKeyLength bounds generated and caller supplied keys.
const MaxKeyLength = 250

// KeyNamer maps logical cache subjects to deterministic Redis keys.
// The zero value is ready to use and holds no state.
type KeyNamer struct{}

// NewKeyNamer returns a KeyNamer.
func NewKeyNamer() KeyNamer {
	return KeyNamer{}
}

// Prefix returns the namespace prefix of all user keys.
func (KeyNamer) Prefix() string {
	return KeyPrefix
}

// All returns the key holding the list of active users.
// Format: users:all
func (KeyNamer) All() string {
	return KeyPrefix + "all"
}

// Count returns the key holding the cached active user count.
// Format: users:count
func (KeyNamer) Count() string {
	return KeyPrefix + "count"
}

// ByID returns the key for a single user.
// Format: users:id:<id>
func (kn KeyNamer) ByID(id string) string {
	return KeyPrefix + "id:" + kn.sanitize(id)
}

// ByIntID is ByID for numeric identifiers.
func (kn KeyNamer) ByIntID(id int64) string {
	return kn.ByID(strconv.FormatInt(id, 10))
}

// ByEmail returns the key for a user looked up by email.
// Emails are trimmed and lower-cased first, so "Ann@Example.com" and
// "ann@example.com" share one entry.
// Format: users:email:<normalised email>
func (kn KeyNamer) ByEmail(email string) string {
	return KeyPrefix + "email:" + kn.sanitize(NormalizeEmail(email))
}

// MissingByID returns the marker key recording that a user id was not found.
// Format: users:missing:id:<id>
func (kn KeyNamer) MissingByID(id string) string {
	return KeyPrefix + "missing:id:" + kn.sanitize(id)
}

// MissingByIntID is MissingByID for numeric identifiers.
func (kn KeyNamer) MissingByIntID(id int64) string {
	return kn.MissingByID(strconv.FormatInt(id, 10))
}

// ValidateKey rejects keys that must never reach the store.
func (KeyNamer) ValidateKey(key string) error {
	return ValidateKey(key)
}

// ValidateKey rejects empty or whitespace-only keys, keys with control
// characters and keys longer than MaxKeyLength.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return NewInvalidKeyError(key, "key cannot be empty")
	}

	if len(key) > MaxKeyLength {
		return NewInvalidKeyError(key, fmt.Sprintf("key exceeds maximum length of %d characters", MaxKeyLength))
	}

	for i, r := range key {
		if unicode.IsControl(r) {
			return NewInvalidKeyError(key, fmt.Sprintf("key contains control character at position %d", i))
		}
	}

	return nil
}

// NormalizeEmail trims surrounding whitespace and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// sanitize URL-encodes an identifier so it cannot introduce separators
// of its own into the key.
func (KeyNamer) sanitize(name string) string {
	if name == "" {
		return ""
	}

	// QueryEscape writes a space as '+' and a literal '+' as %2B, so
	// spaces get their percent form to keep the mapping one-to-one.
	encoded := url.QueryEscape(name)
	encoded = strings.ReplaceAll(encoded, "+", "%20")
	// '@' is common in emails and safe in keys
	encoded = strings.ReplaceAll(encoded, "%40", "@")

	return encoded
}
