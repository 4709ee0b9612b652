package internal

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// InputValidator checks the settings and identifiers that shape cache keys
// and cache traffic before they are used.
type InputValidator struct {
	maxIdentifierLength int
	maxTTL              time.Duration
	maxPageSize         int64
}

// NewInputValidator creates a new input validator with default settings
func NewInputValidator() *InputValidator {
	return &InputValidator{
		maxIdentifierLength: 200, // leaves room for the longest subject prefix under MaxKeyLength
		maxTTL:              365 * 24 * time.Hour,
		maxPageSize:         10000,
	}
}

// ValidateIdentifier validates an id or email that will be embedded in a key.
func (v *InputValidator) ValidateIdentifier(input, fieldName string) error {
	if strings.TrimSpace(input) == "" {
		return NewValidationError(fmt.Sprintf("%s cannot be empty", fieldName), nil)
	}

	if len(input) > v.maxIdentifierLength {
		return NewValidationError(fmt.Sprintf("%s exceeds maximum length of %d characters", fieldName, v.maxIdentifierLength), nil)
	}

	if !utf8.ValidString(input) {
		return NewValidationError(fmt.Sprintf("%s contains invalid UTF-8 characters", fieldName), nil)
	}

	for i, r := range input {
		if unicode.IsControl(r) {
			return NewValidationError(fmt.Sprintf("%s contains control character at position %d", fieldName, i), nil)
		}
	}

	return nil
}

// ValidateTTL validates time-to-live duration
func (v *InputValidator) ValidateTTL(ttl time.Duration, fieldName string, allowZero bool) error {
	if ttl < 0 {
		return NewValidationError(fmt.Sprintf("%s cannot be negative", fieldName), nil)
	}

	if !allowZero && ttl == 0 {
		return NewValidationError(fmt.Sprintf("%s cannot be zero", fieldName), nil)
	}

	if ttl > v.maxTTL {
		return NewValidationError(fmt.Sprintf("%s exceeds maximum allowed duration of %v", fieldName, v.maxTTL), nil)
	}

	return nil
}

// ValidatePageSize validates SCAN counts and DEL batch sizes.
func (v *InputValidator) ValidatePageSize(n int64, fieldName string) error {
	if n <= 0 {
		return NewValidationError(fmt.Sprintf("%s must be positive", fieldName), nil)
	}

	if n > v.maxPageSize {
		return NewValidationError(fmt.Sprintf("%s exceeds maximum of %d", fieldName, v.maxPageSize), nil)
	}

	return nil
}

// EscapeGlob escapes the SCAN MATCH metacharacters in s so it matches literally.
func EscapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
