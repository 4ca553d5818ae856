package identifier

import (
	"errors"
	"regexp"
)

var (
	ErrWrongLength = errors.New("verification id must be exactly 24 characters")
	ErrNotHex      = errors.New("verification id must be hexadecimal")
	ErrBadPrefix   = errors.New("verification id must start with 69 or 6a")
)

var (
	queryPattern  = regexp.MustCompile(`verificationId=([a-fA-F0-9]+)`)
	pathPattern   = regexp.MustCompile(`/([a-fA-F0-9]{24,})`)
	bareHex       = regexp.MustCompile(`^[a-fA-F0-9]{24,}$`)
	hexOnly       = regexp.MustCompile(`^[a-fA-F0-9]+$`)
	validPrefix   = regexp.MustCompile(`(?i)^(69|6a)`)
	canonicalForm = regexp.MustCompile(`(?i)^(69|6a)[a-f0-9]{22}$`)
)

// Extract pulls a verification id out of free-form link text. It tries a
// verificationId query parameter first, then a 24+ character hex path
// segment, then a bare hex string. Returns "" when nothing matches.
func Extract(input string) string {
	if input == "" {
		return ""
	}
	if m := queryPattern.FindStringSubmatch(input); m != nil {
		return m[1]
	}
	if m := pathPattern.FindStringSubmatch(input); m != nil {
		return m[1]
	}
	if bareHex.MatchString(input) {
		return input
	}
	return ""
}

// Validate checks the shape of a verification id. Each violated rule has
// its own sentinel error so callers can surface a precise message.
func Validate(id string) error {
	if len(id) != 24 {
		return ErrWrongLength
	}
	if !validPrefix.MatchString(id) {
		return ErrBadPrefix
	}
	if !hexOnly.MatchString(id) {
		return ErrNotHex
	}
	if !canonicalForm.MatchString(id) {
		return ErrNotHex
	}
	return nil
}
