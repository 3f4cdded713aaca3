// Package validation contains input gates for externally supplied identifiers.
//
// Hook payloads arrive from untrusted shell scripts. Anything that becomes a
// map key or a file name must pass through here first.
package validation

import (
	"errors"
	"fmt"
)

// MinAgentIDLength is the minimum accepted agent id length. Real agent ids
// are UUIDs or long hex tokens; anything shorter is a placeholder.
const MinAgentIDLength = 8

var (
	// ErrEmptyAgentID is returned for an empty agent id.
	ErrEmptyAgentID = errors.New("agent id is empty")
	// ErrPlaceholderAgentID is returned for literal "null"/"undefined"
	// values that leak out of broken producers.
	ErrPlaceholderAgentID = errors.New("agent id is a placeholder value")
	// ErrAllZeroAgentID is returned for ids consisting only of zeros and
	// dashes (the nil UUID and friends).
	ErrAllZeroAgentID = errors.New("agent id is all zeros")
)

// ValidateAgentID checks that id looks like a real agent identity token:
// at least MinAgentIDLength characters, hex digits and dashes only, and not
// a known placeholder. A failed check must never create registry state.
func ValidateAgentID(id string) error {
	if id == "" {
		return ErrEmptyAgentID
	}
	if id == "null" || id == "undefined" {
		return ErrPlaceholderAgentID
	}
	if len(id) < MinAgentIDLength {
		return fmt.Errorf("agent id too short: %d chars (minimum %d)", len(id), MinAgentIDLength)
	}
	allZero := true
	for _, c := range id {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F', c == '-':
		default:
			return fmt.Errorf("agent id contains invalid character %q", c)
		}
		if c != '0' && c != '-' {
			allZero = false
		}
	}
	if allZero {
		return ErrAllZeroAgentID
	}
	return nil
}
