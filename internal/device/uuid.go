package device

import (
	"fmt"
	"strings"
	"unicode"
)

// sigBaseSuffix is the trailing 96 bits of the Bluetooth SIG base UUID 0000xxxx-0000-1000-8000-00805f9b34fb.
const sigBaseSuffix = "00001000800000805f9b34fb"

// CanonicalID converts an attribute identifier to the form used for every comparison in this module.
//
// It lowercases, drops whitespace, dashes, parentheses and braces, strips a 0x prefix
// and shortens Bluetooth SIG base UUIDs to their 16-bit form, so "180D", "0x180d" and
// "0000180d-0000-1000-8000-00805f9b34fb" all yield "180d".
func CanonicalID(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		switch {
		case unicode.IsSpace(r):
		case r == '-', r == '(', r == ')', r == '{', r == '}':
		default:
			b.WriteRune(unicode.ToLower(r))
		}
	}
	s := strings.TrimPrefix(b.String(), "0x")

	if len(s) == 32 && strings.HasPrefix(s, "0000") && strings.HasSuffix(s, sigBaseSuffix) {
		return s[4:8]
	}
	return s
}

// CanonicalIDs canonicalizes every identifier, dropping those that end up empty.
func CanonicalIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if c := CanonicalID(id); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// SameID reports whether two identifiers refer to the same attribute.
func SameID(a, b string) bool {
	return CanonicalID(a) == CanonicalID(b)
}

// ValidateUUID validates that UUID strings are non-empty and well-formed.
// Returns canonical UUID strings or an error.
func ValidateUUID(uuids ...string) ([]string, error) {
	if len(uuids) == 0 {
		return nil, fmt.Errorf("at least one UUID is required")
	}

	result := make([]string, 0, len(uuids))
	for i, uuid := range uuids {
		if uuid == "" {
			return nil, fmt.Errorf("UUID at index %d cannot be empty", i)
		}
		c := CanonicalID(uuid)
		if !isHexID(c) {
			return nil, fmt.Errorf("invalid UUID format at index %d: %s", i, uuid)
		}
		result = append(result, c)
	}
	return result, nil
}

func isHexID(s string) bool {
	switch len(s) {
	case 4, 8, 32:
	default:
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}
