// Package livestate turns a broadcaster's public page into live status,
// identifiers and stream endpoints. Every lookup tolerates missing or
// malformed data: absence degrades to "not found", never to an error.
package livestate

import "strings"

// Normalize canonicalises an account handle: surrounding whitespace and a
// leading "@" are removed and the result is lower-cased. Cache keys, file
// names and log keys are always built from the normalized form.
func Normalize(account string) string {
	a := strings.TrimSpace(account)
	a = strings.TrimLeft(a, "@")
	return strings.ToLower(strings.TrimSpace(a))
}

// ValidHandle reports whether a normalized handle is safe to use as a key
// and as a file name: only [a-z0-9._], not empty and not made of dots alone.
func ValidHandle(handle string) bool {
	if strings.Trim(handle, ".") == "" {
		return false
	}
	for _, r := range handle {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_':
		default:
			return false
		}
	}
	return true
}

// ParseHandle normalizes account and reports whether the result is a valid
// handle.
func ParseHandle(account string) (string, bool) {
	h := Normalize(account)
	return h, ValidHandle(h)
}
