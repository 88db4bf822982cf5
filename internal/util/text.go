package util

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName canonicalizes a user-visible name (username, server name)
// to NFC with surrounding whitespace removed. Servers compare usernames
// byte-wise, so the same name typed on two keyboards must encode the same.
func NormalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// EqualHost reports whether two host names are the same, ignoring case
// and Unicode composition differences.
func EqualHost(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(norm.NFC.String(a), norm.NFC.String(b))
}
