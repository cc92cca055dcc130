package util

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize applies NFKD normalization. Passwords are normalized before
// hashing so that visually identical input composed differently by two
// keyboards verifies identically.
func Normalize(s string) string {
	return norm.NFKD.String(s)
}

// CanonicalEmail normalizes an email address for lookup: NFKD, trimmed,
// lowercased. The stored address keeps this canonical form.
func CanonicalEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKD.String(s)))
}
