// Package secrets provides constant-time comparison of caller-supplied
// secrets against stored ones.
//
// Every component that checks a secret (passwords, capability tokens,
// the superuser override) goes through this package rather than using
// == or bytes.Equal, so that comparison time never depends on where the
// first differing byte sits or on how much of the secret matched.
package secrets

import (
	"crypto/subtle"
	"strings"
)

// Equal reports whether a and b are identical, in constant time with
// respect to their contents.
//
// The shorter input is zero-padded to the longer's length before the
// byte-wise comparison so the comparison itself cannot short-circuit,
// and the original lengths are checked separately in constant time.
// Both checks must pass: padding alone would equate "abc" with
// "abc\x00".
func Equal(a, b string) bool {
	ab := []byte(a)
	bb := []byte(b)

	n := len(ab)
	if len(bb) > n {
		n = len(bb)
	}
	pa := make([]byte, n)
	pb := make([]byte, n)
	copy(pa, ab)
	copy(pb, bb)

	sameBytes := subtle.ConstantTimeCompare(pa, pb)
	sameLen := subtle.ConstantTimeEq(int32(len(ab)), int32(len(bb)))
	return sameBytes&sameLen == 1
}

// EqualEmail compares two email addresses case-insensitively, in
// constant time. Both sides are trimmed and lower-cased before
// delegating to Equal, so "  A@X.com" matches "a@x.com".
func EqualEmail(a, b string) bool {
	return Equal(normalizeEmail(a), normalizeEmail(b))
}

// VerifyAdminCredentials checks a submitted email/password pair against
// the expected pair. Both comparisons always run, with no
// short-circuit on an email mismatch, so response timing cannot
// distinguish "wrong email" from "wrong password".
func VerifyAdminCredentials(inputEmail, inputPassword, expectedEmail, expectedPassword string) bool {
	emailOK := EqualEmail(inputEmail, expectedEmail)
	passwordOK := Equal(inputPassword, expectedPassword)
	return emailOK && passwordOK
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
