package atrium

import "errors"

// Error taxonomy surfaced at the HTTP boundary. Authentication failures
// are deliberately generic so a caller cannot distinguish "unknown
// email" from "wrong password" or learn why a login link was refused;
// the precise cause is logged server-side only.
var (
	// ErrUnauthorized covers a missing, malformed or unverifiable bearer token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden covers a valid token with an insufficient role tier.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidCredentials covers any password-login failure.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInvalidOrExpiredLink covers every magic-link redemption failure.
	ErrInvalidOrExpiredLink = errors.New("invalid or expired login link")

	// ErrPasswordNotSet means the account exists but holds no credential
	// material; the caller should use a login link instead.
	ErrPasswordNotSet = errors.New("no password has been set for this account")

	// ErrAccountNotFound means a redeemed link pointed at a record that
	// is missing or not approved.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInvalidToken is the generic session-token verification failure.
	ErrInvalidToken = errors.New("invalid session token")

	// ErrExpiredToken is reported distinctly so clients can prompt re-login.
	ErrExpiredToken = errors.New("session token expired")

	// ErrKeyNotFound is returned by BlobStore.Get for an absent key.
	ErrKeyNotFound = errors.New("key not found")

	// ErrNotFound covers entity absence on admin-tier operations, where
	// revealing existence is acceptable.
	ErrNotFound = errors.New("not found")

	// ErrConfiguration is a fatal startup condition such as a missing
	// signing secret. It must never be surfaced with internals attached.
	ErrConfiguration = errors.New("configuration error")
)
