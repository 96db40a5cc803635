package atrium

import "context"

// BlobStore is the durable key-value substrate every collection is built
// on. Values are opaque JSON documents; List enumerates keys by prefix.
// There are no transactions and no conditional writes: callers must
// treat each per-key write as independently last-writer-wins.
// Implementations: redisblob/ (production), fake/ (testing).
type BlobStore interface {
	// Get returns the value stored under key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns all keys beginning with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Mailer delivers a rendered email. Delivery is always best-effort from
// the caller's point of view: a failed send must never fail the
// operation that requested it.
// Implementations: mailer/ (HTTP API and logging no-op), fake/ (testing).
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

// TokenVerifier validates a bearer session token and extracts its claims.
// Implementations: token/ (HS256 JWT).
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}
