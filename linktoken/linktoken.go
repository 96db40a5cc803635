// Package linktoken issues and redeems one-time, time-boxed capability
// tokens: magic-link login tokens and password-reset tokens.
//
// A token is 32 bytes of cryptographic randomness, hex-encoded, and the
// encoding is itself the storage key: possession of the string is the
// capability. The backing store has no transactions, so marking a token
// used is a plain read-then-write: at-most-one redemption is best
// effort, not guaranteed, under truly concurrent redemption attempts.
package linktoken

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	atrium "github.com/atriumhq/atrium"
	"github.com/atriumhq/atrium/secrets"
)

const (
	// KeyPrefix namespaces token records in the blob store.
	KeyPrefix = "linktoken:"

	// DefaultTTL is the login-link lifetime.
	DefaultTTL = 30 * time.Minute

	tokenBytes = 32
)

// Redemption failures. The authentication service collapses all of
// these into one generic message before they reach a caller.
var (
	ErrNotFound        = errors.New("link token not found")
	ErrExpired         = errors.New("link token expired")
	ErrAlreadyUsed     = errors.New("link token already used")
	ErrSubjectMismatch = errors.New("link token subject mismatch")
)

// Record is the stored payload of one token.
type Record struct {
	MemberID  string     `json:"memberId"`
	Email     string     `json:"email"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
	Used      bool       `json:"used"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
}

// Store issues and redeems tokens against a blob store.
type Store struct {
	blob atrium.BlobStore
	now  func() time.Time
}

// Option configures the Store.
type Option func(*Store)

// WithClock sets the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store backed by blob.
func New(blob atrium.BlobStore, opts ...Option) *Store {
	s := &Store{blob: blob, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Issue mints a fresh token bound to the member and persists its record
// with the given lifetime.
func (s *Store) Issue(ctx context.Context, memberID, email string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("atrium/linktoken: generating token: %w", err)
	}
	token := hex.EncodeToString(buf)

	now := s.now()
	rec := Record{
		MemberID:  memberID,
		Email:     email,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("atrium/linktoken: encoding record: %w", err)
	}

	if err := s.blob.Set(ctx, KeyPrefix+token, data); err != nil {
		return "", fmt.Errorf("atrium/linktoken: storing record: %w", err)
	}
	return token, nil
}

// Redeem consumes a token on behalf of the claimed email. The record's
// email must match case-insensitively. On success the token is marked
// used permanently and its record returned; expired records are deleted
// on sight.
func (s *Store) Redeem(ctx context.Context, token, claimedEmail string) (*Record, error) {
	key := KeyPrefix + token

	data, err := s.blob.Get(ctx, key)
	if err != nil {
		if errors.Is(err, atrium.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("atrium/linktoken: fetching record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		// A record we cannot parse is as good as absent.
		return nil, ErrNotFound
	}

	now := s.now()
	if !now.Before(rec.ExpiresAt) {
		// Expired records have no further use; removal is best-effort.
		_ = s.blob.Delete(ctx, key)
		return nil, ErrExpired
	}
	if rec.Used {
		return nil, ErrAlreadyUsed
	}
	if !secrets.EqualEmail(rec.Email, claimedEmail) {
		return nil, ErrSubjectMismatch
	}

	rec.Used = true
	rec.UsedAt = &now
	updated, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("atrium/linktoken: encoding record: %w", err)
	}
	if err := s.blob.Set(ctx, key, updated); err != nil {
		return nil, fmt.Errorf("atrium/linktoken: marking used: %w", err)
	}
	return &rec, nil
}
