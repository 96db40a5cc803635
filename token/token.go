// Package token signs and verifies stateless session tokens.
//
// Tokens are HS256 JWTs signed with a server-held secret and bound to a
// fixed issuer and audience. Verification needs no store access, which
// keeps the per-request authorization check cheap and race-free.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	atrium "github.com/atriumhq/atrium"
)

const (
	// DefaultTTL is the session lifetime when none is configured.
	DefaultTTL = 24 * time.Hour

	defaultIssuer   = "atrium"
	defaultAudience = "atrium-members"
)

// Issuer mints and verifies session tokens.
type Issuer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// compile-time check
var _ atrium.TokenVerifier = (*Issuer)(nil)

// Option configures the Issuer.
type Option func(*Issuer)

// WithTTL sets the session token lifetime. Default: 24h.
func WithTTL(d time.Duration) Option {
	return func(i *Issuer) {
		if d > 0 {
			i.ttl = d
		}
	}
}

// WithClock sets the time source used for issue and verification.
// Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// New creates an Issuer. An empty signing secret is a fatal
// configuration error: the service must never fall back to an unsigned
// or guessable scheme.
func New(secret string, opts ...Option) (*Issuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("atrium/token: signing secret is not configured: %w", atrium.ErrConfiguration)
	}

	i := &Issuer{
		secret:   []byte(secret),
		issuer:   defaultIssuer,
		audience: defaultAudience,
		ttl:      DefaultTTL,
		now:      time.Now,
	}
	for _, o := range opts {
		o(i)
	}
	return i, nil
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

// Issue signs a session token for the given identity and role set.
func (i *Issuer) Issue(memberID, email string, roles []atrium.Role) (string, error) {
	now := i.now()
	roleNames := make([]string, len(roles))
	for n, r := range roles {
		roleNames[n] = string(r)
	}

	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   memberID,
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Email: email,
		Roles: roleNames,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("atrium/token: signing: %w", err)
	}
	return signed, nil
}

// Verify validates signature, issuer, audience and expiry. Expiry is
// reported distinctly as atrium.ErrExpiredToken so clients can prompt a
// re-login; every other failure collapses to atrium.ErrInvalidToken.
func (i *Issuer) Verify(_ context.Context, tokenString string) (*atrium.Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)

	parsed, err := parser.ParseWithClaims(tokenString, &sessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("atrium/token: %w", atrium.ErrExpiredToken)
		}
		return nil, fmt.Errorf("atrium/token: %w", atrium.ErrInvalidToken)
	}

	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("atrium/token: %w", atrium.ErrInvalidToken)
	}

	roles := make([]atrium.Role, len(claims.Roles))
	for n, r := range claims.Roles {
		roles[n] = atrium.Role(r)
	}

	out := &atrium.Claims{
		Subject: claims.Subject,
		Email:   claims.Email,
		Roles:   roles,
		Issuer:  claims.Issuer,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
