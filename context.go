package atrium

import "context"

type ctxKey string

const (
	ctxKeyMemberID ctxKey = "atrium_member_id"
	ctxKeyClaims   ctxKey = "atrium_claims"
)

// WithMemberID stores the authenticated member ID in the context.
func WithMemberID(ctx context.Context, memberID string) context.Context {
	return context.WithValue(ctx, ctxKeyMemberID, memberID)
}

// MemberIDFromContext extracts the authenticated member ID from the context.
func MemberIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyMemberID).(string)
	return v
}

// WithClaims stores the verified session claims in the context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ctxKeyClaims, claims)
}

// ClaimsFromContext extracts the verified session claims from the context.
func ClaimsFromContext(ctx context.Context) *Claims {
	v, _ := ctx.Value(ctxKeyClaims).(*Claims)
	return v
}
