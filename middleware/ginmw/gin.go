// Package ginmw provides Gin HTTP middleware for session authentication
// and role-gated authorization.
//
// The middleware depends only on the atrium.TokenVerifier interface, so
// handlers and tests can swap in any token backend.
package ginmw

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	atrium "github.com/atriumhq/atrium"
)

// Context keys for storing session data in gin.Context.
const (
	KeyMemberID = "atrium_member_id"
	KeyEmail    = "atrium_email"
	KeyRoles    = "atrium_roles"
	KeyClaims   = "atrium_claims"
)

// AuthOption configures Auth middleware behavior.
type AuthOption func(*authConfig)

type authConfig struct {
	excludedPaths map[string]bool
}

// WithExcludedPaths sets paths that skip authentication (e.g. health checks).
func WithExcludedPaths(paths ...string) AuthOption {
	return func(cfg *authConfig) {
		for _, p := range paths {
			cfg.excludedPaths[p] = true
		}
	}
}

// Auth returns Gin middleware that verifies bearer session tokens.
// On success, it stores the claims in the Gin context (retrievable via
// GetMemberID, GetClaims, etc.) and in the request context for
// non-Gin-aware code. Responds with 401 if the token is missing,
// expired or invalid. CORS preflight requests pass through unverified.
func Auth(verifier atrium.TokenVerifier, opts ...AuthOption) gin.HandlerFunc {
	cfg := &authConfig{excludedPaths: make(map[string]bool)}
	for _, o := range opts {
		o(cfg)
	}

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions || cfg.excludedPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		tokenStr := extractBearerToken(c.Request)
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization token"})
			return
		}

		claims, err := verifier.Verify(c.Request.Context(), tokenStr)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, atrium.ErrExpiredToken) {
				msg = "token expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		c.Set(KeyClaims, claims)
		c.Set(KeyMemberID, claims.Subject)
		c.Set(KeyEmail, claims.Email)
		c.Set(KeyRoles, claims.Roles)

		ctx := atrium.WithClaims(c.Request.Context(), claims)
		ctx = atrium.WithMemberID(ctx, claims.Subject)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// RequireRoles returns Gin middleware that admits only callers whose
// session carries at least one of the given roles. Requires Auth
// middleware to run first. Responds with 403 otherwise.
func RequireRoles(roles ...atrium.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		if !atrium.RolesIntersect(claims.Roles, roles) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
			return
		}
		c.Next()
	}
}

// RequireAdmin admits admin and super-admin sessions.
func RequireAdmin() gin.HandlerFunc {
	return RequireRoles(atrium.RoleAdmin, atrium.RoleSuperAdmin)
}

// RequireSuperAdmin admits super-admin sessions only.
func RequireSuperAdmin() gin.HandlerFunc {
	return RequireRoles(atrium.RoleSuperAdmin)
}

// Recovery returns Gin middleware that converts handler panics into a
// generic 500 response, logging the panic instead of crashing the
// process or leaking internals to the client.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("handler panicked",
					"path", c.Request.URL.Path, "method", c.Request.Method, "panic", rec)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}

// --- Context helpers ---

// GetMemberID returns the authenticated member ID from the Gin context.
func GetMemberID(c *gin.Context) string {
	v, _ := c.Get(KeyMemberID)
	s, _ := v.(string)
	return s
}

// GetEmail returns the session email from the Gin context.
func GetEmail(c *gin.Context) string {
	v, _ := c.Get(KeyEmail)
	s, _ := v.(string)
	return s
}

// GetRoles returns the session roles from the Gin context.
func GetRoles(c *gin.Context) []atrium.Role {
	v, _ := c.Get(KeyRoles)
	r, _ := v.([]atrium.Role)
	return r
}

// GetClaims returns the full session claims from the Gin context.
func GetClaims(c *gin.Context) *atrium.Claims {
	v, _ := c.Get(KeyClaims)
	cl, _ := v.(*atrium.Claims)
	return cl
}

// --- internal helpers ---

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
