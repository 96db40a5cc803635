// Package atrium defines the shared domain types, collaborator interfaces,
// and error taxonomy for the Atrium membership service.
//
// The root package is deliberately free of implementation: persistence,
// hashing, token signing and transport live in subpackages and are wired
// together by the server binary. Handlers receive everything they need
// explicitly; there is no global mutable state.
package atrium

import (
	"strings"
	"time"
)

// ApplicationStatus tracks a member application through review.
type ApplicationStatus string

const (
	StatusPending  ApplicationStatus = "pending"
	StatusApproved ApplicationStatus = "approved"
	StatusRejected ApplicationStatus = "rejected"
)

// PasswordAlgorithm identifies the hash algorithm a stored credential uses.
type PasswordAlgorithm string

const (
	// AlgPBKDF2 is the legacy scheme: hash and salt stored as separate hex strings.
	AlgPBKDF2 PasswordAlgorithm = "pbkdf2"
	// AlgArgon2id is the current scheme: salt and parameters embedded in the hash string.
	AlgArgon2id PasswordAlgorithm = "argon2id"
)

// Role is a permission tier carried in session token claims.
type Role string

const (
	RoleMember     Role = "member"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super-admin"
)

// RolesIntersect reports whether any role in have also appears in want.
// An empty want set admits any authenticated caller.
func RolesIntersect(have, want []Role) bool {
	if len(want) == 0 {
		return true
	}
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}

// Member is one person's account and application state, persisted as a
// single JSON blob under key "member:<id>".
type Member struct {
	ID        string            `json:"id"`
	Email     string            `json:"email"`
	FirstName string            `json:"firstName"`
	LastName  string            `json:"lastName"`
	City      string            `json:"city,omitempty"`
	Status    ApplicationStatus `json:"status"`

	IsAdmin      bool `json:"isAdmin,omitempty"`
	IsSuperAdmin bool `json:"isSuperAdmin,omitempty"`

	// Credential material. Salt is present only for pbkdf2; argon2id
	// embeds its salt in the hash string.
	PasswordHash      string            `json:"passwordHash,omitempty"`
	PasswordAlgorithm PasswordAlgorithm `json:"passwordAlgorithm,omitempty"`
	PasswordSalt      string            `json:"passwordSalt,omitempty"`

	// Capability tokens for the emailed quick-action review links,
	// minted once at application submission.
	ApproveToken string `json:"approveToken,omitempty"`
	RejectToken  string `json:"rejectToken,omitempty"`

	SubmittedAt        time.Time  `json:"submittedAt"`
	ReviewedAt         *time.Time `json:"reviewedAt,omitempty"`
	UpdatedAt          time.Time  `json:"updatedAt"`
	PasswordSetAt      *time.Time `json:"passwordSetAt,omitempty"`
	PasswordUpgradedAt *time.Time `json:"passwordUpgradedAt,omitempty"`
}

// FullName joins the name parts, tolerating either being empty.
func (m *Member) FullName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

// Roles returns the member's permission tiers. Every member holds
// RoleMember; the admin tiers are additive.
func (m *Member) Roles() []Role {
	roles := []Role{RoleMember}
	if m.IsAdmin {
		roles = append(roles, RoleAdmin)
	}
	if m.IsSuperAdmin {
		roles = append(roles, RoleSuperAdmin)
	}
	return roles
}

// HasCredentials reports whether any password material is stored.
func (m *Member) HasCredentials() bool {
	return m.PasswordHash != ""
}

// Profile returns the subset of the record that is safe to hand back to
// the member. Credential and capability material never leave the server.
func (m *Member) Profile() MemberProfile {
	return MemberProfile{
		ID:        m.ID,
		Email:     m.Email,
		FirstName: m.FirstName,
		LastName:  m.LastName,
		City:      m.City,
		Status:    m.Status,
	}
}

// MemberProfile is the client-visible projection of a Member.
type MemberProfile struct {
	ID        string            `json:"id"`
	Email     string            `json:"email"`
	FirstName string            `json:"firstName"`
	LastName  string            `json:"lastName"`
	City      string            `json:"city,omitempty"`
	Status    ApplicationStatus `json:"status"`
}

// Claims are the verified contents of a session token.
type Claims struct {
	Subject   string
	Email     string
	Roles     []Role
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HasRole reports whether the claims carry the given role.
func (c *Claims) HasRole(role Role) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the claims carry the admin tier.
func (c *Claims) IsAdmin() bool { return c.HasRole(RoleAdmin) }

// IsSuperAdmin reports whether the claims carry the super-admin tier.
func (c *Claims) IsSuperAdmin() bool { return c.HasRole(RoleSuperAdmin) }

// LoginResult is the response shape shared by the login and
// verify-session flows.
type LoginResult struct {
	Success        bool          `json:"success"`
	Token          string        `json:"token"`
	MemberID       string        `json:"memberId"`
	MemberEmail    string        `json:"memberEmail"`
	MemberFullName string        `json:"memberFullName"`
	IsAdmin        bool          `json:"isAdmin"`
	IsSuperAdmin   bool          `json:"isSuperAdmin"`
	Profile        MemberProfile `json:"memberProfile"`
}

// QuickAction names the state transition an emailed capability link requests.
type QuickAction string

const (
	ActionApprove QuickAction = "approve"
	ActionReject  QuickAction = "reject"
)

// Event is a club event members can sign up for, persisted under "event:<id>".
type Event struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	City        string    `json:"city,omitempty"`
	VenueID     string    `json:"venueId,omitempty"`
	StartsAt    time.Time `json:"startsAt"`
	Capacity    int       `json:"capacity,omitempty"`
	AttendeeIDs []string  `json:"attendeeIds,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Venue is a hosting location, persisted under "venue:<id>".
type Venue struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	City      string    `json:"city,omitempty"`
	Address   string    `json:"address,omitempty"`
	Capacity  int       `json:"capacity,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}
