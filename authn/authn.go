// Package authn implements the authentication and application-review
// flows: password login, magic-link login, session verification,
// password management, application submission and the emailed
// quick-action review links.
//
// Every failure a caller can observe is one of the generic sentinels in
// the root package; the precise cause is logged and counted server-side
// only.
package authn

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	atrium "github.com/atriumhq/atrium"
	"github.com/atriumhq/atrium/async"
	"github.com/atriumhq/atrium/audit"
	"github.com/atriumhq/atrium/linktoken"
	"github.com/atriumhq/atrium/members"
	"github.com/atriumhq/atrium/metrics"
	"github.com/atriumhq/atrium/password"
	"github.com/atriumhq/atrium/secrets"
	"github.com/atriumhq/atrium/token"
)

// SuperUserID is the synthetic subject carried by sessions minted
// through the configured superuser credentials. No member record exists
// under this ID.
const SuperUserID = "superuser"

// Review and application failures specific to this package.
var (
	// ErrAlreadyApplied means an application or account already exists
	// for the submitted email.
	ErrAlreadyApplied = errors.New("an application for this email already exists")

	// ErrInvalidActionToken means the quick-action capability token did
	// not match the stored one for the requested action.
	ErrInvalidActionToken = errors.New("invalid action token")

	// ErrAlreadyReviewed means the application left the pending state
	// before this quick action arrived. Replayed links land here.
	ErrAlreadyReviewed = errors.New("application has already been reviewed")
)

const actionTokenBytes = 32

// Service wires the authentication flows together.
type Service struct {
	members *members.Repository
	links   *linktoken.Store
	tokens  *token.Issuer

	mailer  atrium.Mailer
	metrics *metrics.Metrics
	audit   *audit.Logger
	runner  *async.Runner
	logger  *slog.Logger

	superEmail    string
	superPassword string

	baseURL    string
	adminEmail string
	linkTTL    time.Duration
	now        func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithSuperUser enables the configured-credential shortcut. Empty email
// disables it.
func WithSuperUser(email, pass string) Option {
	return func(s *Service) {
		s.superEmail = email
		s.superPassword = pass
	}
}

// WithMailer sets the outbound mailer. Without one, flows that send
// mail log and continue.
func WithMailer(m atrium.Mailer) Option {
	return func(s *Service) { s.mailer = m }
}

// WithMetrics sets the metrics sink. Default: no-op.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAudit sets the audit logger. Default: events are dropped.
func WithAudit(a *audit.Logger) Option {
	return func(s *Service) { s.audit = a }
}

// WithRunner sets the background-task runner.
func WithRunner(r *async.Runner) Option {
	return func(s *Service) { s.runner = r }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBaseURL sets the public URL used when building links in outbound
// mail.
func WithBaseURL(u string) Option {
	return func(s *Service) { s.baseURL = u }
}

// WithAdminEmail sets the address that receives application
// notifications.
func WithAdminEmail(email string) Option {
	return func(s *Service) { s.adminEmail = email }
}

// WithLinkTTL sets the magic-link lifetime. Default: 30 minutes.
func WithLinkTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.linkTTL = d
		}
	}
}

// WithClock sets the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates the Service over its three required collaborators.
func New(repo *members.Repository, links *linktoken.Store, tokens *token.Issuer, opts ...Option) *Service {
	s := &Service{
		members: repo,
		links:   links,
		tokens:  tokens,
		metrics: metrics.New(false),
		logger:  slog.Default(),
		linkTTL: linktoken.DefaultTTL,
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.runner == nil {
		s.runner = async.NewRunner(s.logger)
	}
	return s
}

// LoginWithPassword authenticates an email/password pair. The
// configured superuser credentials are checked first, in constant time,
// before any store access. Only approved members with stored
// credentials can log in; every other outcome is the one generic
// ErrInvalidCredentials except the explicit no-password hint.
func (s *Service) LoginWithPassword(ctx context.Context, email, pass string) (*atrium.LoginResult, error) {
	if s.superEmail != "" && secrets.VerifyAdminCredentials(email, pass, s.superEmail, s.superPassword) {
		res, err := s.superUserResult()
		if err != nil {
			return nil, err
		}
		s.metrics.RecordLogin("superuser")
		s.auditLog(audit.Event{Email: s.superEmail, Action: "login", Result: "success", Detail: "superuser"})
		return res, nil
	}

	m, err := s.members.FindApprovedByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, atrium.ErrNotFound) {
			s.metrics.RecordAuthFailure("password", "unknown_or_unapproved")
			s.auditLog(audit.Event{Email: email, Action: "login", Result: "failure", Detail: "unknown or unapproved account"})
			return nil, atrium.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("atrium/authn: looking up member: %w", err)
	}

	if !m.HasCredentials() {
		s.metrics.RecordAuthFailure("password", "password_not_set")
		s.auditLog(audit.Event{MemberID: m.ID, Email: m.Email, Action: "login", Result: "failure", Detail: "no password set"})
		return nil, atrium.ErrPasswordNotSet
	}

	if !password.Verify(pass, m.PasswordHash, m.PasswordSalt, m.PasswordAlgorithm) {
		s.metrics.RecordAuthFailure("password", "invalid_credentials")
		s.auditLog(audit.Event{MemberID: m.ID, Email: m.Email, Action: "login", Result: "failure", Detail: "wrong password"})
		return nil, atrium.ErrInvalidCredentials
	}

	if password.NeedsUpgrade(m.PasswordAlgorithm) {
		s.scheduleHashUpgrade(m.ID, pass)
	}

	s.metrics.RecordLogin("password")
	s.auditLog(audit.Event{MemberID: m.ID, Email: m.Email, Action: "login", Result: "success"})
	return s.loginResult(m)
}

// LoginWithLink redeems a magic-link token for a session. All
// redemption failures collapse to ErrInvalidOrExpiredLink; a redeemed
// token pointing at a missing or unapproved record is
// ErrAccountNotFound.
func (s *Service) LoginWithLink(ctx context.Context, tok, email string) (*atrium.LoginResult, error) {
	rec, err := s.links.Redeem(ctx, tok, email)
	if err != nil {
		switch {
		case errors.Is(err, linktoken.ErrNotFound),
			errors.Is(err, linktoken.ErrExpired),
			errors.Is(err, linktoken.ErrAlreadyUsed),
			errors.Is(err, linktoken.ErrSubjectMismatch):
			s.metrics.RecordAuthFailure("link", redemptionReason(err))
			s.auditLog(audit.Event{Email: email, Action: "login", Result: "failure", Detail: err.Error()})
			return nil, atrium.ErrInvalidOrExpiredLink
		}
		return nil, fmt.Errorf("atrium/authn: redeeming link: %w", err)
	}

	m, err := s.members.Get(ctx, rec.MemberID)
	if err != nil {
		if errors.Is(err, atrium.ErrNotFound) {
			s.metrics.RecordAuthFailure("link", "account_missing")
			return nil, atrium.ErrAccountNotFound
		}
		return nil, fmt.Errorf("atrium/authn: looking up member: %w", err)
	}
	if m.Status != atrium.StatusApproved {
		s.metrics.RecordAuthFailure("link", "not_approved")
		s.auditLog(audit.Event{MemberID: m.ID, Email: m.Email, Action: "login", Result: "failure", Detail: "account not approved"})
		return nil, atrium.ErrAccountNotFound
	}

	s.metrics.RecordLogin("link")
	s.auditLog(audit.Event{MemberID: m.ID, Email: m.Email, Action: "login", Result: "success", Detail: "magic link"})
	return s.loginResult(m)
}

// RequestLoginLink mints a magic link for the account and mails it.
// The caller always gets the same nil result whether or not the email
// maps to an approved account, so the endpoint cannot be used to probe
// for membership.
func (s *Service) RequestLoginLink(ctx context.Context, email string) error {
	m, err := s.members.FindApprovedByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, atrium.ErrNotFound) {
			s.logger.Info("login link requested for unknown or unapproved email")
			s.auditLog(audit.Event{Email: email, Action: "link_requested", Result: "denied", Detail: "unknown or unapproved account"})
			return nil
		}
		return fmt.Errorf("atrium/authn: looking up member: %w", err)
	}

	tok, err := s.links.Issue(ctx, m.ID, m.Email, s.linkTTL)
	if err != nil {
		return fmt.Errorf("atrium/authn: issuing link: %w", err)
	}
	s.metrics.RecordLinkIssued()
	s.auditLog(audit.Event{MemberID: m.ID, Email: m.Email, Action: "link_requested", Result: "success"})

	s.sendMail(m.Email, "Your login link",
		fmt.Sprintf(`<p>Hello %s,</p><p><a href="%s">Click here to log in</a>. The link is valid for %d minutes and can be used once.</p>`,
			m.FirstName, s.loginLinkURL(tok, m.Email), int(s.linkTTL.Minutes())))
	return nil
}

// VerifySession validates a bearer token and returns the same result
// shape as a login, with the member's current profile. A session whose
// member record has since disappeared or lost approval is rejected.
func (s *Service) VerifySession(ctx context.Context, tokenString string) (*atrium.LoginResult, error) {
	claims, err := s.tokens.Verify(ctx, tokenString)
	if err != nil {
		return nil, err
	}

	if claims.Subject == SuperUserID {
		res, err := s.superUserResult()
		if err != nil {
			return nil, err
		}
		res.Token = tokenString
		return res, nil
	}

	m, err := s.members.Get(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, atrium.ErrNotFound) {
			return nil, atrium.ErrUnauthorized
		}
		return nil, fmt.Errorf("atrium/authn: looking up member: %w", err)
	}
	if m.Status != atrium.StatusApproved {
		return nil, atrium.ErrUnauthorized
	}

	res := resultFor(m, tokenString)
	return res, nil
}

// SetPassword redeems a link token as authorization and stores a fresh
// Argon2id credential, then logs the member in. Any redemption failure
// is the one generic link error.
func (s *Service) SetPassword(ctx context.Context, tok, email, newPassword string) (*atrium.LoginResult, error) {
	rec, err := s.links.Redeem(ctx, tok, email)
	if err != nil {
		switch {
		case errors.Is(err, linktoken.ErrNotFound),
			errors.Is(err, linktoken.ErrExpired),
			errors.Is(err, linktoken.ErrAlreadyUsed),
			errors.Is(err, linktoken.ErrSubjectMismatch):
			s.metrics.RecordAuthFailure("set_password", redemptionReason(err))
			return nil, atrium.ErrInvalidOrExpiredLink
		}
		return nil, fmt.Errorf("atrium/authn: redeeming link: %w", err)
	}

	m, err := s.members.Get(ctx, rec.MemberID)
	if err != nil {
		if errors.Is(err, atrium.ErrNotFound) {
			return nil, atrium.ErrAccountNotFound
		}
		return nil, fmt.Errorf("atrium/authn: looking up member: %w", err)
	}
	if m.Status != atrium.StatusApproved {
		return nil, atrium.ErrAccountNotFound
	}

	cred, err := password.Hash(newPassword)
	if err != nil {
		return nil, fmt.Errorf("atrium/authn: hashing password: %w", err)
	}
	now := s.now().UTC()
	m.PasswordHash = cred.Hash
	m.PasswordAlgorithm = cred.Algorithm
	m.PasswordSalt = cred.Salt
	m.PasswordSetAt = &now

	if err := s.members.Put(ctx, m); err != nil {
		return nil, fmt.Errorf("atrium/authn: storing credential: %w", err)
	}

	s.auditLog(audit.Event{MemberID: m.ID, Email: m.Email, Action: "password_set", Result: "success"})
	return s.loginResult(m)
}

// ChangePassword stores a fresh credential for an authenticated member.
// Unlike SetPassword there is no link token; the session is the
// authorization.
func (s *Service) ChangePassword(ctx context.Context, memberID, newPassword string) error {
	m, err := s.members.Get(ctx, memberID)
	if err != nil {
		if errors.Is(err, atrium.ErrNotFound) {
			return atrium.ErrAccountNotFound
		}
		return fmt.Errorf("atrium/authn: looking up member: %w", err)
	}

	cred, err := password.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("atrium/authn: hashing password: %w", err)
	}
	now := s.now().UTC()
	m.PasswordHash = cred.Hash
	m.PasswordAlgorithm = cred.Algorithm
	m.PasswordSalt = cred.Salt
	m.PasswordSetAt = &now

	if err := s.members.Put(ctx, m); err != nil {
		return fmt.Errorf("atrium/authn: storing credential: %w", err)
	}
	s.auditLog(audit.Event{MemberID: m.ID, Email: m.Email, Action: "password_set", Result: "success"})
	return nil
}

// SetRoles assigns the admin tiers on a member record. Effective on the
// member's next login; outstanding sessions keep their old claims until
// they expire.
func (s *Service) SetRoles(ctx context.Context, memberID string, isAdmin, isSuperAdmin bool) (*atrium.MemberProfile, error) {
	m, err := s.members.Get(ctx, memberID)
	if err != nil {
		return nil, err
	}

	m.IsAdmin = isAdmin
	m.IsSuperAdmin = isSuperAdmin
	if err := s.members.Put(ctx, m); err != nil {
		return nil, fmt.Errorf("atrium/authn: storing roles: %w", err)
	}

	s.auditLog(audit.Event{MemberID: m.ID, Email: m.Email, Action: "roles_set", Result: "success",
		Detail: fmt.Sprintf("admin=%t super-admin=%t", isAdmin, isSuperAdmin)})
	p := m.Profile()
	return &p, nil
}

// ProfileUpdate carries the mutable profile fields. Nil fields are left
// untouched.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	City      *string
}

// UpdateProfile applies the update to the member's own record.
func (s *Service) UpdateProfile(ctx context.Context, memberID string, upd ProfileUpdate) (*atrium.MemberProfile, error) {
	m, err := s.members.Get(ctx, memberID)
	if err != nil {
		if errors.Is(err, atrium.ErrNotFound) {
			return nil, atrium.ErrAccountNotFound
		}
		return nil, fmt.Errorf("atrium/authn: looking up member: %w", err)
	}

	if upd.FirstName != nil {
		m.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		m.LastName = *upd.LastName
	}
	if upd.City != nil {
		m.City = *upd.City
	}

	if err := s.members.Put(ctx, m); err != nil {
		return nil, fmt.Errorf("atrium/authn: storing profile: %w", err)
	}
	p := m.Profile()
	return &p, nil
}

// ApplicationRequest is a membership application submission.
type ApplicationRequest struct {
	Email     string
	FirstName string
	LastName  string
	City      string
}

// Apply creates a pending member record with freshly minted
// quick-action capability tokens and notifies the admin address.
func (s *Service) Apply(ctx context.Context, req ApplicationRequest) (*atrium.MemberProfile, error) {
	if _, err := s.members.FindByEmail(ctx, req.Email); err == nil {
		return nil, ErrAlreadyApplied
	} else if !errors.Is(err, atrium.ErrNotFound) {
		return nil, fmt.Errorf("atrium/authn: checking existing application: %w", err)
	}

	approveTok, err := newCapabilityToken()
	if err != nil {
		return nil, err
	}
	rejectTok, err := newCapabilityToken()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	m := &atrium.Member{
		ID:           uuid.NewString(),
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		City:         req.City,
		Status:       atrium.StatusPending,
		ApproveToken: approveTok,
		RejectToken:  rejectTok,
		SubmittedAt:  now,
	}
	if err := s.members.Put(ctx, m); err != nil {
		return nil, fmt.Errorf("atrium/authn: storing application: %w", err)
	}

	s.auditLog(audit.Event{MemberID: m.ID, Email: m.Email, Action: "applied", Result: "success"})

	if s.adminEmail != "" {
		s.sendMail(s.adminEmail, fmt.Sprintf("New membership application: %s", m.FullName()),
			fmt.Sprintf(`<p>%s (%s, %s) applied for membership.</p><p><a href="%s">Approve</a> | <a href="%s">Reject</a></p>`,
				m.FullName(), m.Email, m.City,
				s.quickActionURL(m.ID, atrium.ActionApprove, approveTok),
				s.quickActionURL(m.ID, atrium.ActionReject, rejectTok)))
	}

	p := m.Profile()
	return &p, nil
}

// QuickAction executes an emailed approve/reject link. The capability
// token is compared in constant time against the stored token for the
// requested action; an application that already left the pending state
// refuses the action, which is what makes a replayed link harmless.
func (s *Service) QuickAction(ctx context.Context, applicationID string, action atrium.QuickAction, actionToken string) (*atrium.MemberProfile, error) {
	m, err := s.members.Get(ctx, applicationID)
	if err != nil {
		if errors.Is(err, atrium.ErrNotFound) {
			s.metrics.RecordQuickAction(string(action), "denied")
			return nil, ErrInvalidActionToken
		}
		return nil, fmt.Errorf("atrium/authn: looking up application: %w", err)
	}

	var want string
	switch action {
	case atrium.ActionApprove:
		want = m.ApproveToken
	case atrium.ActionReject:
		want = m.RejectToken
	default:
		s.metrics.RecordQuickAction(string(action), "denied")
		return nil, ErrInvalidActionToken
	}

	if want == "" || !secrets.Equal(actionToken, want) {
		s.metrics.RecordQuickAction(string(action), "denied")
		s.auditLog(audit.Event{MemberID: m.ID, Email: m.Email, Action: "quick_action", Result: "denied", Detail: string(action)})
		return nil, ErrInvalidActionToken
	}

	if m.Status != atrium.StatusPending {
		s.metrics.RecordQuickAction(string(action), "replayed")
		s.auditLog(audit.Event{MemberID: m.ID, Email: m.Email, Action: "quick_action", Result: "denied", Detail: "already reviewed"})
		return nil, ErrAlreadyReviewed
	}

	profile, err := s.review(ctx, m, action)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordQuickAction(string(action), string(m.Status))
	s.auditLog(audit.Event{MemberID: m.ID, Email: m.Email, Action: "quick_action", Result: "success", Detail: string(action)})
	return profile, nil
}

// Approve transitions a pending application to approved. Used by the
// authenticated admin review endpoints.
func (s *Service) Approve(ctx context.Context, applicationID string) (*atrium.MemberProfile, error) {
	return s.adminReview(ctx, applicationID, atrium.ActionApprove)
}

// Reject transitions a pending application to rejected.
func (s *Service) Reject(ctx context.Context, applicationID string) (*atrium.MemberProfile, error) {
	return s.adminReview(ctx, applicationID, atrium.ActionReject)
}

func (s *Service) adminReview(ctx context.Context, applicationID string, action atrium.QuickAction) (*atrium.MemberProfile, error) {
	m, err := s.members.Get(ctx, applicationID)
	if err != nil {
		if errors.Is(err, atrium.ErrNotFound) {
			return nil, atrium.ErrNotFound
		}
		return nil, fmt.Errorf("atrium/authn: looking up application: %w", err)
	}
	if m.Status != atrium.StatusPending {
		return nil, ErrAlreadyReviewed
	}

	profile, err := s.review(ctx, m, action)
	if err != nil {
		return nil, err
	}
	s.auditLog(audit.Event{MemberID: m.ID, Email: m.Email, Action: "review", Result: "success", Detail: string(action)})
	return profile, nil
}

// review applies the status transition and persists it. Shared by the
// quick-action flow and the authenticated admin review.
func (s *Service) review(ctx context.Context, m *atrium.Member, action atrium.QuickAction) (*atrium.MemberProfile, error) {
	now := s.now().UTC()
	switch action {
	case atrium.ActionApprove:
		m.Status = atrium.StatusApproved
	case atrium.ActionReject:
		m.Status = atrium.StatusRejected
	default:
		return nil, ErrInvalidActionToken
	}
	m.ReviewedAt = &now

	if err := s.members.Put(ctx, m); err != nil {
		return nil, fmt.Errorf("atrium/authn: storing review: %w", err)
	}

	if action == atrium.ActionApprove {
		s.sendWelcome(ctx, m)
	}

	p := m.Profile()
	return &p, nil
}

// sendWelcome mails the approved member a link token for setting their
// password and logging in for the first time.
func (s *Service) sendWelcome(ctx context.Context, m *atrium.Member) {
	if s.mailer == nil {
		return
	}
	tok, err := s.links.Issue(ctx, m.ID, m.Email, s.linkTTL)
	if err != nil {
		s.logger.Warn("issuing welcome link failed", "member_id", m.ID, "error", err)
		return
	}
	s.metrics.RecordLinkIssued()
	s.sendMail(m.Email, "Welcome to the club",
		fmt.Sprintf(`<p>Hello %s,</p><p>Your application has been approved. <a href="%s">Set your password</a> to get started.</p>`,
			m.FirstName, s.loginLinkURL(tok, m.Email)))
}

// Applications lists pending applications, newest first.
func (s *Service) Applications(ctx context.Context) ([]atrium.MemberProfile, error) {
	pending, err := s.members.ListByStatus(ctx, atrium.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("atrium/authn: listing applications: %w", err)
	}
	out := make([]atrium.MemberProfile, len(pending))
	for i := range pending {
		out[i] = pending[i].Profile()
	}
	return out, nil
}

// DeleteMember removes a member record entirely.
func (s *Service) DeleteMember(ctx context.Context, id string) error {
	if _, err := s.members.Get(ctx, id); err != nil {
		return err
	}
	if err := s.members.Delete(ctx, id); err != nil {
		return fmt.Errorf("atrium/authn: deleting member: %w", err)
	}
	s.auditLog(audit.Event{MemberID: id, Action: "member_deleted", Result: "success"})
	return nil
}

// --- internals ---

// scheduleHashUpgrade re-hashes a legacy credential with the current
// scheme in the background. Best effort: the login that triggered it
// has already succeeded, so failures are counted and logged, never
// surfaced.
func (s *Service) scheduleHashUpgrade(memberID, pass string) {
	s.runner.Go("hash upgrade", func(ctx context.Context) error {
		backoff := retry.WithMaxRetries(3, retry.NewExponential(100*time.Millisecond))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			m, err := s.members.Get(ctx, memberID)
			if err != nil {
				return retry.RetryableError(err)
			}
			if !password.NeedsUpgrade(m.PasswordAlgorithm) {
				return nil
			}
			cred, err := password.Hash(pass)
			if err != nil {
				return err
			}
			now := s.now().UTC()
			m.PasswordHash = cred.Hash
			m.PasswordAlgorithm = cred.Algorithm
			m.PasswordSalt = cred.Salt
			m.PasswordUpgradedAt = &now
			if err := s.members.Put(ctx, m); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			s.metrics.RecordHashUpgrade("failed")
			return fmt.Errorf("atrium/authn: upgrading hash for %s: %w", memberID, err)
		}
		s.metrics.RecordHashUpgrade("ok")
		return nil
	})
}

func (s *Service) loginResult(m *atrium.Member) (*atrium.LoginResult, error) {
	signed, err := s.tokens.Issue(m.ID, m.Email, m.Roles())
	if err != nil {
		return nil, err
	}
	return resultFor(m, signed), nil
}

func resultFor(m *atrium.Member, tok string) *atrium.LoginResult {
	return &atrium.LoginResult{
		Success:        true,
		Token:          tok,
		MemberID:       m.ID,
		MemberEmail:    m.Email,
		MemberFullName: m.FullName(),
		IsAdmin:        m.IsAdmin || m.IsSuperAdmin,
		IsSuperAdmin:   m.IsSuperAdmin,
		Profile:        m.Profile(),
	}
}

func (s *Service) superUserResult() (*atrium.LoginResult, error) {
	roles := []atrium.Role{atrium.RoleMember, atrium.RoleAdmin, atrium.RoleSuperAdmin}
	signed, err := s.tokens.Issue(SuperUserID, s.superEmail, roles)
	if err != nil {
		return nil, err
	}
	return &atrium.LoginResult{
		Success:        true,
		Token:          signed,
		MemberID:       SuperUserID,
		MemberEmail:    s.superEmail,
		MemberFullName: "Super Admin",
		IsAdmin:        true,
		IsSuperAdmin:   true,
		Profile: atrium.MemberProfile{
			ID:     SuperUserID,
			Email:  s.superEmail,
			Status: atrium.StatusApproved,
		},
	}, nil
}

func (s *Service) auditLog(e audit.Event) {
	if s.audit == nil {
		return
	}
	s.audit.Log(e)
}

// sendMail delivers in the background so a slow provider never holds a
// request open.
func (s *Service) sendMail(to, subject, html string) {
	if s.mailer == nil {
		s.logger.Info("no mailer configured, dropping mail", "subject", subject)
		return
	}
	s.runner.Go("send mail", func(ctx context.Context) error {
		return s.mailer.Send(ctx, to, subject, html)
	})
}

func (s *Service) loginLinkURL(tok, email string) string {
	return fmt.Sprintf("%s/login?token=%s&email=%s", s.baseURL, url.QueryEscape(tok), url.QueryEscape(email))
}

func (s *Service) quickActionURL(id string, action atrium.QuickAction, tok string) string {
	return fmt.Sprintf("%s/api/quick-action?applicationId=%s&action=%s&actionToken=%s",
		s.baseURL, url.QueryEscape(id), action, url.QueryEscape(tok))
}

func newCapabilityToken() (string, error) {
	buf := make([]byte, actionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("atrium/authn: generating capability token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func redemptionReason(err error) string {
	switch {
	case errors.Is(err, linktoken.ErrExpired):
		return "expired"
	case errors.Is(err, linktoken.ErrAlreadyUsed):
		return "already_used"
	case errors.Is(err, linktoken.ErrSubjectMismatch):
		return "subject_mismatch"
	default:
		return "not_found"
	}
}
