package authn

import (
	"context"
	"strings"
	"testing"
	"time"

	atrium "github.com/atriumhq/atrium"
	"github.com/atriumhq/atrium/async"
	"github.com/atriumhq/atrium/fake"
	"github.com/atriumhq/atrium/linktoken"
	"github.com/atriumhq/atrium/members"
	"github.com/atriumhq/atrium/password"
	"github.com/atriumhq/atrium/token"
)

type fixture struct {
	svc    *Service
	repo   *members.Repository
	links  *linktoken.Store
	tokens *token.Issuer
	mailer *fake.Mailer
	runner *async.Runner
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	blob := fake.NewBlobStore()
	repo := members.NewRepository(blob)
	links := linktoken.New(blob)
	tokens, err := token.New("test-signing-secret")
	if err != nil {
		t.Fatalf("token issuer: %v", err)
	}
	mailer := fake.NewMailer()
	runner := async.NewRunner(nil)

	all := append([]Option{
		WithMailer(mailer),
		WithRunner(runner),
		WithBaseURL("https://club.example.com"),
		WithAdminEmail("board@example.com"),
	}, opts...)

	return &fixture{
		svc:    New(repo, links, tokens, all...),
		repo:   repo,
		links:  links,
		tokens: tokens,
		mailer: mailer,
		runner: runner,
	}
}

func (f *fixture) addMember(t *testing.T, m *atrium.Member) *atrium.Member {
	t.Helper()
	if err := f.repo.Put(context.Background(), m); err != nil {
		t.Fatalf("seeding member: %v", err)
	}
	return m
}

func approvedMember(id, email, pass string) *atrium.Member {
	m := &atrium.Member{
		ID:        id,
		Email:     email,
		FirstName: "Alice",
		LastName:  "Adams",
		Status:    atrium.StatusApproved,
	}
	if pass != "" {
		cred, err := password.Hash(pass)
		if err != nil {
			panic(err)
		}
		m.PasswordHash = cred.Hash
		m.PasswordAlgorithm = cred.Algorithm
		m.PasswordSalt = cred.Salt
	}
	return m
}

func TestLoginWithPassword(t *testing.T) {
	f := newFixture(t)
	f.addMember(t, approvedMember("m-1", "alice@example.com", "hunter2-long"))

	res, err := f.svc.LoginWithPassword(context.Background(), "alice@example.com", "hunter2-long")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.MemberID != "m-1" || res.Token == "" {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.IsAdmin || res.IsSuperAdmin {
		t.Errorf("plain member should not carry admin flags")
	}

	claims, err := f.tokens.Verify(context.Background(), res.Token)
	if err != nil {
		t.Fatalf("verifying issued token: %v", err)
	}
	if claims.Subject != "m-1" || !claims.HasRole(atrium.RoleMember) {
		t.Errorf("unexpected claims: %+v", claims)
	}
	if claims.IsAdmin() {
		t.Errorf("member claims should not carry admin role")
	}
}

func TestLoginWithPasswordWrongPassword(t *testing.T) {
	f := newFixture(t)
	f.addMember(t, approvedMember("m-1", "alice@example.com", "hunter2-long"))

	_, err := f.svc.LoginWithPassword(context.Background(), "alice@example.com", "wrong")
	if err != atrium.ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginWithPasswordUnknownEmail(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.LoginWithPassword(context.Background(), "nobody@example.com", "whatever")
	if err != atrium.ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginWithPasswordStatusGate(t *testing.T) {
	for _, status := range []atrium.ApplicationStatus{atrium.StatusPending, atrium.StatusRejected} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			m := approvedMember("m-1", "alice@example.com", "hunter2-long")
			m.Status = status
			f.addMember(t, m)

			_, err := f.svc.LoginWithPassword(context.Background(), "alice@example.com", "hunter2-long")
			if err != atrium.ErrInvalidCredentials {
				t.Errorf("expected ErrInvalidCredentials for %s member, got %v", status, err)
			}
		})
	}
}

func TestLoginWithPasswordNoPasswordSet(t *testing.T) {
	f := newFixture(t)
	f.addMember(t, approvedMember("m-1", "alice@example.com", ""))

	_, err := f.svc.LoginWithPassword(context.Background(), "alice@example.com", "whatever")
	if err != atrium.ErrPasswordNotSet {
		t.Errorf("expected ErrPasswordNotSet, got %v", err)
	}
}

func TestLoginWithPasswordAdminRoles(t *testing.T) {
	f := newFixture(t)
	m := approvedMember("m-1", "alice@example.com", "hunter2-long")
	m.IsAdmin = true
	f.addMember(t, m)

	res, err := f.svc.LoginWithPassword(context.Background(), "alice@example.com", "hunter2-long")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !res.IsAdmin || res.IsSuperAdmin {
		t.Errorf("unexpected flags: %+v", res)
	}

	claims, err := f.tokens.Verify(context.Background(), res.Token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !claims.IsAdmin() || claims.IsSuperAdmin() {
		t.Errorf("unexpected claims roles: %v", claims.Roles)
	}
}

func TestLoginWithPasswordSuperUserShortcut(t *testing.T) {
	f := newFixture(t, WithSuperUser("root@example.com", "top-secret-pass"))

	res, err := f.svc.LoginWithPassword(context.Background(), "root@example.com", "top-secret-pass")
	if err != nil {
		t.Fatalf("superuser login: %v", err)
	}
	if res.MemberID != SuperUserID || !res.IsSuperAdmin {
		t.Errorf("unexpected result: %+v", res)
	}

	claims, err := f.tokens.Verify(context.Background(), res.Token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !claims.IsSuperAdmin() {
		t.Errorf("superuser session missing super-admin role: %v", claims.Roles)
	}

	// Wrong superuser password must not fall through to a store hit.
	_, err = f.svc.LoginWithPassword(context.Background(), "root@example.com", "wrong")
	if err != atrium.ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginUpgradesLegacyHash(t *testing.T) {
	f := newFixture(t)
	cred, err := password.HashLegacy("hunter2-long")
	if err != nil {
		t.Fatalf("legacy hash: %v", err)
	}
	m := approvedMember("m-1", "alice@example.com", "")
	m.PasswordHash = cred.Hash
	m.PasswordAlgorithm = cred.Algorithm
	m.PasswordSalt = cred.Salt
	f.addMember(t, m)

	if _, err := f.svc.LoginWithPassword(context.Background(), "alice@example.com", "hunter2-long"); err != nil {
		t.Fatalf("login: %v", err)
	}
	f.runner.Wait()

	got, err := f.repo.Get(context.Background(), "m-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PasswordAlgorithm != atrium.AlgArgon2id {
		t.Fatalf("hash not upgraded: algorithm %q", got.PasswordAlgorithm)
	}
	if got.PasswordUpgradedAt == nil {
		t.Error("PasswordUpgradedAt not stamped")
	}

	// The upgraded credential must still verify.
	if _, err := f.svc.LoginWithPassword(context.Background(), "alice@example.com", "hunter2-long"); err != nil {
		t.Errorf("login after upgrade: %v", err)
	}
}

func TestRequestLoginLinkAndLoginWithLink(t *testing.T) {
	f := newFixture(t)
	f.addMember(t, approvedMember("m-1", "alice@example.com", ""))

	if err := f.svc.RequestLoginLink(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("request link: %v", err)
	}
	f.runner.Wait()

	sent := f.mailer.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 mail, got %d", len(sent))
	}
	if sent[0].To != "alice@example.com" {
		t.Errorf("mail went to %s", sent[0].To)
	}

	tok := extractToken(t, sent[0].HTML)
	res, err := f.svc.LoginWithLink(context.Background(), tok, "alice@example.com")
	if err != nil {
		t.Fatalf("login with link: %v", err)
	}
	if res.MemberID != "m-1" {
		t.Errorf("unexpected result: %+v", res)
	}

	// A redeemed link is spent.
	if _, err := f.svc.LoginWithLink(context.Background(), tok, "alice@example.com"); err != atrium.ErrInvalidOrExpiredLink {
		t.Errorf("expected ErrInvalidOrExpiredLink on reuse, got %v", err)
	}
}

func TestRequestLoginLinkUnknownEmailIsSilent(t *testing.T) {
	f := newFixture(t)

	if err := f.svc.RequestLoginLink(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("expected nil for unknown email, got %v", err)
	}
	f.runner.Wait()

	if len(f.mailer.Sent()) != 0 {
		t.Error("no mail should be sent for an unknown email")
	}
}

func TestLoginWithLinkFailures(t *testing.T) {
	f := newFixture(t)
	f.addMember(t, approvedMember("m-1", "alice@example.com", ""))

	// Garbage token.
	if _, err := f.svc.LoginWithLink(context.Background(), "not-a-token", "alice@example.com"); err != atrium.ErrInvalidOrExpiredLink {
		t.Errorf("expected ErrInvalidOrExpiredLink, got %v", err)
	}

	// Wrong email for a real token.
	tok, err := f.links.Issue(context.Background(), "m-1", "alice@example.com", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := f.svc.LoginWithLink(context.Background(), tok, "mallory@example.com"); err != atrium.ErrInvalidOrExpiredLink {
		t.Errorf("expected ErrInvalidOrExpiredLink, got %v", err)
	}

	// A mismatch must not consume the token.
	if _, err := f.svc.LoginWithLink(context.Background(), tok, "alice@example.com"); err != nil {
		t.Errorf("token should survive a mismatched redemption: %v", err)
	}
}

func TestLoginWithLinkUnapprovedAccount(t *testing.T) {
	f := newFixture(t)
	m := approvedMember("m-1", "alice@example.com", "")
	m.Status = atrium.StatusPending
	f.addMember(t, m)

	tok, err := f.links.Issue(context.Background(), "m-1", "alice@example.com", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := f.svc.LoginWithLink(context.Background(), tok, "alice@example.com"); err != atrium.ErrAccountNotFound {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestVerifySession(t *testing.T) {
	f := newFixture(t)
	f.addMember(t, approvedMember("m-1", "alice@example.com", "hunter2-long"))

	res, err := f.svc.LoginWithPassword(context.Background(), "alice@example.com", "hunter2-long")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	verified, err := f.svc.VerifySession(context.Background(), res.Token)
	if err != nil {
		t.Fatalf("verify session: %v", err)
	}
	if verified.MemberID != "m-1" || verified.Token != res.Token {
		t.Errorf("unexpected result: %+v", verified)
	}
}

func TestVerifySessionRejectsGoneOrDemotedMember(t *testing.T) {
	f := newFixture(t)
	f.addMember(t, approvedMember("m-1", "alice@example.com", "hunter2-long"))

	res, err := f.svc.LoginWithPassword(context.Background(), "alice@example.com", "hunter2-long")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := f.repo.Delete(context.Background(), "m-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.svc.VerifySession(context.Background(), res.Token); err != atrium.ErrUnauthorized {
		t.Errorf("expected ErrUnauthorized for deleted member, got %v", err)
	}
}

func TestVerifySessionInvalidToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.VerifySession(context.Background(), "garbage")
	if err == nil {
		t.Fatal("expected error for garbage token")
	}
}

func TestSetPassword(t *testing.T) {
	f := newFixture(t)
	f.addMember(t, approvedMember("m-1", "alice@example.com", ""))

	tok, err := f.links.Issue(context.Background(), "m-1", "alice@example.com", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	res, err := f.svc.SetPassword(context.Background(), tok, "alice@example.com", "new-password-123")
	if err != nil {
		t.Fatalf("set password: %v", err)
	}
	if res.Token == "" {
		t.Error("set-password should log the member in")
	}

	if _, err := f.svc.LoginWithPassword(context.Background(), "alice@example.com", "new-password-123"); err != nil {
		t.Errorf("login with new password: %v", err)
	}

	got, err := f.repo.Get(context.Background(), "m-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PasswordAlgorithm != atrium.AlgArgon2id || got.PasswordSetAt == nil {
		t.Errorf("credential not stored as expected: %+v", got)
	}
}

func TestSetPasswordBadToken(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.SetPassword(context.Background(), "nope", "alice@example.com", "pw"); err != atrium.ErrInvalidOrExpiredLink {
		t.Errorf("expected ErrInvalidOrExpiredLink, got %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	f.addMember(t, approvedMember("m-1", "alice@example.com", ""))

	city := "Lisbon"
	last := "Anderson"
	p, err := f.svc.UpdateProfile(context.Background(), "m-1", ProfileUpdate{City: &city, LastName: &last})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if p.City != "Lisbon" || p.LastName != "Anderson" || p.FirstName != "Alice" {
		t.Errorf("unexpected profile: %+v", p)
	}
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	f.addMember(t, approvedMember("m-1", "alice@example.com", "old-password-1"))

	if err := f.svc.ChangePassword(context.Background(), "m-1", "new-password-2"); err != nil {
		t.Fatalf("change password: %v", err)
	}

	if _, err := f.svc.LoginWithPassword(context.Background(), "alice@example.com", "old-password-1"); err != atrium.ErrInvalidCredentials {
		t.Errorf("old password should be dead, got %v", err)
	}
	if _, err := f.svc.LoginWithPassword(context.Background(), "alice@example.com", "new-password-2"); err != nil {
		t.Errorf("new password login: %v", err)
	}

	if err := f.svc.ChangePassword(context.Background(), "no-such-id", "whatever-pw"); err != atrium.ErrAccountNotFound {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestSetRolesChangesNextLoginClaims(t *testing.T) {
	f := newFixture(t)
	f.addMember(t, approvedMember("m-1", "alice@example.com", "hunter2-long"))

	if _, err := f.svc.SetRoles(context.Background(), "m-1", true, false); err != nil {
		t.Fatalf("set roles: %v", err)
	}

	res, err := f.svc.LoginWithPassword(context.Background(), "alice@example.com", "hunter2-long")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := f.tokens.Verify(context.Background(), res.Token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !claims.IsAdmin() || claims.IsSuperAdmin() {
		t.Errorf("unexpected roles after promotion: %v", claims.Roles)
	}

	if _, err := f.svc.SetRoles(context.Background(), "no-such-id", true, false); err != atrium.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestApplyAndQuickActionApprove(t *testing.T) {
	f := newFixture(t)

	p, err := f.svc.Apply(context.Background(), ApplicationRequest{
		Email:     "bob@example.com",
		FirstName: "Bob",
		LastName:  "Brown",
		City:      "Berlin",
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if p.Status != atrium.StatusPending {
		t.Errorf("new application should be pending, got %s", p.Status)
	}
	f.runner.Wait()

	sent := f.mailer.Sent()
	if len(sent) != 1 || sent[0].To != "board@example.com" {
		t.Fatalf("expected one admin notification, got %+v", sent)
	}
	// The mailed links carry the application id and capability token as
	// query parameters under their wire names.
	if !strings.Contains(sent[0].HTML, "applicationId="+p.ID) {
		t.Errorf("notification mail missing applicationId link: %s", sent[0].HTML)
	}
	if !strings.Contains(sent[0].HTML, "actionToken=") {
		t.Errorf("notification mail missing actionToken link: %s", sent[0].HTML)
	}

	m, err := f.repo.Get(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if m.ApproveToken == "" || m.RejectToken == "" || m.ApproveToken == m.RejectToken {
		t.Fatalf("capability tokens not minted: %+v", m)
	}
	if len(m.ApproveToken) != actionTokenBytes*2 {
		t.Errorf("unexpected token length %d", len(m.ApproveToken))
	}

	got, err := f.svc.QuickAction(context.Background(), m.ID, atrium.ActionApprove, m.ApproveToken)
	if err != nil {
		t.Fatalf("quick action: %v", err)
	}
	if got.Status != atrium.StatusApproved {
		t.Errorf("expected approved, got %s", got.Status)
	}

	// Replayed link: the application is no longer pending.
	if _, err := f.svc.QuickAction(context.Background(), m.ID, atrium.ActionApprove, m.ApproveToken); err != ErrAlreadyReviewed {
		t.Errorf("expected ErrAlreadyReviewed on replay, got %v", err)
	}
}

func TestApplyDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	f.addMember(t, approvedMember("m-1", "alice@example.com", ""))

	_, err := f.svc.Apply(context.Background(), ApplicationRequest{Email: "Alice@Example.com"})
	if err != ErrAlreadyApplied {
		t.Errorf("expected ErrAlreadyApplied, got %v", err)
	}
}

func TestQuickActionTokenChecks(t *testing.T) {
	f := newFixture(t)
	p, err := f.svc.Apply(context.Background(), ApplicationRequest{Email: "bob@example.com", FirstName: "Bob"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	m, err := f.repo.Get(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	tests := []struct {
		name   string
		id     string
		action atrium.QuickAction
		token  string
	}{
		{"wrong token", m.ID, atrium.ActionApprove, "bogus"},
		{"reject token on approve action", m.ID, atrium.ActionApprove, m.RejectToken},
		{"unknown application", "no-such-id", atrium.ActionApprove, m.ApproveToken},
		{"unknown action", m.ID, atrium.QuickAction("promote"), m.ApproveToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.QuickAction(context.Background(), tt.id, tt.action, tt.token); err != ErrInvalidActionToken {
				t.Errorf("expected ErrInvalidActionToken, got %v", err)
			}
		})
	}

	// The application must still be pending after all refused attempts.
	got, err := f.repo.Get(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != atrium.StatusPending {
		t.Errorf("refused quick actions must not transition status, got %s", got.Status)
	}
}

func TestApproveSendsWelcomeLink(t *testing.T) {
	f := newFixture(t)
	p, err := f.svc.Apply(context.Background(), ApplicationRequest{Email: "bob@example.com", FirstName: "Bob"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if _, err := f.svc.Approve(context.Background(), p.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	f.runner.Wait()

	var welcome *fake.SentMail
	for _, mail := range f.mailer.Sent() {
		if mail.To == "bob@example.com" {
			m := mail
			welcome = &m
		}
	}
	if welcome == nil {
		t.Fatal("approved member got no welcome mail")
	}

	// The welcome link must work for first login.
	tok := extractToken(t, welcome.HTML)
	if _, err := f.svc.LoginWithLink(context.Background(), tok, "bob@example.com"); err != nil {
		t.Errorf("welcome link login: %v", err)
	}
}

func TestAdminReviewReject(t *testing.T) {
	f := newFixture(t)
	p, err := f.svc.Apply(context.Background(), ApplicationRequest{Email: "bob@example.com"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	got, err := f.svc.Reject(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got.Status != atrium.StatusRejected {
		t.Errorf("expected rejected, got %s", got.Status)
	}

	if _, err := f.svc.Approve(context.Background(), p.ID); err != ErrAlreadyReviewed {
		t.Errorf("expected ErrAlreadyReviewed, got %v", err)
	}
	if _, err := f.svc.Reject(context.Background(), "no-such-id"); err != atrium.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestApplications(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Apply(context.Background(), ApplicationRequest{Email: "bob@example.com"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	f.addMember(t, approvedMember("m-1", "alice@example.com", ""))

	apps, err := f.svc.Applications(context.Background())
	if err != nil {
		t.Fatalf("applications: %v", err)
	}
	if len(apps) != 1 || apps[0].Email != "bob@example.com" {
		t.Errorf("unexpected applications: %+v", apps)
	}
}

func TestDeleteMember(t *testing.T) {
	f := newFixture(t)
	f.addMember(t, approvedMember("m-1", "alice@example.com", ""))

	if err := f.svc.DeleteMember(context.Background(), "m-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.repo.Get(context.Background(), "m-1"); err != atrium.ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := f.svc.DeleteMember(context.Background(), "m-1"); err != atrium.ErrNotFound {
		t.Errorf("expected ErrNotFound for second delete, got %v", err)
	}
}

// extractToken pulls the token query parameter out of a mailed link.
func extractToken(t *testing.T, html string) string {
	t.Helper()
	idx := strings.Index(html, "token=")
	if idx < 0 {
		t.Fatalf("no token in mail: %s", html)
	}
	rest := html[idx+len("token="):]
	if end := strings.IndexAny(rest, `&"`); end >= 0 {
		rest = rest[:end]
	}
	return rest
}
