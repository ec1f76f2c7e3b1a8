package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/relaydocs/relaydocs/internal/oauth/domain"
	oauthrepo "github.com/relaydocs/relaydocs/internal/oauth/repository"
	"github.com/relaydocs/relaydocs/internal/oauth/scope"
	repodomain "github.com/relaydocs/relaydocs/internal/repo/domain"
	reporepo "github.com/relaydocs/relaydocs/internal/repo/repository"
	"github.com/relaydocs/relaydocs/internal/tokens"
	"github.com/relaydocs/relaydocs/pkg/db"
	"go.uber.org/zap"
)

type staticClock struct {
	now time.Time
}

func (c *staticClock) Now() time.Time { return c.now }

func (c *staticClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	svc      *Service
	clock    *staticClock
	owner    snowflake.ID
	stranger snowflake.ID
	repoID   snowflake.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dbConn, err := db.NewTest()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := dbConn.AutoMigrate(
		&repodomain.Repository{},
		&domain.Client{},
		&domain.AuthorizationCode{},
		&domain.TokenPair{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}

	repos := reporepo.New(dbConn)
	owner := node.Generate()
	stranger := node.Generate()
	repository := &repodomain.Repository{
		ID:             node.Generate(),
		OwnerID:        owner,
		Name:           "Docs",
		Slug:           "docs",
		Public:         true,
		GatewayEnabled: true,
		Tier:           repodomain.TierFree,
	}
	if err := repos.Create(context.Background(), repository); err != nil {
		t.Fatalf("failed to seed repository: %v", err)
	}

	clock := &staticClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	cfg := Config{
		CodeTTL:    10 * time.Minute,
		AccessTTL:  time.Hour,
		RefreshTTL: 30 * 24 * time.Hour,
	}
	svc := New(cfg, oauthrepo.New(dbConn), repos, node, zap.NewNop()).WithClock(clock)

	return &fixture{
		svc:      svc,
		clock:    clock,
		owner:    owner,
		stranger: stranger,
		repoID:   repository.ID,
	}
}

func (f *fixture) registerClient(t *testing.T) *RegisterClientResult {
	t.Helper()
	result, err := f.svc.RegisterClient(context.Background(), RegisterClientRequest{
		OwnerID:      f.owner,
		RepositoryID: f.repoID,
		Name:         "Assistant",
		RedirectURIs: []string{"https://x.test/cb"},
	})
	if err != nil {
		t.Fatalf("register client: %v", err)
	}
	return result
}

func (f *fixture) authorize(t *testing.T, clientID, verifier string) *AuthorizeResult {
	t.Helper()
	result, err := f.svc.Authorize(context.Background(), AuthorizeRequest{
		ClientID:            clientID,
		RedirectURI:         "https://x.test/cb",
		ResponseType:        "code",
		State:               "xyz",
		CodeChallenge:       tokens.S256Challenge(verifier),
		CodeChallengeMethod: "S256",
		UserID:              f.owner,
	})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	return result
}

func TestCodeExchangeSucceedsExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	client := f.registerClient(t)
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	auth := f.authorize(t, client.Client.ClientID, verifier)

	req := ExchangeRequest{
		GrantType:    "authorization_code",
		Code:         auth.Code,
		RedirectURI:  "https://x.test/cb",
		ClientID:     client.Client.ClientID,
		CodeVerifier: verifier,
	}
	resp, err := f.svc.Exchange(ctx, req)
	if err != nil {
		t.Fatalf("first exchange: %v", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatal("expected access and refresh tokens")
	}
	if resp.TokenType != "Bearer" {
		t.Fatalf("unexpected token type %q", resp.TokenType)
	}

	if _, err := f.svc.Exchange(ctx, req); err != domain.ErrInvalidGrant {
		t.Fatalf("expected ErrInvalidGrant on replay, got %v", err)
	}
}

func TestExchangeRejectsWrongVerifier(t *testing.T) {
	f := newFixture(t)

	client := f.registerClient(t)
	auth := f.authorize(t, client.Client.ClientID, "correct-verifier-value-0123456789")

	_, err := f.svc.Exchange(context.Background(), ExchangeRequest{
		GrantType:    "authorization_code",
		Code:         auth.Code,
		RedirectURI:  "https://x.test/cb",
		ClientID:     client.Client.ClientID,
		CodeVerifier: "wrong-verifier-value-0123456789x",
	})
	if err != domain.ErrInvalidGrant {
		t.Fatalf("expected ErrInvalidGrant, got %v", err)
	}
}

func TestExchangeRejectsExpiredCode(t *testing.T) {
	f := newFixture(t)

	client := f.registerClient(t)
	verifier := "expired-code-verifier-0123456789ab"
	auth := f.authorize(t, client.Client.ClientID, verifier)

	f.clock.Advance(11 * time.Minute)

	req := ExchangeRequest{
		GrantType:    "authorization_code",
		Code:         auth.Code,
		RedirectURI:  "https://x.test/cb",
		ClientID:     client.Client.ClientID,
		CodeVerifier: verifier,
	}
	if _, err := f.svc.Exchange(context.Background(), req); err != domain.ErrInvalidGrant {
		t.Fatalf("expected ErrInvalidGrant for expired code, got %v", err)
	}
	// Expired code is marked consumed so a retry inside a fresh window
	// cannot resurrect it.
	f.clock.Advance(-11 * time.Minute)
	if _, err := f.svc.Exchange(context.Background(), req); err != domain.ErrInvalidGrant {
		t.Fatalf("expected ErrInvalidGrant on retry, got %v", err)
	}
}

func TestRefreshRotationInvalidatesOldToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	client := f.registerClient(t)
	verifier := "rotation-check-verifier-0123456789"
	auth := f.authorize(t, client.Client.ClientID, verifier)

	first, err := f.svc.Exchange(ctx, ExchangeRequest{
		GrantType:    "authorization_code",
		Code:         auth.Code,
		RedirectURI:  "https://x.test/cb",
		ClientID:     client.Client.ClientID,
		CodeVerifier: verifier,
	})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}

	second, err := f.svc.Exchange(ctx, ExchangeRequest{
		GrantType:    "refresh_token",
		RefreshToken: first.RefreshToken,
	})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("expected refresh token to rotate")
	}
	if second.AccessToken == first.AccessToken {
		t.Fatal("expected access token to rotate")
	}

	if _, err := f.svc.Exchange(ctx, ExchangeRequest{
		GrantType:    "refresh_token",
		RefreshToken: first.RefreshToken,
	}); err != domain.ErrInvalidGrant {
		t.Fatalf("expected ErrInvalidGrant replaying old refresh token, got %v", err)
	}

	// The rotated pair stays usable.
	if _, err := f.svc.ValidateAccessToken(ctx, second.AccessToken); err != nil {
		t.Fatalf("validate rotated access token: %v", err)
	}
}

func TestRefreshRejectsExpiredToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	client := f.registerClient(t)
	verifier := "refresh-expiry-verifier-0123456789"
	auth := f.authorize(t, client.Client.ClientID, verifier)

	resp, err := f.svc.Exchange(ctx, ExchangeRequest{
		GrantType:    "authorization_code",
		Code:         auth.Code,
		RedirectURI:  "https://x.test/cb",
		ClientID:     client.Client.ClientID,
		CodeVerifier: verifier,
	})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}

	f.clock.Advance(31 * 24 * time.Hour)
	if _, err := f.svc.Exchange(ctx, ExchangeRequest{
		GrantType:    "refresh_token",
		RefreshToken: resp.RefreshToken,
	}); err != domain.ErrInvalidGrant {
		t.Fatalf("expected ErrInvalidGrant for expired refresh token, got %v", err)
	}
}

func TestRevokedClientRejectsAllOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	client := f.registerClient(t)
	verifier := "revoked-client-verifier-0123456789"
	auth := f.authorize(t, client.Client.ClientID, verifier)

	resp, err := f.svc.Exchange(ctx, ExchangeRequest{
		GrantType:    "authorization_code",
		Code:         auth.Code,
		RedirectURI:  "https://x.test/cb",
		ClientID:     client.Client.ClientID,
		CodeVerifier: verifier,
	})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}

	if err := f.svc.RevokeClient(ctx, f.owner, client.Client.ClientID); err != nil {
		t.Fatalf("revoke client: %v", err)
	}

	if _, err := f.svc.Authorize(ctx, AuthorizeRequest{
		ClientID:            client.Client.ClientID,
		RedirectURI:         "https://x.test/cb",
		ResponseType:        "code",
		CodeChallenge:       tokens.S256Challenge(verifier),
		CodeChallengeMethod: "S256",
		UserID:              f.owner,
	}); err != domain.ErrInvalidClient {
		t.Fatalf("expected ErrInvalidClient on authorize, got %v", err)
	}

	if _, err := f.svc.Exchange(ctx, ExchangeRequest{
		GrantType:    "refresh_token",
		RefreshToken: resp.RefreshToken,
	}); err != domain.ErrInvalidClient {
		t.Fatalf("expected ErrInvalidClient on refresh, got %v", err)
	}

	// Previously issued tokens die with the client.
	if _, err := f.svc.ValidateAccessToken(ctx, resp.AccessToken); err != domain.ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken after client revocation, got %v", err)
	}
}

func TestAuthorizeRejectsNonOwner(t *testing.T) {
	f := newFixture(t)

	client := f.registerClient(t)
	_, err := f.svc.Authorize(context.Background(), AuthorizeRequest{
		ClientID:            client.Client.ClientID,
		RedirectURI:         "https://x.test/cb",
		ResponseType:        "code",
		CodeChallenge:       tokens.S256Challenge("non-owner-verifier-0123456789abc"),
		CodeChallengeMethod: "S256",
		UserID:              f.stranger,
	})
	if err != domain.ErrAccessDenied {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
}

func TestAuthorizeRequiresPKCE(t *testing.T) {
	f := newFixture(t)

	client := f.registerClient(t)
	_, err := f.svc.Authorize(context.Background(), AuthorizeRequest{
		ClientID:     client.Client.ClientID,
		RedirectURI:  "https://x.test/cb",
		ResponseType: "code",
		UserID:       f.owner,
	})
	if err != domain.ErrPKCERequired {
		t.Fatalf("expected ErrPKCERequired, got %v", err)
	}
}

func TestAuthorizeScopeIntersection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.RegisterClient(ctx, RegisterClientRequest{
		OwnerID:      f.owner,
		RepositoryID: f.repoID,
		Name:         "Search only",
		RedirectURIs: []string{"https://x.test/cb"},
		Scopes:       []scope.Scope{scope.Search},
	})
	if err != nil {
		t.Fatalf("register client: %v", err)
	}

	if _, err := f.svc.Authorize(ctx, AuthorizeRequest{
		ClientID:            result.Client.ClientID,
		RedirectURI:         "https://x.test/cb",
		ResponseType:        "code",
		Scope:               "get_info",
		CodeChallenge:       tokens.S256Challenge("scope-check-verifier-0123456789ab"),
		CodeChallengeMethod: "S256",
		UserID:              f.owner,
	}); err != domain.ErrInvalidScope {
		t.Fatalf("expected ErrInvalidScope for empty intersection, got %v", err)
	}
}

func TestRedirectURIAllowList(t *testing.T) {
	allowed := []string{"https://x.test/cb", "*.apps.example.com"}

	cases := []struct {
		uri  string
		want bool
	}{
		{"https://x.test/cb", true},
		{"https://x.test/other", false},
		{"https://foo.apps.example.com/cb", true},
		{"https://evil.com/cb", false},
		{"http://localhost:8321/cb", true},
		{"http://127.0.0.1/cb", true},
	}
	for _, tc := range cases {
		if got := redirectURIAllowed(allowed, tc.uri); got != tc.want {
			t.Errorf("redirectURIAllowed(%q) = %v, want %v", tc.uri, got, tc.want)
		}
	}
}

func TestRevokeIsIdempotentAndGeneric(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	client := f.registerClient(t)
	verifier := "revoke-token-verifier-0123456789ab"
	auth := f.authorize(t, client.Client.ClientID, verifier)

	resp, err := f.svc.Exchange(ctx, ExchangeRequest{
		GrantType:    "authorization_code",
		Code:         auth.Code,
		RedirectURI:  "https://x.test/cb",
		ClientID:     client.Client.ClientID,
		CodeVerifier: verifier,
	})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}

	if err := f.svc.Revoke(ctx, resp.AccessToken, ""); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := f.svc.ValidateAccessToken(ctx, resp.AccessToken); err != domain.ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken after revoke, got %v", err)
	}
	// Revoking the same token again still succeeds.
	if err := f.svc.Revoke(ctx, resp.AccessToken, ""); err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	// Unknown tokens are indistinguishable from revoked ones.
	if err := f.svc.Revoke(ctx, "rd_at_never-issued", "refresh_token"); err != nil {
		t.Fatalf("revoke unknown token: %v", err)
	}
}

func TestRevokeWithWrongHintStillRevokes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	client := f.registerClient(t)
	verifier := "wrong-hint-verifier-0123456789abcd"
	auth := f.authorize(t, client.Client.ClientID, verifier)

	resp, err := f.svc.Exchange(ctx, ExchangeRequest{
		GrantType:    "authorization_code",
		Code:         auth.Code,
		RedirectURI:  "https://x.test/cb",
		ClientID:     client.Client.ClientID,
		CodeVerifier: verifier,
	})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}

	// An access token hinted as refresh_token must still be found.
	if err := f.svc.Revoke(ctx, resp.AccessToken, "refresh_token"); err != nil {
		t.Fatalf("revoke with wrong hint: %v", err)
	}
	if _, err := f.svc.ValidateAccessToken(ctx, resp.AccessToken); err != domain.ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken after mis-hinted revoke, got %v", err)
	}
}

func TestValidateAccessTokenExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	client := f.registerClient(t)
	verifier := "validate-expiry-verifier-012345678"
	auth := f.authorize(t, client.Client.ClientID, verifier)

	resp, err := f.svc.Exchange(ctx, ExchangeRequest{
		GrantType:    "authorization_code",
		Code:         auth.Code,
		RedirectURI:  "https://x.test/cb",
		ClientID:     client.Client.ClientID,
		CodeVerifier: verifier,
	})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}

	if _, err := f.svc.ValidateAccessToken(ctx, resp.AccessToken); err != nil {
		t.Fatalf("validate fresh token: %v", err)
	}

	f.clock.Advance(2 * time.Hour)
	if _, err := f.svc.ValidateAccessToken(ctx, resp.AccessToken); err != domain.ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}
