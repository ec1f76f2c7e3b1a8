package service

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/relaydocs/relaydocs/internal/oauth/domain"
	"github.com/relaydocs/relaydocs/internal/oauth/scope"
	repodomain "github.com/relaydocs/relaydocs/internal/repo/domain"
	"github.com/relaydocs/relaydocs/internal/tokens"
	"go.uber.org/zap"
)

// Config carries credential lifetimes.
type Config struct {
	CodeTTL    time.Duration
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type Clock interface {
	Now() time.Time
}

type defaultClock struct{}

func (defaultClock) Now() time.Time { return time.Now().UTC() }

type Service struct {
	cfg      Config
	store    domain.Store
	repos    repodomain.Repo
	tokenGen tokens.Generator
	clock    Clock
	genID    *snowflake.Node
	log      *zap.Logger
}

func New(cfg Config, store domain.Store, repos repodomain.Repo, genID *snowflake.Node, log *zap.Logger) *Service {
	return &Service{
		cfg:      cfg,
		store:    store,
		repos:    repos,
		tokenGen: tokens.NewGenerator(),
		clock:    defaultClock{},
		genID:    genID,
		log:      log.Named("oauth.service"),
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *Service) WithClock(clock Clock) *Service {
	s.clock = clock
	return s
}

type RegisterClientRequest struct {
	OwnerID      snowflake.ID
	RepositoryID snowflake.ID
	Name         string
	RedirectURIs []string
	Scopes       []scope.Scope
}

type RegisterClientResult struct {
	Client *domain.Client
	// Secret is shown exactly once at registration time.
	Secret string
}

func (s *Service) RegisterClient(ctx context.Context, req RegisterClientRequest) (*RegisterClientResult, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || req.OwnerID == 0 || req.RepositoryID == 0 {
		return nil, domain.ErrInvalidRequest
	}
	if len(req.RedirectURIs) == 0 {
		return nil, domain.ErrInvalidRedirectURI
	}
	for _, raw := range req.RedirectURIs {
		if err := validateRedirectURI(raw); err != nil {
			return nil, err
		}
	}

	repository, err := s.repos.FindByID(ctx, req.RepositoryID)
	if err != nil {
		return nil, err
	}
	if repository.OwnerID != req.OwnerID {
		return nil, domain.ErrAccessDenied
	}

	granted := req.Scopes
	if len(granted) == 0 {
		granted = scope.Default()
	}
	for _, sc := range granted {
		if !scope.Valid(sc) {
			return nil, domain.ErrInvalidScope
		}
	}

	clientID, err := s.tokenGen.NewToken(tokens.KindClientID)
	if err != nil {
		return nil, err
	}
	secret, err := s.tokenGen.NewToken(tokens.KindClientSecret)
	if err != nil {
		return nil, err
	}

	client := &domain.Client{
		ID:           s.genID.Generate(),
		ClientID:     clientID,
		SecretHash:   tokens.Hash(secret),
		OwnerID:      req.OwnerID,
		RepositoryID: req.RepositoryID,
		Name:         name,
		RedirectURIs: req.RedirectURIs,
		Scopes:       scope.Strings(granted),
		CreatedAt:    s.clock.Now(),
	}
	if err := s.store.CreateClient(ctx, client); err != nil {
		return nil, err
	}

	s.log.Info("oauth client registered",
		zap.String("client_id", client.ClientID),
		zap.String("repository_id", client.RepositoryID.String()),
	)

	return &RegisterClientResult{Client: client, Secret: secret}, nil
}

func (s *Service) ListClients(ctx context.Context, ownerID snowflake.ID) ([]domain.Client, error) {
	return s.store.ListClientsByOwner(ctx, ownerID)
}

func (s *Service) RevokeClient(ctx context.Context, ownerID snowflake.ID, clientID string) error {
	won, err := s.store.RevokeClient(ctx, ownerID, clientID, s.clock.Now())
	if err != nil {
		return err
	}
	if !won {
		return domain.ErrClientNotFound
	}
	return nil
}

type AuthorizeRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	UserID              snowflake.ID
}

type AuthorizeResult struct {
	Code        string
	RedirectURI string
	State       string
	ExpiresAt   time.Time
}

func (s *Service) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error) {
	if strings.TrimSpace(req.ClientID) == "" || strings.TrimSpace(req.RedirectURI) == "" {
		return nil, domain.ErrInvalidRequest
	}
	if req.ResponseType != "code" {
		return nil, domain.ErrUnsupportedResponseType
	}

	challenge := strings.TrimSpace(req.CodeChallenge)
	method := strings.TrimSpace(req.CodeChallengeMethod)
	if challenge == "" {
		return nil, domain.ErrPKCERequired
	}
	if method == "" {
		method = tokens.ChallengeMethodS256
	}
	if method != tokens.ChallengeMethodS256 {
		return nil, domain.ErrInvalidRequest
	}

	if req.UserID == 0 {
		return nil, domain.ErrInvalidRequest
	}

	client, err := s.store.GetClientByClientID(ctx, req.ClientID)
	if err != nil {
		return nil, domain.ErrInvalidClient
	}
	if client.Revoked() {
		return nil, domain.ErrInvalidClient
	}

	repository, err := s.repos.FindByID(ctx, client.RepositoryID)
	if err != nil {
		return nil, domain.ErrInvalidClient
	}
	if repository.OwnerID != req.UserID {
		return nil, domain.ErrAccessDenied
	}

	if !redirectURIAllowed(client.RedirectURIs, req.RedirectURI) {
		return nil, domain.ErrInvalidRedirectURI
	}

	requested, ok := scope.Parse(req.Scope)
	if !ok {
		return nil, domain.ErrInvalidScope
	}
	granted := scope.FromStrings(client.Scopes)
	if len(requested) == 0 {
		requested = granted
	}
	effective := scope.Intersect(requested, granted)
	if len(effective) == 0 {
		return nil, domain.ErrInvalidScope
	}

	rawCode, err := s.tokenGen.NewToken(tokens.KindAuthorizationCode)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	code := &domain.AuthorizationCode{
		CodeHash:            tokens.Hash(rawCode),
		ClientID:            client.ClientID,
		RepositoryID:        client.RepositoryID,
		UserID:              req.UserID,
		RedirectURI:         req.RedirectURI,
		Scopes:              scope.Strings(effective),
		CodeChallenge:       challenge,
		CodeChallengeMethod: method,
		ExpiresAt:           now.Add(s.cfg.CodeTTL),
		CreatedAt:           now,
	}
	if err := s.store.CreateAuthorizationCode(ctx, code); err != nil {
		return nil, err
	}

	return &AuthorizeResult{
		Code:        rawCode,
		RedirectURI: req.RedirectURI,
		State:       req.State,
		ExpiresAt:   code.ExpiresAt,
	}, nil
}

type ExchangeRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	ClientID     string
	CodeVerifier string
	RefreshToken string
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope"`
}

func (s *Service) Exchange(ctx context.Context, req ExchangeRequest) (*TokenResponse, error) {
	switch strings.TrimSpace(req.GrantType) {
	case "authorization_code":
		return s.exchangeAuthorizationCode(ctx, req)
	case "refresh_token":
		return s.exchangeRefreshToken(ctx, req)
	case "":
		return nil, domain.ErrInvalidRequest
	default:
		return nil, domain.ErrUnsupportedGrantType
	}
}

func (s *Service) exchangeAuthorizationCode(ctx context.Context, req ExchangeRequest) (*TokenResponse, error) {
	if strings.TrimSpace(req.Code) == "" || strings.TrimSpace(req.RedirectURI) == "" ||
		strings.TrimSpace(req.ClientID) == "" || strings.TrimSpace(req.CodeVerifier) == "" {
		return nil, domain.ErrInvalidRequest
	}

	client, err := s.store.GetClientByClientID(ctx, req.ClientID)
	if err != nil {
		return nil, domain.ErrInvalidClient
	}
	if client.Revoked() {
		return nil, domain.ErrInvalidClient
	}

	now := s.clock.Now()
	code, err := s.store.GetAuthorizationCode(ctx, tokens.Hash(req.Code))
	if err != nil {
		return nil, domain.ErrInvalidGrant
	}
	if code.UsedAt != nil {
		return nil, domain.ErrInvalidGrant
	}
	if now.After(code.ExpiresAt) {
		// Block retries of an expired-but-found code.
		if _, markErr := s.store.MarkAuthorizationCodeUsed(ctx, code.CodeHash, now); markErr != nil {
			s.log.Warn("failed to mark expired code used", zap.Error(markErr))
		}
		return nil, domain.ErrInvalidGrant
	}
	if code.ClientID != client.ClientID || code.RedirectURI != req.RedirectURI {
		return nil, domain.ErrInvalidGrant
	}
	if !tokens.VerifyPKCE(req.CodeVerifier, code.CodeChallenge, code.CodeChallengeMethod) {
		return nil, domain.ErrInvalidGrant
	}

	won, err := s.store.MarkAuthorizationCodeUsed(ctx, code.CodeHash, now)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, domain.ErrInvalidGrant
	}

	return s.issueTokenPair(ctx, client.ClientID, code.RepositoryID, code.UserID, code.Scopes, now)
}

func (s *Service) exchangeRefreshToken(ctx context.Context, req ExchangeRequest) (*TokenResponse, error) {
	if strings.TrimSpace(req.RefreshToken) == "" {
		return nil, domain.ErrInvalidRequest
	}

	oldHash := tokens.Hash(req.RefreshToken)
	pair, err := s.store.GetTokenPairByRefreshHash(ctx, oldHash)
	if err != nil {
		return nil, domain.ErrInvalidGrant
	}

	now := s.clock.Now()
	if pair.RefreshExpiresAt == nil || now.After(*pair.RefreshExpiresAt) {
		if delErr := s.store.DeleteTokenPair(ctx, pair.ID); delErr != nil {
			s.log.Warn("failed to evict expired token pair", zap.Error(delErr))
		}
		return nil, domain.ErrInvalidGrant
	}

	if clientID := strings.TrimSpace(req.ClientID); clientID != "" && clientID != pair.ClientID {
		return nil, domain.ErrInvalidClient
	}

	client, err := s.store.GetClientByClientID(ctx, pair.ClientID)
	if err != nil || client.Revoked() {
		return nil, domain.ErrInvalidClient
	}

	newAccess, err := s.tokenGen.NewToken(tokens.KindAccessToken)
	if err != nil {
		return nil, err
	}
	newRefresh, err := s.tokenGen.NewToken(tokens.KindRefreshToken)
	if err != nil {
		return nil, err
	}

	rotation := domain.TokenRotation{
		AccessTokenHash:  tokens.Hash(newAccess),
		RefreshTokenHash: tokens.Hash(newRefresh),
		AccessExpiresAt:  now.Add(s.cfg.AccessTTL),
		RefreshExpiresAt: now.Add(s.cfg.RefreshTTL),
		UsedAt:           now,
	}
	won, err := s.store.RotateTokenPair(ctx, pair.ID, oldHash, rotation)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, domain.ErrInvalidGrant
	}

	return &TokenResponse{
		AccessToken:  newAccess,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.cfg.AccessTTL.Seconds()),
		RefreshToken: newRefresh,
		Scope:        strings.Join(pair.Scopes, " "),
	}, nil
}

func (s *Service) issueTokenPair(ctx context.Context, clientID string, repositoryID, userID snowflake.ID, scopes []string, now time.Time) (*TokenResponse, error) {
	access, err := s.tokenGen.NewToken(tokens.KindAccessToken)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokenGen.NewToken(tokens.KindRefreshToken)
	if err != nil {
		return nil, err
	}

	refreshHash := tokens.Hash(refresh)
	refreshExpiry := now.Add(s.cfg.RefreshTTL)
	pair := &domain.TokenPair{
		ID:               s.genID.Generate(),
		ClientID:         clientID,
		RepositoryID:     repositoryID,
		UserID:           userID,
		AccessTokenHash:  tokens.Hash(access),
		RefreshTokenHash: &refreshHash,
		Scopes:           scopes,
		AccessExpiresAt:  now.Add(s.cfg.AccessTTL),
		RefreshExpiresAt: &refreshExpiry,
		CreatedAt:        now,
	}
	if err := s.store.CreateTokenPair(ctx, pair); err != nil {
		return nil, err
	}

	return &TokenResponse{
		AccessToken:  access,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.cfg.AccessTTL.Seconds()),
		RefreshToken: refresh,
		Scope:        strings.Join(scopes, " "),
	}, nil
}

// Revoke deletes any token pair matching the presented token. It succeeds
// whether or not a matching token existed. The hint only orders the lookup;
// a mis-hinted token is still found and revoked (RFC 7009 section 2.1).
func (s *Service) Revoke(ctx context.Context, token, tokenTypeHint string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	hash := tokens.Hash(token)

	refreshHinted := strings.TrimSpace(tokenTypeHint) == "refresh_token"
	if !refreshHinted {
		deleted, err := s.store.DeleteTokenPairByAccessHash(ctx, hash)
		if err != nil {
			return err
		}
		if deleted {
			return nil
		}
	}
	deleted, err := s.store.DeleteTokenPairByRefreshHash(ctx, hash)
	if err != nil {
		return err
	}
	if deleted || !refreshHinted {
		return nil
	}
	_, err = s.store.DeleteTokenPairByAccessHash(ctx, hash)
	return err
}

// ValidateAccessToken resolves a bearer token to its stored pair. Expired
// pairs are evicted lazily.
func (s *Service) ValidateAccessToken(ctx context.Context, raw string) (*domain.TokenPair, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, domain.ErrInvalidToken
	}

	pair, err := s.store.GetTokenPairByAccessHash(ctx, tokens.Hash(raw))
	if err != nil {
		return nil, domain.ErrInvalidToken
	}

	now := s.clock.Now()
	if now.After(pair.AccessExpiresAt) {
		if pair.RefreshExpiresAt == nil || now.After(*pair.RefreshExpiresAt) {
			if delErr := s.store.DeleteTokenPair(ctx, pair.ID); delErr != nil {
				s.log.Warn("failed to evict expired token pair", zap.Error(delErr))
			}
		}
		return nil, domain.ErrInvalidToken
	}

	client, err := s.store.GetClientByClientID(ctx, pair.ClientID)
	if err != nil || client.Revoked() {
		return nil, domain.ErrInvalidToken
	}

	if err := s.store.TouchTokenPair(ctx, pair.ID, now); err != nil {
		s.log.Warn("failed to update token last used", zap.Error(err))
	}
	return pair, nil
}

// StampSubscription links a resolved subscription to an issued token for
// later fast-path entitlement checks.
func (s *Service) StampSubscription(ctx context.Context, pairID, subscriptionID snowflake.ID) error {
	return s.store.SetTokenPairSubscription(ctx, pairID, subscriptionID)
}

// PurgeExpired removes token pairs whose access and refresh lifetimes have
// both elapsed.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredTokenPairs(ctx, s.clock.Now())
}

func validateRedirectURI(raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return domain.ErrInvalidRedirectURI
	}
	if parsed.Host == "" || parsed.Fragment != "" {
		return domain.ErrInvalidRedirectURI
	}
	switch parsed.Scheme {
	case "https":
		return nil
	case "http":
		if isLoopbackHost(parsed.Hostname()) {
			return nil
		}
		return domain.ErrInvalidRedirectURI
	default:
		return domain.ErrInvalidRedirectURI
	}
}

// redirectURIAllowed checks the allow-list: exact match, a "*."-prefixed
// suffix match on the hostname, or any loopback address.
func redirectURIAllowed(allowed []string, raw string) bool {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	if isLoopbackHost(parsed.Hostname()) {
		return true
	}

	for _, entry := range allowed {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if entry == raw {
			return true
		}
		if strings.HasPrefix(entry, "*.") {
			suffix := strings.TrimPrefix(entry, "*")
			if strings.HasSuffix(parsed.Hostname(), suffix) {
				return true
			}
		}
	}
	return false
}

func isLoopbackHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1"
}
