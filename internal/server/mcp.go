package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/relaydocs/relaydocs/internal/gateway"
	oauthdomain "github.com/relaydocs/relaydocs/internal/oauth/domain"
	"github.com/relaydocs/relaydocs/internal/oauth/scope"
	obscontext "github.com/relaydocs/relaydocs/internal/observability/context"
	"github.com/relaydocs/relaydocs/internal/ratelimit"
	repodomain "github.com/relaydocs/relaydocs/internal/repo/domain"
)

const (
	contextRepositoryKey = "gateway_repository"
	contextTokenPairKey  = "gateway_token_pair"
)

// GatewayAuthRequired is the middleware chain guarding /mcp/:slug: bearer
// token, repository resolution, token-repository binding, entitlement and
// rate limits, in that order.
func (s *Server) GatewayAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		raw, ok := bearerToken(c)
		if !ok {
			gatewayError(c, http.StatusUnauthorized, "invalid_token", "missing or malformed bearer token")
			return
		}

		slug := strings.TrimSpace(c.Param("slug"))
		repository, err := s.reposvc.GetBySlug(ctx, slug)
		if err != nil {
			gatewayError(c, http.StatusNotFound, "not_found", "unknown repository")
			return
		}
		if !repository.GatewayEnabled {
			gatewayError(c, http.StatusNotFound, "not_found", "unknown repository")
			return
		}

		pair, err := s.oauthsvc.ValidateAccessToken(ctx, raw)
		if err != nil {
			gatewayError(c, http.StatusUnauthorized, "invalid_token", "token is invalid or expired")
			return
		}
		if pair.RepositoryID != repository.ID {
			gatewayError(c, http.StatusUnauthorized, "invalid_token", "token is not valid for this repository")
			return
		}

		if !s.checkEntitlement(c, repository, pair) {
			return
		}
		if !s.checkRateLimits(c, repository, pair) {
			return
		}

		ctx = obscontext.WithClientID(c.Request.Context(), pair.ClientID)
		ctx = obscontext.WithPrincipal(ctx, "user", pair.UserID.String())
		ctx = obscontext.WithRepository(ctx, repository.Slug)
		c.Request = c.Request.WithContext(ctx)
		c.Set("repository_slug", repository.Slug)
		c.Set(contextRepositoryKey, repository)
		c.Set(contextTokenPairKey, pair)
		c.Next()
	}
}

// checkEntitlement re-verifies subscription state on every call since it
// can lapse after token issuance. The public gate applies to owners too;
// only the subscription requirement is waived for them, which Resolve
// handles after its gates.
func (s *Server) checkEntitlement(c *gin.Context, repository *repodomain.Repository, pair *oauthdomain.TokenPair) bool {
	ctx := c.Request.Context()

	if repository.Tier == repodomain.TierPaid && pair.SubscriptionID != nil && pair.UserID != repository.OwnerID {
		decision, err := s.subscriptionSvc.Verify(ctx, *pair.SubscriptionID)
		if err != nil {
			gatewayError(c, http.StatusInternalServerError, "internal_error", "entitlement check failed")
			return false
		}
		if !decision.Allowed {
			gatewayError(c, http.StatusForbidden, "subscription_required", decision.Reason)
			return false
		}
		return true
	}

	decision, err := s.subscriptionSvc.Resolve(ctx, repository, pair.UserID)
	if err != nil {
		gatewayError(c, http.StatusInternalServerError, "internal_error", "entitlement check failed")
		return false
	}
	if !decision.Allowed {
		gatewayError(c, http.StatusForbidden, "access_denied", decision.Reason)
		return false
	}
	if decision.SubscriptionID != nil && pair.SubscriptionID == nil {
		// Best effort; the next call takes the Verify fast path.
		_ = s.oauthsvc.StampSubscription(ctx, pair.ID, *decision.SubscriptionID)
	}
	return true
}

func (s *Server) checkRateLimits(c *gin.Context, repository *repodomain.Repository, pair *oauthdomain.TokenPair) bool {
	if !s.limiter.Enabled() {
		// Advertise the configured ceilings even when enforcement is off
		// so clients can always pace themselves from the headers.
		cfg := s.gatewayCfg.Get()
		setRateLimitHeaders(c, &ratelimit.Result{
			Scope:     ratelimit.ScopeClient,
			Allowed:   true,
			Limit:     cfg.ClientLimit,
			Remaining: cfg.ClientLimit,
			Reset:     nextWindowBoundary(cfg.Window),
		})
		return true
	}
	ctx := c.Request.Context()

	repoResult := s.limiter.AllowRepository(ctx, repository.Slug)
	if !repoResult.Allowed {
		s.rateLimitDenied(c, repository.Slug, repoResult)
		return false
	}
	clientResult := s.limiter.AllowClient(ctx, repository.Slug, pair.ClientID)
	if !clientResult.Allowed {
		s.rateLimitDenied(c, repository.Slug, clientResult)
		return false
	}

	setRateLimitHeaders(c, clientResult)
	if s.obsMetrics != nil {
		s.obsMetrics.RecordRateLimitAllowed(ctx, repository.Slug, clientResult.Scope)
	}
	return true
}

func (s *Server) rateLimitDenied(c *gin.Context, slug string, result *ratelimit.Result) {
	setRateLimitHeaders(c, result)
	if s.obsMetrics != nil {
		s.obsMetrics.RecordRateLimitDenied(c.Request.Context(), slug, result.Scope, "window_exhausted")
	}
	gatewayError(c, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded, retry after the window resets")
}

func nextWindowBoundary(window time.Duration) time.Time {
	seconds := int64(window.Seconds())
	if seconds <= 0 {
		seconds = 60
	}
	next := (time.Now().Unix()/seconds + 1) * seconds
	return time.Unix(next, 0).UTC()
}

func setRateLimitHeaders(c *gin.Context, result *ratelimit.Result) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(result.Reset.Unix(), 10))
}

// GatewayDispatch executes one JSON-RPC envelope. Protocol-level failures
// ride back inside a 200 response per JSON-RPC conventions.
func (s *Server) GatewayDispatch(c *gin.Context) {
	repository, pair, ok := gatewayContext(c)
	if !ok {
		gatewayError(c, http.StatusInternalServerError, "internal_error", "gateway context missing")
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		gatewayError(c, http.StatusBadRequest, "invalid_request", "unreadable request body")
		return
	}

	resp := s.dispatcher.Handle(c.Request.Context(), s.gatewayCall(c, repository, pair), body)
	c.JSON(http.StatusOK, resp)
}

// GatewayMetadataOrStream serves endpoint metadata, or upgrades to an SSE
// session when the client asks for an event stream.
func (s *Server) GatewayMetadataOrStream(c *gin.Context) {
	repository, pair, ok := gatewayContext(c)
	if !ok {
		gatewayError(c, http.StatusInternalServerError, "internal_error", "gateway context missing")
		return
	}

	if !strings.Contains(c.GetHeader("Accept"), "text/event-stream") {
		c.JSON(http.StatusOK, s.dispatcher.Metadata(repository))
		return
	}

	keepAlive := s.gatewayCfg.Get().KeepAliveInterval
	call := s.gatewayCall(c, repository, pair)
	if err := s.dispatcher.StreamSession(c.Request.Context(), c.Writer, call, keepAlive); err != nil {
		gatewayError(c, http.StatusServiceUnavailable, "streaming_unsupported", "event stream could not be opened")
	}
}

func (s *Server) gatewayCall(c *gin.Context, repository *repodomain.Repository, pair *oauthdomain.TokenPair) gateway.Call {
	return gateway.Call{
		Repository: repository,
		ClientID:   pair.ClientID,
		UserID:     pair.UserID,
		Scopes:     scope.FromStrings(pair.Scopes),
		RequestID:  obscontext.RequestIDFromContext(c.Request.Context()),
		RemoteIP:   c.ClientIP(),
	}
}

func gatewayContext(c *gin.Context) (*repodomain.Repository, *oauthdomain.TokenPair, bool) {
	repoValue, ok := c.Get(contextRepositoryKey)
	if !ok {
		return nil, nil, false
	}
	repository, ok := repoValue.(*repodomain.Repository)
	if !ok {
		return nil, nil, false
	}
	pairValue, ok := c.Get(contextTokenPairKey)
	if !ok {
		return nil, nil, false
	}
	pair, ok := pairValue.(*oauthdomain.TokenPair)
	return repository, pair, ok
}

func bearerToken(c *gin.Context) (string, bool) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func gatewayError(c *gin.Context, status int, code, description string) {
	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", `Bearer error="`+code+`"`)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error":             code,
		"error_description": description,
	})
}
