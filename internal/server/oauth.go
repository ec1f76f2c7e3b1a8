package server

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	oauthdomain "github.com/relaydocs/relaydocs/internal/oauth/domain"
	"github.com/relaydocs/relaydocs/internal/oauth/scope"
	oauthservice "github.com/relaydocs/relaydocs/internal/oauth/service"
)

type oauthErrorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// DiscoveryMetadata serves RFC 8414 authorization server metadata.
func (s *Server) DiscoveryMetadata(c *gin.Context) {
	issuer := strings.TrimRight(s.cfg.Issuer, "/")
	c.JSON(http.StatusOK, gin.H{
		"issuer":                           issuer,
		"authorization_endpoint":           issuer + "/authorize",
		"token_endpoint":                   issuer + "/token",
		"revocation_endpoint":              issuer + "/revoke",
		"registration_endpoint":            issuer + "/clients",
		"response_types_supported":         []string{"code"},
		"grant_types_supported":            []string{"authorization_code", "refresh_token"},
		"code_challenge_methods_supported": []string{"S256"},
		"scopes_supported":                 scope.Strings(scope.All()),
		"token_endpoint_auth_methods_supported": []string{"none"},
	})
}

// Authorize drives the redirect-based step of the code grant. Unauthenticated
// callers are bounced to the login page with the original request preserved.
func (s *Server) Authorize(c *gin.Context) {
	req := oauthservice.AuthorizeRequest{
		ClientID:            c.Query("client_id"),
		RedirectURI:         c.Query("redirect_uri"),
		ResponseType:        c.Query("response_type"),
		Scope:               c.Query("scope"),
		State:               c.Query("state"),
		CodeChallenge:       c.Query("code_challenge"),
		CodeChallengeMethod: c.Query("code_challenge_method"),
	}

	token, ok := s.sessions.ReadToken(c)
	if !ok {
		s.redirectToLogin(c)
		return
	}
	sess, err := s.authsvc.Authenticate(c.Request.Context(), token)
	if err != nil {
		s.redirectToLogin(c)
		return
	}
	req.UserID = sess.UserID

	result, err := s.oauthsvc.Authorize(c.Request.Context(), req)
	if err != nil {
		s.authorizeError(c, req, err)
		return
	}

	redirect, parseErr := url.Parse(result.RedirectURI)
	if parseErr != nil {
		AbortWithError(c, ErrInternal)
		return
	}
	query := redirect.Query()
	query.Set("code", result.Code)
	if result.State != "" {
		query.Set("state", result.State)
	}
	redirect.RawQuery = query.Encode()
	c.Redirect(http.StatusFound, redirect.String())
}

func (s *Server) redirectToLogin(c *gin.Context) {
	next := url.QueryEscape(c.Request.URL.RequestURI())
	c.Redirect(http.StatusFound, "/login?next="+next)
}

// authorizeError surfaces an authorization failure as an OAuth error
// redirect when the caller-supplied redirect URI is usable, or as a JSON
// error when the failure concerns the client or the redirect URI itself.
func (s *Server) authorizeError(c *gin.Context, req oauthservice.AuthorizeRequest, err error) {
	code := oauthErrorCode(err)

	redirectable := req.RedirectURI != "" &&
		!errors.Is(err, oauthdomain.ErrInvalidClient) &&
		!errors.Is(err, oauthdomain.ErrClientNotFound) &&
		!errors.Is(err, oauthdomain.ErrInvalidRedirectURI)
	if redirectable {
		if redirect, parseErr := url.Parse(req.RedirectURI); parseErr == nil && redirect.IsAbs() {
			query := redirect.Query()
			query.Set("error", code)
			if req.State != "" {
				query.Set("state", req.State)
			}
			redirect.RawQuery = query.Encode()
			c.Redirect(http.StatusFound, redirect.String())
			return
		}
	}

	status := http.StatusBadRequest
	if errors.Is(err, oauthdomain.ErrInvalidClient) || errors.Is(err, oauthdomain.ErrClientNotFound) {
		status = http.StatusUnauthorized
	}
	c.JSON(status, oauthErrorBody{Error: code})
}

type tokenRequest struct {
	GrantType    string `form:"grant_type" json:"grant_type"`
	Code         string `form:"code" json:"code"`
	RedirectURI  string `form:"redirect_uri" json:"redirect_uri"`
	ClientID     string `form:"client_id" json:"client_id"`
	CodeVerifier string `form:"code_verifier" json:"code_verifier"`
	RefreshToken string `form:"refresh_token" json:"refresh_token"`
}

// Token implements the token endpoint for both supported grants. The body
// may be form-encoded or JSON.
func (s *Server) Token(c *gin.Context) {
	var req tokenRequest
	if err := bindFormOrJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, oauthErrorBody{Error: "invalid_request"})
		return
	}

	resp, err := s.oauthsvc.Exchange(c.Request.Context(), oauthservice.ExchangeRequest{
		GrantType:    req.GrantType,
		Code:         req.Code,
		RedirectURI:  req.RedirectURI,
		ClientID:     req.ClientID,
		CodeVerifier: req.CodeVerifier,
		RefreshToken: req.RefreshToken,
	})
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, oauthdomain.ErrInvalidClient) {
			status = http.StatusUnauthorized
		}
		c.JSON(status, oauthErrorBody{Error: oauthErrorCode(err)})
		return
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordTokenIssued(c.Request.Context(), req.GrantType)
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, resp)
}

type revokeRequest struct {
	Token         string `form:"token" json:"token"`
	TokenTypeHint string `form:"token_type_hint" json:"token_type_hint"`
}

// Revoke always answers 200 so callers cannot probe which tokens exist.
func (s *Server) Revoke(c *gin.Context) {
	var req revokeRequest
	if err := bindFormOrJSON(c, &req); err != nil || strings.TrimSpace(req.Token) == "" {
		c.JSON(http.StatusOK, gin.H{})
		return
	}

	if err := s.oauthsvc.Revoke(c.Request.Context(), req.Token, req.TokenTypeHint); err == nil {
		if s.obsMetrics != nil {
			hint := req.TokenTypeHint
			if hint == "" {
				hint = "access_token"
			}
			s.obsMetrics.RecordTokenRevoked(c.Request.Context(), hint)
		}
	}
	c.JSON(http.StatusOK, gin.H{})
}

func bindFormOrJSON(c *gin.Context, out any) error {
	contentType := c.ContentType()
	if strings.Contains(contentType, "application/json") {
		return c.ShouldBindJSON(out)
	}
	return c.ShouldBind(out)
}

// oauthErrorCode maps service errors to RFC 6749 error codes.
func oauthErrorCode(err error) string {
	switch {
	case errors.Is(err, oauthdomain.ErrInvalidClient), errors.Is(err, oauthdomain.ErrClientNotFound):
		return "invalid_client"
	case errors.Is(err, oauthdomain.ErrInvalidGrant),
		errors.Is(err, oauthdomain.ErrPKCEMismatch):
		return "invalid_grant"
	case errors.Is(err, oauthdomain.ErrInvalidScope):
		return "invalid_scope"
	case errors.Is(err, oauthdomain.ErrUnsupportedGrantType):
		return "unsupported_grant_type"
	case errors.Is(err, oauthdomain.ErrUnsupportedResponseType):
		return "unsupported_response_type"
	case errors.Is(err, oauthdomain.ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, oauthdomain.ErrInvalidRequest),
		errors.Is(err, oauthdomain.ErrInvalidRedirectURI),
		errors.Is(err, oauthdomain.ErrPKCERequired):
		return "invalid_request"
	default:
		return "server_error"
	}
}
