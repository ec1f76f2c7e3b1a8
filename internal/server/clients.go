package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	oauthdomain "github.com/relaydocs/relaydocs/internal/oauth/domain"
	"github.com/relaydocs/relaydocs/internal/oauth/scope"
	oauthservice "github.com/relaydocs/relaydocs/internal/oauth/service"
)

type registerClientRequest struct {
	RepositoryID string   `json:"repository_id" binding:"required"`
	Name         string   `json:"client_name" binding:"required"`
	RedirectURIs []string `json:"redirect_uris" binding:"required"`
	Scopes       []string `json:"scopes"`
}

type clientResponse struct {
	ClientID     string     `json:"client_id"`
	ClientSecret string     `json:"client_secret,omitempty"`
	Name         string     `json:"client_name"`
	RepositoryID string     `json:"repository_id"`
	RedirectURIs []string   `json:"redirect_uris"`
	Scopes       []string   `json:"scopes"`
	CreatedAt    time.Time  `json:"created_at"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
}

func clientView(client *oauthdomain.Client, secret string) clientResponse {
	return clientResponse{
		ClientID:     client.ClientID,
		ClientSecret: secret,
		Name:         client.Name,
		RepositoryID: client.RepositoryID.String(),
		RedirectURIs: client.RedirectURIs,
		Scopes:       client.Scopes,
		CreatedAt:    client.CreatedAt,
		RevokedAt:    client.RevokedAt,
	}
}

// RegisterClient issues OAuth credentials bound to one of the caller's
// repositories. The secret appears in this response and never again.
func (s *Server) RegisterClient(c *gin.Context) {
	ownerID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req registerClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	repositoryID, err := snowflake.ParseString(strings.TrimSpace(req.RepositoryID))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.oauthsvc.RegisterClient(c.Request.Context(), oauthservice.RegisterClientRequest{
		OwnerID:      ownerID,
		RepositoryID: repositoryID,
		Name:         req.Name,
		RedirectURIs: req.RedirectURIs,
		Scopes:       scope.FromStrings(req.Scopes),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, clientView(result.Client, result.Secret))
}

// ListClients returns the caller's clients. Secrets are never re-shown.
func (s *Server) ListClients(c *gin.Context) {
	ownerID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	clients, err := s.oauthsvc.ListClients(c.Request.Context(), ownerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	views := make([]clientResponse, 0, len(clients))
	for i := range clients {
		views = append(views, clientView(&clients[i], ""))
	}
	c.JSON(http.StatusOK, gin.H{"clients": views})
}

// RevokeClient soft-revokes a client. Tokens it issued stop validating
// immediately.
func (s *Server) RevokeClient(c *gin.Context) {
	ownerID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	clientID := strings.TrimSpace(c.Param("client_id"))
	if clientID == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.oauthsvc.RevokeClient(c.Request.Context(), ownerID, clientID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}
