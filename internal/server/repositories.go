package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	repodomain "github.com/relaydocs/relaydocs/internal/repo/domain"
)

type createRepositoryRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Public      bool   `json:"public"`
	Tier        string `json:"tier"`
}

type updateRepositoryRequest struct {
	Description    *string `json:"description"`
	Public         *bool   `json:"public"`
	GatewayEnabled *bool   `json:"gateway_enabled"`
	Tier           *string `json:"tier"`
}

func (s *Server) CreateRepository(c *gin.Context) {
	ownerID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createRepositoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	tier := repodomain.TierFree
	if req.Tier != "" {
		tier = repodomain.Tier(req.Tier)
		if tier != repodomain.TierFree && tier != repodomain.TierPaid {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
	}

	repository, err := s.reposvc.Create(c.Request.Context(), repodomain.CreateRepositoryRequest{
		OwnerID:     ownerID,
		Name:        req.Name,
		Description: req.Description,
		Public:      req.Public,
		Tier:        tier,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, repository)
}

func (s *Server) ListRepositories(c *gin.Context) {
	ownerID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	repositories, err := s.reposvc.ListByOwner(c.Request.Context(), ownerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"repositories": repositories})
}

func (s *Server) GetRepository(c *gin.Context) {
	ownerID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	id, err := parseIDParam(c)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	repository, err := s.reposvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if repository.OwnerID != ownerID {
		AbortWithError(c, ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, repository)
}

func (s *Server) UpdateRepository(c *gin.Context) {
	ownerID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	id, err := parseIDParam(c)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req updateRepositoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	update := repodomain.UpdateRepositoryRequest{
		Description:    req.Description,
		Public:         req.Public,
		GatewayEnabled: req.GatewayEnabled,
	}
	if req.Tier != nil {
		tier := repodomain.Tier(*req.Tier)
		if tier != repodomain.TierFree && tier != repodomain.TierPaid {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		update.Tier = &tier
	}

	repository, err := s.reposvc.Update(c.Request.Context(), ownerID, id, update)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, repository)
}

func (s *Server) DeleteRepository(c *gin.Context) {
	ownerID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	id, err := parseIDParam(c)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.reposvc.Delete(c.Request.Context(), ownerID, id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func parseIDParam(c *gin.Context) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(c.Param("id")))
}
