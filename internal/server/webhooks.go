package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/relaydocs/relaydocs/internal/subscription/domain"
	subscriptionservice "github.com/relaydocs/relaydocs/internal/subscription/service"
)

type billingWebhookRequest struct {
	UserID           string     `json:"user_id" binding:"required"`
	RepositoryID     string     `json:"repository_id" binding:"required"`
	Status           string     `json:"status" binding:"required"`
	CurrentPeriodEnd *time.Time `json:"current_period_end"`
}

// BillingWebhook applies subscription transitions pushed by the external
// billing processor. It is the only writer of subscription status.
func (s *Server) BillingWebhook(c *gin.Context) {
	var req billingWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	userID, err := snowflake.ParseString(strings.TrimSpace(req.UserID))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	repositoryID, err := snowflake.ParseString(strings.TrimSpace(req.RepositoryID))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	status := subscriptiondomain.Status(strings.TrimSpace(req.Status))
	if !status.Valid() {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	subscription, err := s.subscriptionSvc.ApplyBillingEvent(c.Request.Context(), subscriptionservice.BillingEvent{
		UserID:           userID,
		RepositoryID:     repositoryID,
		Status:           status,
		CurrentPeriodEnd: req.CurrentPeriodEnd,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"subscription_id": subscription.ID.String(),
		"status":          string(subscription.Status),
	})
}
