// Package domain contains persistence models for repository subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status represents lifecycle states for a subscription.
type Status string

const (
	StatusActive   Status = "active"
	StatusTrialing Status = "trialing"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
	StatusExpired  Status = "expired"
)

// Entitled reports whether the status alone permits gateway access.
func (s Status) Entitled() bool {
	return s == StatusActive || s == StatusTrialing
}

// Valid reports whether the value is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusTrialing, StatusPastDue, StatusCanceled, StatusExpired:
		return true
	default:
		return false
	}
}

// Subscription binds a principal to a repository with an entitlement state.
// External billing events are the only legitimate mutator of Status.
type Subscription struct {
	ID               snowflake.ID      `gorm:"primaryKey"`
	UserID           snowflake.ID      `gorm:"column:user_id;not null;uniqueIndex:idx_subscriptions_user_repo"`
	RepositoryID     snowflake.ID      `gorm:"column:repository_id;not null;uniqueIndex:idx_subscriptions_user_repo"`
	Status           Status            `gorm:"type:text;not null"`
	CurrentPeriodEnd *time.Time        `gorm:"column:current_period_end"`
	Metadata         datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// CurrentlyEntitled checks status and billing period together.
func (s *Subscription) CurrentlyEntitled(now time.Time) bool {
	if !s.Status.Entitled() {
		return false
	}
	if s.CurrentPeriodEnd != nil && now.After(*s.CurrentPeriodEnd) {
		return false
	}
	return true
}
