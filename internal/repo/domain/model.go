// Package domain contains core types for content repositories.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Tier labels the billing tier required to query a repository.
type Tier string

const (
	TierFree Tier = "free"
	TierPaid Tier = "paid"
)

// Repository is a content corpus an owner exposes through the gateway.
type Repository struct {
	ID             snowflake.ID      `gorm:"primaryKey"`
	OwnerID        snowflake.ID      `gorm:"column:owner_id;not null;index"`
	Name           string            `gorm:"type:text;not null"`
	Slug           string            `gorm:"type:text;not null;uniqueIndex"`
	Description    string            `gorm:"type:text"`
	Public         bool              `gorm:"not null;default:false"`
	GatewayEnabled bool              `gorm:"column:gateway_enabled;not null;default:false"`
	Tier           Tier              `gorm:"type:text;not null;default:'free'"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Repository) TableName() string { return "repositories" }

// Queryable reports whether gateway traffic may reach this repository
// at all. Ownership and subscription checks come on top of this.
func (r *Repository) Queryable() bool {
	return r.Public && r.GatewayEnabled
}
