// Package domain contains persistence models for OAuth clients,
// authorization codes and issued token pairs.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Client is an application credential registered against a repository.
type Client struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	ClientID     string       `gorm:"column:client_id;type:text;not null;uniqueIndex"`
	SecretHash   string       `gorm:"column:secret_hash;type:text;not null"`
	OwnerID      snowflake.ID `gorm:"column:owner_id;not null;index"`
	RepositoryID snowflake.ID `gorm:"column:repository_id;not null;index"`
	Name         string       `gorm:"type:text;not null"`
	RedirectURIs []string     `gorm:"column:redirect_uris;type:jsonb;serializer:json"`
	Scopes       []string     `gorm:"column:scopes;type:jsonb;serializer:json"`
	CreatedAt    time.Time    `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
	RevokedAt    *time.Time   `gorm:"column:revoked_at"`
}

// TableName sets the database table name.
func (Client) TableName() string { return "oauth_clients" }

// Revoked reports whether the client has been soft-revoked.
func (c *Client) Revoked() bool { return c.RevokedAt != nil }

// AuthorizationCode stores an issued single-use authorization code.
type AuthorizationCode struct {
	CodeHash            string       `gorm:"column:code_hash;type:text;primaryKey"`
	ClientID            string       `gorm:"column:client_id;type:text;not null;index"`
	RepositoryID        snowflake.ID `gorm:"column:repository_id;not null;index"`
	UserID              snowflake.ID `gorm:"column:user_id;not null;index"`
	RedirectURI         string       `gorm:"column:redirect_uri;type:text;not null"`
	Scopes              []string     `gorm:"column:scopes;type:jsonb;serializer:json"`
	CodeChallenge       string       `gorm:"column:code_challenge;type:text;not null"`
	CodeChallengeMethod string       `gorm:"column:code_challenge_method;type:text;not null"`
	ExpiresAt           time.Time    `gorm:"column:expires_at;not null;index"`
	UsedAt              *time.Time   `gorm:"column:used_at"`
	CreatedAt           time.Time    `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (AuthorizationCode) TableName() string { return "oauth_authorization_codes" }

// TokenPair stores the hashes of an issued access/refresh token pair.
type TokenPair struct {
	ID               snowflake.ID  `gorm:"primaryKey"`
	ClientID         string        `gorm:"column:client_id;type:text;not null;index"`
	RepositoryID     snowflake.ID  `gorm:"column:repository_id;not null;index"`
	UserID           snowflake.ID  `gorm:"column:user_id;not null;index"`
	AccessTokenHash  string        `gorm:"column:access_token_hash;type:text;not null;uniqueIndex"`
	RefreshTokenHash *string       `gorm:"column:refresh_token_hash;type:text;uniqueIndex"`
	Scopes           []string      `gorm:"column:scopes;type:jsonb;serializer:json"`
	AccessExpiresAt  time.Time     `gorm:"column:access_expires_at;not null;index"`
	RefreshExpiresAt *time.Time    `gorm:"column:refresh_expires_at"`
	SubscriptionID   *snowflake.ID `gorm:"column:subscription_id"`
	LastUsedAt       *time.Time    `gorm:"column:last_used_at"`
	CreatedAt        time.Time     `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (TokenPair) TableName() string { return "oauth_token_pairs" }
