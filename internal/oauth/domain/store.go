package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Store provides persistence for OAuth credentials. Single-row updates
// used to consume codes and rotate refresh tokens are conditional and
// report whether the row was won.
type Store interface {
	CreateClient(ctx context.Context, client *Client) error
	GetClientByClientID(ctx context.Context, clientID string) (*Client, error)
	ListClientsByOwner(ctx context.Context, ownerID snowflake.ID) ([]Client, error)
	RevokeClient(ctx context.Context, ownerID snowflake.ID, clientID string, revokedAt time.Time) (bool, error)

	CreateAuthorizationCode(ctx context.Context, code *AuthorizationCode) error
	GetAuthorizationCode(ctx context.Context, codeHash string) (*AuthorizationCode, error)
	MarkAuthorizationCodeUsed(ctx context.Context, codeHash string, usedAt time.Time) (bool, error)

	CreateTokenPair(ctx context.Context, pair *TokenPair) error
	GetTokenPairByAccessHash(ctx context.Context, accessHash string) (*TokenPair, error)
	GetTokenPairByRefreshHash(ctx context.Context, refreshHash string) (*TokenPair, error)
	RotateTokenPair(ctx context.Context, id snowflake.ID, oldRefreshHash string, rotation TokenRotation) (bool, error)
	DeleteTokenPair(ctx context.Context, id snowflake.ID) error
	DeleteTokenPairByAccessHash(ctx context.Context, accessHash string) (bool, error)
	DeleteTokenPairByRefreshHash(ctx context.Context, refreshHash string) (bool, error)
	TouchTokenPair(ctx context.Context, id snowflake.ID, usedAt time.Time) error
	SetTokenPairSubscription(ctx context.Context, id snowflake.ID, subscriptionID snowflake.ID) error
	DeleteExpiredTokenPairs(ctx context.Context, now time.Time) (int64, error)
}

// TokenRotation carries the replacement hashes and expiries applied when
// a refresh token is used.
type TokenRotation struct {
	AccessTokenHash  string
	RefreshTokenHash string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	UsedAt           time.Time
}
