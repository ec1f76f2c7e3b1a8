package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrSubscriptionExists   = errors.New("subscription already exists")
)

type Repository interface {
	Insert(ctx context.Context, subscription *Subscription) error
	FindByID(ctx context.Context, id snowflake.ID) (*Subscription, error)
	FindByUserAndRepository(ctx context.Context, userID, repositoryID snowflake.ID) (*Subscription, error)
	UpdateFields(ctx context.Context, id snowflake.ID, fields map[string]any) error
}
