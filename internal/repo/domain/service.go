package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// CreateRepositoryRequest carries operator input for a new repository.
type CreateRepositoryRequest struct {
	OwnerID     snowflake.ID
	Name        string
	Description string
	Public      bool
	Tier        Tier
}

// UpdateRepositoryRequest carries mutable repository settings.
type UpdateRepositoryRequest struct {
	Description    *string
	Public         *bool
	GatewayEnabled *bool
	Tier           *Tier
}

type Service interface {
	Create(ctx context.Context, req CreateRepositoryRequest) (*Repository, error)
	Get(ctx context.Context, id snowflake.ID) (*Repository, error)
	GetBySlug(ctx context.Context, slug string) (*Repository, error)
	ListByOwner(ctx context.Context, ownerID snowflake.ID) ([]Repository, error)
	Update(ctx context.Context, ownerID, id snowflake.ID, req UpdateRepositoryRequest) (*Repository, error)
	Delete(ctx context.Context, ownerID, id snowflake.ID) error
}
