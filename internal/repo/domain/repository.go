package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Repo interface {
	Create(ctx context.Context, repository *Repository) error
	FindByID(ctx context.Context, id snowflake.ID) (*Repository, error)
	FindBySlug(ctx context.Context, slug string) (*Repository, error)
	ListByOwner(ctx context.Context, ownerID snowflake.ID) ([]Repository, error)
	UpdateFields(ctx context.Context, id snowflake.ID, fields map[string]any) error
	Delete(ctx context.Context, id snowflake.ID) error
}
