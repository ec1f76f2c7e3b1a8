package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/relaydocs/relaydocs/internal/repo/domain"
	"github.com/relaydocs/relaydocs/internal/repo/repository"
	"github.com/relaydocs/relaydocs/pkg/db"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) domain.Service {
	t.Helper()

	dbConn, err := db.NewTest()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := dbConn.AutoMigrate(&domain.Repository{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}

	return New(zap.NewNop(), repository.New(dbConn), node)
}

func TestCreateGeneratesSlug(t *testing.T) {
	svc := newTestService(t)

	repo, err := svc.Create(context.Background(), domain.CreateRepositoryRequest{
		OwnerID: 42,
		Name:    "API Reference Docs",
		Public:  true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if repo.Slug != "api-reference-docs" {
		t.Fatalf("unexpected slug %q", repo.Slug)
	}
	if repo.Tier != domain.TierFree {
		t.Fatalf("expected default free tier, got %q", repo.Tier)
	}
}

func TestCreateRetriesOnSlugConflict(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, domain.CreateRepositoryRequest{OwnerID: 1, Name: "Docs"})
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := svc.Create(ctx, domain.CreateRepositoryRequest{OwnerID: 2, Name: "Docs"})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if first.Slug == second.Slug {
		t.Fatalf("expected distinct slugs, both %q", first.Slug)
	}
}

func TestUpdateRejectsNonOwner(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	repo, err := svc.Create(ctx, domain.CreateRepositoryRequest{OwnerID: 7, Name: "Guides"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	enabled := true
	if _, err := svc.Update(ctx, 8, repo.ID, domain.UpdateRepositoryRequest{GatewayEnabled: &enabled}); err != domain.ErrNotOwner {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}

	updated, err := svc.Update(ctx, 7, repo.ID, domain.UpdateRepositoryRequest{GatewayEnabled: &enabled})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.GatewayEnabled {
		t.Fatal("expected gateway_enabled to be set")
	}
}
