package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/relaydocs/relaydocs/internal/repo/domain"
	"go.uber.org/zap"
)

const slugRetryLimit = 3

type Service struct {
	log   *zap.Logger
	repo  domain.Repo
	genID *snowflake.Node
}

func New(log *zap.Logger, repo domain.Repo, genID *snowflake.Node) domain.Service {
	return &Service{
		log:   log.Named("repo.service"),
		repo:  repo,
		genID: genID,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRepositoryRequest) (*domain.Repository, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || req.OwnerID == 0 {
		return nil, domain.ErrRepositoryNotFound
	}

	tier := req.Tier
	if tier == "" {
		tier = domain.TierFree
	}

	base := slug.Make(name)
	if base == "" {
		base = s.genID.Generate().String()
	}

	repository := &domain.Repository{
		ID:          s.genID.Generate(),
		OwnerID:     req.OwnerID,
		Name:        name,
		Slug:        base,
		Description: strings.TrimSpace(req.Description),
		Public:      req.Public,
		Tier:        tier,
	}

	for attempt := 0; ; attempt++ {
		err := s.repo.Create(ctx, repository)
		if err == nil {
			return repository, nil
		}
		if !errors.Is(err, domain.ErrSlugTaken) || attempt >= slugRetryLimit {
			return nil, err
		}
		repository.Slug = fmt.Sprintf("%s-%s", base, s.genID.Generate().String())
	}
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Repository, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) GetBySlug(ctx context.Context, slugValue string) (*domain.Repository, error) {
	slugValue = strings.TrimSpace(slugValue)
	if slugValue == "" {
		return nil, domain.ErrRepositoryNotFound
	}
	return s.repo.FindBySlug(ctx, slugValue)
}

func (s *Service) ListByOwner(ctx context.Context, ownerID snowflake.ID) ([]domain.Repository, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

func (s *Service) Update(ctx context.Context, ownerID, id snowflake.ID, req domain.UpdateRepositoryRequest) (*domain.Repository, error) {
	repository, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if repository.OwnerID != ownerID {
		return nil, domain.ErrNotOwner
	}

	fields := map[string]any{}
	if req.Description != nil {
		fields["description"] = strings.TrimSpace(*req.Description)
	}
	if req.Public != nil {
		fields["public"] = *req.Public
	}
	if req.GatewayEnabled != nil {
		fields["gateway_enabled"] = *req.GatewayEnabled
	}
	if req.Tier != nil {
		fields["tier"] = *req.Tier
	}
	if len(fields) == 0 {
		return repository, nil
	}

	if err := s.repo.UpdateFields(ctx, id, fields); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, id)
}

func (s *Service) Delete(ctx context.Context, ownerID, id snowflake.ID) error {
	repository, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if repository.OwnerID != ownerID {
		return domain.ErrNotOwner
	}
	return s.repo.Delete(ctx, id)
}
