package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/relaydocs/relaydocs/internal/repo/domain"
	"github.com/relaydocs/relaydocs/pkg/db"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) domain.Repo {
	return &repo{db: db}
}

func (r *repo) Create(ctx context.Context, repository *domain.Repository) error {
	err := r.db.WithContext(ctx).Create(repository).Error
	if db.IsDuplicateKeyErr(err) {
		return domain.ErrSlugTaken
	}
	return err
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*domain.Repository, error) {
	var repository domain.Repository
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&repository).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRepositoryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &repository, nil
}

func (r *repo) FindBySlug(ctx context.Context, slug string) (*domain.Repository, error) {
	var repository domain.Repository
	err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&repository).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRepositoryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &repository, nil
}

func (r *repo) ListByOwner(ctx context.Context, ownerID snowflake.ID) ([]domain.Repository, error) {
	var repositories []domain.Repository
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&repositories).Error
	return repositories, err
}

func (r *repo) UpdateFields(ctx context.Context, id snowflake.ID, fields map[string]any) error {
	tx := r.db.WithContext(ctx).
		Model(&domain.Repository{}).
		Where("id = ?", id).
		Updates(fields)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrRepositoryNotFound
	}
	return nil
}

func (r *repo) Delete(ctx context.Context, id snowflake.ID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Repository{}).Error
}
