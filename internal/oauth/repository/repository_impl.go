package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/relaydocs/relaydocs/internal/oauth/domain"
	"gorm.io/gorm"
)

type store struct {
	db *gorm.DB
}

func New(db *gorm.DB) domain.Store {
	return &store{db: db}
}

func (s *store) CreateClient(ctx context.Context, client *domain.Client) error {
	return s.db.WithContext(ctx).Create(client).Error
}

func (s *store) GetClientByClientID(ctx context.Context, clientID string) (*domain.Client, error) {
	var client domain.Client
	err := s.db.WithContext(ctx).Where("client_id = ?", clientID).First(&client).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrClientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &client, nil
}

func (s *store) ListClientsByOwner(ctx context.Context, ownerID snowflake.ID) ([]domain.Client, error) {
	var clients []domain.Client
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&clients).Error
	return clients, err
}

func (s *store) RevokeClient(ctx context.Context, ownerID snowflake.ID, clientID string, revokedAt time.Time) (bool, error) {
	tx := s.db.WithContext(ctx).
		Model(&domain.Client{}).
		Where("owner_id = ? AND client_id = ? AND revoked_at IS NULL", ownerID, clientID).
		Update("revoked_at", revokedAt)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (s *store) CreateAuthorizationCode(ctx context.Context, code *domain.AuthorizationCode) error {
	return s.db.WithContext(ctx).Create(code).Error
}

func (s *store) GetAuthorizationCode(ctx context.Context, codeHash string) (*domain.AuthorizationCode, error) {
	var code domain.AuthorizationCode
	err := s.db.WithContext(ctx).Where("code_hash = ?", codeHash).First(&code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrInvalidGrant
	}
	if err != nil {
		return nil, err
	}
	return &code, nil
}

func (s *store) MarkAuthorizationCodeUsed(ctx context.Context, codeHash string, usedAt time.Time) (bool, error) {
	tx := s.db.WithContext(ctx).
		Model(&domain.AuthorizationCode{}).
		Where("code_hash = ? AND used_at IS NULL", codeHash).
		Update("used_at", usedAt)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (s *store) CreateTokenPair(ctx context.Context, pair *domain.TokenPair) error {
	return s.db.WithContext(ctx).Create(pair).Error
}

func (s *store) GetTokenPairByAccessHash(ctx context.Context, accessHash string) (*domain.TokenPair, error) {
	var pair domain.TokenPair
	err := s.db.WithContext(ctx).Where("access_token_hash = ?", accessHash).First(&pair).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	return &pair, nil
}

func (s *store) GetTokenPairByRefreshHash(ctx context.Context, refreshHash string) (*domain.TokenPair, error) {
	var pair domain.TokenPair
	err := s.db.WithContext(ctx).Where("refresh_token_hash = ?", refreshHash).First(&pair).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrInvalidGrant
	}
	if err != nil {
		return nil, err
	}
	return &pair, nil
}

func (s *store) RotateTokenPair(ctx context.Context, id snowflake.ID, oldRefreshHash string, rotation domain.TokenRotation) (bool, error) {
	tx := s.db.WithContext(ctx).
		Model(&domain.TokenPair{}).
		Where("id = ? AND refresh_token_hash = ?", id, oldRefreshHash).
		Updates(map[string]any{
			"access_token_hash":  rotation.AccessTokenHash,
			"refresh_token_hash": rotation.RefreshTokenHash,
			"access_expires_at":  rotation.AccessExpiresAt,
			"refresh_expires_at": rotation.RefreshExpiresAt,
			"last_used_at":       rotation.UsedAt,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (s *store) DeleteTokenPair(ctx context.Context, id snowflake.ID) error {
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.TokenPair{}).Error
}

func (s *store) DeleteTokenPairByAccessHash(ctx context.Context, accessHash string) (bool, error) {
	tx := s.db.WithContext(ctx).Where("access_token_hash = ?", accessHash).Delete(&domain.TokenPair{})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (s *store) DeleteTokenPairByRefreshHash(ctx context.Context, refreshHash string) (bool, error) {
	tx := s.db.WithContext(ctx).Where("refresh_token_hash = ?", refreshHash).Delete(&domain.TokenPair{})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (s *store) TouchTokenPair(ctx context.Context, id snowflake.ID, usedAt time.Time) error {
	return s.db.WithContext(ctx).
		Model(&domain.TokenPair{}).
		Where("id = ?", id).
		Update("last_used_at", usedAt).Error
}

func (s *store) SetTokenPairSubscription(ctx context.Context, id snowflake.ID, subscriptionID snowflake.ID) error {
	return s.db.WithContext(ctx).
		Model(&domain.TokenPair{}).
		Where("id = ?", id).
		Update("subscription_id", subscriptionID).Error
}

func (s *store) DeleteExpiredTokenPairs(ctx context.Context, now time.Time) (int64, error) {
	tx := s.db.WithContext(ctx).
		Where("access_expires_at < ? AND (refresh_expires_at IS NULL OR refresh_expires_at < ?)", now, now).
		Delete(&domain.TokenPair{})
	return tx.RowsAffected, tx.Error
}
