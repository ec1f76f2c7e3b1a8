package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/relaydocs/relaydocs/internal/auth/domain"
	"github.com/relaydocs/relaydocs/internal/auth/password"
	repodomain "github.com/relaydocs/relaydocs/internal/repo/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	devAdminEmail    = "admin@relaydocs.local"
	devAdminPassword = "admin"
	devAdminDisplay  = "RelayDocs Admin"

	demoRepoName = "Getting Started"
	demoRepoSlug = "getting-started"
)

// EnsureDevAdmin seeds a local admin user and a demo repository so a fresh
// development install is usable without manual signup. Production startup
// never calls this.
func EnsureDevAdmin(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := ensureAdminUserTx(ctx, tx, node)
		if err != nil {
			return err
		}
		return ensureDemoRepositoryTx(ctx, tx, node, user.ID)
	})
}

func ensureAdminUserTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (authdomain.User, error) {
	var user authdomain.User
	err := tx.WithContext(ctx).Where("email = ?", devAdminEmail).First(&user).Error
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return user, err
	}

	hashed, err := password.Hash(devAdminPassword)
	if err != nil {
		return user, err
	}
	now := time.Now().UTC()
	user = authdomain.User{
		ID:           node.Generate(),
		Email:        strings.ToLower(devAdminEmail),
		DisplayName:  devAdminDisplay,
		PasswordHash: &hashed,
		Metadata:     datatypes.JSONMap{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return user, tx.WithContext(ctx).Create(&user).Error
}

func ensureDemoRepositoryTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, ownerID snowflake.ID) error {
	var repository repodomain.Repository
	err := tx.WithContext(ctx).Where("slug = ?", demoRepoSlug).First(&repository).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	now := time.Now().UTC()
	repository = repodomain.Repository{
		ID:             node.Generate(),
		OwnerID:        ownerID,
		Name:           demoRepoName,
		Slug:           demoRepoSlug,
		Description:    "Sample corpus to try the gateway end to end.",
		Public:         true,
		GatewayEnabled: true,
		Tier:           repodomain.TierFree,
		Metadata:       datatypes.JSONMap{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return tx.WithContext(ctx).Create(&repository).Error
}
