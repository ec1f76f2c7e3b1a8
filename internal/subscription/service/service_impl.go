package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	repodomain "github.com/relaydocs/relaydocs/internal/repo/domain"
	"github.com/relaydocs/relaydocs/internal/subscription/domain"
	"go.uber.org/zap"
)

// Denial reasons surfaced to the gateway for error mapping.
const (
	ReasonOwner               = "owner"
	ReasonFreeTier            = "free_tier"
	ReasonSubscribed          = "subscribed"
	ReasonNotPublic           = "repository_not_public"
	ReasonGatewayDisabled     = "gateway_disabled"
	ReasonSubscriptionNeeded  = "subscription_required"
	ReasonSubscriptionLapsed  = "subscription_lapsed"
	ReasonSubscriptionMissing = "subscription_missing"
)

type Clock interface {
	Now() time.Time
}

type defaultClock struct{}

func (defaultClock) Now() time.Time { return time.Now().UTC() }

// Decision is the outcome of an entitlement check.
type Decision struct {
	Allowed        bool
	Reason         string
	SubscriptionID *snowflake.ID
}

type Service struct {
	repo  domain.Repository
	clock Clock
	genID *snowflake.Node
	log   *zap.Logger
}

func New(repo domain.Repository, genID *snowflake.Node, log *zap.Logger) *Service {
	return &Service{
		repo:  repo,
		clock: defaultClock{},
		genID: genID,
		log:   log.Named("subscription.service"),
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *Service) WithClock(clock Clock) *Service {
	s.clock = clock
	return s
}

// Resolve decides whether a principal may query a repository. The
// public/gateway gate applies to everyone, owners included. Past the gate,
// owners skip the subscription check; free repositories get a lazily
// created subscription for usage tracking; paid repositories require an
// entitled one.
func (s *Service) Resolve(ctx context.Context, repository *repodomain.Repository, userID snowflake.ID) (*Decision, error) {
	if !repository.Public {
		return &Decision{Allowed: false, Reason: ReasonNotPublic}, nil
	}
	if !repository.GatewayEnabled {
		return &Decision{Allowed: false, Reason: ReasonGatewayDisabled}, nil
	}
	if repository.OwnerID == userID {
		return &Decision{Allowed: true, Reason: ReasonOwner}, nil
	}

	if repository.Tier == repodomain.TierFree {
		subscription, err := s.ensureSubscription(ctx, userID, repository.ID)
		if err != nil {
			return nil, err
		}
		return &Decision{Allowed: true, Reason: ReasonFreeTier, SubscriptionID: &subscription.ID}, nil
	}

	subscription, err := s.repo.FindByUserAndRepository(ctx, userID, repository.ID)
	if errors.Is(err, domain.ErrSubscriptionNotFound) {
		return &Decision{Allowed: false, Reason: ReasonSubscriptionNeeded}, nil
	}
	if err != nil {
		return nil, err
	}
	if !subscription.CurrentlyEntitled(s.clock.Now()) {
		return &Decision{Allowed: false, Reason: ReasonSubscriptionLapsed, SubscriptionID: &subscription.ID}, nil
	}
	return &Decision{Allowed: true, Reason: ReasonSubscribed, SubscriptionID: &subscription.ID}, nil
}

// Verify re-checks a previously resolved subscription by id. Used by the
// gateway fast path for paid repositories.
func (s *Service) Verify(ctx context.Context, subscriptionID snowflake.ID) (*Decision, error) {
	subscription, err := s.repo.FindByID(ctx, subscriptionID)
	if errors.Is(err, domain.ErrSubscriptionNotFound) {
		return &Decision{Allowed: false, Reason: ReasonSubscriptionMissing}, nil
	}
	if err != nil {
		return nil, err
	}
	if !subscription.CurrentlyEntitled(s.clock.Now()) {
		return &Decision{Allowed: false, Reason: ReasonSubscriptionLapsed, SubscriptionID: &subscription.ID}, nil
	}
	return &Decision{Allowed: true, Reason: ReasonSubscribed, SubscriptionID: &subscription.ID}, nil
}

// ensureSubscription lazily creates an active subscription row, resolving
// unique-constraint conflicts to a fetch of the winning row.
func (s *Service) ensureSubscription(ctx context.Context, userID, repositoryID snowflake.ID) (*domain.Subscription, error) {
	existing, err := s.repo.FindByUserAndRepository(ctx, userID, repositoryID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrSubscriptionNotFound) {
		return nil, err
	}

	now := s.clock.Now()
	subscription := &domain.Subscription{
		ID:           s.genID.Generate(),
		UserID:       userID,
		RepositoryID: repositoryID,
		Status:       domain.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	insertErr := s.repo.Insert(ctx, subscription)
	if insertErr == nil {
		return subscription, nil
	}
	if errors.Is(insertErr, domain.ErrSubscriptionExists) {
		return s.repo.FindByUserAndRepository(ctx, userID, repositoryID)
	}
	return nil, insertErr
}

// BillingEvent is an external billing notification.
type BillingEvent struct {
	UserID           snowflake.ID
	RepositoryID     snowflake.ID
	Status           domain.Status
	CurrentPeriodEnd *time.Time
}

// ApplyBillingEvent upserts the subscription state carried by an external
// billing notification.
func (s *Service) ApplyBillingEvent(ctx context.Context, event BillingEvent) (*domain.Subscription, error) {
	if event.UserID == 0 || event.RepositoryID == 0 {
		return nil, domain.ErrSubscriptionNotFound
	}

	now := s.clock.Now()
	subscription, err := s.repo.FindByUserAndRepository(ctx, event.UserID, event.RepositoryID)
	if errors.Is(err, domain.ErrSubscriptionNotFound) {
		subscription = &domain.Subscription{
			ID:               s.genID.Generate(),
			UserID:           event.UserID,
			RepositoryID:     event.RepositoryID,
			Status:           event.Status,
			CurrentPeriodEnd: event.CurrentPeriodEnd,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if insertErr := s.repo.Insert(ctx, subscription); insertErr != nil {
			return nil, insertErr
		}
		return subscription, nil
	}
	if err != nil {
		return nil, err
	}

	fields := map[string]any{
		"status":             event.Status,
		"current_period_end": event.CurrentPeriodEnd,
		"updated_at":         now,
	}
	if err := s.repo.UpdateFields(ctx, subscription.ID, fields); err != nil {
		return nil, err
	}

	s.log.Info("billing event applied",
		zap.String("subscription_id", subscription.ID.String()),
		zap.String("status", string(event.Status)),
	)
	return s.repo.FindByID(ctx, subscription.ID)
}
