package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	repodomain "github.com/relaydocs/relaydocs/internal/repo/domain"
	"github.com/relaydocs/relaydocs/internal/subscription/domain"
	"github.com/relaydocs/relaydocs/internal/subscription/repository"
	"github.com/relaydocs/relaydocs/pkg/db"
	"go.uber.org/zap"
)

type staticClock struct {
	now time.Time
}

func (c *staticClock) Now() time.Time { return c.now }

func newTestService(t *testing.T) (*Service, *staticClock, *snowflake.Node) {
	t.Helper()

	dbConn, err := db.NewTest()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := dbConn.AutoMigrate(&domain.Subscription{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}

	clock := &staticClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := New(repository.New(dbConn), node, zap.NewNop()).WithClock(clock)
	return svc, clock, node
}

func freeRepo(node *snowflake.Node, owner snowflake.ID) *repodomain.Repository {
	return &repodomain.Repository{
		ID:             node.Generate(),
		OwnerID:        owner,
		Public:         true,
		GatewayEnabled: true,
		Tier:           repodomain.TierFree,
	}
}

func TestOwnerSkipsSubscriptionCheck(t *testing.T) {
	svc, _, node := newTestService(t)
	owner := node.Generate()

	repository := freeRepo(node, owner)
	repository.Tier = repodomain.TierPaid

	decision, err := svc.Resolve(context.Background(), repository, owner)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !decision.Allowed || decision.Reason != ReasonOwner {
		t.Fatalf("expected owner bypass, got %+v", decision)
	}
}

func TestGateAppliesToOwner(t *testing.T) {
	svc, _, node := newTestService(t)
	owner := node.Generate()

	repository := freeRepo(node, owner)
	repository.GatewayEnabled = false

	decision, err := svc.Resolve(context.Background(), repository, owner)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if decision.Allowed || decision.Reason != ReasonGatewayDisabled {
		t.Fatalf("expected gateway-disabled denial for owner, got %+v", decision)
	}
}

func TestPrivateRepositoryDeniesNonOwner(t *testing.T) {
	svc, _, node := newTestService(t)

	repository := freeRepo(node, node.Generate())
	repository.Public = false

	decision, err := svc.Resolve(context.Background(), repository, node.Generate())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if decision.Allowed || decision.Reason != ReasonNotPublic {
		t.Fatalf("expected not-public denial, got %+v", decision)
	}
}

func TestGatewayDisabledDeniesNonOwner(t *testing.T) {
	svc, _, node := newTestService(t)

	repository := freeRepo(node, node.Generate())
	repository.GatewayEnabled = false

	decision, err := svc.Resolve(context.Background(), repository, node.Generate())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if decision.Allowed || decision.Reason != ReasonGatewayDisabled {
		t.Fatalf("expected gateway-disabled denial, got %+v", decision)
	}
}

func TestFreeTierLazilyCreatesSubscription(t *testing.T) {
	svc, _, node := newTestService(t)
	ctx := context.Background()

	repository := freeRepo(node, node.Generate())
	caller := node.Generate()

	first, err := svc.Resolve(ctx, repository, caller)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !first.Allowed || first.SubscriptionID == nil {
		t.Fatalf("expected allowed with subscription, got %+v", first)
	}

	second, err := svc.Resolve(ctx, repository, caller)
	if err != nil {
		t.Fatalf("resolve again: %v", err)
	}
	if second.SubscriptionID == nil || *second.SubscriptionID != *first.SubscriptionID {
		t.Fatalf("expected same subscription row, got %+v then %+v", first, second)
	}
}

func TestPaidTierRequiresEntitledSubscription(t *testing.T) {
	svc, clock, node := newTestService(t)
	ctx := context.Background()

	repository := freeRepo(node, node.Generate())
	repository.Tier = repodomain.TierPaid
	caller := node.Generate()

	decision, err := svc.Resolve(ctx, repository, caller)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if decision.Allowed || decision.Reason != ReasonSubscriptionNeeded {
		t.Fatalf("expected subscription-required denial, got %+v", decision)
	}

	periodEnd := clock.now.Add(30 * 24 * time.Hour)
	subscription, err := svc.ApplyBillingEvent(ctx, BillingEvent{
		UserID:           caller,
		RepositoryID:     repository.ID,
		Status:           domain.StatusActive,
		CurrentPeriodEnd: &periodEnd,
	})
	if err != nil {
		t.Fatalf("apply billing event: %v", err)
	}

	decision, err = svc.Resolve(ctx, repository, caller)
	if err != nil {
		t.Fatalf("resolve after activation: %v", err)
	}
	if !decision.Allowed || decision.Reason != ReasonSubscribed {
		t.Fatalf("expected subscribed, got %+v", decision)
	}

	// past_due is denied even before the period lapses.
	if _, err := svc.ApplyBillingEvent(ctx, BillingEvent{
		UserID:       caller,
		RepositoryID: repository.ID,
		Status:       domain.StatusPastDue,
	}); err != nil {
		t.Fatalf("apply past_due event: %v", err)
	}
	decision, err = svc.Resolve(ctx, repository, caller)
	if err != nil {
		t.Fatalf("resolve past_due: %v", err)
	}
	if decision.Allowed || decision.Reason != ReasonSubscriptionLapsed {
		t.Fatalf("expected lapsed denial, got %+v", decision)
	}

	verify, err := svc.Verify(ctx, subscription.ID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verify.Allowed {
		t.Fatalf("expected verify to deny past_due subscription, got %+v", verify)
	}
}

func TestElapsedPeriodDenies(t *testing.T) {
	svc, clock, node := newTestService(t)
	ctx := context.Background()

	repository := freeRepo(node, node.Generate())
	repository.Tier = repodomain.TierPaid
	caller := node.Generate()

	periodEnd := clock.now.Add(24 * time.Hour)
	if _, err := svc.ApplyBillingEvent(ctx, BillingEvent{
		UserID:           caller,
		RepositoryID:     repository.ID,
		Status:           domain.StatusActive,
		CurrentPeriodEnd: &periodEnd,
	}); err != nil {
		t.Fatalf("apply billing event: %v", err)
	}

	clock.now = clock.now.Add(48 * time.Hour)
	decision, err := svc.Resolve(ctx, repository, caller)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if decision.Allowed || decision.Reason != ReasonSubscriptionLapsed {
		t.Fatalf("expected lapsed denial after period end, got %+v", decision)
	}
}
