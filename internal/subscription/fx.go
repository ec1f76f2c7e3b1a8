package subscription

import (
	"github.com/relaydocs/relaydocs/internal/subscription/repository"
	"github.com/relaydocs/relaydocs/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.New),
	fx.Provide(service.New),
)
