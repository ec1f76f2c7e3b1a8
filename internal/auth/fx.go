package auth

import (
	"github.com/relaydocs/relaydocs/internal/auth/repository"
	"github.com/relaydocs/relaydocs/internal/auth/service"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.service",
	fx.Provide(repository.New),
	fx.Provide(service.New),
)
