package repo

import (
	"github.com/relaydocs/relaydocs/internal/repo/repository"
	"github.com/relaydocs/relaydocs/internal/repo/service"
	"go.uber.org/fx"
)

var Module = fx.Module("repo.service",
	fx.Provide(repository.New),
	fx.Provide(service.New),
)
