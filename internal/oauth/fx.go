package oauth

import (
	"github.com/relaydocs/relaydocs/internal/config"
	"github.com/relaydocs/relaydocs/internal/oauth/repository"
	"github.com/relaydocs/relaydocs/internal/oauth/service"
	"go.uber.org/fx"
)

var Module = fx.Module("oauth.service",
	fx.Provide(repository.New),
	fx.Provide(provideServiceConfig),
	fx.Provide(service.New),
)

func provideServiceConfig(cfg config.Config) service.Config {
	return service.Config{
		CodeTTL:    cfg.AuthCodeTTL,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	}
}
