package gateway

import (
	"github.com/relaydocs/relaydocs/internal/config"
	"github.com/relaydocs/relaydocs/internal/observability/metrics"
	"github.com/relaydocs/relaydocs/internal/requestlog"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("gateway",
	fx.Provide(provideDispatcher),
)

func provideDispatcher(
	cfg config.Config,
	search Searcher,
	sources SourceLister,
	info InfoProvider,
	m *metrics.Metrics,
	logs *requestlog.Writer,
	log *zap.Logger,
) *Dispatcher {
	deps := Deps{
		Search:  search,
		Sources: sources,
		Info:    info,
		Metrics: m,
		Logs:    logs,
	}
	return NewDispatcher(deps, cfg.AppName, cfg.AppVersion, log)
}
