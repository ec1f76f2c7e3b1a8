package search

import (
	"github.com/relaydocs/relaydocs/internal/config"
	"github.com/relaydocs/relaydocs/internal/gateway"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.search",
	fx.Provide(
		provideClient,
		func(c *Client) gateway.Searcher { return c },
		func(c *Client) gateway.SourceLister { return c },
		func(c *Client) gateway.InfoProvider { return c },
	),
)

func provideClient(cfg config.Config) *Client {
	return NewClient(cfg.SearchServiceURL)
}
