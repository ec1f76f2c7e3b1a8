package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/relaydocs/relaydocs/internal/auth"
	authdomain "github.com/relaydocs/relaydocs/internal/auth/domain"
	authlocal "github.com/relaydocs/relaydocs/internal/auth/local"
	"github.com/relaydocs/relaydocs/internal/auth/session"
	"github.com/relaydocs/relaydocs/internal/config"
	"github.com/relaydocs/relaydocs/internal/gateway"
	"github.com/relaydocs/relaydocs/internal/oauth"
	oauthservice "github.com/relaydocs/relaydocs/internal/oauth/service"
	"github.com/relaydocs/relaydocs/internal/observability"
	obsmiddleware "github.com/relaydocs/relaydocs/internal/observability/logger"
	obsmetrics "github.com/relaydocs/relaydocs/internal/observability/metrics"
	obstracing "github.com/relaydocs/relaydocs/internal/observability/tracing"
	"github.com/relaydocs/relaydocs/internal/providers/search"
	"github.com/relaydocs/relaydocs/internal/ratelimit"
	"github.com/relaydocs/relaydocs/internal/repo"
	repodomain "github.com/relaydocs/relaydocs/internal/repo/domain"
	"github.com/relaydocs/relaydocs/internal/requestlog"
	"github.com/relaydocs/relaydocs/internal/subscription"
	subscriptionservice "github.com/relaydocs/relaydocs/internal/subscription/service"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	fx.Provide(registerGin),
	auth.Module,
	authlocal.Module,
	session.Module,
	repo.Module,
	oauth.Module,
	subscription.Module,
	ratelimit.Module,
	requestlog.Module,
	search.Module,
	gateway.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	authsvc         authdomain.Service
	sessions        *session.Manager
	genID           *snowflake.Node
	reposvc         repodomain.Service
	oauthsvc        *oauthservice.Service
	subscriptionSvc *subscriptionservice.Service
	limiter         *ratelimit.GatewayLimiter
	gatewayCfg      *config.GatewayConfigHolder
	dispatcher      *gateway.Dispatcher
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	Authsvc         authdomain.Service
	AuthHandler     *authlocal.Handler
	Sessions        *session.Manager
	GenID           *snowflake.Node
	Reposvc         repodomain.Service
	OAuthsvc        *oauthservice.Service
	SubscriptionSvc *subscriptionservice.Service
	Limiter         *ratelimit.GatewayLimiter `optional:"true"`
	GatewayCfg      *config.GatewayConfigHolder
	Dispatcher      *gateway.Dispatcher
	ObsMetrics      *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		authsvc:         p.Authsvc,
		sessions:        p.Sessions,
		genID:           p.GenID,
		reposvc:         p.Reposvc,
		oauthsvc:        p.OAuthsvc,
		subscriptionSvc: p.SubscriptionSvc,
		limiter:         p.Limiter,
		gatewayCfg:      p.GatewayCfg,
		dispatcher:      p.Dispatcher,
		obsMetrics:      p.ObsMetrics,
	}

	authlocal.RegisterRoutes(p.Gin, p.AuthHandler)
	svc.registerOAuthRoutes()
	svc.registerAPIRoutes()
	svc.registerGatewayRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerOAuthRoutes() {
	s.engine.GET("/.well-known/oauth-authorization-server", s.DiscoveryMetadata)
	s.engine.GET("/authorize", s.Authorize)
	s.engine.POST("/token", s.Token)
	s.engine.POST("/revoke", s.Revoke)
}

func (s *Server) registerAPIRoutes() {
	clients := s.engine.Group("/clients", s.WebAuthRequired())
	{
		clients.POST("", s.RegisterClient)
		clients.GET("", s.ListClients)
		clients.DELETE("/:client_id", s.RevokeClient)
	}

	repositories := s.engine.Group("/repositories", s.WebAuthRequired())
	{
		repositories.POST("", s.CreateRepository)
		repositories.GET("", s.ListRepositories)
		repositories.GET("/:id", s.GetRepository)
		repositories.PATCH("/:id", s.UpdateRepository)
		repositories.DELETE("/:id", s.DeleteRepository)
	}

	s.engine.POST("/webhooks/billing", s.BillingWebhook)
}

func (s *Server) registerGatewayRoutes() {
	mcp := s.engine.Group("/mcp/:slug", s.GatewayAuthRequired())
	{
		mcp.POST("", s.GatewayDispatch)
		mcp.GET("", s.GatewayMetadataOrStream)
	}
}
