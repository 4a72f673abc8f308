package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	affiliatedomain "github.com/smallbiznis/stagepass/internal/affiliate/domain"
	"github.com/smallbiznis/stagepass/internal/clock"
	"github.com/smallbiznis/stagepass/internal/config"
	eventdomain "github.com/smallbiznis/stagepass/internal/event/domain"
	"github.com/smallbiznis/stagepass/internal/observability"
	obsmiddleware "github.com/smallbiznis/stagepass/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/stagepass/internal/observability/metrics"
	obstracing "github.com/smallbiznis/stagepass/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/stagepass/internal/payment/domain"
	payoutdomain "github.com/smallbiznis/stagepass/internal/payout/domain"
	"github.com/smallbiznis/stagepass/internal/ratelimit"
	ticketdomain "github.com/smallbiznis/stagepass/internal/ticket/domain"
	tipdomain "github.com/smallbiznis/stagepass/internal/tip/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
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
	if httpMetrics != nil {
		r.Use(httpMetrics.GinMiddleware())
	}
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

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http.server.start", zap.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http.server.failed", zap.Error(err))
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

// purchaseLimiter is satisfied by *ratelimit.PurchaseLimiter.
type purchaseLimiter interface {
	AllowUser(ctx context.Context, userID string) (*ratelimit.RateLimitResult, error)
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	clock           clock.Clock
	ticketSvc       ticketdomain.Service
	eventSvc        eventdomain.Service
	affiliateSvc    affiliatedomain.Service
	tipSvc          tipdomain.Service
	paymentSvc      paymentdomain.Service
	payoutSvc       payoutdomain.Service
	purchaseLimiter purchaseLimiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	Clock           clock.Clock
	TicketSvc       ticketdomain.Service
	EventSvc        eventdomain.Service
	AffiliateSvc    affiliatedomain.Service
	TipSvc          tipdomain.Service
	PaymentSvc      paymentdomain.Service
	PayoutSvc       payoutdomain.Service
	PurchaseLimiter *ratelimit.PurchaseLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics        `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		log:          p.Log.Named("http.server"),
		clock:        p.Clock,
		ticketSvc:    p.TicketSvc,
		eventSvc:     p.EventSvc,
		affiliateSvc: p.AffiliateSvc,
		tipSvc:       p.TipSvc,
		paymentSvc:   p.PaymentSvc,
		payoutSvc:    p.PayoutSvc,
		obsMetrics:   p.ObsMetrics,
	}
	if p.PurchaseLimiter != nil {
		svc.purchaseLimiter = p.PurchaseLimiter
	}

	svc.registerAPIRoutes()
	svc.registerInternalRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.POST("/webhooks/:provider", s.HandlePaymentWebhook)

	user := api.Group("", s.UserAuthRequired())
	{
		user.POST("/tickets/purchase", s.PurchaseRateLimit(), s.PurchaseTicket)
		user.POST("/affiliates", s.RegisterAffiliate)
		user.POST("/tips", s.CreateTip)
	}

	artist := api.Group("/events", s.UserAuthRequired(), RequireArtist())
	{
		artist.POST("", s.CreateEvent)
		artist.PATCH("/:id/price", s.UpdateEventPrice)
		artist.POST("/:id/start", s.TransitionEvent(eventdomain.StatusLive))
		artist.POST("/:id/end", s.TransitionEvent(eventdomain.StatusEnded))
		artist.POST("/:id/cancel", s.TransitionEvent(eventdomain.StatusCancelled))
	}
}

func (s *Server) registerInternalRoutes() {
	internal := s.engine.Group("/internal", s.CronSecretRequired())
	{
		internal.POST("/payouts/run", s.RunPayouts)
		internal.GET("/payouts", s.ListPayouts)
	}
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
