package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/recyclesim/internal/audit/domain"
	"github.com/smallbiznis/recyclesim/internal/config"
	creditsdomain "github.com/smallbiznis/recyclesim/internal/credits/domain"
	deliverydomain "github.com/smallbiznis/recyclesim/internal/delivery/domain"
	"github.com/smallbiznis/recyclesim/internal/events"
	"github.com/smallbiznis/recyclesim/internal/observability"
	obslogger "github.com/smallbiznis/recyclesim/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/recyclesim/internal/observability/metrics"
	obstracing "github.com/smallbiznis/recyclesim/internal/observability/tracing"
	"github.com/smallbiznis/recyclesim/internal/ratelimit"
	recyclerdomain "github.com/smallbiznis/recyclesim/internal/recycler/domain"
	"github.com/smallbiznis/recyclesim/internal/routeworker"
	truckdomain "github.com/smallbiznis/recyclesim/internal/truck/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
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
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	engine      *gin.Engine
	cfg         config.Config
	db          *gorm.DB
	truckSvc    truckdomain.Service
	deliverySvc deliverydomain.Service
	recyclerSvc recyclerdomain.Service
	creditsSvc  creditsdomain.Service
	auditSvc    auditdomain.Service
	worker      *routeworker.Worker
	dispatcher  *events.Dispatcher
	outbox      *events.Outbox
	limiter     *ratelimit.IntakeLimiter
	usage       *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	TruckSvc    truckdomain.Service
	DeliverySvc deliverydomain.Service
	RecyclerSvc recyclerdomain.Service
	CreditsSvc  creditsdomain.Service `optional:"true"`
	AuditSvc    auditdomain.Service   `optional:"true"`
	Worker      *routeworker.Worker
	Dispatcher  *events.Dispatcher
	Outbox      *events.Outbox
	Limiter     *ratelimit.IntakeLimiter `optional:"true"`
	Usage       *obsmetrics.Metrics      `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		truckSvc:    p.TruckSvc,
		deliverySvc: p.DeliverySvc,
		recyclerSvc: p.RecyclerSvc,
		creditsSvc:  p.CreditsSvc,
		auditSvc:    p.AuditSvc,
		worker:      p.Worker,
		dispatcher:  p.Dispatcher,
		outbox:      p.Outbox,
		limiter:     p.Limiter,
		usage:       p.Usage,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	r := s.engine

	trucks := r.Group("/trucks")
	{
		trucks.GET("", s.ListTrucks)
		trucks.GET("/:id", s.GetTruck)
		trucks.POST("/:id/transition", s.TransitionTruck)
	}

	deliveries := r.Group("/deliveries")
	{
		deliveries.POST("", s.IntakeRateLimit(), s.SubmitDelivery)
		deliveries.GET("", s.ListDeliveries)
		deliveries.GET("/:id", s.GetDelivery)
		deliveries.GET("/:id/statement.pdf", s.DeliveryStatement)
	}

	recyclers := r.Group("/recyclers")
	{
		recyclers.GET("", s.ListRecyclers)
		recyclers.GET("/:id", s.GetRecycler)
	}

	if s.creditsSvc != nil {
		players := r.Group("/players")
		{
			players.GET("", s.ListPlayerCredits)
			players.GET("/:id/credits", s.GetPlayerCredits)
		}
	}
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", s.AdminRequired())
	{
		admin.POST("/deliveries/process-next", s.TriggerRateLimit(), s.ProcessNext)
		admin.POST("/deliveries/:id/retry", s.RetryDelivery)
		admin.POST("/recyclers/:id/reset", s.ResetRecycler)
		admin.GET("/outbox", s.OutboxStatus)
		admin.POST("/outbox/flush", s.FlushOutbox)
		if s.auditSvc != nil {
			admin.GET("/audit-logs", s.ListAuditLogs)
		}
	}
}
