package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/entityusage/internal/config"
	entitydomain "github.com/smallbiznis/entityusage/internal/entity/domain"
	"github.com/smallbiznis/entityusage/internal/observability"
	obslogger "github.com/smallbiznis/entityusage/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/entityusage/internal/observability/metrics"
	obstracing "github.com/smallbiznis/entityusage/internal/observability/tracing"
	"github.com/smallbiznis/entityusage/internal/ratelimit"
	usagedomain "github.com/smallbiznis/entityusage/internal/usage/domain"
	"github.com/smallbiznis/entityusage/internal/usage/liveevents"
	"github.com/smallbiznis/entityusage/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *telemetry.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(HTTPMetricsMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
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
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
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
	engine       *gin.Engine
	entitySvc    entitydomain.Service
	usageSvc     usagedomain.Service
	liveEvents   *liveevents.Hub
	usageLimiter *ratelimit.UsageReportLimiter
	obsMetrics   *obsmetrics.Metrics
	httpMetrics  *telemetry.Metrics
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	EntitySvc    entitydomain.Service
	UsageSvc     usagedomain.Service
	LiveEvents   *liveevents.Hub               `optional:"true"`
	UsageLimiter *ratelimit.UsageReportLimiter `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics           `optional:"true"`
	HTTPMetrics  *telemetry.Metrics            `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		entitySvc:    p.EntitySvc,
		usageSvc:     p.UsageSvc,
		liveEvents:   p.LiveEvents,
		usageLimiter: p.UsageLimiter,
		obsMetrics:   p.ObsMetrics,
		httpMetrics:  p.HTTPMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1")

	// -------- Usage --------
	usage := api.Group("/usage")
	usage.POST("/compute.percentile/:entity/:date", s.ComputePercentile)
	usage.POST("/:entity/:id", s.UsageReportRateLimit(), s.ReportUsage)
	usage.POST("/:entity/name/:fqn", s.UsageReportRateLimit(), s.ReportUsageByName)
	usage.GET("/:entity/:id", s.GetUsage)
	usage.GET("/:entity/name/:fqn", s.GetUsageByName)
	usage.GET("/:entity/live", s.StreamUsageLiveEvents)

	// -------- Entities --------
	entities := api.Group("/entities")
	entities.POST("/:entity", s.CreateEntity)
	entities.GET("/:entity", s.ListEntities)
	entities.GET("/:entity/:id", s.GetEntityByID)
	entities.GET("/:entity/name/:fqn", s.GetEntityByName)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
