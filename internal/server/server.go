package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/notifier/internal/config"
	"github.com/smallbiznis/notifier/internal/notification/domain"
	"github.com/smallbiznis/notifier/internal/observability"
	obslogger "github.com/smallbiznis/notifier/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/notifier/internal/observability/metrics"
	obstracing "github.com/smallbiznis/notifier/internal/observability/tracing"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(corsConfig(cfg.HTTP.AllowedOrigins)))
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

func corsConfig(origins []string) cors.Config {
	c := cors.DefaultConfig()
	c.AllowMethods = []string{http.MethodGet, http.MethodOptions}
	c.AllowHeaders = append(c.AllowHeaders, "X-Request-Id", "X-Correlation-Id")
	c.ExposeHeaders = []string{"X-Request-Id"}
	for _, o := range origins {
		if o == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	c.AllowOrigins = origins
	if len(origins) == 0 {
		c.AllowAllOrigins = true
	}
	return c
}

type Params struct {
	fx.In

	Engine *gin.Engine
	Log    *zap.Logger
	Svc    domain.Service
	DB     *gorm.DB `optional:"true"`
}

// Server exposes the notification history over HTTP.
type Server struct {
	engine *gin.Engine
	log    *zap.Logger
	svc    domain.Service
	db     *gorm.DB
}

func NewServer(p Params) *Server {
	return &Server{
		engine: p.Engine,
		log:    p.Log.Named("http.server"),
		svc:    p.Svc,
		db:     p.DB,
	}
}

func registerRoutes(s *Server) {
	s.RegisterRoutes()
}

func (s *Server) RegisterRoutes() {
	s.engine.GET("/health", s.Health)

	api := s.engine.Group("/api/notifications")
	api.GET("", s.ListNotifications)
	api.GET("/user/:userId", s.ListNotificationsByUser)
	api.GET("/order/:orderId", s.ListNotificationsByOrder)
}

func (s *Server) Health(c *gin.Context) {
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			s.log.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": "down"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine, shutdowner fx.Shutdowner) {
	if !cfg.HTTP.Enabled {
		return
	}
	log = log.Named("http.server")
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			log.Info("http server listening", zap.String("addr", srv.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			grace := cfg.HTTP.ShutdownGrace
			if grace <= 0 {
				grace = 10 * time.Second
			}
			shutdownCtx, cancel := context.WithTimeout(ctx, grace)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
