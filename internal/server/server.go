package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/attendly/internal/config"
	"github.com/smallbiznis/attendly/internal/observability"
	"github.com/smallbiznis/attendly/internal/observability/logger"
	"github.com/smallbiznis/attendly/internal/observability/tracing"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("server",
	fx.Provide(
		NewPaymentHandler,
		NewSettlementHandler,
		NewEngine,
	),
	fx.Invoke(Run),
)

type EngineParams struct {
	fx.In

	ObsConfig   observability.Config
	Payments    *PaymentHandler
	Settlements *SettlementHandler
}

func NewEngine(p EngineParams) *gin.Engine {
	if !p.ObsConfig.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		tracing.GinMiddleware(),
		logger.GinMiddleware(logger.MiddlewareConfig{
			Debug:           p.ObsConfig.Debug(),
			ErrorClassifier: classifierForLogs,
		}),
		ErrorHandlingMiddleware(),
	)

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := engine.Group("/v1")
	p.Payments.Register(v1)
	p.Settlements.Register(v1)

	return engine
}

func Run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, engine *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server exited", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("http server stopping")
			return srv.Shutdown(ctx)
		},
	})
}
