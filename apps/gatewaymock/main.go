// Standalone mock payment gateway for local development.
package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/premia/internal/config"
	"github.com/smallbiznis/premia/internal/gateway/mock"
	"github.com/smallbiznis/premia/internal/logger"
)

func newHandler(cfg config.Config, log *zap.Logger) *mock.Handler {
	return mock.New(cfg.Gateway.FailureRate, log)
}

func newEngine(h *mock.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	h.Register(r)
	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.Gateway.MockAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("mock gateway failed", zap.Error(err))
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

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(newHandler, newEngine),
		fx.Invoke(run),
	)
	app.Run()
}
