// Package server exposes the HTTP surface: payment processing, billing
// queries and admin transitions.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	billingdomain "github.com/smallbiznis/premia/internal/billing/domain"
	"github.com/smallbiznis/premia/internal/config"
	gracedomain "github.com/smallbiznis/premia/internal/graceperiod/domain"
	paymentdomain "github.com/smallbiznis/premia/internal/payment/domain"
)

func NewEngine(cfg config.Config) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type Server struct {
	engine   *gin.Engine
	cfg      config.Config
	ledger   billingdomain.Service
	payments paymentdomain.Service
	graceSvc gracedomain.Service
	log      *zap.Logger
}

type Params struct {
	fx.In

	Gin      *gin.Engine
	Cfg      config.Config
	Ledger   billingdomain.Service
	Payments paymentdomain.Service
	GraceSvc gracedomain.Service
	Logger   *zap.Logger
}

func NewServer(p Params) *Server {
	s := &Server{
		engine:   p.Gin,
		cfg:      p.Cfg,
		ledger:   p.Ledger,
		payments: p.Payments,
		graceSvc: p.GraceSvc,
		log:      p.Logger.Named("http"),
	}
	s.registerAPIRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Payments --------
	api.POST("/payments/process", s.ProcessPayment)
	api.POST("/payments/:transaction_id/retry", s.RetryPayment)
	api.GET("/payments/history", s.ListPaymentHistory)
	api.GET("/payments/statistics", s.GetPaymentStatistics)
	api.GET("/payments/:transaction_id/status", s.GetPaymentStatus)
	api.POST("/payments/:transaction_id/refund", s.RefundPayment)

	// -------- Billing --------
	api.POST("/billing", s.CreateBilling)
	api.GET("/billing/delinquent", s.ListDelinquentBillings)
	api.GET("/billing/policy/:policy_id", s.ListBillingsByPolicy)
	api.GET("/billing/customer/:customer_id", s.ListBillingsByCustomer)
	api.POST("/billing/:policy_id/status", s.UpdateBillingStatus)

	// -------- Grace period rules --------
	api.GET("/grace-periods", s.ListGraceConfigs)
	api.PUT("/grace-periods", s.UpsertGraceConfig)
}

func run(lc fx.Lifecycle, s *Server) {
	srv := &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: s.engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					s.log.Fatal("http server failed", zap.Error(err))
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

var Module = fx.Module("http.server",
	fx.Provide(
		NewEngine,
		NewServer,
	),
	fx.Invoke(run),
)
