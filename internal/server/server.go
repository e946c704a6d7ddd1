package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/computeledger/internal/config"
	ledgerdomain "github.com/smallbiznis/computeledger/internal/ledger/domain"
	"github.com/smallbiznis/computeledger/internal/observability"
	obslogger "github.com/smallbiznis/computeledger/internal/observability/logger"
	obstracing "github.com/smallbiznis/computeledger/internal/observability/tracing"
	"github.com/smallbiznis/computeledger/internal/onboarding"
	paymentdomain "github.com/smallbiznis/computeledger/internal/payment/domain"
	pricingdomain "github.com/smallbiznis/computeledger/internal/pricing/domain"
	"github.com/smallbiznis/computeledger/internal/scheduler"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(
		func(s *onboarding.Service) tenantOnboarder { return s },
		func(s *scheduler.Scheduler) jobRunner { return s },
	),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

type tenantOnboarder interface {
	OnTenantCreated(ctx context.Context, evt onboarding.TenantCreated) (*ledgerdomain.Balance, error)
}

type jobRunner interface {
	RunJob(ctx context.Context, name string) error
}

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log.Named("http"), classifyErrorForLog))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger, obsCfg observability.Config) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(log)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.String("addr", srv.Addr), zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", srv.Addr))
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
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	ledgerSvc  ledgerdomain.Service
	pricingSvc pricingdomain.Service
	paymentSvc paymentdomain.Service
	onboarding tenantOnboarder
	jobs       jobRunner
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	LedgerSvc  ledgerdomain.Service
	PricingSvc pricingdomain.Service
	PaymentSvc paymentdomain.Service
	Onboarding tenantOnboarder
	Jobs       jobRunner `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("http.server"),
		ledgerSvc:  p.LedgerSvc,
		pricingSvc: p.PricingSvc,
		paymentSvc: p.PaymentSvc,
		onboarding: p.Onboarding,
		jobs:       p.Jobs,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.GET("/presets", s.ListPresets)
	api.GET("/presets/:id", s.GetPreset)
	api.GET("/addon-rate", s.GetAddonRate)

	api.GET("/balances/:tenant", s.GetBalance)
	api.GET("/balances/:tenant/transactions", s.ListTransactions)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", s.AdminTokenRequired())

	admin.POST("/tenants", s.CreateTenant)
	admin.GET("/balances/:tenant/verify", s.VerifyBalance)
	admin.POST("/payments/events", s.IngestPaymentEvent)

	admin.POST("/presets", s.CreatePreset)
	admin.PATCH("/presets/:id/price", s.UpdatePresetPrice)
	admin.POST("/presets/:id/activate", s.ActivatePreset)
	admin.POST("/presets/:id/deactivate", s.DeactivatePreset)
	admin.POST("/addon-rates", s.CreateAddonRate)

	admin.POST("/jobs/:job/run", s.RunJob)
}
