package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/clipverse/payrail/internal/clearing"
	"github.com/clipverse/payrail/internal/commission"
	commissiondomain "github.com/clipverse/payrail/internal/commission/domain"
	"github.com/clipverse/payrail/internal/config"
	"github.com/clipverse/payrail/internal/evidence"
	"github.com/clipverse/payrail/internal/fraud"
	frauddomain "github.com/clipverse/payrail/internal/fraud/domain"
	"github.com/clipverse/payrail/internal/ledger"
	ledgerdomain "github.com/clipverse/payrail/internal/ledger/domain"
	obsmiddleware "github.com/clipverse/payrail/internal/observability/logger"
	obsmetrics "github.com/clipverse/payrail/internal/observability/metrics"
	obstracing "github.com/clipverse/payrail/internal/observability/tracing"
	"github.com/clipverse/payrail/internal/payout"
	payoutdomain "github.com/clipverse/payrail/internal/payout/domain"
	"github.com/clipverse/payrail/internal/providers/trust"
	"github.com/clipverse/payrail/internal/ratelimit"
	"github.com/clipverse/payrail/internal/refund"
	refunddomain "github.com/clipverse/payrail/internal/refund/domain"
	"github.com/clipverse/payrail/internal/review"
	"github.com/clipverse/payrail/internal/session"
	sessiondomain "github.com/clipverse/payrail/internal/session/domain"
	"github.com/clipverse/payrail/internal/wallet"
	walletdomain "github.com/clipverse/payrail/internal/wallet/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	trust.Module,
	ledger.Module,
	commission.Module,
	wallet.Module,
	session.Module,
	fraud.Module,
	evidence.Module,
	clearing.Module,
	review.Module,
	payout.Module,
	refund.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, m *obsmetrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(log))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(m))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger, m *obsmetrics.Metrics) *gin.Engine {
	return NewEngine(log, m)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
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
	engine *gin.Engine
	cfg    config.Config
	log    *zap.Logger

	ledgerSvc     ledgerdomain.Service
	commissionSvc commissiondomain.Service
	walletSvc     walletdomain.Service
	sessionSvc    sessiondomain.Service
	fraudSvc      frauddomain.Service
	evidenceSvc   *evidence.Service
	adjudicator   *review.Adjudicator
	scheduler     *clearing.Scheduler
	payoutSvc     payoutdomain.Service
	refundSvc     refunddomain.Service

	limiter *ratelimit.SettlementLimiter
}

type ServerParams struct {
	fx.In

	Gin   *gin.Engine
	Cfg   config.Config
	Log   *zap.Logger

	LedgerSvc     ledgerdomain.Service
	CommissionSvc commissiondomain.Service
	WalletSvc     walletdomain.Service
	SessionSvc    sessiondomain.Service
	FraudSvc      frauddomain.Service
	EvidenceSvc   *evidence.Service
	Adjudicator   *review.Adjudicator
	Scheduler     *clearing.Scheduler
	PayoutSvc     payoutdomain.Service
	RefundSvc     refunddomain.Service

	Limiter *ratelimit.SettlementLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http.server"),
		ledgerSvc:     p.LedgerSvc,
		commissionSvc: p.CommissionSvc,
		walletSvc:     p.WalletSvc,
		sessionSvc:    p.SessionSvc,
		fraudSvc:      p.FraudSvc,
		evidenceSvc:   p.EvidenceSvc,
		adjudicator:   p.Adjudicator,
		scheduler:     p.Scheduler,
		payoutSvc:     p.PayoutSvc,
		refundSvc:     p.RefundSvc,
		limiter:       p.Limiter,
	}

	svc.registerSettlementRoutes()
	svc.registerPayoutRoutes()
	svc.registerCommissionRoutes()
	svc.registerSessionRoutes()
	svc.registerWalletRoutes()
	svc.registerRefundRoutes()

	return svc
}
