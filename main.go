package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yourusername/escrow-demo/config"
	"github.com/yourusername/escrow-demo/disputes"
	"github.com/yourusername/escrow-demo/handlers"
	"github.com/yourusername/escrow-demo/ledger"
	"github.com/yourusername/escrow-demo/logging"
	"github.com/yourusername/escrow-demo/metrics"
	"github.com/yourusername/escrow-demo/middleware"
	"github.com/yourusername/escrow-demo/services"
	"github.com/yourusername/escrow-demo/utils"
	"github.com/zoobzio/clockz"
	"gorm.io/gorm"
)

const serviceName = "escrow-demo-api"

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := logging.Setup(serviceName, cfg.AppEnv, logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to the chain
	eth, err := utils.DialEthClient(ctx, cfg.RPCURL)
	if err != nil {
		log.Fatalf("Failed to connect to RPC: %v", err)
	}
	defer eth.Close()

	m := metrics.Escrow()
	client := utils.NewEscrowClient(eth, common.HexToAddress(cfg.EscrowAddress),
		utils.WithChainID(cfg.ChainID),
		utils.WithLogger(logger),
		utils.WithMetrics(m),
	)

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	router := setupRouter(cfg, client, db, clockz.RealClock, logger, m)

	port := cfg.Port
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", port, "escrow", cfg.EscrowAddress)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

// setupRouter builds every service on top of client and registers the routes.
// db may be nil, in which case disputes are kept in memory.
func setupRouter(cfg *config.Config, client utils.EscrowClientInterface, db *gorm.DB, clock clockz.Clock, logger *slog.Logger, m *metrics.EscrowMetrics) *gin.Engine {
	var store disputes.Ledger
	if db != nil {
		store = disputes.NewGormStore(db, clock)
	} else {
		store = disputes.NewMemoryStore(clock)
	}

	operator := common.HexToAddress(cfg.Operator)
	if signer, err := utils.ParsePrivateKey(cfg.OperatorPrivateKey); err == nil && operator == (common.Address{}) {
		operator = signer.Address
	}

	dashboard := services.NewDashboard(client, store, ledger.NewSession(clock.Now()), services.DashboardConfig{
		Lookback: cfg.LookbackBlocks,
		Operator: operator,
		Token:    common.HexToAddress(cfg.DemoToken),
	}, clock, logger, m)

	orchestrator := services.NewOrchestrator(client, services.OrchestratorConfig{
		Escrow:               common.HexToAddress(cfg.EscrowAddress),
		PreApprovalCollector: common.HexToAddress(cfg.PreApprovalCollector),
		RefundCollector:      common.HexToAddress(cfg.OperatorRefundCollector),
		Token:                common.HexToAddress(cfg.DemoToken),
		Merchant:             common.HexToAddress(cfg.Merchant),
		Payer:                common.HexToAddress(cfg.Payer),
		Operator:             operator,
		OperatorKey:          cfg.OperatorPrivateKey,
		PayerKey:             cfg.PayerPrivateKey,
		DemoSalt:             cfg.PaymentSalt,
		ReceiptTimeout:       cfg.ReceiptTimeout,
	}, clock, logger, m)

	// Setup router
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestMetrics(m))

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": serviceName,
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	dashboardHandler := handlers.NewDashboardHandler(dashboard)
	disputeHandler := handlers.NewDisputeHandler(store, dashboard)
	flowHandler := handlers.NewFlowHandler(orchestrator, dashboard)
	authHandler := handlers.NewAuthHandler(cfg)

	auth := []gin.HandlerFunc{middleware.JwtAuthMiddleware(cfg), middleware.RequireRole(cfg, middleware.RoleOperator)}
	limiter := middleware.NewRateLimiter(middleware.RateLimit{
		RequestsPerMinute: float64(cfg.FlowRatePerMinute),
		Burst:             5,
	}, clock)

	// API routes
	api := router.Group("/api/v1")
	{
		api.POST("/auth/token", authHandler.Token)
		api.POST("/auth/refresh", authHandler.Refresh)
		api.POST("/payment/build", flowHandler.BuildPayment)

		dash := api.Group("/dashboard")
		dash.GET("/kpis", dashboardHandler.GetKPIs)
		dash.GET("/payments", dashboardHandler.ListPayments)
		dash.GET("/payments/:id", dashboardHandler.GetPayment)
		dash.GET("/refunds", dashboardHandler.ListRefunds)
		dash.GET("/disputes", disputeHandler.ListDisputes)

		ops := dash.Group("", auth...)
		ops.POST("/disputes", disputeHandler.CreateDispute)
		ops.PATCH("/disputes", disputeHandler.UpdateDispute)
		ops.POST("/session", dashboardHandler.ResetSession)
		ops.POST("/refunds", limiter.Middleware(), flowHandler.Refund)

		flows := api.Group("", auth...)
		flows.Use(limiter.Middleware())
		flows.POST("/charge", flowHandler.Charge)
		flows.POST("/authorize-capture", flowHandler.AuthorizeCapture)
		flows.POST("/capture", flowHandler.Capture)
		flows.POST("/void", flowHandler.Void)
		flows.POST("/reclaim", flowHandler.Reclaim)
		flows.POST("/run-demo", flowHandler.RunDemo)
	}

	return router
}
