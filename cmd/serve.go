package cmd

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/condoflow/ms-go-reconciliation/app/controller"
	"github.com/condoflow/ms-go-reconciliation/app/gateway"
	"github.com/condoflow/ms-go-reconciliation/app/metrics"
	"github.com/condoflow/ms-go-reconciliation/app/repository"
	"github.com/condoflow/ms-go-reconciliation/app/service"
	"github.com/condoflow/ms-go-reconciliation/app/types"
	"github.com/condoflow/ms-go-reconciliation/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  "Start the HTTP (Echo) server with the embedded webhook retry poller.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, deps, cleanup := mustCreateServices()
	defer cleanup()

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	err := deps.ledgerService.ValidateRoleAccounts(startupCtx)
	cancelStartup()
	if err != nil {
		logrus.WithError(err).Fatal("Role account validation failed")
	}

	metrics.Register(deps.db)

	webhookController := controller.NewWebhookController(deps.reconciliationService)
	ledgerController := controller.NewLedgerController(deps.ledgerService)

	e := setupHTTPServer(webhookController, ledgerController, cfg.App.APIKey)

	pollerCtx, stopPoller := context.WithCancel(context.Background())
	go runRetryPoller(pollerCtx, deps.reconciliationService, cfg.Retry.PollInterval)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	stopPoller()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}

	logrus.Info("Server stopped")
}

func setupHTTPServer(
	webhookController *controller.WebhookController,
	ledgerController *controller.LedgerController,
	apiKey string,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
				"request_id": v.RequestID,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(echomiddleware.RequestIDWithConfig(echomiddleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))

	e.GET("/health", webhookController.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Gateways authenticate per-request with signatures, never with our
	// internal API key.
	webhooks := e.Group("/webhooks/gateways")
	webhooks.POST("/:gateway", webhookController.HandleGatewayWebhook)

	ledger := e.Group("/ledger", requireAPIKey(apiKey))
	ledger.POST("/entries", ledgerController.CreateEntry)
	ledger.GET("/entries/:id", ledgerController.GetEntry)
	ledger.POST("/entries/:id/confirm", ledgerController.ConfirmEntry)
	ledger.POST("/entries/:id/cancel", ledgerController.CancelEntry)
	ledger.GET("/trial-balance", ledgerController.TrialBalance)

	return e
}

func requireAPIKey(apiKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if apiKey == "" {
				return next(ctx)
			}
			provided := ctx.Request().Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				return ctx.JSON(http.StatusUnauthorized, &types.ErrorResponse{Error: "invalid api key"})
			}
			return next(ctx)
		}
	}
}

func runRetryPoller(ctx context.Context, reconciliationService *service.ReconciliationService, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Retry poller stopped")
			return
		case <-ticker.C:
			if err := reconciliationService.ProcessRetryBatch(ctx); err != nil {
				logrus.WithError(err).Error("Retry batch failed")
			}
		}
	}
}

type serverDeps struct {
	db                    *sql.DB
	reconciliationService *service.ReconciliationService
	ledgerService         *service.LedgerService
}

func mustCreateServices() (*config.Config, *serverDeps, func()) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	webhookRepo := repository.NewWebhookEventRepository(db)
	entryRepo := repository.NewLedgerEntryRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	billingRepo := repository.NewBillingRecordRepository(db)

	registry := gateway.NewRegistry(
		gateway.NewMercadoPagoAdapter(gateway.MercadoPagoConfig{
			WebhookSecret:             cfg.Gateways.MercadoPago.WebhookSecret,
			SignatureToleranceSeconds: cfg.Gateways.MercadoPago.SignatureToleranceSeconds,
		}),
		gateway.NewPagarmeAdapter(gateway.PagarmeConfig{
			WebhookSecret: cfg.Gateways.Pagarme.WebhookSecret,
		}),
		gateway.NewAsaasAdapter(gateway.AsaasConfig{
			AccessToken: cfg.Gateways.Asaas.AccessToken,
		}),
	)

	alertNotifier := service.NewWebhookAlertNotifier(cfg.App.ServiceName, cfg.Alerts.WebhookURL, cfg.Alerts.HTTPTimeout)
	ledgerService := service.NewLedgerService(entryRepo, accountRepo)
	reconciliationService := service.NewReconciliationService(
		webhookRepo,
		billingRepo,
		ledgerService,
		registry,
		alertNotifier,
		cfg.Retry,
	)

	cleanup := func() {
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return cfg, &serverDeps{
		db:                    db,
		reconciliationService: reconciliationService,
		ledgerService:         ledgerService,
	}, cleanup
}
