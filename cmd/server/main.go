package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/novalabs/billing-service/internal/adapters/notify"
	"github.com/novalabs/billing-service/internal/adapters/postgres"
	"github.com/novalabs/billing-service/internal/adapters/toss"
	"github.com/novalabs/billing-service/internal/config"
	"github.com/novalabs/billing-service/internal/domain/ports"
	cronHandler "github.com/novalabs/billing-service/internal/handlers/cron"
	paymentHandler "github.com/novalabs/billing-service/internal/handlers/payment"
	"github.com/novalabs/billing-service/internal/services/billing"
	"github.com/novalabs/billing-service/internal/services/checkout"
	pkghttp "github.com/novalabs/billing-service/pkg/http"
	"github.com/novalabs/billing-service/pkg/observability"
	"github.com/novalabs/billing-service/pkg/security"
)

func main() {
	logger := initLogger()
	defer logger.Sync()

	logger.Info("Starting billing service",
		zap.String("version", "0.1.0"),
	)

	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()

	// Resolve secrets that are referenced by path instead of value
	secretManager := initSecretManager(ctx, cfg, logger)
	if cfg.Gateway.SecretKey == "" {
		secret, err := secretManager.GetSecret(ctx, cfg.Gateway.SecretKeyPath)
		if err != nil {
			logger.Fatal("Failed to load gateway secret key", zap.Error(err))
		}
		cfg.Gateway.SecretKey = secret.Value
	}
	if cfg.Billing.CronSecret == "" {
		secret, err := secretManager.GetSecret(ctx, cfg.Billing.CronSecretPath)
		if err != nil {
			logger.Fatal("Failed to load cron secret", zap.Error(err))
		}
		cfg.Billing.CronSecret = secret.Value
	}

	// Database
	db, err := postgres.NewDB(ctx, &postgres.Config{
		DatabaseURL: cfg.Database.ConnectionString(),
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	subscriptionStore := postgres.NewSubscriptionStore(db)
	paymentLedger := postgres.NewPaymentLedger(db)

	// Payment gateway
	portLogger := security.NewZapLogger(logger)
	gatewayTimeout := time.Duration(cfg.Gateway.Timeout) * time.Second
	httpClient := pkghttp.NewHTTPClient(pkghttp.GatewayClientConfig(), gatewayTimeout)
	gateway := toss.NewChargeAdapter(toss.Config{
		BaseURL:   cfg.Gateway.BaseURL,
		SecretKey: cfg.Gateway.SecretKey,
		Timeout:   gatewayTimeout,
	}, httpClient, portLogger)

	// Notifications
	notifier := initNotifier(cfg, logger)

	// Services
	schedulerConfig := billing.SchedulerConfig{
		BatchSize:        cfg.Billing.BatchSize,
		ChargesPerSecond: cfg.Billing.ChargesPerSecond,
	}
	executor := billing.NewChargeExecutor(gateway, portLogger)
	scheduler := billing.NewScheduler(subscriptionStore, executor, paymentLedger, notifier, schedulerConfig, portLogger)
	checkoutService := checkout.NewService(gateway, subscriptionStore, paymentLedger, notifier, portLogger)

	// HTTP server
	billingCron := cronHandler.NewBillingHandler(scheduler, schedulerConfig, logger, cfg.Billing.CronSecret)
	payments := paymentHandler.NewConfirmHandler(checkoutService, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/cron/billing", billingCron.RunSweep)
	mux.HandleFunc("/cron/health", billingCron.HealthCheck)
	payments.Register(mux)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 120 * time.Second, // sweeps can run long
		IdleTimeout:  60 * time.Second,
	}

	metricsServer := observability.StartMetricsServer(fmt.Sprintf("%d", cfg.Server.MetricsPort))

	go func() {
		logger.Info("HTTP server listening",
			zap.String("address", httpServer.Addr),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to serve HTTP", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down servers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	if err := observability.ShutdownMetricsServer(metricsServer); err != nil {
		logger.Error("Metrics server shutdown error", zap.Error(err))
	}
	if closer, ok := notifier.(interface{ Close() }); ok {
		closer.Close()
	}

	logger.Info("Servers stopped")
}

func initLogger() *zap.Logger {
	if os.Getenv("LOG_DEVELOPMENT") == "true" {
		logger, _ := zap.NewDevelopment()
		return logger
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(parseLogLevel(os.Getenv("LOG_LEVEL")))
	logger, _ := zapCfg.Build()
	return logger
}

func parseLogLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func initNotifier(cfg *config.Config, logger *zap.Logger) ports.Notifier {
	if cfg.Notify.AMQPURL == "" {
		logger.Warn("AMQP_URL not set, billing notifications are disabled")
		return notify.NewNoopNotifier(logger)
	}

	notifier, err := notify.NewAMQPNotifier(cfg.Notify.AMQPURL, logger)
	if err != nil {
		// Notifications are best-effort; the billing loop must start even
		// when the broker is down.
		logger.Error("Failed to connect to RabbitMQ, billing notifications are disabled",
			zap.Error(err),
		)
		return notify.NewNoopNotifier(logger)
	}
	return notifier
}
