package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"time"

	"gastos/internal/amqp"
	"gastos/internal/auth"
	"gastos/internal/cache"
	"gastos/internal/cli"
	"gastos/internal/config"
	"gastos/internal/events"
	apphttp "gastos/internal/http"
	applog "gastos/internal/log"
	"gastos/internal/mail"
	"gastos/internal/metrics"
	"gastos/internal/preferences"
	"gastos/internal/services"
	"gastos/internal/store"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentApp)

	ctx := context.Background()
	res := cli.InitBackend(ctx, logger, cfg)

	// Publishing is optional: without a broker, expenses are still saved and
	// counterparties are notified inline.
	var (
		publisher  services.SyncPublisher
		amqpClient *amqp.Client
	)
	if cfg.AMQPURL != "" {
		c, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		amqpClient = c
		publisher = c
	} else {
		logger.Info("AMQP disabled, sync messages will not be published")
	}

	inline := services.NewNotificationService(res.Backend, newSender(cfg))
	var notifier store.Notifier = inline
	if amqpClient != nil {
		notifier = services.NewAsyncNotifier(amqpClient, inline)
	}

	bus := events.New()
	remote := services.NewExpenseService(res.Backend, publisher)
	registry := store.NewRegistry(remote, bus, notifier, cfg.MaxUsers, cfg.StoreTTL)

	m := metrics.New(func() float64 { return float64(registry.Size()) })
	registry.SetHooks(store.Hooks{
		StaleLoad:  m.StaleLoads.Inc,
		Reconciled: m.Reconciliations.Inc,
	})

	caches := cache.NewManager()
	caches.Register(registry)
	caches.StartCleanup(5 * time.Minute)

	srv := apphttp.NewServer(net.JoinHostPort("", cfg.Port), apphttp.Deps{
		Stores:        registry,
		Bus:           bus,
		Auth:          auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL),
		Preferences:   preferences.NewService(res.Backend),
		Notifications: res.Backend,
		Users:         res.Backend,
		People:        res.Backend,
		Metrics:       m,
		Logger:        logger.WithComponent(applog.ComponentHTTP),
		Ready:         res.Ping,
		RateLimitRPM:  cfg.RateLimitRPM,
	})

	shutdownCtx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		caches.Stop()
		// Background deletes must reach the data service before it closes.
		registry.Wait()
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("Failed to close AMQP client", "error", err)
			}
		}
		if res.Cleanup != nil {
			if err := res.Cleanup(); err != nil {
				logger.Error("Failed to close backend", "error", err)
			}
		}
	})

	logger.Info("Starting gastos server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}

func newSender(cfg *config.Config) mail.Sender {
	if cfg.EmailFunctionURL == "" {
		return mail.LogSender{}
	}
	return mail.NewHTTPSender(cfg.EmailFunctionURL, cfg.EmailAPIKey, cfg.EmailTimeout)
}
