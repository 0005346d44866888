package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"gastos/internal/amqp"
	"gastos/internal/cli"
	"gastos/internal/config"
	applog "gastos/internal/log"
	"gastos/internal/mail"
	"gastos/internal/metrics"
	"gastos/internal/services"
	"gastos/internal/sheets"
	gsheet "gastos/internal/sheets/google"
	"gastos/internal/worker"
)

const (
	resyncInterval   = time.Hour
	reconnectBackoff = 5 * time.Second
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentWorker)
	logger.Info("Starting gastos-worker")

	res := cli.InitBackend(context.Background(), logger, cfg)
	m := metrics.New(nil)

	var mirror sheets.Mirror
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(context.Background(), gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleCredentialsJSON,
			CredentialsFile: cfg.GoogleCredentialsFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		mirror = client
	} else {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	sender := newSender(cfg)
	notifier := services.NewNotificationService(res.Backend, sender)
	syncWorker := worker.NewSyncWorker(res.Backend, mirror, notifier)

	processor := services.NewEmailProcessor(res.Backend, sender, services.EmailProcessorConfig{
		PollInterval: cfg.EmailPollInterval,
		BatchSize:    cfg.EmailBatchSize,
		MaxRetries:   cfg.EmailMaxRetries,
		OnResult: func(sent bool) {
			result := "sent"
			if !sent {
				result = "failed"
			}
			m.Emails.WithLabelValues(result).Inc()
		},
	})

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		c, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		amqpClient = c
	} else {
		logger.Info("AMQP disabled, only the email outbox and sheet resync will run")
	}

	var metricsSrv *http.Server
	if cfg.WorkerMetricsPort != "" {
		metricsSrv = &http.Server{
			Addr:              net.JoinHostPort("", cfg.WorkerMetricsPort),
			Handler:           m.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server error", "error", err)
			}
		}()
	}

	var wg sync.WaitGroup
	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(shutdownCtx context.Context) {
		if err := processor.Stop(shutdownCtx); err != nil {
			logger.Warn("Email processor stop", "error", err)
		}
		wg.Wait()
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
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

	logger.Info("Performing startup sync check...")
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		// Not fatal: the next resync retries.
		logger.Error("Failed startup sync check", "error", err)
	}

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start email processor", "error", err)
		os.Exit(1)
	}

	if amqpClient != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			consume(ctx, logger, amqpClient, syncWorker.Handlers())
		}()
	}

	if mirror != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(resyncInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := syncWorker.StartupSyncCheck(ctx); err != nil {
						logger.Error("Periodic sync failed", "error", err)
					}
				}
			}
		}()
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}

// consume keeps a consumer attached to the queue, reconnecting after
// failures until ctx is cancelled.
func consume(ctx context.Context, logger *applog.Logger, client *amqp.Client, h amqp.Handlers) {
	for {
		err := client.Consume(ctx, h)
		if ctx.Err() != nil {
			return
		}
		logger.Error("Message consumption failed, retrying", "error", err, "backoff", reconnectBackoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectBackoff):
		}
	}
}

func newSender(cfg *config.Config) mail.Sender {
	if cfg.EmailFunctionURL == "" {
		return mail.LogSender{}
	}
	return mail.NewHTTPSender(cfg.EmailFunctionURL, cfg.EmailAPIKey, cfg.EmailTimeout)
}
