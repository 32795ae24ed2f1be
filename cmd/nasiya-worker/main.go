package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"nasiya/internal/amqp"
	"nasiya/internal/cli"
	"nasiya/internal/config"
	"nasiya/internal/log"
	gsheet "nasiya/internal/sheets/google"
	"nasiya/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig((*config.Config).ValidateWorker)
	logger := cli.SetupLogger(cfg, log.ComponentWorker)

	logger.Info("Starting nasiya-worker")

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	sheetsClient, err := gsheet.NewFromEnv(context.Background())
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	ledger := worker.NewLedgerWorker(repo, sheetsClient, cfg.SyncBatchSize)

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	ctx, done := cli.GracefulShutdown(runCtx, logger, shutdownTimeout, nil)

	// payments recorded while the worker was down
	if n, err := ledger.ProcessPending(ctx); err != nil {
		logger.Error("Startup sync failed", log.FieldError, err, "synced", n)
	} else {
		logger.Info("Startup sync finished", "synced", n)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return amqpClient.Consume(gctx, ledger.Handlers())
	})
	g.Go(func() error {
		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				n, err := ledger.ProcessPending(gctx)
				if err != nil {
					logger.Error("Periodic sync failed", log.FieldError, err, "synced", n)
				} else if n > 0 {
					logger.Info("Periodic sync finished", "synced", n)
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped", log.FieldError, err)
	}
	stop()
	<-done
	logger.Info("Worker shutdown complete")
}
