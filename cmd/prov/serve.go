package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/provenance/internal/archive"
	"github.com/alfredjeanlab/provenance/internal/config"
	"github.com/alfredjeanlab/provenance/internal/events"
	"github.com/alfredjeanlab/provenance/internal/ledger"
	"github.com/alfredjeanlab/provenance/internal/server"
	"github.com/alfredjeanlab/provenance/internal/store/postgres"
	"github.com/alfredjeanlab/provenance/internal/sweep"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the provenance server",
	GroupID: "system",
	// Override PersistentPreRunE so we don't create a client connection.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		slog.SetDefault(logger)

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		schemas, err := config.LoadSchemas(cfg.SchemaFile)
		if err != nil {
			return err
		}
		logger.Info("entity schemas loaded", "file", cfg.SchemaFile, "entities", len(schemas))

		store, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}

		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				store.Close()
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("events disabled (PROV_NATS_URL not set)")
		}

		ldgr := ledger.New(store, ledger.Config{
			Schemas:          schemas,
			SnapshotEvery:    cfg.SnapshotEvery,
			SnapshotInterval: cfg.SnapshotInterval,
			LockTimeout:      cfg.LockTimeout,
			Logger:           logger,
		})

		ledgerServer := server.NewLedgerServer(ldgr, publisher, logger)
		httpServer := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: ledgerServer.NewHTTPHandler(cfg.AuthToken),
		}

		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		var sweeper *sweep.Scheduler
		if cfg.SweepInterval > 0 {
			sweeper = sweep.NewScheduler(ldgr, publisher, cfg.SweepInterval, logger)
			sweeper.Start()
			logger.Info("sweep scheduler started", "interval", cfg.SweepInterval)
		}

		var archiver *archive.Scheduler
		if cfg.ArchiveInterval > 0 && cfg.ArchiveS3Bucket != "" {
			dest, err := archive.NewS3Destination(
				context.Background(),
				cfg.ArchiveS3Bucket,
				cfg.ArchiveS3Key,
				cfg.ArchiveS3Region,
				cfg.ArchiveS3Endpoint,
			)
			if err != nil {
				logger.Error("failed to create S3 archive destination", "err", err)
			} else {
				archiver = archive.NewScheduler(store, []archive.Destination{dest}, cfg.ArchiveInterval, logger)
				archiver.Start()
				logger.Info("archive scheduler started",
					"interval", cfg.ArchiveInterval,
					"bucket", cfg.ArchiveS3Bucket,
					"key", cfg.ArchiveS3Key)
			}
		}

		logger.Info("provenance server started", "http_addr", cfg.HTTPAddr)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		if archiver != nil {
			archiver.Stop()
			logger.Info("archive scheduler stopped")
		}
		if sweeper != nil {
			sweeper.Stop()
			logger.Info("sweep scheduler stopped")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := store.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}
