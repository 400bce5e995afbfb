// Package server assembles the service from its parts and runs the HTTP
// listener until a shutdown signal arrives.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/takumin/iqdb/internal/api"
	"github.com/takumin/iqdb/internal/config"
	"github.com/takumin/iqdb/internal/imaging"
	"github.com/takumin/iqdb/internal/imgdb"
	"github.com/takumin/iqdb/internal/logger"
	"github.com/takumin/iqdb/internal/repository"
	"github.com/takumin/iqdb/internal/source"
	"github.com/takumin/iqdb/internal/storage"
)

const shutdownTimeout = 5 * time.Second

// Run builds the full service from cfg, loads the index from the database
// and serves HTTP until SIGINT or SIGTERM.
func Run(cfg *config.Config, version string) error {
	log := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     os.Stdout,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	logger.SetDefault(log)

	gdb, err := repository.InitDB(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	repo := repository.NewImageRepository(gdb)
	thumb := imaging.NewThumbnailer(int64(cfg.Ingest.MaxDecoders))
	db := imgdb.New(repo, thumb, log)

	ctx := context.Background()
	if err := db.Load(ctx); err != nil {
		return fmt.Errorf("failed to load image index: %w", err)
	}

	var archive storage.ObjectStorage
	if cfg.Storage.Enabled {
		s3, err := storage.NewS3Storage(&storage.S3Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize object storage: %w", err)
		}
		if err := s3.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure storage bucket: %w", err)
		}
		archive = s3
	}

	fetcher := source.NewFetcher(cfg.Ingest.FetchTimeout, cfg.Ingest.MaxFetchBytes)

	router := api.SetupRouter(cfg, log, db, fetcher, archive, version)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logger.Fields{
			"addr":             srv.Addr,
			"mode":             cfg.Server.Mode,
			logger.FieldImages: db.Count(),
		}).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exited")
	return nil
}
