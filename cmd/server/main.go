// cmd/server/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/winstonapp/themestore/internal/allowlist"
	"github.com/winstonapp/themestore/internal/blob"
	"github.com/winstonapp/themestore/internal/config"
	"github.com/winstonapp/themestore/internal/ingest"
	"github.com/winstonapp/themestore/internal/preview"
	"github.com/winstonapp/themestore/internal/ratelimit"
	"github.com/winstonapp/themestore/internal/scheduler"
	"github.com/winstonapp/themestore/internal/store"
)

const shutdownTimeout = 30 * time.Second

func setupLogger(environment string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg.App.Environment)

	database, err := store.NewFromConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer database.Close()

	blobs, err := blob.NewClient(
		cfg.S3.AccessKeyID,
		cfg.S3.SecretAccessKey,
		cfg.S3.Region,
		cfg.S3.Endpoint,
		cfg.S3.Bucket,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize object store client")
	}

	list, err := allowlist.New(cfg.Allowlist.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open allowlist")
	}

	extractor := ingest.NewExtractor(cfg.Cache.Dir, cfg.Cache.MaxExtractedBytes, cfg.Cache.ExtractTimeout.Std())
	renderer := preview.NewRenderer(cfg.Cache.Dir)
	pipeline := ingest.NewPipeline(extractor, database, blobs, renderer, cfg.Cache.Dir)
	defer pipeline.Close()

	limiter := ratelimit.New(&ratelimit.Config{
		Window:   cfg.RateLimit.Window.Std(),
		Requests: cfg.RateLimit.Requests,
	})
	defer limiter.Close()

	sched, err := scheduler.New()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize scheduler")
	}
	if err := scheduler.RegisterCacheSweep(sched, cfg.Cache.Dir, cfg.Cache.SweepMaxAge.Std(), cfg.Cache.SweepCron); err != nil {
		log.Fatal().Err(err).Msg("Failed to register cache sweep job")
	}
	sched.Start()
	defer func() {
		if err := sched.Stop(); err != nil {
			log.Error().Err(err).Msg("Scheduler shutdown failed")
		}
	}()

	server := newServer(cfg, serverDeps{
		store:    database,
		blobs:    blobs,
		pipeline: pipeline,
		list:     list,
		limiter:  limiter,
	})

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Run server
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Str("app", cfg.App.Name).Msg("Starting server")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Wait for interrupt signal
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		log.Info().Msg("Shutting down server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server terminated with error")
		os.Exit(1)
	}
}
