package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata" // TIMEZONE must resolve in minimal containers

	"github.com/couchcryptid/traffic-congestion-etl/internal/adapter/archive"
	"github.com/couchcryptid/traffic-congestion-etl/internal/adapter/geojson"
	httpadapter "github.com/couchcryptid/traffic-congestion-etl/internal/adapter/http"
	"github.com/couchcryptid/traffic-congestion-etl/internal/adapter/jartic"
	kafkaadapter "github.com/couchcryptid/traffic-congestion-etl/internal/adapter/kafka"
	"github.com/couchcryptid/traffic-congestion-etl/internal/adapter/postgres"
	"github.com/couchcryptid/traffic-congestion-etl/internal/config"
	"github.com/couchcryptid/traffic-congestion-etl/internal/network"
	"github.com/couchcryptid/traffic-congestion-etl/internal/observability"
	"github.com/couchcryptid/traffic-congestion-etl/internal/pipeline"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Road network (PostgreSQL when DATABASE_URL is set, otherwise a GeoJSON file).
	var loader network.Loader
	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		loader = postgres.NewRoadLoader(pool, logger)
		logger.Info("road network source: postgres")
	} else {
		loader = geojson.FileLoader{Path: cfg.RoadNetworkPath}
		logger.Info("road network source: file", "path", cfg.RoadNetworkPath)
	}

	store := network.NewStore(loader, logger, metrics)
	if err := store.Refresh(ctx); err != nil {
		// Runs proceed against an empty network until a refresh succeeds.
		logger.Error("initial road network load failed", "error", err)
	}

	// Live feed (feature-flagged via FEED_ENABLED).
	var source pipeline.ObservationSource
	if cfg.FeedEnabled {
		client := jartic.NewClient(cfg, logger, metrics)
		source = jartic.NewCachedSource(client, cfg.FeedCacheSize, metrics)
		logger.Info("live feed enabled", "url", cfg.FeedURL, "cache_size", cfg.FeedCacheSize, "timeout", cfg.FeedTimeout)
	} else {
		logger.Info("live feed disabled, using synthetic observations")
	}

	var sinks []pipeline.Sink
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		sinks = append(sinks, writer)
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers)
	}
	if cfg.ArchiveEnabled {
		sinks = append(sinks, archive.New(cfg, logger))
		logger.Info("parquet archive enabled", "bucket", cfg.R2Bucket)
	}

	p := pipeline.New(source, store, sinks, pipeline.OptionsFromConfig(cfg), logger, metrics)
	srv := httpadapter.NewServer(cfg.HTTPAddr, p, p, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return p.Run(gctx)
	})
	g.Go(func() error {
		return store.Run(gctx, cfg.NetworkRefreshInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("service error", "error", err)
	}

	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
