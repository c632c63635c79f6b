package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/opsward/trend-engine/internal/config"
	"github.com/opsward/trend-engine/internal/engine"
	"github.com/opsward/trend-engine/internal/logging"
	"github.com/opsward/trend-engine/internal/metrics"
	"github.com/opsward/trend-engine/internal/store"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting trend-engine",
		slog.String("storage_dir", cfg.Storage.Dir),
		slog.Duration("interval", cfg.Daemon.CorrelationInterval))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	history, err := store.Open(cfg.Storage.Dir,
		store.WithMaxEntries(cfg.Storage.RetentionEntries),
		store.WithLogger(logger))
	if err != nil {
		logger.Error("failed to open history store", slog.Any("error", err))
		os.Exit(1)
	}

	pack, err := engine.LoadRulePack(cfg.Rules.Path, logger)
	if err != nil {
		logger.Error("failed to load rule pack", slog.String("path", cfg.Rules.Path), slog.Any("error", err))
		os.Exit(1)
	}

	correlator := engine.NewCorrelator(history, pack, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	var metricsServer *http.Server
	if cfg.Metrics.Address != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Metrics.Address,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		group.Go(func() error {
			logger.Info("metrics server listening", slog.String("address", cfg.Metrics.Address))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	group.Go(func() error {
		ticker := time.NewTicker(cfg.Daemon.CorrelationInterval)
		defer ticker.Stop()

		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				issues := correlator.Run()
				for _, issue := range issues {
					logger.Info("correlated issue",
						slog.String("rule", issue.RuleID),
						slog.String("severity", string(issue.Severity)),
						slog.Float64("confidence", issue.Confidence),
						slog.String("summary", issue.Summary))
				}
				if len(issues) == 0 {
					logger.Debug("correlation pass clean")
				}
			}
		}
	})

	<-groupCtx.Done()
	logger.Info("shutdown signal received")

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Daemon.GracefulTimeout)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancel()
	}

	if err := group.Wait(); err != nil {
		logger.Error("daemon exited", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("trend-engine stopped")
}
