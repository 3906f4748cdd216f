package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Cdineshreddy12/Wrapper-sub003/internal/allocation"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/broker"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/config"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/ledger"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/mlog"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/reliability"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/scheduler"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := mlog.NewZapLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	gateway, err := storage.Connect(cfg.DatabaseURL, "", logger)
	if err != nil {
		logger.Fatalf("connecting to database: %v", err)
	}
	defer func() { _ = gateway.Close() }()

	registry := prometheus.NewRegistry()
	metrics := reliability.NewMetrics(registry)

	conn := broker.NewConnection(cfg.AMQPAddress(), logger)
	defer func() { _ = conn.Close() }()

	publisher := broker.NewPublisher(conn, "expiry-scheduler", cfg.PublishConfirmTimeout, 0, metrics, logger)

	sched := scheduler.New(
		gateway,
		scheduler.NewPostgresTenantRegistry(gateway.DB()),
		allocation.NewPostgresRepository(),
		ledger.NewEngine(ledger.NewPostgresRepository(), logger),
		publisher,
		metrics,
		logger,
		cfg.ExpirySchedulerInterval,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

		if err := http.ListenAndServe(":9090", mux); err != nil && err != http.ErrServerClosed {
			logger.Errorf("metrics server stopped: %v", err)
		}
	}()

	logger.Infof("expiry scheduler starting, interval=%s", cfg.ExpirySchedulerInterval)

	sched.Run(ctx)

	logger.Info("expiry scheduler stopped")
	os.Exit(0)
}
