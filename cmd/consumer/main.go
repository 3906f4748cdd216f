// Command consumer is a template for a downstream application's Consumer Runtime: it
// binds a named consumer group to a stream key and logs every event it receives. Real
// downstream applications copy this wiring and replace the handler with their own
// business logic.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Cdineshreddy12/Wrapper-sub003/internal/broker"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/config"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/consumerrt"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/mlog"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/reliability"
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

	streamKey := os.Getenv("CONSUMER_STREAM_KEY")
	if streamKey == "" {
		streamKey = "crm"
	}

	group := os.Getenv("CONSUMER_GROUP")
	if group == "" {
		group = "default"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := reliability.NewMetrics(prometheus.NewRegistry())

	conn := broker.NewConnection(cfg.AMQPAddress(), logger)
	defer func() { _ = conn.Close() }()

	publisher := broker.NewPublisher(conn, streamKey, cfg.PublishConfirmTimeout, 0, metrics, logger)

	var window consumerrt.IdempotencyWindow

	if cfg.RedisURL != "" {
		redisClient, err := config.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatalf("connecting to redis: %v", err)
		}
		defer func() { _ = redisClient.Close() }()

		window = consumerrt.NewRedisWindow(redisClient, cfg.ConsumerIdempotencyWindow, logger)
	} else {
		window = consumerrt.NewInProcessWindow(cfg.ConsumerIdempotencyWindow)
	}

	runtime := consumerrt.New(conn, window, publisher, metrics, logger)

	logger.Infof("consumer runtime starting: stream=%s group=%s", streamKey, group)

	if err := runtime.Run(ctx, streamKey, group, group+"-1", handle(logger)); err != nil {
		logger.Fatalf("consumer runtime stopped: %v", err)
	}

	logger.Info("consumer stopped")
}

func handle(logger mlog.Logger) consumerrt.Handler {
	return func(_ context.Context, env broker.Envelope) error {
		logger.Infof("received event %s type=%s target=%s entity=%v", env.EventID, env.EventType, env.TargetApplication, env.EntityID)
		return nil
	}
}
