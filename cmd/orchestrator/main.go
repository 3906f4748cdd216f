package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Cdineshreddy12/Wrapper-sub003/internal/allocation"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/broker"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/config"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/configresolver"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/consumerrt"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/ledger"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/mlog"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/orchestrator"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/reliability"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/storage"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/tenant"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gateway, err := storage.Connect(cfg.DatabaseURL, "", logger)
	if err != nil {
		logger.Fatalf("connecting to database: %v", err)
	}
	defer func() { _ = gateway.Close() }()

	var cache configresolver.Cache

	if cfg.RedisURL != "" {
		redisClient, err := config.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatalf("connecting to redis: %v", err)
		}
		defer func() { _ = redisClient.Close() }()

		cache = configresolver.NewRedisCache(redisClient, logger)
	}

	registry := prometheus.NewRegistry()
	metrics := reliability.NewMetrics(registry)

	conn := broker.NewConnection(cfg.AMQPAddress(), logger)
	defer func() { _ = conn.Close() }()

	publisher := broker.NewPublisher(conn, "orchestrator", cfg.PublishConfirmTimeout, 0, metrics, logger)
	ledgerEngine := ledger.NewEngine(ledger.NewPostgresRepository(), logger)

	orch := orchestrator.New(
		gateway,
		orchestrator.NewPostgresPurchaseRepository(),
		nil, // payment gateway checkout UX is out of scope; PurchaseCredits stores a pending row without opening a session
		configresolver.NewResolver(configresolver.NewPostgresRepository(gateway.DB()), cache, logger),
		ledgerEngine,
		allocation.NewManager(allocation.NewPostgresRepository(), ledgerEngine, logger),
		publisher,
		logger,
	)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

		if err := http.ListenAndServe(":9090", mux); err != nil && err != http.ErrServerClosed {
			logger.Errorf("metrics server stopped: %v", err)
		}
	}()

	runtime := consumerrt.New(conn, consumerrt.NewInProcessWindow(cfg.ConsumerIdempotencyWindow), publisher, metrics, logger)

	logger.Info("orchestrator command runtime starting")

	if err := runtime.Run(ctx, "credit.commands", "orchestrator", "orchestrator-1", dispatch(orch, logger)); err != nil {
		logger.Fatalf("command runtime stopped: %v", err)
	}

	logger.Info("orchestrator stopped")
}

// dispatch builds the Consumer Runtime handler that turns an inbound command envelope
// into the matching Orchestrator verb. Every downstream application that wants to spend
// or move credits publishes one of these event types to the "credit.commands" stream
// instead of calling the Orchestrator directly, since there is no REST surface.
func dispatch(orch *orchestrator.Orchestrator, logger mlog.Logger) consumerrt.Handler {
	return func(ctx context.Context, env broker.Envelope) error {
		tc := tenant.System(env.TenantID)

		body, err := json.Marshal(env.Data)
		if err != nil {
			return fmt.Errorf("remarshaling command payload: %w", err)
		}

		switch env.EventType {
		case "purchase_credits":
			var in orchestrator.PurchaseCreditsInput
			if err := json.Unmarshal(body, &in); err != nil {
				return fmt.Errorf("decoding purchase_credits payload: %w", err)
			}

			_, _, err := orch.PurchaseCredits(ctx, tc, in)

			return err

		case "complete_purchase":
			var in struct {
				ExternalSessionID string `json:"externalSessionId"`
				Source            string `json:"source"`
			}
			if err := json.Unmarshal(body, &in); err != nil {
				return fmt.Errorf("decoding complete_purchase payload: %w", err)
			}

			_, err := orch.CompletePurchase(ctx, tc, in.ExternalSessionID, in.Source)

			return err

		case "consume_credits":
			var in orchestrator.ConsumeCreditsInput
			if err := json.Unmarshal(body, &in); err != nil {
				return fmt.Errorf("decoding consume_credits payload: %w", err)
			}

			_, err := orch.ConsumeCredits(ctx, tc, in)

			return err

		case "allocate_to_application":
			var in orchestrator.AllocateToApplicationInput
			if err := json.Unmarshal(body, &in); err != nil {
				return fmt.Errorf("decoding allocate_to_application payload: %w", err)
			}

			_, err := orch.AllocateToApplication(ctx, tc, in)

			return err

		case "transfer":
			var in orchestrator.TransferInput
			if err := json.Unmarshal(body, &in); err != nil {
				return fmt.Errorf("decoding transfer payload: %w", err)
			}

			_, _, err := orch.Transfer(ctx, tc, in)

			return err

		default:
			logger.Warnf("orchestrator command runtime: ignoring unknown event type %q", env.EventType)
			return nil
		}
	}
}
