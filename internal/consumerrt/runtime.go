// Package consumerrt implements a durable consumer-group loop over the Broker
// Publisher's topic exchange, with idempotent dispatch and acknowledgment publication
// back to the source application. AMQP has no native consumer-group primitive the way
// Kafka or Redis Streams do, so the group semantics are built from a named durable
// queue per (streamKey, group): every process in the same group binds the same queue
// name and the broker round-robins deliveries between them (competing consumers);
// distinct groups bind distinct queues to the same routing key so each group gets its
// own full copy of the stream. Generalized from a single-purpose queue-per-service
// consumer loop into a named runtime reusable across every downstream application
// instead of one hand-written consumer per queue.
package consumerrt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Cdineshreddy12/Wrapper-sub003/internal/broker"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/mlog"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/reliability"
)

var tracer = otel.Tracer("github.com/Cdineshreddy12/Wrapper-sub003/internal/consumerrt")

// maxRetries is the number of in-process handler retries before the runtime
// acknowledges anyway.
const maxRetries = 1

// shutdownGrace bounds how long Run waits for an in-flight handler before abandoning
// it on cancellation.
const shutdownGrace = 5 * time.Second

// ChannelSource opens AMQP channels, reconnecting as needed. *broker.Connection
// satisfies this.
type ChannelSource interface {
	Channel(ctx context.Context) (*amqp.Channel, error)
}

// AckPublisher mirrors processing results back to the source application.
// *broker.Publisher satisfies this.
type AckPublisher interface {
	PublishAcknowledgment(ctx context.Context, sourceApplication, originalEventID, status string, result map[string]any) error
}

// Handler processes one delivered event. A returned error marks the delivery failed;
// it is still acknowledged to the broker after retries are exhausted.
type Handler func(ctx context.Context, env broker.Envelope) error

// Runtime is the Consumer Runtime.
type Runtime struct {
	channels ChannelSource
	window   IdempotencyWindow
	acks     AckPublisher
	metrics  *reliability.Metrics
	logger   mlog.Logger
}

// New constructs a Runtime.
func New(channels ChannelSource, window IdempotencyWindow, acks AckPublisher, metrics *reliability.Metrics, logger mlog.Logger) *Runtime {
	if logger == nil {
		logger = &mlog.NoneLogger{}
	}

	if window == nil {
		window = NewInProcessWindow(10000)
	}

	return &Runtime{channels: channels, window: window, acks: acks, metrics: metrics, logger: logger}
}

// Run binds a durable queue for (streamKey, group) to the topic exchange with pattern
// "{streamKey}.#" and dispatches every delivery to handler until ctx is cancelled.
// Consumers sharing the same (streamKey, group) compete for deliveries; distinct groups
// each receive their own full copy of the stream.
func (r *Runtime) Run(ctx context.Context, streamKey, group, consumerName string, handler Handler) error {
	ch, err := r.channels.Channel(ctx)
	if err != nil {
		return fmt.Errorf("opening consumer channel: %w", err)
	}

	queueName := streamKey + "." + group

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring queue %s: %w", queueName, err)
	}

	bindingKey := streamKey + ".#"
	if err := ch.QueueBind(queueName, bindingKey, broker.TopicExchange, false, nil); err != nil {
		return fmt.Errorf("binding queue %s to %s: %w", queueName, bindingKey, err)
	}

	if err := ch.Qos(10, 0, false); err != nil {
		return fmt.Errorf("setting consumer prefetch: %w", err)
	}

	deliveries, err := ch.Consume(queueName, consumerName, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("registering consumer %s on %s: %w", consumerName, queueName, err)
	}

	r.logger.Infof("consumer runtime started: queue=%s consumer=%s", queueName, consumerName)

	for {
		select {
		case <-ctx.Done():
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel for %s closed", queueName)
			}

			r.dispatch(ctx, delivery, handler)
		}
	}
}

func (r *Runtime) dispatch(ctx context.Context, delivery amqp.Delivery, handler Handler) {
	var env broker.Envelope

	if err := json.Unmarshal(delivery.Body, &env); err != nil {
		r.logger.Errorf("consumer runtime: malformed envelope, acking and dropping: %v", err)
		_ = delivery.Ack(false)

		return
	}

	ctx, span := tracer.Start(ctx, "consumerrt.dispatch")
	span.SetAttributes(
		attribute.String("app.event_id", env.EventID),
		attribute.String("app.event_type", env.EventType),
		attribute.String("app.source_application", env.SourceApplication),
		attribute.String("app.target_application", env.TargetApplication),
	)
	defer span.End()

	alreadySeen, err := r.window.SeenOrMark(ctx, env.EventID, idempotencyTTL)
	if err != nil {
		r.logger.Warnf("consumer runtime: idempotency window error for %s: %v", env.EventID, err)
	}

	if alreadySeen {
		span.SetAttributes(attribute.Bool("app.duplicate", true))
		_ = delivery.Ack(false)

		return
	}

	done := make(chan error, 1)

	go func() { done <- r.invokeWithRetries(ctx, env, handler) }()

	var handlerErr error

	select {
	case handlerErr = <-done:
	case <-ctx.Done():
		select {
		case handlerErr = <-done:
		case <-time.After(shutdownGrace):
			r.logger.Warnf("consumer runtime: abandoning in-flight handler for %s past grace period", env.EventID)
			span.RecordError(ctx.Err())
			span.SetStatus(codes.Error, "abandoned past shutdown grace period")

			return
		}
	}

	_ = delivery.Ack(false)

	status := "processed"
	if handlerErr != nil {
		status = "failed"
		r.metrics.Record(reliability.FailureConsumerProcessing)
		span.RecordError(handlerErr)
		span.SetStatus(codes.Error, "handler failed")
	}

	r.publishAck(ctx, env, status, handlerErr)
}

func (r *Runtime) invokeWithRetries(ctx context.Context, env broker.Envelope, handler Handler) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if lastErr = handler(ctx, env); lastErr == nil {
			return nil
		}

		r.logger.Warnf("consumer runtime: handler attempt %d/%d failed for %s: %v", attempt+1, maxRetries+1, env.EventID, lastErr)
	}

	return lastErr
}

func (r *Runtime) publishAck(ctx context.Context, env broker.Envelope, status string, handlerErr error) {
	if r.acks == nil {
		return
	}

	result := map[string]any{}
	if handlerErr != nil {
		result["error"] = handlerErr.Error()
	}

	ackCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.acks.PublishAcknowledgment(ackCtx, env.SourceApplication, env.EventID, status, result); err != nil {
		r.logger.Errorf("consumer runtime: publishing acknowledgment for %s: %v", env.EventID, err)
	}
}

// idempotencyTTL bounds how long a key stays in the window. Fixed rather than derived
// from live inter-arrival measurement, keeping the store simple.
const idempotencyTTL = 24 * time.Hour
