package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Cdineshreddy12/Wrapper-sub003/internal/mlog"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/reliability"
)

var tracer = otel.Tracer("github.com/Cdineshreddy12/Wrapper-sub003/internal/broker")

// PublishReceipt is returned on a confirmed publish.
type PublishReceipt struct {
	EventID    string
	RoutingKey string
}

// Publisher is the Broker Publisher: confirm-mode publishing to the topic exchange, with
// broadcast support on the fanout exchange. inflight bounds the number of concurrent
// publish-awaiting-confirm calls, providing back-pressure without an unbounded
// goroutine fan-out.
type Publisher struct {
	conn              *Connection
	metrics           *reliability.Metrics
	logger            mlog.Logger
	sourceApplication string
	confirmTimeout    time.Duration
	inflight          chan struct{}

	returnHandlerMu  sync.Mutex
	returnHandlerFor *amqp.Channel
}

// NewPublisher constructs a Publisher. confirmTimeout defaults to 10s; maxInflight
// defaults to 64 concurrent unconfirmed publishes.
func NewPublisher(conn *Connection, sourceApplication string, confirmTimeout time.Duration, maxInflight int, metrics *reliability.Metrics, logger mlog.Logger) *Publisher {
	if logger == nil {
		logger = &mlog.NoneLogger{}
	}

	if confirmTimeout <= 0 {
		confirmTimeout = 10 * time.Second
	}

	if maxInflight <= 0 {
		maxInflight = 64
	}

	return &Publisher{
		conn: conn, metrics: metrics, logger: logger,
		sourceApplication: sourceApplication, confirmTimeout: confirmTimeout,
		inflight: make(chan struct{}, maxInflight),
	}
}

// PublishEvent serializes payload into the envelope, publishes it to the topic exchange
// with persistent+mandatory flags, and awaits broker confirmation.
func (p *Publisher) PublishEvent(ctx context.Context, eventType, targetApplication string, tenantID uuid.UUID, entityID *uuid.UUID, data map[string]any, publishedBy *uuid.UUID) (string, error) {
	env := Envelope{
		EventID:           newEventID(),
		SourceApplication: p.sourceApplication,
		TargetApplication: targetApplication,
		TenantID:          tenantID,
		EntityID:          entityID,
		Timestamp:         time.Now().UTC(),
		EventType:         eventType,
		Data:              data,
		PublishedBy:       publishedByOrSystem(publishedBy),
	}

	routingKey := RoutingKey(targetApplication, eventType)

	if err := p.publish(ctx, TopicExchange, routingKey, env); err != nil {
		return "", err
	}

	return env.EventID, nil
}

// PublishBroadcast posts to the fanout exchange with an empty routing key.
func (p *Publisher) PublishBroadcast(ctx context.Context, eventType string, tenantID uuid.UUID, data map[string]any, publishedBy *uuid.UUID) (string, error) {
	env := Envelope{
		EventID:           newEventID(),
		SourceApplication: p.sourceApplication,
		TargetApplication: "*",
		TenantID:          tenantID,
		Timestamp:         time.Now().UTC(),
		EventType:         eventType,
		Data:              data,
		PublishedBy:       publishedByOrSystem(publishedBy),
	}

	if err := p.publish(ctx, FanoutExchange, "", env); err != nil {
		return "", err
	}

	return env.EventID, nil
}

// PublishAcknowledgment mirrors a processed event back to the source application's
// acks.<sourceApplication> routing key.
func (p *Publisher) PublishAcknowledgment(ctx context.Context, sourceApplication, originalEventID, status string, result map[string]any) error {
	payload := map[string]any{
		"originalEventId": originalEventID,
		"status":          status,
		"processedAt":     time.Now().UTC(),
		"result":          result,
	}

	return p.publish(ctx, TopicExchange, "acks."+sourceApplication, payload)
}

// ensureReturnHandler installs one long-lived goroutine per channel instance that logs
// unroutable (returned) messages and records the failure class. A returned message
// never retroactively fails the confirm that already succeeded for it.
func (p *Publisher) ensureReturnHandler(ch *amqp.Channel) {
	p.returnHandlerMu.Lock()
	defer p.returnHandlerMu.Unlock()

	if p.returnHandlerFor == ch {
		return
	}

	p.returnHandlerFor = ch
	returns := ch.NotifyReturn(make(chan amqp.Return, 16))

	go func() {
		for ret := range returns {
			p.logger.Errorf("message unroutable: exchange=%s key=%s reply=%s", ret.Exchange, ret.RoutingKey, ret.ReplyText)
			p.metrics.Record(reliability.FailureUnroutableMessage)
		}
	}()
}

func (p *Publisher) publish(ctx context.Context, exchange, routingKey string, payload any) error {
	ctx, span := tracer.Start(ctx, "broker.publish")
	span.SetAttributes(
		attribute.String("messaging.destination", exchange),
		attribute.String("messaging.rabbitmq.routing_key", routingKey),
		attribute.String("app.source_application", p.sourceApplication),
	)
	defer span.End()

	select {
	case p.inflight <- struct{}{}:
		defer func() { <-p.inflight }()
	case <-ctx.Done():
		span.RecordError(ctx.Err())
		span.SetStatus(codes.Error, "context done waiting for inflight slot")

		return reliability.NewTransportError(reliability.FailureBrokerUnavailable, ctx.Err())
	}

	ch, err := p.conn.Channel(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "opening channel")

		return err
	}

	p.ensureReturnHandler(ch)

	body, err := json.Marshal(payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "marshaling envelope")

		return fmt.Errorf("marshaling envelope: %w", err)
	}

	confirms := ch.NotifyPublish(make(chan amqp.Confirmation, 1))

	if err := ch.PublishWithContext(ctx, exchange, routingKey, true, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}); err != nil {
		p.metrics.Record(reliability.FailureBrokerUnavailable)
		err := reliability.NewTransportError(reliability.FailureBrokerUnavailable, fmt.Errorf("publishing to %s: %w", exchange, err))
		span.RecordError(err)
		span.SetStatus(codes.Error, string(reliability.FailureBrokerUnavailable))

		return err
	}

	select {
	case confirm := <-confirms:
		if !confirm.Ack {
			p.metrics.Record(reliability.FailureBrokerUnavailable)
			err := reliability.NewTransportError(reliability.FailureBrokerUnavailable, fmt.Errorf("broker rejected publish to %s", exchange))
			span.RecordError(err)
			span.SetStatus(codes.Error, string(reliability.FailureBrokerUnavailable))

			return err
		}

		return nil
	case <-time.After(p.confirmTimeout):
		p.metrics.Record(reliability.FailurePublishConfirmTimeout)
		err := reliability.NewTransportError(reliability.FailurePublishConfirmTimeout, fmt.Errorf("confirm timeout after %s", p.confirmTimeout))
		span.RecordError(err)
		span.SetStatus(codes.Error, string(reliability.FailurePublishConfirmTimeout))

		return err
	case <-ctx.Done():
		err := reliability.NewTransportError(reliability.FailureBrokerUnavailable, ctx.Err())
		span.RecordError(err)
		span.SetStatus(codes.Error, string(reliability.FailureBrokerUnavailable))

		return err
	}
}
