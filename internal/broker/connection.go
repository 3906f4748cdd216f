// Package broker implements a confirm-mode AMQP publisher to a topic exchange and a
// fanout exchange, with mandatory-routing verification, reconnection, and
// back-pressure handling. Built on rabbitmq/amqp091-go, with a single connection
// singleton that reconnects through a bounded fixed-interval retry loop.
package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Cdineshreddy12/Wrapper-sub003/internal/mlog"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/reliability"
)

const (
	// TopicExchange carries per-target routed events.
	TopicExchange = "inter-app-events"
	// FanoutExchange carries broadcasts, routing key ignored.
	FanoutExchange = "inter-app-broadcast"

	reconnectAttempts = 10
	reconnectInterval = 2 * time.Second
)

// Connection is a hub which deals with a single AMQP connection/channel pair, declaring
// both exchanges idempotently and re-declaring them on every reconnect.
type Connection struct {
	addr   string
	logger mlog.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewConnection constructs a Connection that dials addr lazily on first use.
func NewConnection(addr string, logger mlog.Logger) *Connection {
	if logger == nil {
		logger = &mlog.NoneLogger{}
	}

	return &Connection{addr: addr, logger: logger}
}

// Channel returns the live channel, dialing or redialing as needed. Reconnection uses a
// fixed-interval retry loop bounded at reconnectAttempts.
func (c *Connection) Channel(ctx context.Context) (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil && !c.channel.IsClosed() {
		return c.channel, nil
	}

	var lastErr error

	for attempt := 1; attempt <= reconnectAttempts; attempt++ {
		ch, err := c.dial()
		if err == nil {
			c.conn, c.channel = ch.conn, ch.channel
			return c.channel, nil
		}

		lastErr = err
		c.logger.Errorf("broker connect attempt %d/%d failed: %v", attempt, reconnectAttempts, err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(reconnectInterval):
		}
	}

	return nil, reliability.NewTransportError(reliability.FailureBrokerUnavailable,
		fmt.Errorf("exhausted %d reconnect attempts: %w", reconnectAttempts, lastErr))
}

type dialed struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func (c *Connection) dial() (*dialed, error) {
	conn, err := amqp.Dial(c.addr)
	if err != nil {
		return nil, fmt.Errorf("dialing broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()

		return nil, fmt.Errorf("enabling confirm mode: %w", err)
	}

	if err := declareExchanges(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()

		return nil, err
	}

	c.logger.Info("broker connected, exchanges declared")

	return &dialed{conn: conn, channel: ch}, nil
}

// declareExchanges asserts both exchanges. Declaration is idempotent: redeclaring an
// existing exchange with matching properties is a no-op on the broker side.
func declareExchanges(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(TopicExchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring topic exchange: %w", err)
	}

	if err := ch.ExchangeDeclare(FanoutExchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring fanout exchange: %w", err)
	}

	return nil
}

// Close releases the underlying connection.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil {
		_ = c.channel.Close()
	}

	if c.conn != nil {
		return c.conn.Close()
	}

	return nil
}
