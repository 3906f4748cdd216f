//go:build chaos

package broker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	toxiproxyclient "github.com/Shopify/toxiproxy/v2/client"
	"github.com/docker/docker/api/types/container"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	tctoxiproxy "github.com/testcontainers/testcontainers-go/modules/toxiproxy"

	"github.com/Cdineshreddy12/Wrapper-sub003/internal/mlog"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/reliability"
)

// proxiedBroker starts a real RabbitMQ container and fronts it with a Toxiproxy
// container, so the test can inject network chaos between our client and the broker
// without touching the broker process itself. Toxiproxy reaches the RabbitMQ container
// via host.docker.internal, the same approach the example fixture this is grounded on
// uses for a container that needs to dial back out to a host-mapped port.
type proxiedBroker struct {
	toxiproxy *toxiproxyclient.Client
	proxy     *toxiproxyclient.Proxy
	amqpURI   string
}

func setupProxiedBroker(t *testing.T) *proxiedBroker {
	t.Helper()

	ctx := context.Background()

	rmqReq := testcontainers.ContainerRequest{
		Image:        "rabbitmq:4.1-management-alpine",
		ExposedPorts: []string{"5672/tcp"},
		Env: map[string]string{
			"RABBITMQ_DEFAULT_USER": "test",
			"RABBITMQ_DEFAULT_PASS": "test",
		},
		WaitingFor: wait.ForLog("Server startup complete").WithStartupTimeout(120 * time.Second),
	}

	rmq, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: rmqReq,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rmq.Terminate(context.Background()) })

	rmqPort, err := rmq.MappedPort(ctx, "5672")
	require.NoError(t, err)

	toxiContainer, err := tctoxiproxy.Run(ctx, "ghcr.io/shopify/toxiproxy:2.12.0",
		testcontainers.WithExposedPorts("8666/tcp"),
		testcontainers.WithHostConfigModifier(func(hc *container.HostConfig) {
			hc.ExtraHosts = append(hc.ExtraHosts, "host.docker.internal:host-gateway")
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = toxiContainer.Terminate(context.Background()) })

	toxiHost, err := toxiContainer.Host(ctx)
	require.NoError(t, err)

	apiPort, err := toxiContainer.MappedPort(ctx, "8474")
	require.NoError(t, err)

	proxyPort, err := toxiContainer.MappedPort(ctx, "8666")
	require.NoError(t, err)

	toxiClient := toxiproxyclient.NewClient(fmt.Sprintf("http://%s:%s", toxiHost, apiPort.Port()))

	proxy, err := toxiClient.CreateProxy("rabbitmq-proxy", "0.0.0.0:8666",
		fmt.Sprintf("host.docker.internal:%s", rmqPort.Port()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = proxy.Delete() })

	return &proxiedBroker{
		toxiproxy: toxiClient,
		proxy:     proxy,
		amqpURI:   fmt.Sprintf("amqp://test:test@%s:%s/", toxiHost, proxyPort.Port()),
	}
}

// disconnect simulates a network outage between the client and the broker.
func (p *proxiedBroker) disconnect(t *testing.T) {
	t.Helper()
	p.proxy.Enabled = false
	require.NoError(t, p.proxy.Save())
}

// reconnect restores connectivity.
func (p *proxiedBroker) reconnect(t *testing.T) {
	t.Helper()
	p.proxy.Enabled = true
	require.NoError(t, p.proxy.Save())
}

// addLatency adds round-trip latency to every byte flowing through the proxy.
func (p *proxiedBroker) addLatency(t *testing.T, latency time.Duration) {
	t.Helper()

	_, err := p.proxy.AddToxic("latency-downstream", "latency", "downstream", 1.0, toxiproxyclient.Attributes{
		"latency": int(latency.Milliseconds()),
		"jitter":  0,
	})
	require.NoError(t, err)

	_, err = p.proxy.AddToxic("latency-upstream", "latency", "upstream", 1.0, toxiproxyclient.Attributes{
		"latency": int(latency.Milliseconds()),
		"jitter":  0,
	})
	require.NoError(t, err)
}

// TestChaos_Connection_ReconnectsWithinBoundedRetryWindow starts a network outage before
// the very first dial, then heals it partway through the Connection's bounded
// reconnectAttempts/reconnectInterval retry loop. Channel must still succeed.
func TestChaos_Connection_ReconnectsWithinBoundedRetryWindow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping chaos test in short mode")
	}

	infra := setupProxiedBroker(t)
	infra.disconnect(t)

	conn := NewConnection(infra.amqpURI, &mlog.NoneLogger{})
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(reconnectAttempts)*reconnectInterval+5*time.Second)
	defer cancel()

	type result struct {
		err error
	}

	results := make(chan result, 1)

	go func() {
		_, err := conn.Channel(ctx)
		results <- result{err: err}
	}()

	// Let at least one reconnect attempt fail against the disconnected proxy before
	// healing the network, so the bounded retry loop is genuinely exercised.
	time.Sleep(reconnectInterval + 500*time.Millisecond)
	infra.reconnect(t)

	select {
	case r := <-results:
		require.NoError(t, r.err, "Channel must recover once the network outage clears, within its bounded retry budget")
	case <-time.After(time.Duration(reconnectAttempts)*reconnectInterval + 10*time.Second):
		t.Fatal("timed out waiting for Connection to recover from the simulated outage")
	}
}

// TestChaos_Publisher_ConfirmTimeout_UnderLatency injects enough round-trip latency that
// a publish's broker confirmation cannot arrive before Publisher's confirmTimeout,
// exercising the publish_confirm_timeout classification end to end against a real broker.
func TestChaos_Publisher_ConfirmTimeout_UnderLatency(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping chaos test in short mode")
	}

	infra := setupProxiedBroker(t)
	infra.addLatency(t, 3*time.Second)

	conn := NewConnection(infra.amqpURI, &mlog.NoneLogger{})
	defer conn.Close()

	metrics := reliability.NewMetrics(prometheus.NewRegistry())
	pub := NewPublisher(conn, "billing", 500*time.Millisecond, 4, metrics, &mlog.NoneLogger{})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := pub.PublishEvent(ctx, "credit_purchased", "crm", uuid.New(), nil,
		map[string]any{"amount": "250"}, nil)

	require.Error(t, err)

	var te *reliability.TransportError
	require.True(t, errors.As(err, &te))
	require.Equal(t, reliability.FailurePublishConfirmTimeout, te.Class)
}
