//go:build integration

package messaging_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"storyteller-server/internal/messaging"

	"github.com/docker/docker/client"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

const testExchange = "story_refresh_exchange_test"

type refreshCounter struct {
	calls atomic.Int32
}

func (r *refreshCounter) TriggerRefresh() { r.calls.Add(1) }

type RefreshIntegrationSuite struct {
	suite.Suite
	ctx          context.Context
	rmqContainer *rabbitmq.RabbitMQContainer
	conn         *amqp.Connection
	logger       *zap.Logger
}

func (s *RefreshIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = zap.NewNop()

	var err error
	s.rmqContainer, err = rabbitmq.Run(s.ctx,
		"rabbitmq:3-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").WithStartupTimeout(2*time.Minute),
		),
	)
	require.NoError(s.T(), err, "Failed to start rabbitmq container")

	amqpURL, err := s.rmqContainer.AmqpURL(s.ctx)
	require.NoError(s.T(), err)

	s.conn, err = amqp.Dial(amqpURL)
	require.NoError(s.T(), err, "Failed to connect to test rabbitmq")
}

func (s *RefreshIntegrationSuite) TearDownSuite() {
	if s.conn != nil {
		_ = s.conn.Close()
	}
	if s.rmqContainer != nil {
		_ = s.rmqContainer.Terminate(s.ctx)
	}
}

func (s *RefreshIntegrationSuite) TestPublishTriggersEveryConsumer() {
	first, second := &refreshCounter{}, &refreshCounter{}

	c1, err := messaging.NewRefreshConsumer(s.conn, testExchange, first, s.logger)
	s.Require().NoError(err)
	defer c1.Stop()
	s.Require().NoError(c1.StartConsuming())

	c2, err := messaging.NewRefreshConsumer(s.conn, testExchange, second, s.logger)
	s.Require().NoError(err)
	defer c2.Stop()
	s.Require().NoError(c2.StartConsuming())

	pub, err := messaging.NewRefreshPublisher(s.conn, testExchange, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	s.Require().NoError(pub.Publish(s.ctx, messaging.RefreshPayload{Reason: "integration"}))

	s.Eventually(func() bool {
		return first.calls.Load() == 1 && second.calls.Load() == 1
	}, 10*time.Second, 50*time.Millisecond)
}

func (s *RefreshIntegrationSuite) TestMalformedMessageIsAcknowledged() {
	counter := &refreshCounter{}
	c, err := messaging.NewRefreshConsumer(s.conn, testExchange, counter, s.logger)
	s.Require().NoError(err)
	defer c.Stop()
	s.Require().NoError(c.StartConsuming())

	ch, err := s.conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	s.Require().NoError(ch.PublishWithContext(s.ctx, testExchange, "", false, false, amqp.Publishing{Body: []byte("garbage")}))
	s.Require().NoError(ch.PublishWithContext(s.ctx, testExchange, "", false, false, amqp.Publishing{Body: []byte(`{"reason":"ok"}`)}))

	s.Eventually(func() bool { return counter.calls.Load() == 1 }, 10*time.Second, 50*time.Millisecond)
	s.Never(func() bool { return counter.calls.Load() > 1 }, 300*time.Millisecond, 50*time.Millisecond)
}

func TestRefreshIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}
	cli, err := client.NewClientWithOpts(client.FromEnv)
	if err != nil {
		t.Skipf("Docker client init error: %v", err)
	}
	if _, err := cli.Ping(context.Background()); err != nil {
		t.Skipf("Docker daemon is not running or accessible: %v", err)
	}
	cli.Close()

	suite.Run(t, new(RefreshIntegrationSuite))
}
