//go:build integration

package eventbus_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"complyd/internal/platform/eventbus"
	"complyd/pkg/testutil/containers"
)

type BusIntegrationSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	bus   *eventbus.Bus
}

func TestBusIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(BusIntegrationSuite))
}

func (s *BusIntegrationSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())

	transport, err := eventbus.NewRedisTransport(s.redis.URL, "")
	s.Require().NoError(err)

	s.bus = eventbus.New(transport,
		eventbus.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	s.Require().Eventually(func() bool {
		return s.bus.Stats().Connected
	}, 10*time.Second, 50*time.Millisecond, "bus never connected to broker")
}

func (s *BusIntegrationSuite) TearDownSuite() {
	s.Require().NoError(s.bus.Close())
}

func (s *BusIntegrationSuite) TestPublishReachesAllHandlers() {
	ctx := context.Background()

	var mu sync.Mutex
	var got []eventbus.Event
	handler := func(_ context.Context, evt eventbus.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, evt)
		return nil
	}

	s.Require().NoError(s.bus.Subscribe(ctx, "integration.test", handler))
	s.Require().NoError(s.bus.Subscribe(ctx, "integration.test", handler))

	// Pub/sub offers no delivery guarantee for messages sent before the
	// broker registers the subscription, so retry until one lands.
	s.Require().Eventually(func() bool {
		err := s.bus.Publish(ctx, "integration.test", map[string]any{
			"orgId":     "org-1",
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return false
		}
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 2
	}, 10*time.Second, 100*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	s.Equal("integration.test", got[0].Channel)
	s.Equal("org-1", got[0].Fields["orgId"])
	s.False(got[0].Timestamp.IsZero())

	s.Require().NoError(s.bus.Unsubscribe(ctx, "integration.test"))
}

func (s *BusIntegrationSuite) TestHealthAgainstLiveBroker() {
	health := s.bus.HealthCheck(context.Background())
	s.Equal(eventbus.StatusHealthy, health.Status)
	s.True(health.PublisherConnected)
	s.True(health.SubscriberConnected)
}
