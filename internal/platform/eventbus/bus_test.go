package eventbus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// =============================================================================
// Bus Test Suite
// =============================================================================
// These tests drive the full bus (connection manager, registry, dispatcher,
// health monitor) against the fake transport so reconnect behavior is
// deterministic and no broker is required.

type BusSuite struct {
	suite.Suite
	transport *fakeTransport
	bus       *Bus
}

func TestBusSuite(t *testing.T) {
	suite.Run(t, new(BusSuite))
}

func (s *BusSuite) SetupTest() {
	s.transport = newFakeTransport()
	s.bus = New(s.transport,
		WithLogger(testLogger()),
		WithReconnectPolicy(fastPolicy()),
		WithProbeTimeout(100*time.Millisecond),
	)
}

func (s *BusSuite) TearDownTest() {
	_ = s.bus.Close()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fastPolicy keeps reconnect timelines in the millisecond range. The
// keep-alive interval is effectively disabled so probes never interfere with
// tests that inject ping failures.
func fastPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		BaseDelay:         time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		ConnectTimeout:    100 * time.Millisecond,
		KeepAliveInterval: time.Hour,
	}
}

func (s *BusSuite) waitConnected() {
	s.Require().Eventually(func() bool {
		return s.bus.Stats().Connected
	}, time.Second, time.Millisecond, "bus never connected")
}

// collector is a handler capturing delivered events.
func collector(events chan Event) Handler {
	return func(_ context.Context, evt Event) error {
		events <- evt
		return nil
	}
}

// =============================================================================
// Subscription semantics
// =============================================================================

func (s *BusSuite) TestTwoHandlersShareOneUnderlyingSubscription() {
	s.waitConnected()
	ctx := context.Background()

	h1 := make(chan Event, 1)
	h2 := make(chan Event, 1)
	s.Require().NoError(s.bus.Subscribe(ctx, "audit.completed", collector(h1)))
	s.Require().NoError(s.bus.Subscribe(ctx, "audit.completed", collector(h2)))

	s.Equal(1, s.transport.totalSubscribes("audit.completed"),
		"second handler must reuse the existing broker subscription")

	s.transport.subscriberLink().deliver("audit.completed", []byte(`{"auditId":"AUD-001"}`))

	for _, ch := range []chan Event{h1, h2} {
		select {
		case evt := <-ch:
			s.Equal("AUD-001", evt.Fields["auditId"])
		case <-time.After(time.Second):
			s.Fail("handler did not receive the event")
		}
	}
}

func (s *BusSuite) TestUnsubscribeRemovesAllHandlersAndTracking() {
	s.waitConnected()
	ctx := context.Background()

	events := make(chan Event, 4)
	s.Require().NoError(s.bus.Subscribe(ctx, "risk.created", collector(events)))
	s.Require().NoError(s.bus.Subscribe(ctx, "risk.created", collector(events)))
	s.Require().NoError(s.bus.Unsubscribe(ctx, "risk.created"))

	stats := s.bus.Stats()
	s.Zero(stats.TrackedChannels)
	s.Zero(stats.ActiveHandlers)

	// Messages still in flight during the unsubscribe race are discarded
	// silently.
	s.bus.disp.dispatch(Message{Channel: "risk.created", Payload: []byte(`{}`)})
	select {
	case <-events:
		s.Fail("handler invoked after unsubscribe")
	case <-time.After(20 * time.Millisecond):
	}
}

func (s *BusSuite) TestUnsubscribedChannelIsNotResubscribedAfterReconnect() {
	s.waitConnected()
	ctx := context.Background()

	events := make(chan Event, 1)
	s.Require().NoError(s.bus.Subscribe(ctx, "audit.completed", collector(events)))
	s.Require().NoError(s.bus.Subscribe(ctx, "risk.created", collector(events)))
	s.Require().NoError(s.bus.Unsubscribe(ctx, "risk.created"))

	old := s.transport.subscriberLink()
	s.Require().NotNil(old)
	old.drop()

	s.Require().Eventually(func() bool {
		link := s.transport.subscriberLink()
		return link != nil && link != old && link.subscribeCount("audit.completed") == 1
	}, time.Second, time.Millisecond, "tracked channel was not resubscribed")

	s.Zero(s.transport.subscriberLink().subscribeCount("risk.created"),
		"unsubscribed channel must not be resubscribed")
}

func (s *BusSuite) TestHandlersSurviveReconnectWithoutReregistration() {
	s.waitConnected()
	ctx := context.Background()

	events := make(chan Event, 1)
	s.Require().NoError(s.bus.Subscribe(ctx, "audit.completed", collector(events)))

	old := s.transport.subscriberLink()
	s.Require().NotNil(old)
	old.drop()

	var recovered *fakeLink
	s.Require().Eventually(func() bool {
		recovered = s.transport.subscriberLink()
		return recovered != nil && recovered != old
	}, time.Second, time.Millisecond, "subscriber connection never recovered")

	recovered.deliver("audit.completed", []byte(`{"auditId":"AUD-002"}`))
	select {
	case evt := <-events:
		s.Equal("AUD-002", evt.Fields["auditId"])
	case <-time.After(time.Second):
		s.Fail("handler registered before the drop did not receive post-recovery message")
	}
}

func (s *BusSuite) TestSubscribeBeforeBrokerIsReachable() {
	// A subscription registered while the broker is still unreachable must be
	// established automatically once the connection comes up.
	transport := newFakeTransport()
	transport.setFailAll(true)
	bus := New(transport,
		WithLogger(testLogger()),
		WithReconnectPolicy(fastPolicy()),
	)
	defer func() { _ = bus.Close() }()

	events := make(chan Event, 1)
	s.Require().NoError(bus.Subscribe(context.Background(), "audit.completed", collector(events)))

	transport.setFailAll(false)
	s.Require().Eventually(func() bool {
		return transport.totalSubscribes("audit.completed") == 1
	}, time.Second, time.Millisecond, "deferred subscription was never established")
}

// =============================================================================
// Dispatch semantics
// =============================================================================

func (s *BusSuite) TestFailingHandlerDoesNotBlockSiblings() {
	s.waitConnected()
	ctx := context.Background()

	received := make(chan Event, 1)
	otherChannel := make(chan Event, 1)

	s.Require().NoError(s.bus.Subscribe(ctx, "risk.created", func(context.Context, Event) error {
		return errors.New("boom")
	}))
	s.Require().NoError(s.bus.Subscribe(ctx, "risk.created", func(context.Context, Event) error {
		panic("much worse boom")
	}))
	s.Require().NoError(s.bus.Subscribe(ctx, "risk.created", collector(received)))
	s.Require().NoError(s.bus.Subscribe(ctx, "vendor.updated", collector(otherChannel)))

	link := s.transport.subscriberLink()
	link.deliver("risk.created", []byte(`{"riskId":"R-7"}`))
	link.deliver("vendor.updated", []byte(`{"vendorId":"V-1"}`))

	select {
	case evt := <-received:
		s.Equal("R-7", evt.Fields["riskId"])
	case <-time.After(time.Second):
		s.Fail("sibling handler did not receive the event")
	}
	select {
	case evt := <-otherChannel:
		s.Equal("V-1", evt.Fields["vendorId"])
	case <-time.After(time.Second):
		s.Fail("other channel was affected by a failing handler")
	}
}

func (s *BusSuite) TestUndecodableMessageIsDroppedNotFatal() {
	s.waitConnected()
	ctx := context.Background()

	events := make(chan Event, 1)
	s.Require().NoError(s.bus.Subscribe(ctx, "audit.completed", collector(events)))

	link := s.transport.subscriberLink()
	link.deliver("audit.completed", []byte(`{not json`))
	link.deliver("audit.completed", []byte(`{"auditId":"AUD-003"}`))

	select {
	case evt := <-events:
		s.Equal("AUD-003", evt.Fields["auditId"], "dispatcher must keep processing after a decode failure")
	case <-time.After(time.Second):
		s.Fail("dispatcher stalled after decode failure")
	}
}

func (s *BusSuite) TestHandlerMayUnsubscribeItsOwnChannel() {
	s.waitConnected()
	ctx := context.Background()

	done := make(chan struct{})
	s.Require().NoError(s.bus.Subscribe(ctx, "audit.completed", func(hctx context.Context, _ Event) error {
		defer close(done)
		return s.bus.Unsubscribe(hctx, "audit.completed")
	}))

	s.transport.subscriberLink().deliver("audit.completed", []byte(`{}`))
	select {
	case <-done:
	case <-time.After(time.Second):
		s.Fail("handler deadlocked while unsubscribing its own channel")
	}
	s.Zero(s.bus.Stats().TrackedChannels)
}

func (s *BusSuite) TestTimestampRoundTrip() {
	s.waitConnected()
	ctx := context.Background()

	events := make(chan Event, 1)
	s.Require().NoError(s.bus.Subscribe(ctx, "audit.completed", collector(events)))

	now := time.Now().UTC()
	s.Require().NoError(s.bus.Publish(ctx, "audit.completed", map[string]any{
		"auditId":   "AUD-001",
		"timestamp": now,
	}))

	published, ok := s.transport.publisherLink().lastPublished()
	s.Require().True(ok)
	s.Equal("audit.completed", published.channel)

	// Loop the wire bytes back in as an inbound message.
	s.transport.subscriberLink().deliver(published.channel, published.payload)

	select {
	case evt := <-events:
		s.Equal("AUD-001", evt.Fields["auditId"])
		s.False(evt.Timestamp.IsZero(), "timestamp was not reconstituted")
		s.WithinDuration(now, evt.Timestamp, time.Millisecond)
	case <-time.After(time.Second):
		s.Fail("event was not delivered")
	}
}

// =============================================================================
// Publish semantics
// =============================================================================

func (s *BusSuite) TestPublishFailureIsSurfacedToCaller() {
	s.waitConnected()

	link := s.transport.publisherLink()
	s.Require().NotNil(link)
	link.setPublishErr(errors.New("broker said no"))

	err := s.bus.Publish(context.Background(), "audit.completed", map[string]any{"k": "v"})
	s.Require().Error(err)
	s.Contains(err.Error(), "broker said no")
}

func (s *BusSuite) TestPublishAfterCloseReturnsErrClosed() {
	s.waitConnected()
	s.Require().NoError(s.bus.Close())

	err := s.bus.Publish(context.Background(), "audit.completed", map[string]any{"k": "v"})
	s.Require().ErrorIs(err, ErrClosed)
}

func (s *BusSuite) TestCloseIsIdempotent() {
	s.waitConnected()
	s.Require().NoError(s.bus.Close())
	s.Require().NoError(s.bus.Close())
}

// =============================================================================
// Stats
// =============================================================================

func (s *BusSuite) TestStatsCountsHandlersAcrossChannels() {
	s.waitConnected()
	ctx := context.Background()

	s.Zero(s.bus.Stats().ActiveHandlers, "fresh bus must report zero handlers")

	noop := func(context.Context, Event) error { return nil }
	s.Require().NoError(s.bus.Subscribe(ctx, "audit.completed", noop))
	s.Require().NoError(s.bus.Subscribe(ctx, "audit.completed", noop))
	s.Require().NoError(s.bus.Subscribe(ctx, "risk.created", noop))

	stats := s.bus.Stats()
	s.Equal(2, stats.TrackedChannels)
	s.Equal(3, stats.ActiveHandlers)
	s.True(stats.Connected)

	s.Require().NoError(s.bus.Unsubscribe(ctx, "audit.completed"))
	stats = s.bus.Stats()
	s.Equal(1, stats.TrackedChannels)
	s.Equal(1, stats.ActiveHandlers)
}

// =============================================================================
// Health monitor
// =============================================================================

func (s *BusSuite) TestHealthClassification() {
	s.waitConnected()
	ctx := context.Background()

	// A subscription pins down which link belongs to the subscriber
	// connection.
	noop := func(context.Context, Event) error { return nil }
	s.Require().NoError(s.bus.Subscribe(ctx, "audit.completed", noop))

	health := s.bus.HealthCheck(ctx)
	s.Equal(StatusHealthy, health.Status)
	s.True(health.PublisherConnected)
	s.True(health.SubscriberConnected)
	s.Equal(1, health.TrackedChannels)
	s.GreaterOrEqual(health.LatencyMs, int64(0))

	s.transport.subscriberLink().setPingErr(errors.New("probe timeout"))
	health = s.bus.HealthCheck(ctx)
	s.Equal(StatusDegraded, health.Status)
	s.True(health.PublisherConnected)
	s.False(health.SubscriberConnected)
	s.GreaterOrEqual(health.LatencyMs, int64(0))

	s.transport.publisherLink().setPingErr(errors.New("probe timeout"))
	health = s.bus.HealthCheck(ctx)
	s.Equal(StatusUnhealthy, health.Status)
	s.False(health.PublisherConnected)
	s.False(health.SubscriberConnected)
	s.GreaterOrEqual(health.LatencyMs, int64(0))
}

func (s *BusSuite) TestKeepAliveDetectsSilentDrop() {
	transport := newFakeTransport()
	policy := fastPolicy()
	policy.KeepAliveInterval = 5 * time.Millisecond
	bus := New(transport,
		WithLogger(testLogger()),
		WithReconnectPolicy(policy),
	)
	defer func() { _ = bus.Close() }()

	events := make(chan Event, 1)
	s.Require().NoError(bus.Subscribe(context.Background(), "audit.completed", collector(events)))
	s.Require().Eventually(func() bool {
		return transport.subscriberLink() != nil
	}, time.Second, time.Millisecond)

	// The broker goes silent without closing the socket; only the keep-alive
	// probe can notice.
	old := transport.subscriberLink()
	old.setPingErr(errors.New("connection wedged"))

	s.Require().Eventually(func() bool {
		link := transport.subscriberLink()
		return link != nil && link != old && link.subscribeCount("audit.completed") == 1
	}, time.Second, time.Millisecond, "wedged connection was never replaced")
}

// =============================================================================
// Terminal failure
// =============================================================================

func (s *BusSuite) TestReconnectAttemptsExhaustedIsTerminal() {
	transport := newFakeTransport()
	transport.setFailAll(true)

	policy := fastPolicy()
	policy.MaxAttempts = 1
	bus := New(transport,
		WithLogger(testLogger()),
		WithReconnectPolicy(policy),
		WithProbeTimeout(50*time.Millisecond),
	)
	defer func() { _ = bus.Close() }()

	// Each connection gets the initial attempt plus one reconnect attempt.
	s.Require().Eventually(func() bool {
		return bus.pub.State() == StateEnded && bus.sub.State() == StateEnded
	}, time.Second, time.Millisecond, "connections never reached the terminal state")

	failures := transport.failures()
	s.Equal(4, failures, "expected exactly two attempts per connection")

	time.Sleep(20 * time.Millisecond)
	s.Equal(failures, transport.failures(), "no further attempts may happen after ended")

	s.False(bus.Stats().Connected)
	s.Require().ErrorIs(bus.Publish(context.Background(), "audit.completed", map[string]any{}), ErrEnded)

	health := bus.HealthCheck(context.Background())
	s.Equal(StatusUnhealthy, health.Status)
	s.GreaterOrEqual(health.LatencyMs, int64(0))
}
