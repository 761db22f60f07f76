// Package eventbus is the inter-service publish/subscribe layer decoupling
// the audit, policy, and control services from each other.
//
// Delivery is best-effort, at-most-once-per-attempt fan-out to in-process
// handlers over an unreliable link to the broker. There is no persistence,
// no replay, and no cross-process transaction: a service that needs those
// guarantees must build them on top.
//
// The bus owns two independent broker connections, one publish-only and one
// subscribe-only, each with its own reconnect timeline. Subscriptions survive
// broker disconnects: the tracked-channel set is replayed whenever the
// subscriber connection comes back up. One failing consumer never breaks its
// siblings, and operators get an honest signal through HealthCheck.
//
// Construct the bus explicitly in the composition root and drive Close from
// shutdown; there is deliberately no package-level instance.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "complyd/eventbus"

// Handler consumes one decoded event. Returned errors (and panics) are logged
// by the dispatcher and never propagate to the broker client or to sibling
// handlers. Handler execution is intentionally unbounded; handlers needing a
// deadline must apply their own.
type Handler func(ctx context.Context, evt Event) error

// Bus is the event bus facade.
type Bus struct {
	logger       *slog.Logger
	metrics      *Metrics
	tracer       trace.Tracer
	policy       ReconnectPolicy
	probeTimeout time.Duration

	reg  *registry
	disp *dispatcher
	pub  *managedConn
	sub  *managedConn

	// estMu serializes broker-side subscription establishment between
	// Subscribe/Unsubscribe callers and the ready replay. established holds
	// the channels known to be subscribed on the current link; the replay
	// resets it whenever a fresh link comes up.
	estMu       sync.Mutex
	established map[string]struct{}

	closeOnce sync.Once
}

// Option configures the bus at construction time.
type Option func(*Bus)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

// WithMetrics sets the Prometheus metrics sink. Without it the bus runs
// unmetered.
func WithMetrics(m *Metrics) Option {
	return func(b *Bus) {
		b.metrics = m
	}
}

// WithReconnectPolicy overrides the default resilience policy.
func WithReconnectPolicy(p ReconnectPolicy) Option {
	return func(b *Bus) {
		b.policy = p
	}
}

// WithProbeTimeout overrides the health probe timeout.
func WithProbeTimeout(d time.Duration) Option {
	return func(b *Bus) {
		b.probeTimeout = d
	}
}

// SubscribeOption configures a single subscription.
type SubscribeOption func(*subscribeConfig)

type subscribeConfig struct {
	codec Codec
}

// WithCodec registers a custom codec for the channel being subscribed. The
// codec applies to every handler on the channel; the last registration wins.
func WithCodec(c Codec) SubscribeOption {
	return func(sc *subscribeConfig) {
		sc.codec = c
	}
}

// New constructs the bus and starts both connections. The returned bus is
// usable immediately: operations issued before the broker is reachable return
// ErrNotConnected, and subscriptions are established as soon as the
// subscriber connection comes up.
func New(transport Transport, opts ...Option) *Bus {
	b := &Bus{
		logger:       slog.Default(),
		policy:       DefaultReconnectPolicy(),
		probeTimeout: DefaultProbeTimeout,
		reg:          newRegistry(),
		established:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.tracer = otel.Tracer(tracerName)

	b.disp = &dispatcher{
		reg:     b.reg,
		codec:   JSONCodec{},
		logger:  b.logger,
		metrics: b.metrics,
		tracer:  b.tracer,
	}

	b.pub = newManagedConn("publisher", transport, b.policy, b.logger, b.metrics)
	b.sub = newManagedConn("subscriber", transport, b.policy, b.logger, b.metrics)
	b.sub.onMessage = b.disp.dispatch
	b.sub.onReady = b.replaySubscriptions

	b.pub.start()
	b.sub.start()
	return b
}

// Publish serializes event as a JSON envelope and sends it on channel.
// Failures are surfaced synchronously: the caller asked to send something and
// needs to know it did not happen.
func (b *Bus) Publish(ctx context.Context, channel string, event any) error {
	ctx, span := b.tracer.Start(ctx, "eventbus.publish",
		trace.WithAttributes(attribute.String("messaging.channel", channel)),
	)
	defer span.End()

	payload, err := json.Marshal(event)
	if err != nil {
		b.metrics.IncPublishFailures()
		return fmt.Errorf("encode event for %q: %w", channel, err)
	}
	if err := b.pub.publish(ctx, channel, payload); err != nil {
		b.metrics.IncPublishFailures()
		return fmt.Errorf("publish to %q: %w", channel, err)
	}
	b.metrics.IncPublished()
	return nil
}

// Subscribe registers handler on channel. The first handler for a channel
// marks it tracked and issues the underlying broker subscription; later
// handlers share the existing subscription. A channel registered while the
// subscriber connection is down is established automatically once the
// connection comes up, so a nil return does not imply the broker has seen the
// subscription yet.
func (b *Bus) Subscribe(ctx context.Context, channel string, handler Handler, opts ...SubscribeOption) error {
	var sc subscribeConfig
	for _, opt := range opts {
		opt(&sc)
	}

	first := b.reg.add(channel, handler, sc.codec)
	if !first {
		return nil
	}

	b.estMu.Lock()
	defer b.estMu.Unlock()
	if _, ok := b.established[channel]; ok {
		// A concurrent ready replay already established this channel.
		return nil
	}

	err := b.sub.subscribe(ctx, channel)
	switch {
	case err == nil:
		b.established[channel] = struct{}{}
		return nil
	case errors.Is(err, ErrNotConnected):
		// Stays tracked; the ready replay will establish it.
		b.logger.Debug("subscription deferred until connection is ready",
			"channel", channel,
		)
		return nil
	default:
		// Stays tracked so the next reconnect retries it, but the caller
		// still learns its operation did not complete.
		return fmt.Errorf("subscribe to %q: %w", channel, err)
	}
}

// Unsubscribe removes every handler on channel and stops tracking it. There
// is deliberately no per-handler unsubscribe.
func (b *Bus) Unsubscribe(ctx context.Context, channel string) error {
	if !b.reg.remove(channel) {
		return nil
	}

	b.estMu.Lock()
	defer b.estMu.Unlock()
	delete(b.established, channel)

	err := b.sub.unsubscribe(ctx, channel)
	if err == nil || errors.Is(err, ErrNotConnected) || errors.Is(err, ErrClosed) || errors.Is(err, ErrEnded) {
		// Nothing is subscribed broker-side when the link is gone.
		return nil
	}
	return fmt.Errorf("unsubscribe from %q: %w", channel, err)
}

// replaySubscriptions reissues the underlying subscribe for every tracked
// channel. Fired on each subscriber-connection ready transition: the replay
// after the initial connect covers subscriptions registered before the broker
// was reachable, the ones after reconnects restore broker state lost with the
// old link. Per-channel failures are logged and skipped; a failed channel
// stays tracked so the next reconnect retries it.
func (b *Bus) replaySubscriptions(reconnect bool) {
	b.estMu.Lock()
	defer b.estMu.Unlock()

	// Whatever was established belonged to the previous link.
	if reconnect {
		b.established = make(map[string]struct{})
	}

	channels := b.reg.trackedChannels()
	if len(channels) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.policy.normalized().ConnectTimeout)
	defer cancel()

	replayed := 0
	for _, ch := range channels {
		if _, ok := b.established[ch]; ok {
			continue
		}
		if err := b.sub.subscribe(ctx, ch); err != nil {
			b.logger.Error("failed to resubscribe channel",
				"channel", ch,
				"reconnect", reconnect,
				"error", err,
			)
			continue
		}
		b.established[ch] = struct{}{}
		replayed++
	}
	b.logger.Info("subscriptions replayed",
		"channels", replayed,
		"tracked", len(channels),
		"reconnect", reconnect,
	)
}

// Close terminates both connections and stops accepting new work. In-flight
// handler invocations are allowed to finish; they are never cancelled. Safe
// to call more than once.
func (b *Bus) Close() error {
	b.closeOnce.Do(func() {
		b.pub.close()
		b.sub.close()
		b.logger.Info("event bus closed")
	})
	return nil
}
