package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// keepAlivePingTimeout bounds a single keep-alive probe so a wedged broker
// cannot stall the pump loop for a full keep-alive interval.
const keepAlivePingTimeout = 5 * time.Second

// managedConn owns one long-lived broker connection and its reconnect
// lifecycle. The publisher and subscriber connections are two independent
// instances with independent reconnect timelines.
type managedConn struct {
	name      string
	transport Transport
	policy    ReconnectPolicy
	logger    *slog.Logger
	metrics   *Metrics

	// onMessage receives every inbound raw message. Only set on the
	// subscriber connection.
	onMessage func(Message)
	// onReady fires each time the connection reaches StateReady. reconnect is
	// false for the initial connect. Only set on the subscriber connection,
	// where it drives subscription replay.
	onReady func(reconnect bool)

	mu     sync.Mutex
	state  State
	link   Link
	closed bool

	cancel context.CancelFunc
	done   chan struct{}
}

func newManagedConn(name string, transport Transport, policy ReconnectPolicy, logger *slog.Logger, metrics *Metrics) *managedConn {
	return &managedConn{
		name:      name,
		transport: transport,
		policy:    policy.normalized(),
		logger:    logger.With("connection", name),
		metrics:   metrics,
		state:     StateDisconnected,
		done:      make(chan struct{}),
	}
}

// start launches the connect/reconnect loop.
func (c *managedConn) start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.run(ctx)
}

// run drives the state machine until explicit close or terminal failure.
// Connection-level errors here are logged, never surfaced: no caller is
// waiting on them.
func (c *managedConn) run(ctx context.Context) {
	defer close(c.done)

	attempt := 0
	everConnected := false

	for {
		if !c.transition(StateConnecting) {
			return
		}

		dialCtx, cancel := context.WithTimeout(ctx, c.policy.ConnectTimeout)
		link, err := c.transport.Dial(dialCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				c.transition(StateClosed)
				return
			}
			attempt++
			if c.policy.Exhausted(attempt) {
				c.logger.Error("reconnect attempts exhausted, connection ended",
					"attempts", attempt,
					"error", err,
				)
				c.transition(StateEnded)
				return
			}
			delay := c.policy.Delay(attempt)
			c.logger.Warn("connection attempt failed",
				"attempt", attempt,
				"retry_in", delay.String(),
				"error", err,
			)
			if !c.transition(StateReconnecting) {
				return
			}
			select {
			case <-ctx.Done():
				c.transition(StateClosed)
				return
			case <-time.After(delay):
			}
			continue
		}

		attempt = 0
		if !c.setLink(link) {
			// closed while dialing
			_ = link.Close()
			return
		}
		c.transition(StateReady)
		if everConnected {
			c.logger.Info("connection reestablished")
			c.metrics.IncReconnects(c.name)
		} else {
			c.logger.Info("connection established")
		}
		if c.onReady != nil {
			c.onReady(everConnected)
		}
		everConnected = true

		c.pump(ctx, link)

		c.setLink(nil)
		_ = link.Close()
		if ctx.Err() != nil {
			c.transition(StateClosed)
			return
		}
		// Network drop: ready -> closed -> reconnecting, then loop back to
		// connecting.
		c.logger.Warn("connection dropped")
		c.transition(StateClosed)
		c.transition(StateReconnecting)
	}
}

// pump consumes inbound messages and runs the keep-alive probe until the link
// drops or the connection is closed.
func (c *managedConn) pump(ctx context.Context, link Link) {
	keepalive := time.NewTicker(c.policy.KeepAliveInterval)
	defer keepalive.Stop()

	msgs := link.Messages()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-msgs:
			if !ok {
				return
			}
			if c.onMessage != nil {
				c.onMessage(m)
			}
		case <-keepalive.C:
			pingCtx, cancel := context.WithTimeout(ctx, keepAlivePingTimeout)
			err := link.Ping(pingCtx)
			cancel()
			if err != nil {
				c.logger.Warn("keep-alive ping failed", "error", err)
				return
			}
		}
	}
}

// transition moves the state machine, refusing to leave a terminal state.
// Returns false when the connection has been explicitly closed.
func (c *managedConn) transition(next State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed && next != StateClosed {
		c.state = StateClosed
		c.metrics.SetConnectionState(c.name, StateClosed)
		return false
	}
	if c.state == StateEnded {
		return false
	}
	c.state = next
	c.metrics.SetConnectionState(c.name, next)
	return true
}

func (c *managedConn) setLink(link Link) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.link = link
	return true
}

// currentLink returns the live link or the reason none is available.
func (c *managedConn) currentLink() (Link, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.state == StateEnded:
		return nil, ErrEnded
	case c.closed:
		return nil, ErrClosed
	case c.link == nil || c.state != StateReady:
		return nil, ErrNotConnected
	}
	return c.link, nil
}

// State reports the current connection state.
func (c *managedConn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *managedConn) ready() bool {
	return c.State() == StateReady
}

func (c *managedConn) publish(ctx context.Context, channel string, payload []byte) error {
	link, err := c.currentLink()
	if err != nil {
		return err
	}
	return link.Publish(ctx, channel, payload)
}

func (c *managedConn) subscribe(ctx context.Context, channels ...string) error {
	link, err := c.currentLink()
	if err != nil {
		return err
	}
	return link.Subscribe(ctx, channels...)
}

func (c *managedConn) unsubscribe(ctx context.Context, channels ...string) error {
	link, err := c.currentLink()
	if err != nil {
		return err
	}
	return link.Unsubscribe(ctx, channels...)
}

// ping probes the live link round-trip.
func (c *managedConn) ping(ctx context.Context) error {
	link, err := c.currentLink()
	if err != nil {
		return err
	}
	return link.Ping(ctx)
}

// close tears the connection down and waits for the run loop to exit. Safe to
// call more than once.
func (c *managedConn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.done
		return
	}
	c.closed = true
	link := c.link
	c.link = nil
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	if link != nil {
		_ = link.Close()
	}
	if c.cancel != nil {
		<-c.done
	}

	c.mu.Lock()
	if c.state != StateEnded {
		c.state = StateClosed
		c.metrics.SetConnectionState(c.name, StateClosed)
	}
	c.mu.Unlock()
}
