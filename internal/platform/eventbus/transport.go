package eventbus

import "context"

// Message is one raw inbound broker message before decoding.
type Message struct {
	Channel string
	Payload []byte
}

// Link is a single live broker connection. Links are single-use: once dropped
// or closed they are discarded and the Transport dials a fresh one.
type Link interface {
	// Publish sends a payload on a channel and blocks until the broker
	// acknowledges, the context is done, or the link errors.
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe registers interest in the given channels on the broker.
	Subscribe(ctx context.Context, channels ...string) error
	// Unsubscribe removes interest in the given channels.
	Unsubscribe(ctx context.Context, channels ...string) error
	// Messages streams inbound messages. The channel is closed when the link
	// drops or is closed; that closure is the drop signal for the connection
	// manager.
	Messages() <-chan Message
	// Ping is a lightweight round-trip probe.
	Ping(ctx context.Context) error
	// Close tears the link down. It must be safe to call more than once.
	Close() error
}

// Transport dials broker links. The connection manager calls Dial once per
// connection attempt; implementations must return an independent Link each
// time. Fakes of this interface drive the state machine in tests without a
// live broker.
type Transport interface {
	Dial(ctx context.Context) (Link, error)
}
