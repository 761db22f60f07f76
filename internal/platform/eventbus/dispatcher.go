package eventbus

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// dispatcher fans one inbound raw message out to every handler registered for
// its channel. Each message is delivered on its own goroutine so a slow
// handler chain never blocks reception of the next message; within one
// message, handlers run sequentially.
type dispatcher struct {
	reg     *registry
	codec   Codec
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// dispatch is invoked once per inbound raw message from the subscriber
// connection's pump loop.
func (d *dispatcher) dispatch(msg Message) {
	handlers, codec := d.reg.handlersFor(msg.Channel)
	if len(handlers) == 0 {
		// Unsubscribed-but-still-arriving messages are expected during
		// unsubscribe races. Discard silently.
		return
	}
	if codec == nil {
		codec = d.codec
	}
	go d.deliver(msg, handlers, codec)
}

func (d *dispatcher) deliver(msg Message, handlers []Handler, codec Codec) {
	ctx, span := d.tracer.Start(context.Background(), "eventbus.dispatch",
		trace.WithAttributes(
			attribute.String("messaging.channel", msg.Channel),
			attribute.Int("messaging.handler_count", len(handlers)),
		),
	)
	defer span.End()

	evt, err := codec.Decode(msg.Channel, msg.Payload)
	if err != nil {
		// One undecodable message must never stop the dispatcher.
		d.metrics.IncDecodeFailures()
		d.logger.Error("dropping undecodable message",
			"channel", msg.Channel,
			"error", err,
		)
		return
	}

	for _, h := range handlers {
		d.invoke(ctx, h, evt)
	}
}

// invoke runs a single handler with error and panic isolation: one failing
// handler never prevents delivery to its siblings.
func (d *dispatcher) invoke(ctx context.Context, h Handler, evt Event) {
	defer func() {
		if rec := recover(); rec != nil {
			d.metrics.IncHandlerFailures()
			d.logger.Error("handler panicked",
				"channel", evt.Channel,
				"panic", rec,
			)
		}
	}()

	if err := h(ctx, evt); err != nil {
		d.metrics.IncHandlerFailures()
		d.logger.Error("handler failed",
			"channel", evt.Channel,
			"error", err,
		)
		return
	}
	d.metrics.IncDelivered()
}
