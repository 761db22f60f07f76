package eventbus

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultProbeTimeout bounds the health probe round-trips.
const DefaultProbeTimeout = 2 * time.Second

// Status is the aggregate health classification of the bus.
type Status string

const (
	// StatusHealthy means both connections answered the probe.
	StatusHealthy Status = "healthy"
	// StatusDegraded means exactly one connection answered.
	StatusDegraded Status = "degraded"
	// StatusUnhealthy means neither connection answered.
	StatusUnhealthy Status = "unhealthy"
)

// Health is the operator-facing health snapshot.
type Health struct {
	Status              Status `json:"status"`
	LatencyMs           int64  `json:"latency_ms"`
	SubscriberConnected bool   `json:"subscriber_connected"`
	PublisherConnected  bool   `json:"publisher_connected"`
	TrackedChannels     int    `json:"tracked_channels"`
}

// Stats is the cheap in-memory statistics snapshot. It never touches the
// network.
type Stats struct {
	Connected       bool `json:"connected"`
	TrackedChannels int  `json:"tracked_channels"`
	ActiveHandlers  int  `json:"active_handlers"`
}

// HealthCheck probes both connections concurrently with a short timeout. A
// probe failure or timeout is a non-response, never an error: the whole point
// is an honest signal under failure. LatencyMs measures the probe pair even
// when both time out (time-to-give-up).
func (b *Bus) HealthCheck(ctx context.Context) Health {
	start := time.Now()
	probeCtx, cancel := context.WithTimeout(ctx, b.probeTimeout)
	defer cancel()

	var pubOK, subOK bool
	var g errgroup.Group
	g.Go(func() error {
		pubOK = b.pub.ping(probeCtx) == nil
		return nil
	})
	g.Go(func() error {
		subOK = b.sub.ping(probeCtx) == nil
		return nil
	})
	_ = g.Wait()

	status := StatusUnhealthy
	switch {
	case pubOK && subOK:
		status = StatusHealthy
	case pubOK || subOK:
		status = StatusDegraded
	}

	tracked, _ := b.reg.counts()
	return Health{
		Status:              status,
		LatencyMs:           time.Since(start).Milliseconds(),
		SubscriberConnected: subOK,
		PublisherConnected:  pubOK,
		TrackedChannels:     tracked,
	}
}

// Stats derives the statistics snapshot from registry and connection state.
func (b *Bus) Stats() Stats {
	tracked, handlers := b.reg.counts()
	return Stats{
		Connected:       b.pub.ready() && b.sub.ready(),
		TrackedChannels: tracked,
		ActiveHandlers:  handlers,
	}
}
