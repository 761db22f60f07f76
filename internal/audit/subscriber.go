package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"complyd/internal/platform/eventbus"
)

// Subscriber persists domain occurrences emitted by sibling services so the
// audit trail covers the whole platform, not just direct API writes.
type Subscriber struct {
	store  Store
	logger *slog.Logger
}

func NewSubscriber(store Store, logger *slog.Logger) *Subscriber {
	return &Subscriber{store: store, logger: logger}
}

// Register subscribes the handler on every peer channel.
func (s *Subscriber) Register(ctx context.Context, bus *eventbus.Bus) error {
	for _, channel := range PeerChannels {
		if err := bus.Subscribe(ctx, channel, s.handle); err != nil {
			return err
		}
	}
	return nil
}

func (s *Subscriber) handle(ctx context.Context, evt eventbus.Event) error {
	event := fromEnvelope(evt)
	if event.OrgID == "" {
		// Without an org the entry is unqueryable; log and drop rather than
		// poison the trail.
		s.logger.WarnContext(ctx, "peer event missing orgId, dropped",
			"channel", evt.Channel,
		)
		return nil
	}

	if err := s.store.Append(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist peer event",
			"channel", evt.Channel,
			"org_id", event.OrgID,
			"error", err,
		)
		return err
	}
	return nil
}

// fromEnvelope maps a bus envelope onto an audit trail entry. The channel
// name doubles as the action when the envelope does not carry one.
func fromEnvelope(evt eventbus.Event) Event {
	event := Event{
		ID:        uuid.New(),
		Action:    evt.Channel,
		Timestamp: evt.Timestamp,
		Details:   map[string]any{},
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	for key, value := range evt.Fields {
		switch key {
		case "orgId":
			event.OrgID, _ = value.(string)
		case "actorId":
			event.ActorID, _ = value.(string)
		case "action":
			if action, ok := value.(string); ok && action != "" {
				event.Action = action
			}
		case "resourceType":
			event.ResourceType, _ = value.(string)
		case "resourceId":
			event.ResourceID, _ = value.(string)
		case "timestamp":
			// Already coerced onto evt.Timestamp by the codec.
		default:
			event.Details[key] = value
		}
	}
	if event.ResourceType == "" {
		event.ResourceType = evt.Channel
	}
	if len(event.Details) == 0 {
		event.Details = nil
	}
	return event
}
