package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"complyd/internal/storage"
	dErrors "complyd/pkg/domain-errors"
)

// Publisher is the slice of the event bus the audit service needs. It is
// satisfied by *eventbus.Bus.
type Publisher interface {
	Publish(ctx context.Context, channel string, event any) error
}

// Service owns the append-only audit trail. Persistence is mandatory;
// publication to the bus is best-effort so a broker outage never loses an
// audit record.
type Service struct {
	store  Store
	blobs  storage.BlobStore
	bus    Publisher
	logger *slog.Logger
}

func NewService(store Store, blobs storage.BlobStore, bus Publisher, logger *slog.Logger) *Service {
	return &Service{store: store, blobs: blobs, bus: bus, logger: logger}
}

// Record validates and persists one audit event, then announces it on the
// bus. The persisted event is returned with its generated ID and timestamp.
func (s *Service) Record(ctx context.Context, event Event) (Event, error) {
	if event.OrgID == "" {
		return Event{}, dErrors.New(dErrors.CodeBadRequest, "orgId is required")
	}
	if event.ActorID == "" {
		return Event{}, dErrors.New(dErrors.CodeBadRequest, "actorId is required")
	}
	if event.Action == "" {
		return Event{}, dErrors.New(dErrors.CodeBadRequest, "action is required")
	}
	if event.ResourceType == "" {
		return Event{}, dErrors.New(dErrors.CodeBadRequest, "resourceType is required")
	}

	event.ID = uuid.New()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if err := s.store.Append(ctx, event); err != nil {
		return Event{}, dErrors.Wrap(err, dErrors.CodeInternal, "persist audit event")
	}

	s.announce(ctx, ChannelAuditRecorded, event)
	return event, nil
}

// Complete marks an audit engagement as finished. Downstream services key off
// this to re-evaluate their own state, so it gets its own channel.
func (s *Service) Complete(ctx context.Context, orgID, actorID, auditID string) (Event, error) {
	event, err := s.Record(ctx, Event{
		OrgID:        orgID,
		ActorID:      actorID,
		Action:       "audit.completed",
		ResourceType: "audit",
		ResourceID:   auditID,
	})
	if err != nil {
		return Event{}, err
	}

	s.announce(ctx, ChannelAuditCompleted, map[string]any{
		"auditId":   auditID,
		"orgId":     orgID,
		"timestamp": event.Timestamp.Format(time.RFC3339Nano),
	})
	return event, nil
}

// List returns the newest events for an org, at most limit entries.
func (s *Service) List(ctx context.Context, orgID string, limit int) ([]Event, error) {
	if orgID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "orgId is required")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	events, err := s.store.ListByOrg(ctx, orgID, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list audit events")
	}
	return events, nil
}

// AttachEvidence stores supporting material for an audit event and returns
// the storage key.
func (s *Service) AttachEvidence(ctx context.Context, eventID uuid.UUID, filename, contentType string, data []byte) (string, error) {
	if filename == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "filename is required")
	}
	if len(data) == 0 {
		return "", dErrors.New(dErrors.CodeBadRequest, "evidence body is empty")
	}

	key := fmt.Sprintf("evidence/%s/%s", eventID, filename)
	if err := s.blobs.Put(ctx, key, contentType, data); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "store evidence")
	}
	return key, nil
}

func (s *Service) announce(ctx context.Context, channel string, payload any) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "audit event not announced on bus",
			"channel", channel,
			"error", err,
		)
	}
}
