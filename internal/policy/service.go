package policy

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"complyd/internal/audit"
	"complyd/internal/platform/eventbus"
	dErrors "complyd/pkg/domain-errors"
	"complyd/pkg/platform/sentinel"
)

// Publisher is the slice of the event bus the policy service needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, event any) error
}

// Service manages compliance policies. Every completed audit engagement puts
// the org's policies back into the review queue; the queue drains as each
// policy is reviewed.
type Service struct {
	store  Store
	bus    Publisher
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store Store, bus Publisher, logger *slog.Logger) *Service {
	return &Service{store: store, bus: bus, logger: logger, now: time.Now}
}

// Create registers a new policy at version 1 and announces it.
func (s *Service) Create(ctx context.Context, orgID, actorID, name string) (Policy, error) {
	if orgID == "" {
		return Policy{}, dErrors.New(dErrors.CodeBadRequest, "orgId is required")
	}
	if name == "" {
		return Policy{}, dErrors.New(dErrors.CodeBadRequest, "name is required")
	}

	policy := Policy{
		ID:        uuid.New(),
		OrgID:     orgID,
		Name:      name,
		Version:   1,
		UpdatedAt: s.now().UTC(),
	}
	if err := s.store.Upsert(ctx, policy); err != nil {
		return Policy{}, dErrors.Wrap(err, dErrors.CodeInternal, "persist policy")
	}

	s.announce(ctx, policy, actorID)
	return policy, nil
}

// Update bumps the policy version. An updated policy no longer needs review;
// the edit itself is the review.
func (s *Service) Update(ctx context.Context, orgID, actorID, id, name string) (Policy, error) {
	policy, err := s.getOwned(ctx, orgID, id)
	if err != nil {
		return Policy{}, err
	}

	if name != "" {
		policy.Name = name
	}
	policy.Version++
	policy.NeedsReview = false
	policy.UpdatedAt = s.now().UTC()

	if err := s.store.Upsert(ctx, policy); err != nil {
		return Policy{}, dErrors.Wrap(err, dErrors.CodeInternal, "persist policy")
	}

	s.announce(ctx, policy, actorID)
	return policy, nil
}

// MarkReviewed clears the review flag after a human has looked at the policy.
func (s *Service) MarkReviewed(ctx context.Context, orgID, id string) (Policy, error) {
	policy, err := s.getOwned(ctx, orgID, id)
	if err != nil {
		return Policy{}, err
	}

	reviewedAt := s.now().UTC()
	policy.NeedsReview = false
	policy.LastReviewedAt = &reviewedAt

	if err := s.store.Upsert(ctx, policy); err != nil {
		return Policy{}, dErrors.Wrap(err, dErrors.CodeInternal, "persist policy")
	}
	return policy, nil
}

// List returns all policies for an org.
func (s *Service) List(ctx context.Context, orgID string) ([]Policy, error) {
	if orgID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "orgId is required")
	}
	policies, err := s.store.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list policies")
	}
	return policies, nil
}

// ReviewQueue returns the org's policies flagged for review.
func (s *Service) ReviewQueue(ctx context.Context, orgID string) ([]Policy, error) {
	if orgID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "orgId is required")
	}
	policies, err := s.store.ListNeedingReview(ctx, orgID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list review queue")
	}
	return policies, nil
}

// RegisterSubscriptions wires the service onto the bus. A completed audit
// flags every policy in the audited org for review.
func (s *Service) RegisterSubscriptions(ctx context.Context, bus *eventbus.Bus) error {
	return bus.Subscribe(ctx, audit.ChannelAuditCompleted, s.onAuditCompleted)
}

func (s *Service) onAuditCompleted(ctx context.Context, evt eventbus.Event) error {
	orgID, _ := evt.Fields["orgId"].(string)
	if orgID == "" {
		s.logger.WarnContext(ctx, "audit completion missing orgId, ignored")
		return nil
	}

	policies, err := s.store.ListByOrg(ctx, orgID)
	if err != nil {
		return err
	}
	for _, policy := range policies {
		if policy.NeedsReview {
			continue
		}
		policy.NeedsReview = true
		if err := s.store.Upsert(ctx, policy); err != nil {
			return err
		}
	}

	s.logger.InfoContext(ctx, "policies flagged for review",
		"org_id", orgID,
		"count", len(policies),
	)
	return nil
}

func (s *Service) getOwned(ctx context.Context, orgID, id string) (Policy, error) {
	if orgID == "" {
		return Policy{}, dErrors.New(dErrors.CodeBadRequest, "orgId is required")
	}
	policy, err := s.store.GetByID(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Policy{}, dErrors.New(dErrors.CodeNotFound, "policy not found")
	}
	if err != nil {
		return Policy{}, dErrors.Wrap(err, dErrors.CodeInternal, "load policy")
	}
	// Cross-org access reads as not-found so IDs do not leak across tenants.
	if policy.OrgID != orgID {
		return Policy{}, dErrors.New(dErrors.CodeNotFound, "policy not found")
	}
	return policy, nil
}

func (s *Service) announce(ctx context.Context, policy Policy, actorID string) {
	if s.bus == nil {
		return
	}
	err := s.bus.Publish(ctx, ChannelPolicyUpdated, map[string]any{
		"orgId":        policy.OrgID,
		"actorId":      actorID,
		"resourceType": "policy",
		"resourceId":   policy.ID.String(),
		"version":      policy.Version,
		"timestamp":    policy.UpdatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "policy update not announced on bus",
			"policy_id", policy.ID,
			"error", err,
		)
	}
}
