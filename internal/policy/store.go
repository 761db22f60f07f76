package policy

import "context"

// Store persists policies. Lookups by org are the hot path; the review queue
// is derived from the NeedsReview flag.
type Store interface {
	Upsert(ctx context.Context, policy Policy) error
	GetByID(ctx context.Context, id string) (Policy, error)
	ListByOrg(ctx context.Context, orgID string) ([]Policy, error)
	ListNeedingReview(ctx context.Context, orgID string) ([]Policy, error)
}
