package audit

import "context"

// Store persists the append-only audit trail.
type Store interface {
	Append(ctx context.Context, event Event) error
	// ListByOrg returns the newest events first, at most limit entries.
	ListByOrg(ctx context.Context, orgID string, limit int) ([]Event, error)
}
