package policy

import (
	"context"
	"sort"
	"sync"

	"complyd/pkg/platform/sentinel"
)

// InMemoryStore is the map-backed Store used in tests and development.
type InMemoryStore struct {
	mu       sync.RWMutex
	policies map[string]Policy
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{policies: make(map[string]Policy)}
}

func (s *InMemoryStore) Upsert(_ context.Context, policy Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[policy.ID.String()] = policy
	return nil
}

func (s *InMemoryStore) GetByID(_ context.Context, id string) (Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	policy, ok := s.policies[id]
	if !ok {
		return Policy{}, sentinel.ErrNotFound
	}
	return policy, nil
}

func (s *InMemoryStore) ListByOrg(_ context.Context, orgID string) ([]Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter(func(p Policy) bool { return p.OrgID == orgID }), nil
}

func (s *InMemoryStore) ListNeedingReview(_ context.Context, orgID string) ([]Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter(func(p Policy) bool { return p.OrgID == orgID && p.NeedsReview }), nil
}

// filter assumes the read lock is held. Results are name-ordered so list
// output is stable across calls.
func (s *InMemoryStore) filter(keep func(Policy) bool) []Policy {
	var out []Policy
	for _, policy := range s.policies {
		if keep(policy) {
			out = append(out, policy)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
