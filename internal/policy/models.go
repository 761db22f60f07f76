package policy

import (
	"time"

	"github.com/google/uuid"
)

// ChannelPolicyUpdated announces policy changes to the rest of the platform.
const ChannelPolicyUpdated = "policy.updated"

// Policy is one versioned compliance policy document.
type Policy struct {
	ID             uuid.UUID  `json:"id"`
	OrgID          string     `json:"orgId"`
	Name           string     `json:"name"`
	Version        int        `json:"version"`
	NeedsReview    bool       `json:"needsReview"`
	LastReviewedAt *time.Time `json:"lastReviewedAt,omitempty"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}
