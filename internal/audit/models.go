package audit

import (
	"time"

	"github.com/google/uuid"
)

// Channels the audit service publishes on. Channel names are free-form
// strings; these constants just keep producers and consumers in one place.
const (
	ChannelAuditCompleted = "audit.completed"
	ChannelAuditRecorded  = "audit.recorded"
)

// PeerChannels are the domain occurrences emitted by sibling services that
// the audit trail persists.
var PeerChannels = []string{
	"policy.updated",
	"control.tested",
	"vendor.reviewed",
}

// Event is one immutable audit trail entry.
type Event struct {
	ID           uuid.UUID      `json:"id"`
	OrgID        string         `json:"orgId"`
	ActorID      string         `json:"actorId"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resourceType"`
	ResourceID   string         `json:"resourceId"`
	Details      map[string]any `json:"details,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}
