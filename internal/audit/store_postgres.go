package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// PostgresStore persists the audit trail in the audit_events table.
//
//	CREATE TABLE audit_events (
//	    id            UUID PRIMARY KEY,
//	    org_id        TEXT NOT NULL,
//	    actor_id      TEXT NOT NULL,
//	    action        TEXT NOT NULL,
//	    resource_type TEXT NOT NULL,
//	    resource_id   TEXT NOT NULL,
//	    details       JSONB,
//	    occurred_at   TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX audit_events_org_occurred_idx ON audit_events (org_id, occurred_at DESC);
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	var details []byte
	if event.Details != nil {
		var err error
		details, err = json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("encode details: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, org_id, actor_id, action, resource_type, resource_id, details, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.ID, event.OrgID, event.ActorID, event.Action,
		event.ResourceType, event.ResourceID, details, event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByOrg(ctx context.Context, orgID string, limit int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, actor_id, action, resource_type, resource_id, details, occurred_at
		FROM audit_events
		WHERE org_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2`,
		orgID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			event   Event
			id      uuid.UUID
			details []byte
		)
		if err := rows.Scan(&id, &event.OrgID, &event.ActorID, &event.Action,
			&event.ResourceType, &event.ResourceID, &details, &event.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.ID = id
		if len(details) > 0 {
			if err := json.Unmarshal(details, &event.Details); err != nil {
				return nil, fmt.Errorf("decode details: %w", err)
			}
		}
		out = append(out, event)
	}
	return out, rows.Err()
}
