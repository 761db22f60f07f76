package audit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"complyd/internal/platform/eventbus"
)

func TestSubscriberPersistsPeerEvent(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	sub := NewSubscriber(store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	occurred := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err := sub.handle(ctx, eventbus.Event{
		Channel:   "policy.updated",
		Timestamp: occurred,
		Fields: map[string]any{
			"orgId":        "org-9",
			"actorId":      "actor-2",
			"resourceType": "policy",
			"resourceId":   "pol-1",
			"timestamp":    "2026-03-01T12:00:00Z",
			"severity":     "high",
		},
	})
	require.NoError(t, err)

	stored, err := store.ListByOrg(ctx, "org-9", 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	event := stored[0]
	assert.Equal(t, "policy.updated", event.Action)
	assert.Equal(t, "actor-2", event.ActorID)
	assert.Equal(t, "policy", event.ResourceType)
	assert.Equal(t, "pol-1", event.ResourceID)
	assert.True(t, event.Timestamp.Equal(occurred))
	// Unknown envelope fields land in Details; mapped fields do not.
	assert.Equal(t, map[string]any{"severity": "high"}, event.Details)
}

func TestSubscriberDefaultsActionAndResourceTypeToChannel(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	sub := NewSubscriber(store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := sub.handle(ctx, eventbus.Event{
		Channel: "vendor.reviewed",
		Fields:  map[string]any{"orgId": "org-9"},
	})
	require.NoError(t, err)

	stored, err := store.ListByOrg(ctx, "org-9", 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "vendor.reviewed", stored[0].Action)
	assert.Equal(t, "vendor.reviewed", stored[0].ResourceType)
	assert.False(t, stored[0].Timestamp.IsZero())
}

func TestSubscriberDropsEventWithoutOrg(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	sub := NewSubscriber(store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := sub.handle(ctx, eventbus.Event{
		Channel: "control.tested",
		Fields:  map[string]any{"controlId": "ctl-1"},
	})
	require.NoError(t, err)

	stored, err := store.ListByOrg(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, stored)
}
