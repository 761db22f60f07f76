package eventbus

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is the decoded envelope delivered to handlers.
type Event struct {
	// Channel the event arrived on.
	Channel string
	// Timestamp is reconstituted from the envelope's "timestamp" field when
	// present and parseable; zero otherwise. The raw field is also left
	// untouched in Fields.
	Timestamp time.Time
	// Fields holds every envelope field as decoded. No type coercion is
	// applied beyond the timestamp convention.
	Fields map[string]any
	// Raw is the undecoded message body, for custom codecs layered on top.
	Raw []byte
}

// Codec decodes raw message bodies into events. The default JSON codec covers
// the envelope convention; register a custom codec per channel at subscribe
// time when a channel carries a different wire format.
type Codec interface {
	Decode(channel string, payload []byte) (Event, error)
}

// JSONCodec decodes JSON object envelopes, reconstituting the conventional
// "timestamp" field (RFC 3339) into a time.Time.
type JSONCodec struct{}

func (JSONCodec) Decode(channel string, payload []byte) (Event, error) {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return Event{}, fmt.Errorf("decode envelope: %w", err)
	}

	evt := Event{Channel: channel, Fields: fields, Raw: payload}
	if raw, ok := fields["timestamp"].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			evt.Timestamp = ts
		}
	}
	return evt, nil
}
