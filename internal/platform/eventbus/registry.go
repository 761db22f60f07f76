package eventbus

import "sync"

// registry tracks handler sets per channel plus the tracked-channel set used
// for resubscription bookkeeping. The tracked set is the single source of
// truth for what should be subscribed after a reconnect: connection state
// transitions never mutate it, only Subscribe/Unsubscribe do.
type registry struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	codecs   map[string]Codec
	tracked  map[string]struct{}
}

func newRegistry() *registry {
	return &registry{
		handlers: make(map[string][]Handler),
		codecs:   make(map[string]Codec),
		tracked:  make(map[string]struct{}),
	}
}

// add registers a handler on a channel and reports whether this is the first
// handler for it, in which case the caller must issue the underlying
// subscribe. codec may be nil to keep the channel on the default codec.
func (r *registry) add(channel string, h Handler, codec Codec) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, existed := r.handlers[channel]
	r.handlers[channel] = append(r.handlers[channel], h)
	if codec != nil {
		r.codecs[channel] = codec
	}
	if !existed {
		r.tracked[channel] = struct{}{}
	}
	return !existed
}

// remove drops the entire entry for a channel and stops tracking it,
// reporting whether the channel was registered at all.
func (r *registry) remove(channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, existed := r.handlers[channel]
	delete(r.handlers, channel)
	delete(r.codecs, channel)
	delete(r.tracked, channel)
	return existed
}

// handlersFor returns a copy of the handler set and the channel codec. The
// copy keeps dispatch iteration safe against a handler unsubscribing its own
// channel mid-delivery.
func (r *registry) handlersFor(channel string) ([]Handler, Codec) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	hs := r.handlers[channel]
	if len(hs) == 0 {
		return nil, nil
	}
	out := make([]Handler, len(hs))
	copy(out, hs)
	return out, r.codecs[channel]
}

// trackedChannels snapshots the tracked set for resubscription replay.
func (r *registry) trackedChannels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.tracked))
	for ch := range r.tracked {
		out = append(out, ch)
	}
	return out
}

// counts returns the tracked channel count and the total handler count across
// all channels.
func (r *registry) counts() (channels, handlers int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, hs := range r.handlers {
		handlers += len(hs)
	}
	return len(r.tracked), handlers
}
