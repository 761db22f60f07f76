package eventbus

import (
	"context"
	"errors"
	"sync"
)

// fakeLink is an in-memory Link driving the state machine in tests without a
// live broker.
type fakeLink struct {
	mu           sync.Mutex
	subscribed   map[string]int
	unsubscribed map[string]int
	published    []fakePublish
	pingErr      error
	publishErr   error
	subscribeErr error
	closed       bool

	messages chan Message
}

type fakePublish struct {
	channel string
	payload []byte
}

func newFakeLink() *fakeLink {
	return &fakeLink{
		subscribed:   make(map[string]int),
		unsubscribed: make(map[string]int),
		messages:     make(chan Message, 16),
	}
}

func (l *fakeLink) Publish(_ context.Context, channel string, payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.publishErr != nil {
		return l.publishErr
	}
	l.published = append(l.published, fakePublish{channel: channel, payload: payload})
	return nil
}

func (l *fakeLink) Subscribe(_ context.Context, channels ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.subscribeErr != nil {
		return l.subscribeErr
	}
	for _, ch := range channels {
		l.subscribed[ch]++
	}
	return nil
}

func (l *fakeLink) Unsubscribe(_ context.Context, channels ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ch := range channels {
		l.unsubscribed[ch]++
	}
	return nil
}

func (l *fakeLink) Messages() <-chan Message {
	return l.messages
}

func (l *fakeLink) Ping(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pingErr
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.messages)
	}
	return nil
}

// deliver injects an inbound message as if the broker pushed it.
func (l *fakeLink) deliver(channel string, payload []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.messages <- Message{Channel: channel, Payload: payload}
}

// drop simulates a network-level connection loss.
func (l *fakeLink) drop() {
	_ = l.Close()
}

func (l *fakeLink) subscribeCount(channel string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.subscribed[channel]
}

func (l *fakeLink) setPingErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pingErr = err
}

func (l *fakeLink) setPublishErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.publishErr = err
}

func (l *fakeLink) lastPublished() (fakePublish, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.published) == 0 {
		return fakePublish{}, false
	}
	return l.published[len(l.published)-1], true
}

// fakeTransport hands out fakeLinks, optionally failing a number of dials (or
// all of them) to exercise the reconnect policy.
type fakeTransport struct {
	mu           sync.Mutex
	failNext     int
	failAll      bool
	dialFailures int
	links        []*fakeLink
}

var errDialRefused = errors.New("dial refused")

func newFakeTransport() *fakeTransport {
	return &fakeTransport{}
}

func (t *fakeTransport) Dial(_ context.Context) (Link, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failAll || t.failNext > 0 {
		if t.failNext > 0 {
			t.failNext--
		}
		t.dialFailures++
		return nil, errDialRefused
	}
	l := newFakeLink()
	t.links = append(t.links, l)
	return l, nil
}

func (t *fakeTransport) setFailAll(fail bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failAll = fail
}

func (t *fakeTransport) failures() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dialFailures
}

func (t *fakeTransport) linkCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.links)
}

// subscriberLink finds the live link carrying broker subscriptions; the other
// live link belongs to the publisher connection.
func (t *fakeTransport) subscriberLink() *fakeLink {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, l := range t.links {
		l.mu.Lock()
		live := !l.closed && len(l.subscribed) > 0
		l.mu.Unlock()
		if live {
			return l
		}
	}
	return nil
}

// publisherLink finds a live link without broker subscriptions.
func (t *fakeTransport) publisherLink() *fakeLink {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, l := range t.links {
		l.mu.Lock()
		live := !l.closed && len(l.subscribed) == 0
		l.mu.Unlock()
		if live {
			return l
		}
	}
	return nil
}

// totalSubscribes sums subscribe calls for a channel across all links ever
// dialed.
func (t *fakeTransport) totalSubscribes(channel string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, l := range t.links {
		n += l.subscribeCount(channel)
	}
	return n
}
