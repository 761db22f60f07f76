package eventbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// inboundBuffer absorbs short dispatch hiccups before the pump goroutine
// starts applying backpressure to the broker reader.
const inboundBuffer = 64

// RedisTransport dials Redis pub/sub links. Each Dial produces an independent
// client so the publisher and subscriber connections never share a socket.
type RedisTransport struct {
	opts *redis.Options
}

// NewRedisTransport builds a transport from a broker URL and optional
// password override.
func NewRedisTransport(url, password string) (*RedisTransport, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if password != "" {
		opts.Password = password
	}
	// The bus reconnect policy owns retry behavior; the client must fail fast.
	opts.MaxRetries = -1
	return &RedisTransport{opts: opts}, nil
}

// Dial opens a fresh client and verifies it with a ping.
func (t *RedisTransport) Dial(ctx context.Context) (Link, error) {
	opts := *t.opts
	client := redis.NewClient(&opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &redisLink{
		client:   client,
		messages: make(chan Message, inboundBuffer),
	}, nil
}

// redisLink adapts one go-redis client to the Link contract. The pub/sub
// reader is opened lazily on first Subscribe, so publish-only links stay a
// single connection.
type redisLink struct {
	client   *redis.Client
	messages chan Message

	mu     sync.Mutex
	pubsub *redis.PubSub
	closed bool
}

func (l *redisLink) Publish(ctx context.Context, channel string, payload []byte) error {
	return l.client.Publish(ctx, channel, payload).Err()
}

func (l *redisLink) Subscribe(ctx context.Context, channels ...string) error {
	ps, err := l.ensurePubSub()
	if err != nil {
		return err
	}
	return ps.Subscribe(ctx, channels...)
}

func (l *redisLink) Unsubscribe(ctx context.Context, channels ...string) error {
	ps, err := l.ensurePubSub()
	if err != nil {
		return err
	}
	return ps.Unsubscribe(ctx, channels...)
}

func (l *redisLink) Messages() <-chan Message {
	return l.messages
}

func (l *redisLink) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close is safe to call more than once. Closing the pub/sub reader ends the
// pump goroutine, which closes the messages channel and signals the drop to
// the connection manager.
func (l *redisLink) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	ps := l.pubsub
	l.mu.Unlock()

	if ps != nil {
		_ = ps.Close()
	} else {
		close(l.messages)
	}
	return l.client.Close()
}

func (l *redisLink) ensurePubSub() (*redis.PubSub, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	if l.pubsub == nil {
		l.pubsub = l.client.Subscribe(context.Background())
		go l.pump(l.pubsub)
	}
	return l.pubsub, nil
}

func (l *redisLink) pump(ps *redis.PubSub) {
	defer close(l.messages)
	for m := range ps.Channel() {
		l.messages <- Message{Channel: m.Channel, Payload: []byte(m.Payload)}
	}
}
