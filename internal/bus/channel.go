// Package bus carries the scoring pipeline's events: ingested
// transactions in, scored results, fraud alerts, and rule-change
// announcements out.
package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/harrier/internal/domain"
)

// ChannelBus is the in-process Community tier bus. Each subscriber owns a
// buffered feed drained by its own goroutine; a publish never blocks the
// scoring pipeline, a full feed drops the message for that subscriber and
// counts the drop.
type ChannelBus struct {
	mu      sync.RWMutex
	feedCap int
	feeds   map[string][]*feed
	closed  bool

	dropped atomic.Int64
}

// feed is one subscriber's delivery channel plus the goroutine lifecycle
// controlling it.
type feed struct {
	bus     *ChannelBus
	key     string
	topic   string
	handler domain.MessageHandler
	ch      chan *domain.Message
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewChannelBus creates an in-process bus with the given per-subscriber
// buffer capacity.
func NewChannelBus(feedCap int) *ChannelBus {
	if feedCap <= 0 {
		feedCap = 1000
	}
	return &ChannelBus{
		feedCap: feedCap,
		feeds:   make(map[string][]*feed),
	}
}

// Publish fans a message out to every subscriber of the tenant's topic.
// Subscribers whose feed is full miss the message; scoring must not wait
// on a slow alert consumer.
func (b *ChannelBus) Publish(ctx context.Context, tenantID string, topic string, payload []byte) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("bus is closed")
	}
	targets := b.feeds[route(tenantID, topic)]
	b.mu.RUnlock()

	msg := &domain.Message{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}

	for _, f := range targets {
		select {
		case f.ch <- msg:
		default:
			b.dropped.Add(1)
		}
	}

	return nil
}

// Subscribe registers a handler for the tenant's topic and starts
// draining its feed.
func (b *ChannelBus) Subscribe(ctx context.Context, tenantID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("bus is closed")
	}

	feedCtx, cancel := context.WithCancel(ctx)
	f := &feed{
		bus:     b,
		key:     route(tenantID, topic),
		topic:   topic,
		handler: handler,
		ch:      make(chan *domain.Message, b.feedCap),
		ctx:     feedCtx,
		cancel:  cancel,
	}

	b.feeds[f.key] = append(b.feeds[f.key], f)

	go f.drain()

	return f, nil
}

// drain delivers messages to the handler until the feed is cancelled.
// Handler errors are the handler's problem; delivery continues.
func (f *feed) drain() {
	for {
		select {
		case <-f.ctx.Done():
			return
		case msg := <-f.ch:
			if msg != nil {
				_ = f.handler(f.ctx, msg)
			}
		}
	}
}

// Dropped reports how many messages were lost to full subscriber feeds.
func (b *ChannelBus) Dropped() int64 {
	return b.dropped.Load()
}

// Ping reports whether the bus accepts publishes.
func (b *ChannelBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("bus is closed")
	}
	return nil
}

// Close cancels every feed and rejects further publishes.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, feeds := range b.feeds {
		for _, f := range feeds {
			f.cancel()
		}
	}
	b.feeds = make(map[string][]*feed)

	return nil
}

// Unsubscribe stops the drain goroutine and detaches the feed from the
// routing table, so later publishes no longer see it.
func (f *feed) Unsubscribe() error {
	f.cancel()

	f.bus.mu.Lock()
	defer f.bus.mu.Unlock()

	feeds := f.bus.feeds[f.key]
	for i, other := range feeds {
		if other == f {
			f.bus.feeds[f.key] = append(feeds[:i], feeds[i+1:]...)
			break
		}
	}
	return nil
}

// Topic returns the subscribed topic.
func (f *feed) Topic() string {
	return f.topic
}

// route keys feeds by tenant and topic so tenants never see each other's
// events.
func route(tenantID, topic string) string {
	return tenantID + "/" + topic
}
