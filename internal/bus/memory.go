package bus

import (
	"context"
	"fmt"
	"sync"

	"maestro/pkg/logging"
)

// memoryQueueSize bounds the per-subscriber delivery queue. Publishes to a
// subscriber whose queue is full are dropped with a warning rather than
// blocking the publisher.
const memoryQueueSize = 256

// MemoryTransport is the in-process Transport. It backs the standalone run
// mode and the test suites; per-subscriber goroutines preserve delivery
// order without ever blocking a publisher.
type MemoryTransport struct {
	mu          sync.RWMutex
	subscribers map[string][]*memorySubscriber
	nextID      int
	closed      bool
}

type memorySubscriber struct {
	id    int
	queue chan []byte
	stop  chan struct{}
	once  sync.Once
}

// NewMemoryTransport creates an in-process transport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		subscribers: make(map[string][]*memorySubscriber),
	}
}

// Publish fans the payload out to every subscriber of the channel.
func (t *MemoryTransport) Publish(_ context.Context, channel string, payload []byte) error {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return fmt.Errorf("memory transport is closed")
	}
	subs := make([]*memorySubscriber, len(t.subscribers[channel]))
	copy(subs, t.subscribers[channel])
	t.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.queue <- payload:
		default:
			logging.Warn("Bus", "Subscriber queue full on %s, dropping message", channel)
		}
	}
	return nil
}

// Subscribe registers deliver on the channel. Each subscriber consumes its
// queue from a dedicated goroutine, so one slow handler cannot stall the
// others.
func (t *MemoryTransport) Subscribe(_ context.Context, channel string, deliver func(payload []byte)) (func(), error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("memory transport is closed")
	}
	t.nextID++
	sub := &memorySubscriber{
		id:    t.nextID,
		queue: make(chan []byte, memoryQueueSize),
		stop:  make(chan struct{}),
	}
	t.subscribers[channel] = append(t.subscribers[channel], sub)
	t.mu.Unlock()

	go func() {
		for {
			select {
			case payload := <-sub.queue:
				deliver(payload)
			case <-sub.stop:
				return
			}
		}
	}()

	unsubscribe := func() {
		sub.once.Do(func() {
			t.remove(channel, sub.id)
			close(sub.stop)
		})
	}
	return unsubscribe, nil
}

func (t *MemoryTransport) remove(channel string, id int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	subs := t.subscribers[channel]
	for i, sub := range subs {
		if sub.id == id {
			t.subscribers[channel] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(t.subscribers[channel]) == 0 {
		delete(t.subscribers, channel)
	}
}

// Close stops all subscriber goroutines and rejects further publishes.
func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	var all []*memorySubscriber
	for _, subs := range t.subscribers {
		all = append(all, subs...)
	}
	t.subscribers = make(map[string][]*memorySubscriber)
	t.mu.Unlock()

	for _, sub := range all {
		sub.once.Do(func() { close(sub.stop) })
	}
	return nil
}

// SubscriberCount reports the number of live subscriptions on a channel.
// Used by tests to verify that request/reply never leaks a subscription.
func (t *MemoryTransport) SubscriberCount(channel string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subscribers[channel])
}

// ActiveSubscriptions reports the number of live subscriptions across all
// channels.
func (t *MemoryTransport) ActiveSubscriptions() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	total := 0
	for _, subs := range t.subscribers {
		total += len(subs)
	}
	return total
}
