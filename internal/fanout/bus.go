package fanout

import "sync"

// Handler receives a payload published on a subscribed channel.
type Handler func(Payload)

// Bus is the in-process listener registry. Delivery is synchronous and
// cheap: Publish calls each current subscriber inline, so handlers must
// not block. Cancellation is unsubscribe, nothing is interrupted.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Channel]map[int]Handler
	closed bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Channel]map[int]Handler)}
}

// Subscribe registers a handler and returns its unsubscribe function.
// Unsubscribing twice is harmless.
func (b *Bus) Subscribe(channel Channel, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.subs[channel][id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[channel], id)
	}
}

// Publish delivers the payload to every current subscriber of the channel.
// The subscriber set is snapshotted first, so handlers may unsubscribe
// themselves during delivery.
func (b *Bus) Publish(channel Channel, payload Payload) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[channel]))
	for _, h := range b.subs[channel] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(payload)
	}
}

// Close removes all listeners and refuses new subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	b.subs = make(map[Channel]map[int]Handler)
	b.closed = true
	b.mu.Unlock()
}
