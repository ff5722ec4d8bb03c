package events

import (
	"sync"

	"github.com/paystream-hq/paystreamer/pkg/metrics"
)

// Bus is a small in-process pub/sub fanout for lifecycle events. Publish
// never blocks: an event is dropped for any subscriber whose channel is
// full, so consumers must size their channels for their own lag tolerance.
// The subscription itself survives a drop.
type Bus struct {
	mu          sync.Mutex
	subscribers map[Type][]chan interface{}
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[Type][]chan interface{}),
	}
}

// Subscribe registers a channel for the given event type.
func (b *Bus) Subscribe(t Type, ch chan interface{}) {
	if ch == nil {
		panic("events: subscribe with nil channel")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[t] = append(b.subscribers[t], ch)
}

// Unsubscribe removes a previously registered channel.
func (b *Bus) Unsubscribe(t Type, ch chan interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[t]
	for i, sub := range subs {
		if sub == ch {
			b.subscribers[t] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subscribers[t]) == 0 {
		delete(b.subscribers, t)
	}
}

// Publish delivers the event to every subscriber that can receive it right
// now. A saturated subscriber misses this event but stays subscribed; a
// burst must not permanently detach a lagging consumer.
func (b *Bus) Publish(t Type, event interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subscribers[t] {
		select {
		case ch <- event:
		default:
			metrics.DroppedEvents.WithLabelValues(t.String()).Inc()
		}
	}
}
