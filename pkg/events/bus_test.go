package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscribeAndPublish(t *testing.T) {
	bus := NewBus()
	ch := make(chan interface{}, 1)
	bus.Subscribe(IntentCreated, ch)

	bus.Publish(IntentCreated, "hello")

	select {
	case ev := <-ch:
		assert.Equal(t, "hello", ev)
	default:
		t.Fatal("expected event on subscriber channel")
	}
}

func TestPublishOnlyReachesMatchingType(t *testing.T) {
	bus := NewBus()
	created := make(chan interface{}, 1)
	executed := make(chan interface{}, 1)
	bus.Subscribe(IntentCreated, created)
	bus.Subscribe(IntentExecuted, executed)

	bus.Publish(IntentExecuted, 42)

	assert.Len(t, executed, 1)
	assert.Len(t, created, 0)
}

func TestPublishDropsEventNotSubscriber(t *testing.T) {
	bus := NewBus()
	ch := make(chan interface{}, 1)
	bus.Subscribe(IntentCreated, ch)

	bus.Publish(IntentCreated, 1)
	// Channel is full: this event is lost, but the subscription survives
	bus.Publish(IntentCreated, 2)

	assert.Equal(t, 1, <-ch)
	bus.Publish(IntentCreated, 3)
	assert.Equal(t, 3, <-ch, "a saturated burst must not detach the subscriber")
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus()
	ch := make(chan interface{}, 1)
	bus.Subscribe(IntentCancelled, ch)
	bus.Unsubscribe(IntentCancelled, ch)

	bus.Publish(IntentCancelled, 1)
	assert.Len(t, ch, 0)
}

func TestSubscribeNilPanics(t *testing.T) {
	bus := NewBus()
	assert.Panics(t, func() {
		bus.Subscribe(IntentCreated, nil)
	})
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "IntentCreated", IntentCreated.String())
	assert.Equal(t, "IntentExecuted", IntentExecuted.String())
	assert.Equal(t, "IntentCancelled", IntentCancelled.String())
}
