package stream

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubFanOut(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	a := hub.Subscribe("a")
	b := hub.Subscribe("b")
	assert.Equal(t, 2, hub.SubscriberCount())

	event := Event{Type: EventOrderFilled, Symbol: "BTCUSDT", Price: 50000, Timestamp: time.Now()}
	hub.Publish(event)

	for _, ch := range []<-chan Event{a, b} {
		select {
		case got := <-ch:
			assert.Equal(t, event, got)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the event")
		}
	}

	published, dropped := hub.Metrics()
	assert.Equal(t, uint64(1), published)
	assert.Equal(t, uint64(0), dropped)
}

func TestHubSubscribeIsIdempotent(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	first := hub.Subscribe("a")
	second := hub.Subscribe("a")
	assert.Equal(t, 1, hub.SubscriberCount())

	hub.Publish(Event{Type: EventStopUpdated})
	select {
	case <-first:
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}

	// Both handles refer to the same buffer, so nothing else is queued.
	select {
	case <-second:
		t.Fatal("duplicate delivery")
	default:
	}
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	hub := NewHubWithConfig(HubConfig{SubscriberBufferSize: 2})
	defer hub.Close()

	hub.Subscribe("slow")
	for i := 0; i < 5; i++ {
		hub.Publish(Event{Type: EventPositionOpened})
	}

	published, dropped := hub.Metrics()
	assert.Equal(t, uint64(5), published)
	assert.Equal(t, uint64(3), dropped)
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ch := hub.Subscribe("a")
	hub.Unsubscribe("a")
	assert.Equal(t, 0, hub.SubscriberCount())

	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe must not panic.
	hub.Publish(Event{Type: EventOrderCancelled})
}

func TestHubCloseIsTerminal(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe("a")

	hub.Close()
	hub.Close() // idempotent

	_, open := <-ch
	require.False(t, open)

	hub.Publish(Event{Type: EventOrderFilled})
	published, _ := hub.Metrics()
	assert.Equal(t, uint64(0), published)
}

func TestHubConcurrentPublish(t *testing.T) {
	hub := NewHubWithConfig(HubConfig{SubscriberBufferSize: 1000})
	defer hub.Close()

	ch := hub.Subscribe("a")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				hub.Publish(Event{Type: EventPositionClosed})
			}
		}()
	}
	wg.Wait()

	published, dropped := hub.Metrics()
	assert.Equal(t, uint64(500), published)
	assert.Equal(t, uint64(0), dropped)
	assert.Len(t, ch, 500)
}
