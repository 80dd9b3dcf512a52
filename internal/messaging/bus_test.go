package messaging

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishReachesSubscribers(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	defer bus.Stop()

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	bus.Subscribe(func(env *Envelope) {
		mu.Lock()
		got = append(got, env.Type)
		mu.Unlock()
		close(done)
	})

	bus.Publish(&Envelope{Type: "CACHE_REPORT"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler not invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, "CACHE_REPORT", got[0])
}

func TestBus_StampsTimestamp(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	defer bus.Stop()

	stamped := make(chan time.Time, 1)
	bus.Subscribe(func(env *Envelope) {
		stamped <- env.Timestamp
	})

	bus.Publish(&Envelope{Type: "GET_CACHED_REPORTS"})

	select {
	case ts := <-stamped:
		assert.False(t, ts.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("handler not invoked")
	}
}

func TestBus_StopDrainsAcceptedMessages(t *testing.T) {
	t.Parallel()

	bus := NewBus()

	var mu sync.Mutex
	handled := 0
	bus.Subscribe(func(env *Envelope) {
		mu.Lock()
		handled++
		mu.Unlock()
	})

	for i := 0; i < 10; i++ {
		bus.Publish(&Envelope{Type: "CLEAR_CACHE"})
	}
	bus.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 10, handled, "Stop must wait for accepted messages to be handled")
}

func TestBus_PublishAfterStopIsDiscarded(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	var mu sync.Mutex
	handled := 0
	bus.Subscribe(func(env *Envelope) {
		mu.Lock()
		handled++
		mu.Unlock()
	})
	bus.Stop()

	bus.Publish(&Envelope{Type: "CACHE_REPORT"})
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, handled)
}

func TestBus_PanickingHandlerDoesNotKillBus(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	defer bus.Stop()

	second := make(chan struct{})
	bus.Subscribe(func(env *Envelope) {
		panic("handler bug")
	})
	bus.Subscribe(func(env *Envelope) {
		select {
		case second <- struct{}{}:
		default:
		}
	})

	bus.Publish(&Envelope{Type: "CACHE_REPORT"})

	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("bus died after handler panic")
	}

	// The bus keeps working for subsequent messages.
	bus.Publish(&Envelope{Type: "CLEAR_CACHE"})
	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("bus stopped processing after panic")
	}
}

func TestBus_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	bus.Stop()
	bus.Stop()
}
