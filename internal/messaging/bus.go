// Package messaging carries protocol messages from connected pages to the
// worker. Publishing is non-blocking so the page channel is never stalled
// by cache or network work; a worker goroutine dispatches messages to
// subscribed handlers one at a time.
package messaging

import (
	"encoding/json"
	"sync"
	"time"
)

// Envelope is an inbound protocol message: a type discriminator plus the
// raw payload, stamped with arrival time and the originating page.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"-"`
	PageID    string          `json:"-"`
	Timestamp time.Time       `json:"-"`
}

// Handler processes an inbound message.
type Handler func(env *Envelope)

const (
	// busBufferSize is the capacity of the async message channel.
	// Messages are dropped if the buffer is full to avoid blocking the
	// page channel.
	busBufferSize = 256
)

// Bus is an async pub/sub for inbound page messages.
type Bus struct {
	handlers []Handler
	mu       sync.RWMutex
	msgCh    chan *Envelope
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewBus creates a message bus and starts its worker.
func NewBus() *Bus {
	b := &Bus{
		handlers: make([]Handler, 0),
		msgCh:    make(chan *Envelope, busBufferSize),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go b.processLoop()
	return b
}

// Subscribe registers a handler for inbound messages.
func (b *Bus) Subscribe(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

// Publish enqueues a message for async processing. Non-blocking: if the
// buffer is full the message is dropped. Messages are silently discarded
// after Stop() has been called.
func (b *Bus) Publish(env *Envelope) {
	select {
	case <-b.stopCh:
		return // Bus is stopped, discard message
	default:
	}

	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now()
	}

	select {
	case b.msgCh <- env:
	default:
		// Buffer full; drop to protect the publisher
	}
}

// Stop shuts down the worker goroutine and blocks until every already
// accepted message has been handled. This is the worker's
// do-not-terminate-until-complete contract: in-flight cache writes
// triggered by accepted messages finish before shutdown proceeds.
// Safe to call multiple times.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
	<-b.doneCh
}

// processLoop drains the message channel and dispatches to handlers.
func (b *Bus) processLoop() {
	defer close(b.doneCh)
	for {
		select {
		case env := <-b.msgCh:
			b.dispatch(env)
		case <-b.stopCh:
			// Drain remaining messages before exiting
			for {
				select {
				case env := <-b.msgCh:
					b.dispatch(env)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) dispatch(env *Envelope) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.safeCall(handler, env)
	}
}

// safeCall invokes a handler with panic recovery so a panicking handler
// cannot kill the bus goroutine.
func (b *Bus) safeCall(handler Handler, env *Envelope) {
	defer func() {
		recover() //nolint:errcheck // intentionally swallowed to keep bus alive
	}()
	handler(env)
}
