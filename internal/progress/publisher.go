// Package progress implements the domain event publisher port (an
// in-process broadcast that drops an event for any listener whose
// buffer is full) and the Orchestrator's per-scan ScanSnapshot
// aggregation.
package progress

import (
	"context"
	"sync"

	"ferrex/internal/model"
)

// Publisher is the event publisher port: every domain event the core
// raises flows through PublishDomain, and any number of subscribers
// can observe the stream via Subscribe.
type Publisher interface {
	PublishDomain(event model.DomainEvent)
	Subscribe(ctx context.Context) <-chan model.DomainEvent
}

// Broadcaster is an in-process Publisher: every subscriber gets its
// own buffered channel, fed from PublishDomain under the broadcaster's
// mutex. A
// slow subscriber that fills its buffer drops the event rather than
// blocking the publisher — at-least-once delivery is a port contract
// for durable consumers (the event bus), not for this in-memory fan-out.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[int]chan model.DomainEvent
	nextID      int
	bufferSize  int
}

// NewBroadcaster returns a Broadcaster whose per-subscriber channel
// buffers bufferSize events before dropping.
func NewBroadcaster(bufferSize int) *Broadcaster {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Broadcaster{
		subscribers: make(map[int]chan model.DomainEvent),
		bufferSize:  bufferSize,
	}
}

var _ Publisher = (*Broadcaster)(nil)

// PublishDomain fans event out to every live subscriber.
func (b *Broadcaster) PublishDomain(event model.DomainEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe registers a new listener and returns its channel, closed
// automatically when ctx is done.
func (b *Broadcaster) Subscribe(ctx context.Context) <-chan model.DomainEvent {
	ch := make(chan model.DomainEvent, b.bufferSize)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subscribers, id)
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}
