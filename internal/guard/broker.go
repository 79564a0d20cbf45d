package guard

import (
	"sync"
	"sync/atomic"

	"github.com/phishshield/shield_agent/internal/types"
)

const subscriberBufSize = 64

// Broker fans out verdict records to live feed subscribers (SSE and popup
// socket clients).
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]chan types.VerdictRecord
	nextID      atomic.Int64
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[int64]chan types.VerdictRecord),
	}
}

// Subscribe registers a new client. Returns the subscriber ID and a channel
// to receive records on. The channel is buffered; slow consumers have
// records dropped.
func (b *Broker) Subscribe() (int64, <-chan types.VerdictRecord) {
	id := b.nextID.Add(1)
	ch := make(chan types.VerdictRecord, subscriberBufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	ch, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish sends a record to all subscribers. Non-blocking: slow clients
// have records dropped.
func (b *Broker) Publish(rec types.VerdictRecord) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- rec:
		default:
		}
	}
}

// ClientCount returns the number of active subscribers.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
