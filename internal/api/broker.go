package api

import (
	"sync"

	"blingmon/internal/model"
)

// EventBroker fans processed events out to stream subscribers. The memory
// implementation covers a single instance; Redis covers multi-instance
// deployments.
type EventBroker interface {
	Subscribe() chan model.ProcessedEvent
	Unsubscribe(ch chan model.ProcessedEvent)
	Publish(ev model.ProcessedEvent)
}

// Broker is the in-process EventBroker.
type Broker struct {
	mu   sync.Mutex
	subs map[chan model.ProcessedEvent]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: map[chan model.ProcessedEvent]struct{}{}}
}

func (b *Broker) Subscribe() chan model.ProcessedEvent {
	ch := make(chan model.ProcessedEvent, 8)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(ch chan model.ProcessedEvent) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish drops events for slow subscribers rather than blocking the
// processor worker.
func (b *Broker) Publish(ev model.ProcessedEvent) {
	b.mu.Lock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	b.mu.Unlock()
}
