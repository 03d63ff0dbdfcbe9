package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"blingmon/internal/model"
)

const redisEventChannel = "blingmon:events"

// RedisBroker implements EventBroker over Redis Pub/Sub so event streams
// work across replicas.
type RedisBroker struct {
	rdb *redis.Client

	mu   sync.Mutex
	subs map[chan model.ProcessedEvent]*redis.PubSub
}

func NewRedisBroker(url string) (*RedisBroker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisBroker{
		rdb:  redis.NewClient(opt),
		subs: map[chan model.ProcessedEvent]*redis.PubSub{},
	}, nil
}

func (b *RedisBroker) Subscribe() chan model.ProcessedEvent {
	ch := make(chan model.ProcessedEvent, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, redisEventChannel)
	// first Receive confirms the subscription is live
	_, _ = ps.Receive(ctx)

	b.mu.Lock()
	b.subs[ch] = ps
	b.mu.Unlock()

	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var ev model.ProcessedEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err == nil {
				select {
				case ch <- ev:
				default:
				}
			}
		}
	}()
	return ch
}

func (b *RedisBroker) Unsubscribe(ch chan model.ProcessedEvent) {
	b.mu.Lock()
	ps := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if ps != nil {
		// closing the PubSub ends the fanout goroutine, which closes ch
		_ = ps.Close()
	}
}

func (b *RedisBroker) Publish(ev model.ProcessedEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_ = b.rdb.Publish(ctx, redisEventChannel, data).Err()
}
