package webhooks

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"blingmon/internal/metrics"
	"blingmon/internal/model"
	"blingmon/internal/store"
)

// Handler processes one business event. Handlers run on the single processor
// goroutine, so they never race each other.
type Handler func(ctx context.Context, ev model.WebhookEvent) error

// Processor is the single long-lived worker draining the ingest queue.
// For each event it writes the durable ledger record BEFORE running the
// handler: duplicate suppression is prioritized over handler completeness,
// so a failed handler does not cause a redelivered event to run twice.
type Processor struct {
	store    store.Store
	events   <-chan model.WebhookEvent
	handlers map[string]Handler

	// OnProcessed, when set, is invoked after each ledger write (ops stream).
	OnProcessed func(ev model.ProcessedEvent)

	stop chan struct{}
	done chan struct{}
}

func NewProcessor(s store.Store, in *Ingestor) *Processor {
	return &Processor{
		store:    s,
		events:   in.Events(),
		handlers: map[string]Handler{},
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// On registers the handler for an event kind. Not safe to call after Start.
func (p *Processor) On(eventType string, h Handler) { p.handlers[eventType] = h }

// Start launches the worker goroutine.
func (p *Processor) Start() {
	go func() {
		defer close(p.done)
		log.Printf("webhooks: processor started")
		for {
			select {
			case <-p.stop:
				return
			case ev := <-p.events:
				p.processOne(ev)
				metrics.QueueDepth.Set(float64(len(p.events)))
			}
		}
	}()
}

// Stop halts the worker after the in-flight event (if any) finishes.
func (p *Processor) Stop() {
	close(p.stop)
	<-p.done
}

func (p *Processor) processOne(ev model.WebhookEvent) {
	ctx := context.Background()

	// The ingestor already checked the ledger, but two copies of one event
	// can still reach the queue when deliveries race; re-check before any
	// side effect.
	processed, err := p.store.IsEventProcessed(ctx, ev.EventID)
	if err != nil {
		log.Printf("webhooks: ledger re-check for %s failed: %v", ev.EventID, err)
		metrics.EventsProcessed.WithLabelValues(ev.Event, "ledger_error").Inc()
		return
	}
	if processed {
		metrics.EventsProcessed.WithLabelValues(ev.Event, "duplicate").Inc()
		return
	}

	record := model.ProcessedEvent{
		EventID:     ev.EventID,
		EventType:   ev.Event,
		ProductID:   productID(ev.Data),
		ProcessedAt: time.Now(),
		Payload:     ev.Raw,
	}
	inserted, err := p.store.MarkEventProcessed(ctx, record)
	if err != nil {
		// Without a durable record we must not dispatch: the sender will
		// redeliver and the handler would then run twice.
		log.Printf("webhooks: could not record event %s: %v", ev.EventID, err)
		metrics.EventsProcessed.WithLabelValues(ev.Event, "ledger_error").Inc()
		return
	}
	if !inserted {
		metrics.EventsProcessed.WithLabelValues(ev.Event, "duplicate").Inc()
		return
	}

	h, ok := p.handlers[ev.Event]
	if !ok {
		log.Printf("webhooks: no handler for event type %s (eventId %s)", ev.Event, ev.EventID)
		metrics.EventsProcessed.WithLabelValues(ev.Event, "unhandled").Inc()
	} else if err := h(ctx, ev); err != nil {
		// The event stays processed: at-least-once delivery to the
		// business layer, no automatic replay of handler failures.
		log.Printf("webhooks: handler for %s (eventId %s) failed: %v", ev.Event, ev.EventID, err)
		metrics.EventsProcessed.WithLabelValues(ev.Event, "handler_error").Inc()
	} else {
		metrics.EventsProcessed.WithLabelValues(ev.Event, "ok").Inc()
	}

	if p.OnProcessed != nil {
		p.OnProcessed(record)
	}
}

// productID pulls the product reference out of an event payload, which may
// carry it at the top level (product events) or nested (stock events).
func productID(data json.RawMessage) int64 {
	if len(data) == 0 {
		return 0
	}
	var direct model.ProductEventData
	if err := json.Unmarshal(data, &direct); err == nil && direct.ID != 0 {
		return direct.ID
	}
	var nested model.StockEventData
	if err := json.Unmarshal(data, &nested); err == nil {
		return nested.Produto.ID
	}
	return 0
}
