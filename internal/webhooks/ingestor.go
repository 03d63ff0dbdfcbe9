// Package webhooks receives, deduplicates and processes Bling push
// notifications. The ingestor validates and queues events; a single
// processor goroutine drains the queue and dispatches to business handlers.
package webhooks

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"

	"blingmon/internal/metrics"
	"blingmon/internal/model"
	"blingmon/internal/store"
)

// Ingestor validates inbound webhook deliveries and hands new events to the
// in-memory queue. It must answer well before the sender's 5s timeout, so it
// never talks to the remote API and performs a single ledger read.
type Ingestor struct {
	secret string
	store  store.Store
	queue  chan model.WebhookEvent
}

func NewIngestor(secret string, s store.Store, capacity int) *Ingestor {
	return &Ingestor{secret: secret, store: s, queue: make(chan model.WebhookEvent, capacity)}
}

// Handle runs the full intake path: signature check, parse, field validation,
// idempotency short-circuit, enqueue. It returns the HTTP status and a small
// JSON-able body for the sender.
func (in *Ingestor) Handle(ctx context.Context, body []byte, signature string) (int, map[string]string) {
	if !VerifyHMAC(in.secret, body, signature) {
		log.Printf("webhooks: rejected delivery with invalid signature")
		metrics.WebhookEvents.WithLabelValues("unauthorized").Inc()
		return http.StatusUnauthorized, map[string]string{"error": "invalid signature"}
	}

	var ev model.WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		metrics.WebhookEvents.WithLabelValues("malformed").Inc()
		return http.StatusBadRequest, map[string]string{"error": "invalid JSON"}
	}
	if ev.EventID == "" || ev.Event == "" {
		metrics.WebhookEvents.WithLabelValues("malformed").Inc()
		return http.StatusBadRequest, map[string]string{"error": "missing eventId or event"}
	}
	ev.Raw = body

	processed, err := in.store.IsEventProcessed(ctx, ev.EventID)
	if err != nil {
		log.Printf("webhooks: ledger check for %s failed: %v", ev.EventID, err)
		metrics.WebhookEvents.WithLabelValues("error").Inc()
		return http.StatusInternalServerError, map[string]string{"error": "ledger unavailable"}
	}
	if processed {
		metrics.WebhookEvents.WithLabelValues("duplicate").Inc()
		return http.StatusOK, map[string]string{"status": "already_processed"}
	}

	select {
	case in.queue <- ev:
	default:
		// Backpressure: tell the sender to redeliver instead of growing
		// the queue without bound.
		log.Printf("webhooks: queue full, refusing event %s", ev.EventID)
		metrics.WebhookEvents.WithLabelValues("overflow").Inc()
		return http.StatusServiceUnavailable, map[string]string{"error": "queue full, retry later"}
	}
	metrics.QueueDepth.Set(float64(len(in.queue)))
	metrics.WebhookEvents.WithLabelValues("queued").Inc()

	log.Printf("webhooks: queued %s (eventId %s)", ev.Event, ev.EventID)
	return http.StatusOK, map[string]string{"status": "queued", "receiptId": uuid.NewString()}
}

// Events exposes the queue to the processor.
func (in *Ingestor) Events() <-chan model.WebhookEvent { return in.queue }

// Depth reports how many events are waiting.
func (in *Ingestor) Depth() int { return len(in.queue) }
