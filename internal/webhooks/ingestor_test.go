package webhooks

import (
	"context"
	"net/http"
	"testing"

	"blingmon/internal/model"
	"blingmon/internal/store"
)

const testSecret = "client-secret"

func signedBody(body string) ([]byte, string) {
	b := []byte(body)
	return b, SignHMAC(testSecret, b)
}

func TestHandleInvalidSignature(t *testing.T) {
	mem := store.NewMemory()
	in := NewIngestor(testSecret, mem, 4)

	body := []byte(`{"eventId":"e1","event":"stock.updated","data":{}}`)
	status, resp := in.Handle(context.Background(), body, SignHMAC("wrong-secret", body))
	if status != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", status)
	}
	if resp["error"] == "" {
		t.Fatalf("resp = %v", resp)
	}
	if in.Depth() != 0 {
		t.Fatal("rejected event must not be queued")
	}
	if ok, _ := mem.IsEventProcessed(context.Background(), "e1"); ok {
		t.Fatal("rejected event must leave no durable trace")
	}
}

func TestHandleMalformed(t *testing.T) {
	in := NewIngestor(testSecret, store.NewMemory(), 4)

	body, sig := signedBody(`{not json`)
	if status, _ := in.Handle(context.Background(), body, sig); status != http.StatusBadRequest {
		t.Fatalf("malformed JSON: status = %d, want 400", status)
	}

	body, sig = signedBody(`{"event":"stock.updated","data":{}}`)
	if status, _ := in.Handle(context.Background(), body, sig); status != http.StatusBadRequest {
		t.Fatalf("missing eventId: status = %d, want 400", status)
	}

	body, sig = signedBody(`{"eventId":"e1","data":{}}`)
	if status, _ := in.Handle(context.Background(), body, sig); status != http.StatusBadRequest {
		t.Fatalf("missing event: status = %d, want 400", status)
	}
	if in.Depth() != 0 {
		t.Fatal("nothing should be queued")
	}
}

func TestHandleQueuesAndShortCircuitsDuplicates(t *testing.T) {
	mem := store.NewMemory()
	in := NewIngestor(testSecret, mem, 4)
	ctx := context.Background()

	body, sig := signedBody(`{"eventId":"e1","event":"product.created","data":{"id":7}}`)
	status, resp := in.Handle(ctx, body, sig)
	if status != http.StatusOK || resp["status"] != "queued" {
		t.Fatalf("first delivery: %d %v", status, resp)
	}
	if resp["receiptId"] == "" {
		t.Fatal("queued response should carry a receipt id")
	}
	if in.Depth() != 1 {
		t.Fatalf("depth = %d, want 1", in.Depth())
	}

	// Simulate the processor having recorded it.
	if _, err := mem.MarkEventProcessed(ctx, model.ProcessedEvent{EventID: "e1", EventType: "product.created"}); err != nil {
		t.Fatal(err)
	}

	status, resp = in.Handle(ctx, body, sig)
	if status != http.StatusOK || resp["status"] != "already_processed" {
		t.Fatalf("redelivery: %d %v", status, resp)
	}
	if in.Depth() != 1 {
		t.Fatal("redelivery must not re-queue")
	}
}

func TestHandleBackpressure(t *testing.T) {
	in := NewIngestor(testSecret, store.NewMemory(), 1)
	ctx := context.Background()

	body, sig := signedBody(`{"eventId":"e1","event":"stock.updated","data":{}}`)
	if status, _ := in.Handle(ctx, body, sig); status != http.StatusOK {
		t.Fatal("first event should fit")
	}
	body, sig = signedBody(`{"eventId":"e2","event":"stock.updated","data":{}}`)
	status, _ := in.Handle(ctx, body, sig)
	if status != http.StatusServiceUnavailable {
		t.Fatalf("full queue: status = %d, want 503", status)
	}
}
