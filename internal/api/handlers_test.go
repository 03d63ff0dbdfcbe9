package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"blingmon/internal/config"
	"blingmon/internal/model"
	"blingmon/internal/store"
	syncpkg "blingmon/internal/sync"
	"blingmon/internal/webhooks"
)

const testSecret = "client-secret"

type fakeOrderAPI struct {
	purchase []model.PurchaseOrder
}

func (f *fakeOrderAPI) GetProductionOrders(ctx context.Context, page, limit int, start, end string) ([]model.ProductionOrder, error) {
	return nil, nil
}

func (f *fakeOrderAPI) GetProductionOrderDetail(ctx context.Context, orderID int64) (model.ProductionOrder, error) {
	return model.ProductionOrder{}, nil
}

func (f *fakeOrderAPI) GetPurchaseOrders(ctx context.Context, page, limit int, start, end string) ([]model.PurchaseOrder, error) {
	if page > 1 {
		return nil, nil
	}
	return f.purchase, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st := store.NewMemory()
	ing := webhooks.NewIngestor(testSecret, st, 16)
	proc := webhooks.NewProcessor(st, ing)
	broker := NewBroker()
	proc.OnProcessed = broker.Publish
	return &Server{
		Cfg:       config.Default(),
		Store:     st,
		Ingestor:  ing,
		Processor: proc,
		Sync:      syncpkg.New(&fakeOrderAPI{purchase: []model.PurchaseOrder{{ID: 1, Numero: "PC-1", Data: "2026-08-01"}}}, st, 180),
		Broker:    broker,
		intake:    rate.NewLimiter(50, 100),
	}
}

func signedWebhook(t *testing.T, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/bling", strings.NewReader(body))
	req.Header.Set(webhooks.SignatureHeader, webhooks.SignHMAC(testSecret, []byte(body)))
	return req
}

func TestWebhookHandlerAccepts(t *testing.T) {
	s := newTestServer(t)
	body := `{"eventId":"evt-1","event":"stock.updated","data":{"produto":{"id":7}}}`

	rr := httptest.NewRecorder()
	s.WebhookHandler(rr, signedWebhook(t, body))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "queued" || resp["receiptId"] == "" {
		t.Fatalf("resp = %v", resp)
	}
}

func TestWebhookHandlerRejectsBadSignature(t *testing.T) {
	s := newTestServer(t)
	body := `{"eventId":"evt-1","event":"stock.updated"}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/bling", strings.NewReader(body))
	req.Header.Set(webhooks.SignatureHeader, "sha256=deadbeef")

	rr := httptest.NewRecorder()
	s.WebhookHandler(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestWebhookHandlerMethodNotAllowed(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.WebhookHandler(rr, httptest.NewRequest(http.MethodGet, "/webhook/bling", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rr.Code)
	}
}

func TestIntakeLimitSheds(t *testing.T) {
	s := newTestServer(t)
	s.intake = rate.NewLimiter(rate.Limit(1), 1)
	h := s.withIntakeLimit(s.WebhookHandler)

	body := `{"eventId":"evt-1","event":"stock.updated"}`
	first := httptest.NewRecorder()
	h(first, signedWebhook(t, body))
	second := httptest.NewRecorder()
	h(second, signedWebhook(t, body))

	if first.Code == http.StatusTooManyRequests {
		t.Fatalf("first request should pass, got %d", first.Code)
	}
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d, want 429", second.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "ok" {
		t.Fatalf("resp = %v", resp)
	}
	if _, ok := resp["queueDepth"]; !ok {
		t.Fatal("health body is missing queueDepth")
	}
}

func TestAdminEventsHandler(t *testing.T) {
	s := newTestServer(t)
	_, err := s.Store.MarkEventProcessed(context.Background(), model.ProcessedEvent{
		EventID: "evt-1", EventType: "stock.updated", ProcessedAt: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	s.AdminEventsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/admin/events", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp struct {
		Events []model.ProcessedEvent `json:"events"`
		Count  int                    `json:"count"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 1 || resp.Events[0].EventID != "evt-1" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestAdminEventsHandlerBadLimit(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.AdminEventsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/admin/events?limit=0", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestAdminSyncHandler(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.AdminSyncHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/admin/sync", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Results []syncpkg.Result `json:"results"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	found := false
	for _, r := range resp.Results {
		if r.SyncType == syncpkg.TypePurchase && r.Orders == 1 {
			found = true
		}
	}
	if !found {
		t.Fatalf("results = %+v, want one purchase order synced", resp.Results)
	}

	get := httptest.NewRecorder()
	s.AdminSyncHandler(get, httptest.NewRequest(http.MethodGet, "/v1/admin/sync", nil))
	if get.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET status = %d, want 405", get.Code)
	}
}

func TestEventsWSStream(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/events/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close() }()

	// The subscription is registered inside the handler goroutine, so keep
	// publishing until the read sees an event.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.Broker.Publish(model.ProcessedEvent{EventID: "evt-ws", EventType: "stock.updated", ProcessedAt: time.Now()})
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev model.ProcessedEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.EventID != "evt-ws" {
		t.Fatalf("event = %+v", ev)
	}
}
