package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"blingmon/internal/model"
)

func TestNextCodeSequential(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	c1, err := m.NextCode(ctx, "TEST", 0, "")
	if err != nil {
		t.Fatal(err)
	}
	c2, err := m.NextCode(ctx, "TEST", 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if c1 != "TEST00001" || c2 != "TEST00002" {
		t.Fatalf("got %s, %s", c1, c2)
	}

	// Independent prefixes do not share counters.
	other, _ := m.NextCode(ctx, "MONI", 0, "Monitor")
	if other != "MONI00001" {
		t.Fatalf("got %s", other)
	}
}

func TestNextCodeConcurrentNoDuplicatesNoGaps(t *testing.T) {
	const n = 50
	m := NewMemory()
	codes := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code, err := m.NextCode(context.Background(), "TEST", 0, "")
			if err != nil {
				t.Errorf("NextCode: %v", err)
				return
			}
			codes <- code
		}()
	}
	wg.Wait()
	close(codes)

	seen := map[string]bool{}
	for c := range codes {
		if seen[c] {
			t.Fatalf("duplicate code %s", c)
		}
		seen[c] = true
	}
	for i := 1; i <= n; i++ {
		want := fmt.Sprintf("TEST%05d", i)
		if !seen[want] {
			t.Fatalf("gap: %s never issued", want)
		}
	}
	if last, _ := m.LastCodeValue(context.Background(), "TEST"); last != n {
		t.Fatalf("LastCodeValue = %d, want %d", last, n)
	}
}

func TestMarkEventProcessedIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	ev := model.ProcessedEvent{EventID: "evt-1", EventType: "stock.updated", ProductID: 7}

	inserted, err := m.MarkEventProcessed(ctx, ev)
	if err != nil || !inserted {
		t.Fatalf("first insert: %v %v", inserted, err)
	}
	inserted, err = m.MarkEventProcessed(ctx, ev)
	if err != nil || inserted {
		t.Fatalf("second insert should be a no-op: %v %v", inserted, err)
	}

	ok, err := m.IsEventProcessed(ctx, "evt-1")
	if err != nil || !ok {
		t.Fatalf("IsEventProcessed: %v %v", ok, err)
	}
	ok, _ = m.IsEventProcessed(ctx, "evt-2")
	if ok {
		t.Fatal("evt-2 should not be processed")
	}
}

func TestProductHasEntryPrefersProduction(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	err := m.SaveProductionOrders(ctx, []model.ProductionOrder{{
		ID: 1, Numero: "OP-1", DataInicio: "2026-01-10", Responsavel: "ana",
		Itens: []model.OrderItem{{Produto: model.ProductRef{ID: 100}, Quantidade: 2}},
	}})
	if err != nil {
		t.Fatal(err)
	}
	err = m.SavePurchaseOrders(ctx, []model.PurchaseOrder{{
		ID: 2, Numero: "PC-9", Data: "2026-02-01", Contato: model.Contact{ID: 5, Nome: "forn"},
		Itens: []model.OrderItem{{Produto: model.ProductRef{ID: 100}, Quantidade: 1, Valor: 10}},
	}})
	if err != nil {
		t.Fatal(err)
	}

	ok, entry, err := m.ProductHasEntry(ctx, 100)
	if err != nil || !ok {
		t.Fatalf("ProductHasEntry: %v %v", ok, err)
	}
	if entry.Source != "production" || entry.OrderNumber != "OP-1" {
		t.Fatalf("entry = %+v, want production OP-1", entry)
	}

	ok, _, _ = m.ProductHasEntry(ctx, 999)
	if ok {
		t.Fatal("unknown product should have no entry")
	}
}

func TestSyncControlWatermark(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	date, err := m.LastSyncOrderDate(ctx, "production")
	if err != nil || date != "" {
		t.Fatalf("empty watermark expected, got %q %v", date, err)
	}
	if err := m.UpdateSyncControl(ctx, "production", "2026-03-01", 12); err != nil {
		t.Fatal(err)
	}
	date, _ = m.LastSyncOrderDate(ctx, "production")
	if date != "2026-03-01" {
		t.Fatalf("watermark = %q", date)
	}
}

func TestStats(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, _ = m.NextCode(ctx, "TEMO", 3, "Teclado Mouse")
	_, _ = m.MarkEventProcessed(ctx, model.ProcessedEvent{EventID: "e1", EventType: "product.created"})

	s, err := m.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if s.Counters != 1 || s.Events != 1 || len(s.RecentCounters) != 1 {
		t.Fatalf("stats = %+v", s)
	}
	if s.RecentCounters[0].Prefix != "TEMO" {
		t.Fatalf("recent = %+v", s.RecentCounters)
	}
}
