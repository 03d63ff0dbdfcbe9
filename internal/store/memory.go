package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"blingmon/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu       sync.Mutex
	counters map[string]*model.CodeCounter
	events   map[string]model.ProcessedEvent
	order    []string // event ids in insertion order

	prodOrders map[int64]model.ProductionOrder
	purcOrders map[int64]model.PurchaseOrder
	syncs      map[string]model.SyncStatus
}

func NewMemory() *Memory {
	return &Memory{
		counters:   map[string]*model.CodeCounter{},
		events:     map[string]model.ProcessedEvent{},
		prodOrders: map[int64]model.ProductionOrder{},
		purcOrders: map[int64]model.PurchaseOrder{},
		syncs:      map[string]model.SyncStatus{},
	}
}

func (m *Memory) NextCode(ctx context.Context, prefix string, categoryID int64, categoryName string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.counters[prefix]
	if c == nil {
		c = &model.CodeCounter{Prefix: prefix, CategoryID: categoryID, CategoryName: categoryName}
		m.counters[prefix] = c
	}
	c.LastValue++
	c.UpdatedAt = time.Now()
	return fmt.Sprintf("%s%05d", prefix, c.LastValue), nil
}

func (m *Memory) LastCodeValue(ctx context.Context, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.counters[prefix]; c != nil {
		return c.LastValue, nil
	}
	return 0, nil
}

func (m *Memory) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.events[eventID]
	return ok, nil
}

func (m *Memory) MarkEventProcessed(ctx context.Context, ev model.ProcessedEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[ev.EventID]; ok {
		return false, nil
	}
	if ev.ProcessedAt.IsZero() {
		ev.ProcessedAt = time.Now()
	}
	m.events[ev.EventID] = ev
	m.order = append(m.order, ev.EventID)
	return true, nil
}

func (m *Memory) ListProcessedEvents(ctx context.Context, limit int) ([]model.ProcessedEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.order) {
		limit = len(m.order)
	}
	out := make([]model.ProcessedEvent, 0, limit)
	// newest first
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.events[m.order[i]])
	}
	return out, nil
}

func (m *Memory) SaveProductionOrders(ctx context.Context, orders []model.ProductionOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range orders {
		m.prodOrders[o.ID] = o
	}
	return nil
}

func (m *Memory) SavePurchaseOrders(ctx context.Context, orders []model.PurchaseOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range orders {
		m.purcOrders[o.ID] = o
	}
	return nil
}

func (m *Memory) ProductHasEntry(ctx context.Context, productID int64) (bool, model.OrderEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best model.OrderEntry
	found := false
	for _, o := range m.prodOrders {
		for _, it := range o.Itens {
			if it.Produto.ID != productID {
				continue
			}
			if !found || o.Date() > best.OrderDate {
				best = model.OrderEntry{OrderNumber: o.Numero, OrderDate: o.Date(), Quantity: it.Quantidade, Responsible: o.Responsavel, Source: "production"}
				found = true
			}
		}
	}
	if found {
		return true, best, nil
	}
	for _, o := range m.purcOrders {
		for _, it := range o.Itens {
			if it.Produto.ID != productID {
				continue
			}
			if !found || o.Data > best.OrderDate {
				best = model.OrderEntry{OrderNumber: o.Numero, OrderDate: o.Data, Quantity: it.Quantidade, Responsible: o.Contato.Nome, Source: "purchase"}
				found = true
			}
		}
	}
	return found, best, nil
}

func (m *Memory) LastSyncOrderDate(ctx context.Context, syncType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.syncs[syncType]; ok {
		return s.LastOrderDate, nil
	}
	return "", nil
}

func (m *Memory) UpdateSyncControl(ctx context.Context, syncType, lastOrderDate string, orderCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.syncs[syncType] = model.SyncStatus{
		SyncType:      syncType,
		LastSyncDate:  now,
		LastOrderDate: lastOrderDate,
		TotalOrders:   orderCount,
		UpdatedAt:     now,
	}
	return nil
}

func (m *Memory) Stats(ctx context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recent := make([]model.CodeCounter, 0, len(m.counters))
	for _, c := range m.counters {
		recent = append(recent, *c)
	}
	sort.Slice(recent, func(i, j int) bool { return recent[i].UpdatedAt.After(recent[j].UpdatedAt) })
	if len(recent) > 10 {
		recent = recent[:10]
	}
	return Stats{Counters: len(m.counters), Events: len(m.events), RecentCounters: recent}, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
