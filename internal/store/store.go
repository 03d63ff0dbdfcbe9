package store

import (
	"context"
	"errors"

	"blingmon/internal/model"
)

// Store is the persistence interface shared by the webhook pipeline, the
// code allocator and the order synchronizer.
type Store interface {
	// Sequential codes
	NextCode(ctx context.Context, prefix string, categoryID int64, categoryName string) (string, error)
	LastCodeValue(ctx context.Context, prefix string) (int64, error)

	// Idempotency ledger
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	// MarkEventProcessed records the event; inserting an already-recorded
	// id is a no-op and returns false.
	MarkEventProcessed(ctx context.Context, ev model.ProcessedEvent) (bool, error)
	ListProcessedEvents(ctx context.Context, limit int) ([]model.ProcessedEvent, error)

	// Order catalog
	SaveProductionOrders(ctx context.Context, orders []model.ProductionOrder) error
	SavePurchaseOrders(ctx context.Context, orders []model.PurchaseOrder) error
	ProductHasEntry(ctx context.Context, productID int64) (bool, model.OrderEntry, error)

	// Sync watermarks
	LastSyncOrderDate(ctx context.Context, syncType string) (string, error)
	UpdateSyncControl(ctx context.Context, syncType, lastOrderDate string, orderCount int) error

	// Operational
	Stats(ctx context.Context) (Stats, error)
	Ping(ctx context.Context) error
}

// Stats summarizes ledger and counter state for the health endpoint.
type Stats struct {
	Counters       int                 `json:"counters"`
	Events         int                 `json:"events"`
	RecentCounters []model.CodeCounter `json:"recentCounters"`
}

var ErrNotFound = errors.New("not found")
