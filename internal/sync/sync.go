// Package sync mirrors production and purchase orders from Bling into the
// local store, incrementally from a per-kind watermark.
package sync

import (
	"context"
	"fmt"
	"log"
	"time"

	"blingmon/internal/model"
	"blingmon/internal/store"
)

const (
	pageSize = 100
	// maxPages bounds a single run so a bad watermark cannot turn into an
	// unbounded crawl of the remote API.
	maxPages = 100

	TypeProduction = "production_orders"
	TypePurchase   = "purchase_orders"
)

// OrderAPI is the slice of the Bling client the synchronizer needs.
type OrderAPI interface {
	GetProductionOrders(ctx context.Context, page, limit int, startDate, endDate string) ([]model.ProductionOrder, error)
	GetProductionOrderDetail(ctx context.Context, orderID int64) (model.ProductionOrder, error)
	GetPurchaseOrders(ctx context.Context, page, limit int, startDate, endDate string) ([]model.PurchaseOrder, error)
}

// Synchronizer pulls order history into the local store. Runs are
// incremental: each run starts the day after the newest order date seen by
// the previous one.
type Synchronizer struct {
	api          OrderAPI
	store        store.Store
	lookbackDays int
}

func New(api OrderAPI, s store.Store, lookbackDays int) *Synchronizer {
	return &Synchronizer{api: api, store: s, lookbackDays: lookbackDays}
}

// Result summarizes one sync run.
type Result struct {
	SyncType  string `json:"syncType"`
	Orders    int    `json:"orders"`
	Pages     int    `json:"pages"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	LastDate  string `json:"lastOrderDate,omitempty"`
}

// SyncAll runs both order kinds and returns the per-kind results. A failure
// in one kind does not stop the other.
func (s *Synchronizer) SyncAll(ctx context.Context, full bool) ([]Result, error) {
	var results []Result
	var firstErr error
	for _, kind := range []string{TypeProduction, TypePurchase} {
		res, err := s.Sync(ctx, kind, full)
		if err != nil {
			log.Printf("sync: %s failed: %v", kind, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results = append(results, res)
	}
	return results, firstErr
}

// Sync runs one order kind. With full set, the watermark is ignored and the
// window starts lookbackDays ago.
func (s *Synchronizer) Sync(ctx context.Context, syncType string, full bool) (Result, error) {
	start, err := s.startDate(ctx, syncType, full)
	if err != nil {
		return Result{}, err
	}
	end := time.Now().Format("2006-01-02")
	res := Result{SyncType: syncType, StartDate: start, EndDate: end}

	switch syncType {
	case TypeProduction:
		err = s.syncProduction(ctx, &res)
	case TypePurchase:
		err = s.syncPurchase(ctx, &res)
	default:
		return Result{}, fmt.Errorf("unknown sync type %q", syncType)
	}
	if err != nil {
		return res, err
	}

	if res.Orders > 0 {
		if err := s.store.UpdateSyncControl(ctx, syncType, res.LastDate, res.Orders); err != nil {
			return res, fmt.Errorf("update sync control: %w", err)
		}
	}
	log.Printf("sync: %s done, %d orders over %d pages (%s..%s)",
		syncType, res.Orders, res.Pages, res.StartDate, res.EndDate)
	return res, nil
}

// startDate resolves the window start: the day after the stored watermark,
// or lookbackDays ago when there is no watermark or a full run was asked.
func (s *Synchronizer) startDate(ctx context.Context, syncType string, full bool) (string, error) {
	fallback := time.Now().AddDate(0, 0, -s.lookbackDays).Format("2006-01-02")
	if full {
		return fallback, nil
	}
	last, err := s.store.LastSyncOrderDate(ctx, syncType)
	if err != nil {
		return "", fmt.Errorf("read sync watermark: %w", err)
	}
	if last == "" {
		return fallback, nil
	}
	t, err := time.Parse("2006-01-02", last)
	if err != nil {
		log.Printf("sync: bad watermark %q for %s, falling back to full window", last, syncType)
		return fallback, nil
	}
	return t.AddDate(0, 0, 1).Format("2006-01-02"), nil
}

func (s *Synchronizer) syncProduction(ctx context.Context, res *Result) error {
	for page := 1; page <= maxPages; page++ {
		orders, err := s.api.GetProductionOrders(ctx, page, pageSize, res.StartDate, res.EndDate)
		if err != nil {
			return fmt.Errorf("list production orders page %d: %w", page, err)
		}
		if len(orders) == 0 {
			return nil
		}
		res.Pages++

		// Listing responses omit items, so each order needs a detail fetch.
		detailed := make([]model.ProductionOrder, 0, len(orders))
		for _, o := range orders {
			det, err := s.api.GetProductionOrderDetail(ctx, o.ID)
			if err != nil {
				log.Printf("sync: production order %d detail failed, keeping summary: %v", o.ID, err)
				det = o
			}
			detailed = append(detailed, det)
			if d := det.Date(); d > res.LastDate {
				res.LastDate = d
			}
		}
		if err := s.store.SaveProductionOrders(ctx, detailed); err != nil {
			return fmt.Errorf("save production orders: %w", err)
		}
		res.Orders += len(detailed)

		if len(orders) < pageSize {
			return nil
		}
	}
	log.Printf("sync: production orders hit the %d-page cap, remainder left for the next run", maxPages)
	return nil
}

func (s *Synchronizer) syncPurchase(ctx context.Context, res *Result) error {
	for page := 1; page <= maxPages; page++ {
		orders, err := s.api.GetPurchaseOrders(ctx, page, pageSize, res.StartDate, res.EndDate)
		if err != nil {
			return fmt.Errorf("list purchase orders page %d: %w", page, err)
		}
		if len(orders) == 0 {
			return nil
		}
		res.Pages++

		for _, o := range orders {
			if o.Data > res.LastDate {
				res.LastDate = o.Data
			}
		}
		if err := s.store.SavePurchaseOrders(ctx, orders); err != nil {
			return fmt.Errorf("save purchase orders: %w", err)
		}
		res.Orders += len(orders)

		if len(orders) < pageSize {
			return nil
		}
	}
	log.Printf("sync: purchase orders hit the %d-page cap, remainder left for the next run", maxPages)
	return nil
}
