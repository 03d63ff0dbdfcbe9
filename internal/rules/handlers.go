package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"blingmon/internal/model"
	"blingmon/internal/store"
	"blingmon/internal/webhooks"
)

// API is the slice of the Bling client the event handlers need.
type API interface {
	StockAPI
	GetProduct(ctx context.Context, id int64) (model.Product, error)
	UpdateProduct(ctx context.Context, id int64, patch map[string]any) error
	UpdateProductSituation(ctx context.Context, id int64, situation string) error
}

// Registrar accepts handler registrations, keyed by event type.
type Registrar interface {
	On(eventType string, h webhooks.Handler)
}

// Handlers reacts to product and stock webhook events: deactivating
// products whose stock was sold out and assigning sequential codes to new
// products.
type Handlers struct {
	api   API
	store store.Store
}

func NewHandlers(api API, s store.Store) *Handlers {
	return &Handlers{api: api, store: s}
}

// Register wires the handlers onto the event processor.
func (h *Handlers) Register(r Registrar) {
	r.On("stock.updated", h.HandleStock)
	r.On("product.created", h.HandleProduct)
	r.On("product.updated", h.HandleProduct)
}

// HandleStock deactivates a product when its virtual stock reaches zero and
// the depletion is attributable to sales.
func (h *Handlers) HandleStock(ctx context.Context, ev model.WebhookEvent) error {
	var data model.StockEventData
	if err := json.Unmarshal(ev.Data, &data); err != nil {
		return fmt.Errorf("stock payload: %w", err)
	}
	if data.Produto.ID == 0 {
		log.Printf("rules: stock event %s has no product id, skipping", ev.EventID)
		return nil
	}

	product, err := h.api.GetProduct(ctx, data.Produto.ID)
	if err != nil {
		return fmt.Errorf("fetch product %d: %w", data.Produto.ID, err)
	}

	if ignore, reason := ShouldIgnoreProduct(product); ignore {
		log.Printf("rules: skipping product %d (%s): %s", product.ID, product.Nome, reason)
		return nil
	}
	if product.Estoque == nil || product.Estoque.SaldoVirtualTotal > 0 {
		return nil
	}
	if product.Situacao == "I" {
		return nil
	}

	depleted, details, err := StockDepletedBySales(ctx, h.api, product.ID)
	if err != nil {
		return fmt.Errorf("depletion check for product %d: %w", product.ID, err)
	}
	if !depleted {
		log.Printf("rules: product %d at zero stock but not sales-depleted: %s", product.ID, details.Reason)
		return nil
	}

	if err := h.api.UpdateProductSituation(ctx, product.ID, "I"); err != nil {
		return fmt.Errorf("deactivate product %d: %w", product.ID, err)
	}
	log.Printf("rules: deactivated product %d (%s): %s (entries=%.0f sales=%.0f)",
		product.ID, product.Nome, details.Reason, details.Entries, details.SalesExits)
	return nil
}

// HandleProduct assigns a sequential code to products created or updated
// without one, when the category rules call for it.
func (h *Handlers) HandleProduct(ctx context.Context, ev model.WebhookEvent) error {
	var data model.ProductEventData
	if err := json.Unmarshal(ev.Data, &data); err != nil {
		return fmt.Errorf("product payload: %w", err)
	}
	if data.ID == 0 {
		log.Printf("rules: product event %s has no product id, skipping", ev.EventID)
		return nil
	}
	if data.Codigo != "" {
		return nil
	}

	product, err := h.api.GetProduct(ctx, data.ID)
	if err != nil {
		return fmt.Errorf("fetch product %d: %w", data.ID, err)
	}

	decision := ShouldGenerateCode(product)
	if !decision.Generate {
		log.Printf("rules: no code for product %d (%s): %s", product.ID, product.Nome, decision.Reason)
		return nil
	}

	info := ExtractCategoryInfo(product)
	code, err := h.store.NextCode(ctx, decision.Prefix, info.ID, info.Full)
	if err != nil {
		return fmt.Errorf("allocate code for product %d: %w", product.ID, err)
	}
	if err := h.api.UpdateProduct(ctx, product.ID, map[string]any{"codigo": code}); err != nil {
		return fmt.Errorf("assign code %s to product %d: %w", code, product.ID, err)
	}
	log.Printf("rules: assigned code %s to product %d (%s)", code, product.ID, product.Nome)
	return nil
}
