// Package model defines the wire and domain types shared across the service.
package model

import (
	"encoding/json"
	"time"
)

// WebhookEvent is the parsed body of a Bling push notification.
// Data is kept raw because its shape depends on the event kind.
type WebhookEvent struct {
	EventID string          `json:"eventId"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
	// Raw is the exact request body as received, stored with the
	// processed-event record for later inspection.
	Raw []byte `json:"-"`
}

// ProductRef is the minimal product reference embedded in event payloads
// and order items.
type ProductRef struct {
	ID     int64  `json:"id"`
	Codigo string `json:"codigo,omitempty"`
}

// StockEventData is the payload of a stock.updated event.
type StockEventData struct {
	Produto ProductRef `json:"produto"`
}

// ProductEventData is the payload of product.created / product.updated events.
type ProductEventData struct {
	ID     int64  `json:"id"`
	Codigo string `json:"codigo"`
}

// Product mirrors the remote /produtos resource, limited to the fields the
// rules engine reads.
type Product struct {
	ID        int64     `json:"id"`
	Nome      string    `json:"nome"`
	Codigo    string    `json:"codigo"`
	Situacao  string    `json:"situacao"`
	Categoria *Category `json:"categoria,omitempty"`
	Estoque   *Stock    `json:"estoque,omitempty"`
}

// Category as returned by /categorias/produtos. Nome carries the full
// hierarchy ("Pecas >> Teclado Mouse").
type Category struct {
	ID   int64  `json:"id"`
	Nome string `json:"nome"`
}

// Stock balances of a product.
type Stock struct {
	SaldoFisicoTotal  float64 `json:"saldoFisicoTotal"`
	SaldoVirtualTotal float64 `json:"saldoVirtualTotal"`
}

// StockMovement is one entry from /estoques. Tipo is "E" (entry) or
// "S" (exit); Operacao is free text describing the originating document.
type StockMovement struct {
	Quantidade float64 `json:"quantidade"`
	Tipo       string  `json:"tipo"`
	Operacao   string  `json:"operacao"`
}

// OrderItem is a line of a production or purchase order.
type OrderItem struct {
	Produto    ProductRef `json:"produto"`
	Quantidade float64    `json:"quantidade"`
	Valor      float64    `json:"valor"`
}

// OrderStatus wraps the remote situacao object, which carries either a
// display name (production) or a numeric value (purchase).
type OrderStatus struct {
	Nome  string `json:"nome,omitempty"`
	Valor int    `json:"valor,omitempty"`
}

// Contact identifies the supplier on purchase orders.
type Contact struct {
	ID   int64  `json:"id"`
	Nome string `json:"nome"`
}

// ProductionOrder as returned by /ordens-producao. The remote API scatters
// the relevant date across four fields depending on order state.
type ProductionOrder struct {
	ID                 int64       `json:"id"`
	Numero             string      `json:"numero"`
	DataInicio         string      `json:"dataInicio,omitempty"`
	DataPrevisaoInicio string      `json:"dataPrevisaoInicio,omitempty"`
	DataFim            string      `json:"dataFim,omitempty"`
	DataPrevisaoFinal  string      `json:"dataPrevisaoFinal,omitempty"`
	Situacao           OrderStatus `json:"situacao"`
	Responsavel        string      `json:"responsavel,omitempty"`
	Itens              []OrderItem `json:"itens,omitempty"`
}

// Date returns the first populated date field, in remote preference order.
func (o ProductionOrder) Date() string {
	for _, d := range []string{o.DataInicio, o.DataPrevisaoInicio, o.DataFim, o.DataPrevisaoFinal} {
		if d != "" {
			return d
		}
	}
	return ""
}

// PurchaseOrder as returned by /pedidos/compras. Listing responses already
// include items.
type PurchaseOrder struct {
	ID       int64       `json:"id"`
	Numero   string      `json:"numero"`
	Data     string      `json:"data"`
	Situacao OrderStatus `json:"situacao"`
	Contato  Contact     `json:"contato"`
	Total    float64     `json:"total"`
	Itens    []OrderItem `json:"itens,omitempty"`
}

// ProcessedEvent is one row of the idempotency ledger.
type ProcessedEvent struct {
	EventID     string    `json:"eventId"`
	EventType   string    `json:"eventType"`
	ProductID   int64     `json:"productId,omitempty"`
	ProcessedAt time.Time `json:"processedAt"`
	Payload     []byte    `json:"-"`
}

// CodeCounter is one row of the sequential-code counter table.
type CodeCounter struct {
	Prefix       string    `json:"prefix"`
	LastValue    int64     `json:"lastValue"`
	CategoryID   int64     `json:"categoryId,omitempty"`
	CategoryName string    `json:"categoryName,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// SyncStatus tracks the incremental-sync watermark for one order kind.
type SyncStatus struct {
	SyncType      string    `json:"syncType"`
	LastSyncDate  time.Time `json:"lastSyncDate"`
	LastOrderDate string    `json:"lastOrderDate"`
	TotalOrders   int       `json:"totalOrders"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// OrderEntry summarizes the most recent stock entry found for a product in
// the local order catalog.
type OrderEntry struct {
	OrderNumber string  `json:"orderNumber"`
	OrderDate   string  `json:"orderDate"`
	Quantity    float64 `json:"quantity"`
	Responsible string  `json:"responsible,omitempty"`
	Source      string  `json:"source"`
}
