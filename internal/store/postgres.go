package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"blingmon/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// Migrate creates the schema. Statements are idempotent so it is safe to run
// on every start.
func (p *Postgres) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS code_counters (
			prefix TEXT PRIMARY KEY,
			last_value BIGINT NOT NULL DEFAULT 0,
			category_id BIGINT,
			category_name TEXT,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS processed_events (
			event_id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			product_id BIGINT,
			processed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			payload JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_product ON processed_events(product_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_type ON processed_events(event_type)`,
		`CREATE TABLE IF NOT EXISTS production_orders (
			order_id BIGINT PRIMARY KEY,
			order_number TEXT NOT NULL,
			order_date TEXT,
			status TEXT,
			responsible TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			data JSONB
		)`,
		`CREATE TABLE IF NOT EXISTS production_items (
			id BIGSERIAL PRIMARY KEY,
			order_id BIGINT NOT NULL REFERENCES production_orders(order_id) ON DELETE CASCADE,
			product_id BIGINT NOT NULL,
			product_code TEXT,
			quantity DOUBLE PRECISION NOT NULL,
			unit_price DOUBLE PRECISION
		)`,
		`CREATE INDEX IF NOT EXISTS idx_prod_product ON production_items(product_id)`,
		`CREATE TABLE IF NOT EXISTS purchase_orders (
			order_id BIGINT PRIMARY KEY,
			order_number TEXT NOT NULL,
			order_date TEXT,
			status TEXT,
			supplier_id BIGINT,
			supplier_name TEXT,
			total_value DOUBLE PRECISION,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			data JSONB
		)`,
		`CREATE TABLE IF NOT EXISTS purchase_items (
			id BIGSERIAL PRIMARY KEY,
			order_id BIGINT NOT NULL REFERENCES purchase_orders(order_id) ON DELETE CASCADE,
			product_id BIGINT NOT NULL,
			product_code TEXT,
			quantity DOUBLE PRECISION NOT NULL,
			unit_price DOUBLE PRECISION
		)`,
		`CREATE INDEX IF NOT EXISTS idx_purch_product ON purchase_items(product_id)`,
		`CREATE TABLE IF NOT EXISTS sync_control (
			sync_type TEXT PRIMARY KEY,
			last_sync_date TIMESTAMPTZ,
			last_order_date TEXT,
			total_orders INT DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, s := range stmts {
		if _, err := p.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// NextCode allocates the next sequential code for prefix in one atomic
// statement, so concurrent callers never observe the same value.
func (p *Postgres) NextCode(ctx context.Context, prefix string, categoryID int64, categoryName string) (string, error) {
	var last int64
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO code_counters (prefix, last_value, category_id, category_name, updated_at)
		VALUES ($1, 1, $2, $3, now())
		ON CONFLICT (prefix) DO UPDATE
			SET last_value = code_counters.last_value + 1, updated_at = now()
		RETURNING last_value`,
		prefix, nullIfZero(categoryID), nullIfEmpty(categoryName)).Scan(&last)
	if err != nil {
		return "", fmt.Errorf("next code for %s: %w", prefix, err)
	}
	return fmt.Sprintf("%s%05d", prefix, last), nil
}

func (p *Postgres) LastCodeValue(ctx context.Context, prefix string) (int64, error) {
	var last int64
	err := p.db.QueryRowContext(ctx, `SELECT last_value FROM code_counters WHERE prefix=$1`, prefix).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return last, err
}

func (p *Postgres) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var one int
	err := p.db.QueryRowContext(ctx, `SELECT 1 FROM processed_events WHERE event_id=$1`, eventID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (p *Postgres) MarkEventProcessed(ctx context.Context, ev model.ProcessedEvent) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO processed_events (event_id, event_type, product_id, processed_at, payload)
		VALUES ($1, $2, $3, now(), $4)
		ON CONFLICT (event_id) DO NOTHING`,
		ev.EventID, ev.EventType, nullIfZero(ev.ProductID), nullIfEmptyBytes(ev.Payload))
	if err != nil {
		return false, fmt.Errorf("mark event %s: %w", ev.EventID, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (p *Postgres) ListProcessedEvents(ctx context.Context, limit int) ([]model.ProcessedEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT event_id, event_type, COALESCE(product_id, 0), processed_at
		FROM processed_events ORDER BY processed_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ProcessedEvent
	for rows.Next() {
		var ev model.ProcessedEvent
		if err := rows.Scan(&ev.EventID, &ev.EventType, &ev.ProductID, &ev.ProcessedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (p *Postgres) SaveProductionOrders(ctx context.Context, orders []model.ProductionOrder) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, o := range orders {
		raw, _ := json.Marshal(o)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO production_orders (order_id, order_number, order_date, status, responsible, created_at, data)
			VALUES ($1, $2, $3, $4, $5, now(), $6)
			ON CONFLICT (order_id) DO UPDATE
				SET order_number=EXCLUDED.order_number, order_date=EXCLUDED.order_date,
				    status=EXCLUDED.status, responsible=EXCLUDED.responsible, data=EXCLUDED.data`,
			o.ID, o.Numero, nullIfEmpty(o.Date()), nullIfEmpty(o.Situacao.Nome), nullIfEmpty(o.Responsavel), raw)
		if err != nil {
			return fmt.Errorf("save production order %d: %w", o.ID, err)
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM production_items WHERE order_id=$1`, o.ID); err != nil {
			return err
		}
		for _, it := range o.Itens {
			if it.Produto.ID == 0 {
				continue
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO production_items (order_id, product_id, product_code, quantity, unit_price)
				VALUES ($1, $2, $3, $4, 0)`,
				o.ID, it.Produto.ID, nullIfEmpty(it.Produto.Codigo), it.Quantidade)
			if err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func (p *Postgres) SavePurchaseOrders(ctx context.Context, orders []model.PurchaseOrder) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, o := range orders {
		raw, _ := json.Marshal(o)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO purchase_orders (order_id, order_number, order_date, status, supplier_id, supplier_name, total_value, created_at, data)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now(), $8)
			ON CONFLICT (order_id) DO UPDATE
				SET order_number=EXCLUDED.order_number, order_date=EXCLUDED.order_date,
				    status=EXCLUDED.status, supplier_id=EXCLUDED.supplier_id,
				    supplier_name=EXCLUDED.supplier_name, total_value=EXCLUDED.total_value, data=EXCLUDED.data`,
			o.ID, o.Numero, nullIfEmpty(o.Data), fmt.Sprint(o.Situacao.Valor), nullIfZero(o.Contato.ID), nullIfEmpty(o.Contato.Nome), o.Total, raw)
		if err != nil {
			return fmt.Errorf("save purchase order %d: %w", o.ID, err)
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM purchase_items WHERE order_id=$1`, o.ID); err != nil {
			return err
		}
		for _, it := range o.Itens {
			if it.Produto.ID == 0 {
				continue
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO purchase_items (order_id, product_id, product_code, quantity, unit_price)
				VALUES ($1, $2, $3, $4, $5)`,
				o.ID, it.Produto.ID, nullIfEmpty(it.Produto.Codigo), it.Quantidade, it.Valor)
			if err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// ProductHasEntry checks production first, then purchases, returning the most
// recent matching entry.
func (p *Postgres) ProductHasEntry(ctx context.Context, productID int64) (bool, model.OrderEntry, error) {
	var e model.OrderEntry
	err := p.db.QueryRowContext(ctx, `
		SELECT po.order_number, COALESCE(po.order_date, ''), pi.quantity, COALESCE(po.responsible, '')
		FROM production_items pi
		JOIN production_orders po ON pi.order_id = po.order_id
		WHERE pi.product_id = $1
		ORDER BY po.order_date DESC NULLS LAST LIMIT 1`, productID).
		Scan(&e.OrderNumber, &e.OrderDate, &e.Quantity, &e.Responsible)
	if err == nil {
		e.Source = "production"
		return true, e, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, model.OrderEntry{}, err
	}

	err = p.db.QueryRowContext(ctx, `
		SELECT po.order_number, COALESCE(po.order_date, ''), pi.quantity, COALESCE(po.supplier_name, '')
		FROM purchase_items pi
		JOIN purchase_orders po ON pi.order_id = po.order_id
		WHERE pi.product_id = $1
		ORDER BY po.order_date DESC NULLS LAST LIMIT 1`, productID).
		Scan(&e.OrderNumber, &e.OrderDate, &e.Quantity, &e.Responsible)
	if err == nil {
		e.Source = "purchase"
		return true, e, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, model.OrderEntry{}, nil
	}
	return false, model.OrderEntry{}, err
}

func (p *Postgres) LastSyncOrderDate(ctx context.Context, syncType string) (string, error) {
	var date sql.NullString
	err := p.db.QueryRowContext(ctx, `SELECT last_order_date FROM sync_control WHERE sync_type=$1`, syncType).Scan(&date)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return date.String, nil
}

func (p *Postgres) UpdateSyncControl(ctx context.Context, syncType, lastOrderDate string, orderCount int) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO sync_control (sync_type, last_sync_date, last_order_date, total_orders, updated_at)
		VALUES ($1, now(), $2, $3, now())
		ON CONFLICT (sync_type) DO UPDATE
			SET last_sync_date=now(), last_order_date=EXCLUDED.last_order_date,
			    total_orders=EXCLUDED.total_orders, updated_at=now()`,
		syncType, nullIfEmpty(lastOrderDate), orderCount)
	return err
}

func (p *Postgres) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM code_counters`).Scan(&s.Counters); err != nil {
		return s, err
	}
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM processed_events`).Scan(&s.Events); err != nil {
		return s, err
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT prefix, last_value, COALESCE(category_id, 0), COALESCE(category_name, ''), updated_at
		FROM code_counters ORDER BY updated_at DESC LIMIT 10`)
	if err != nil {
		return s, err
	}
	defer rows.Close()
	for rows.Next() {
		var c model.CodeCounter
		if err := rows.Scan(&c.Prefix, &c.LastValue, &c.CategoryID, &c.CategoryName, &c.UpdatedAt); err != nil {
			return s, err
		}
		s.RecentCounters = append(s.RecentCounters, c)
	}
	return s, rows.Err()
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullIfZero(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}

func nullIfEmptyBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
