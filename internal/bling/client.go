// Package bling is the HTTP client for the Bling v3 REST API with retry,
// rate limiting and automatic token refresh.
package bling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"blingmon/internal/metrics"
	"blingmon/internal/model"
)

// TokenSource supplies a valid bearer token and invalidates it when the
// remote rejects it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// Gate admits outbound calls under the provider's rate quotas.
type Gate interface {
	Wait(ctx context.Context) error
}

const (
	defaultRetryAfter = 60 * time.Second
	// maxAuthRetries bounds refresh-triggered retries per call. They do not
	// consume the attempt budget, but repeated 401s after a refresh mean the
	// credential is unrecoverable for this call.
	maxAuthRetries = 2
)

type Client struct {
	base       string
	tokens     TokenSource
	gate       Gate
	http       *http.Client
	maxRetries int

	// backoffUnit scales the 1<<attempt retry delays; tests shrink it.
	backoffUnit time.Duration
}

func NewClient(baseURL string, tokens TokenSource, gate Gate, maxRetries int, timeout time.Duration) *Client {
	return &Client{
		base:        strings.TrimRight(baseURL, "/"),
		tokens:      tokens,
		gate:        gate,
		http:        &http.Client{Timeout: timeout},
		maxRetries:  maxRetries,
		backoffUnit: time.Second,
	}
}

// do performs one logical API call: rate-limit admission, bearer header,
// bounded retries with exponential backoff on 5xx/transport faults,
// uncounted retries on 401 (after refresh) and 429 (after Retry-After).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	endpoint := c.base + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("bling: encode %s %s: %w", method, path, err)
		}
	}

	attempt := 0
	authRetries := 0
	for {
		waitStart := time.Now()
		if err := c.gate.Wait(ctx); err != nil {
			return nil, err
		}
		metrics.RateLimitWait.Observe(time.Since(waitStart).Seconds())

		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("bling: credential: %w", err)
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			metrics.APIRequests.WithLabelValues(method, "error").Inc()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			attempt++
			if attempt >= c.maxRetries {
				return nil, fmt.Errorf("bling: %s %s: %w: %w", method, path, ErrRetriesExhausted, err)
			}
			wait := c.backoff(attempt)
			log.Printf("bling: %s %s transport error: %v, retrying in %s (attempt %d/%d)", method, path, err, wait, attempt, c.maxRetries)
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		_ = resp.Body.Close()
		metrics.APIRequests.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			if authRetries >= maxAuthRetries {
				return nil, fmt.Errorf("bling: %s %s: %w", method, path, ErrUnauthorized)
			}
			authRetries++
			log.Printf("bling: %s %s got 401, refreshing token (refresh %d/%d)", method, path, authRetries, maxAuthRetries)
			c.tokens.Invalidate()
			continue

		case resp.StatusCode == http.StatusTooManyRequests:
			wait := retryAfter(resp)
			log.Printf("bling: %s %s rate limited by remote, waiting %s", method, path, wait)
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue

		case resp.StatusCode >= 500:
			attempt++
			if attempt >= c.maxRetries {
				return nil, fmt.Errorf("bling: %s %s: %w: %w", method, path, ErrRetriesExhausted,
					&APIError{Status: resp.StatusCode, Body: truncate(respBody)})
			}
			wait := c.backoff(attempt)
			log.Printf("bling: %s %s got %d, retrying in %s (attempt %d/%d)", method, path, resp.StatusCode, wait, attempt, c.maxRetries)
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue

		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return respBody, nil

		default:
			return nil, fmt.Errorf("bling: %s %s: %w", method, path, &APIError{Status: resp.StatusCode, Body: truncate(respBody)})
		}
	}
}

// backoff returns 1s, 2s, 4s... for attempt 1, 2, 3...
func (c *Client) backoff(attempt int) time.Duration {
	return c.backoffUnit << (attempt - 1)
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return time.Duration(n) * time.Second
		}
	}
	return defaultRetryAfter
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(b []byte) string {
	const max = 512
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

type envelope[T any] struct {
	Data T `json:"data"`
}

func decodeData[T any](body []byte, path string) (T, error) {
	var env envelope[T]
	if len(body) > 0 {
		if err := json.Unmarshal(body, &env); err != nil {
			return env.Data, fmt.Errorf("bling: decode %s response: %w", path, err)
		}
	}
	return env.Data, nil
}

func pageQuery(page, limit int) url.Values {
	return url.Values{
		"pagina": {strconv.Itoa(page)},
		"limite": {strconv.Itoa(limit)},
	}
}

// === Products ===

func (c *Client) GetProducts(ctx context.Context, page, limit int, filters url.Values) ([]model.Product, error) {
	q := pageQuery(page, limit)
	for k, vs := range filters {
		q[k] = vs
	}
	body, err := c.do(ctx, http.MethodGet, "/produtos", q, nil)
	if err != nil {
		return nil, err
	}
	return decodeData[[]model.Product](body, "/produtos")
}

func (c *Client) GetProduct(ctx context.Context, productID int64) (model.Product, error) {
	path := fmt.Sprintf("/produtos/%d", productID)
	body, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return model.Product{}, err
	}
	return decodeData[model.Product](body, path)
}

func (c *Client) UpdateProduct(ctx context.Context, productID int64, patch map[string]any) error {
	_, err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/produtos/%d", productID), nil, patch)
	return err
}

// UpdateProductSituation sets the product situation: "A" (active) or "I" (inactive).
func (c *Client) UpdateProductSituation(ctx context.Context, productID int64, situation string) error {
	_, err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/produtos/%d/situacoes", productID), nil,
		map[string]string{"situacao": situation})
	return err
}

// === Categories ===

func (c *Client) GetCategories(ctx context.Context, page, limit int) ([]model.Category, error) {
	body, err := c.do(ctx, http.MethodGet, "/categorias/produtos", pageQuery(page, limit), nil)
	if err != nil {
		return nil, err
	}
	return decodeData[[]model.Category](body, "/categorias/produtos")
}

// GetAllCategories pages through every category and returns them keyed by id.
func (c *Client) GetAllCategories(ctx context.Context) (map[int64]model.Category, error) {
	all := map[int64]model.Category{}
	for page := 1; ; page++ {
		cats, err := c.GetCategories(ctx, page, 100)
		if err != nil {
			return nil, err
		}
		if len(cats) == 0 {
			return all, nil
		}
		for _, cat := range cats {
			all[cat.ID] = cat
		}
	}
}

// === Stock ===

func (c *Client) GetStockMovements(ctx context.Context, productID int64, startDate, endDate string) ([]model.StockMovement, error) {
	q := url.Values{"idProduto": {strconv.FormatInt(productID, 10)}}
	if startDate != "" {
		q.Set("dataInicial", startDate)
	}
	if endDate != "" {
		q.Set("dataFinal", endDate)
	}
	body, err := c.do(ctx, http.MethodGet, "/estoques", q, nil)
	if err != nil {
		return nil, err
	}
	return decodeData[[]model.StockMovement](body, "/estoques")
}

// === Orders ===

func (c *Client) GetSalesOrders(ctx context.Context, page, limit int, filters url.Values) ([]json.RawMessage, error) {
	q := pageQuery(page, limit)
	for k, vs := range filters {
		q[k] = vs
	}
	body, err := c.do(ctx, http.MethodGet, "/pedidos/vendas", q, nil)
	if err != nil {
		return nil, err
	}
	return decodeData[[]json.RawMessage](body, "/pedidos/vendas")
}

// GetProductionOrders lists production orders in the date range. The listing
// omits items; fetch them with GetProductionOrderDetail.
func (c *Client) GetProductionOrders(ctx context.Context, page, limit int, startDate, endDate string) ([]model.ProductionOrder, error) {
	q := pageQuery(page, limit)
	q.Set("dataInicial", startDate)
	q.Set("dataFinal", endDate)
	q.Set("criterio", "3")
	body, err := c.do(ctx, http.MethodGet, "/ordens-producao", q, nil)
	if err != nil {
		return nil, err
	}
	return decodeData[[]model.ProductionOrder](body, "/ordens-producao")
}

func (c *Client) GetProductionOrderDetail(ctx context.Context, orderID int64) (model.ProductionOrder, error) {
	path := fmt.Sprintf("/ordens-producao/%d", orderID)
	body, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return model.ProductionOrder{}, err
	}
	return decodeData[model.ProductionOrder](body, path)
}

// GetPurchaseOrders lists purchase orders; listing responses include items.
func (c *Client) GetPurchaseOrders(ctx context.Context, page, limit int, startDate, endDate string) ([]model.PurchaseOrder, error) {
	q := pageQuery(page, limit)
	q.Set("dataInicial", startDate)
	q.Set("dataFinal", endDate)
	q.Set("criterio", "3")
	body, err := c.do(ctx, http.MethodGet, "/pedidos/compras", q, nil)
	if err != nil {
		return nil, err
	}
	return decodeData[[]model.PurchaseOrder](body, "/pedidos/compras")
}
