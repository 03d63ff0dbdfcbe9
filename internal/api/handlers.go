package api

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"blingmon/internal/buildinfo"
	"blingmon/internal/metrics"
	"blingmon/internal/webhooks"
)

const maxWebhookBody = 1 << 20

// WebhookHandler is POST /webhook/bling. All validation and queueing lives
// in the ingestor; this handler only moves bytes and writes the verdict.
func (s *Server) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeProblem(w, http.StatusMethodNotAllowed, "method not allowed", "", r.URL.Path)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "unreadable body", err.Error(), r.URL.Path)
		return
	}
	status, resp := s.Ingestor.Handle(r.Context(), body, r.Header.Get(webhooks.SignatureHeader))
	metrics.QueueDepth.Set(float64(s.Ingestor.Depth()))
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "30")
	}
	writeJSON(w, status, resp)
}

// HealthHandler is GET /health: store reachability, queue depth and counter
// statistics.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, http.StatusInternalServerError, "store unreachable", err.Error(), r.URL.Path)
		return
	}
	stats, err := s.Store.Stats(ctx)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "stats unavailable", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"build":           buildinfo.Info(),
		"time":            time.Now().UTC().Format(time.RFC3339),
		"queueDepth":      s.Ingestor.Depth(),
		"counters":        stats.Counters,
		"processedEvents": stats.Events,
		"recentCounters":  stats.RecentCounters,
	})
}

// OAuthCallbackHandler is GET /oauth/callback: completes the authorization
// code flow and persists the token pair.
func (s *Server) OAuthCallbackHandler(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeProblem(w, http.StatusBadRequest, "missing code", "the code query parameter is required", r.URL.Path)
		return
	}
	redirectURI := r.URL.Query().Get("redirect_uri")
	if err := s.Auth.ExchangeCode(r.Context(), code, redirectURI); err != nil {
		writeProblem(w, http.StatusBadGateway, "token exchange failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "authorized"})
}

// AdminEventsHandler is GET /v1/admin/events: the most recent ledger rows.
func (s *Server) AdminEventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeProblem(w, http.StatusMethodNotAllowed, "method not allowed", "", r.URL.Path)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeProblem(w, http.StatusBadRequest, "invalid limit", "limit must be in 1..500", r.URL.Path)
			return
		}
		limit = n
	}
	events, err := s.Store.ListProcessedEvents(r.Context(), limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "ledger unavailable", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

// AdminSyncHandler is POST /v1/admin/sync: runs the order synchronizer.
// With full=true the watermark is ignored.
func (s *Server) AdminSyncHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeProblem(w, http.StatusMethodNotAllowed, "method not allowed", "", r.URL.Path)
		return
	}
	full := r.URL.Query().Get("full") == "true"
	results, err := s.Sync.SyncAll(r.Context(), full)
	if err != nil {
		writeProblem(w, http.StatusBadGateway, "sync failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
