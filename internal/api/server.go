// Package api exposes the HTTP surface: webhook intake, health, metrics,
// admin endpoints and the processed-event websocket stream.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"blingmon/internal/auth"
	"blingmon/internal/bling"
	"blingmon/internal/config"
	"blingmon/internal/metrics"
	"blingmon/internal/ratelimit"
	"blingmon/internal/rules"
	"blingmon/internal/store"
	syncpkg "blingmon/internal/sync"
	"blingmon/internal/webhooks"
)

// Server holds the wired components behind the HTTP handlers.
type Server struct {
	Cfg       config.Config
	Store     store.Store
	Auth      *auth.Provider
	Client    *bling.Client
	Ingestor  *webhooks.Ingestor
	Processor *webhooks.Processor
	Sync      *syncpkg.Synchronizer
	Broker    EventBroker

	intake *rate.Limiter
}

// NewServer wires the full pipeline from configuration: store, OAuth token
// provider, rate-limited API client, webhook ingestor and processor with the
// business handlers registered, order synchronizer and event broker.
func NewServer(cfg config.Config) (*Server, error) {
	var st store.Store
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Printf("api: no database configured, using in-memory store")
		st = store.NewMemory()
	} else {
		pg, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		if err := pg.Migrate(context.Background()); err != nil {
			return nil, fmt.Errorf("migrate store: %w", err)
		}
		st = pg
	}

	provider := auth.NewProvider(cfg.ClientID, cfg.ClientSecret, cfg.TokenURL, cfg.TokenFile)
	gate := ratelimit.New(cfg.RequestsPerSecond, cfg.RequestsPerDay)
	client := bling.NewClient(cfg.APIBaseURL, provider, gate, cfg.MaxRetries, cfg.RequestTimeout)

	ingestor := webhooks.NewIngestor(cfg.WebhookSecret, st, cfg.QueueCapacity)
	processor := webhooks.NewProcessor(st, ingestor)
	rules.NewHandlers(client, st).Register(processor)

	var broker EventBroker
	if cfg.RedisURL != "" {
		rb, err := NewRedisBroker(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis broker: %w", err)
		}
		broker = rb
	} else {
		broker = NewBroker()
	}
	processor.OnProcessed = broker.Publish

	metrics.RegisterDefault()

	return &Server{
		Cfg:       cfg,
		Store:     st,
		Auth:      provider,
		Client:    client,
		Ingestor:  ingestor,
		Processor: processor,
		Sync:      syncpkg.New(client, st, cfg.SyncLookbackDays),
		Broker:    broker,
		intake:    rate.NewLimiter(rate.Limit(cfg.IntakeRPS), cfg.IntakeBurst),
	}, nil
}

// Routes builds the ServeMux with all endpoints registered.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook/bling", s.withIntakeLimit(s.WebhookHandler))
	mux.HandleFunc("/health", s.HealthHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/oauth/callback", s.OAuthCallbackHandler)
	mux.HandleFunc("/v1/admin/events", s.AdminEventsHandler)
	mux.HandleFunc("/v1/admin/sync", s.AdminSyncHandler)
	mux.HandleFunc("/v1/events/ws", s.EventsWSHandler)
	return mux
}

// withIntakeLimit sheds spikes at the webhook endpoint before any body read.
func (s *Server) withIntakeLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.intake.Allow() {
			writeProblem(w, http.StatusTooManyRequests, "too many requests", "intake limit exceeded", r.URL.Path)
			return
		}
		next(w, r)
	}
}
