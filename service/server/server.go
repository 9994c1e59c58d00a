package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/vialytics/service/analytics"
	"github.com/brojonat/vialytics/service/chat"
	"github.com/brojonat/vialytics/service/db"
	"github.com/brojonat/vialytics/service/helius"
	"github.com/brojonat/vialytics/service/metrics"
	"github.com/brojonat/vialytics/service/prices"
	"github.com/brojonat/vialytics/service/temporal"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// Store is the subset of db.Store the API reads and writes.
type Store interface {
	analytics.RecordSource
	GetAnalytics(ctx context.Context, wallet string) (*db.CachedAnalytics, error)
	SaveAnalytics(ctx context.Context, wallet string, data []byte) error
	CreateJob(ctx context.Context, id, wallet string) (*db.Job, error)
	UpdateJob(ctx context.Context, params db.UpdateJobParams) (*db.Job, error)
	GetJob(ctx context.Context, id string) (*db.Job, error)
}

// Enricher fetches third-party wallet enrichment.
type Enricher interface {
	Enrichment(ctx context.Context, address string, useCache bool) (*helius.Enrichment, error)
}

// Chatter answers chat messages about a wallet.
type Chatter interface {
	Ask(ctx context.Context, wallet, message string) (*chat.Response, error)
}

// Labeler names addresses.
type Labeler interface {
	Label(addr string) string
	IsKnown(addr string) bool
}

// Server represents the HTTP API.
type Server struct {
	addr     string
	store    Store
	analyzer *analytics.Analyzer
	jobs     temporal.JobStarter
	maxPages int
	events   EventSource
	enricher Enricher
	chat     Chatter
	prices   prices.Oracle
	labels   Labeler
	origins  []string
	metrics  *metrics.Metrics
	logger   *slog.Logger
	server   *http.Server
}

// New creates a server backed by store and analyzer. All other collaborators
// are attached with the With* methods; routes whose collaborator is missing
// are not registered. m may be nil.
func New(addr string, store Store, analyzer *analytics.Analyzer, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:     addr,
		store:    store,
		analyzer: analyzer,
		origins:  []string{"*"},
		metrics:  m,
		logger:   logger,
	}
}

// WithJobs enables index job submission; maxPages caps history pages per job.
func (s *Server) WithJobs(jobs temporal.JobStarter, maxPages int) *Server {
	s.jobs = jobs
	s.maxPages = maxPages
	return s
}

// WithEvents enables the job event stream.
func (s *Server) WithEvents(events EventSource) *Server {
	s.events = events
	return s
}

// WithEnrichment enables the enrichment route.
func (s *Server) WithEnrichment(e Enricher) *Server {
	s.enricher = e
	return s
}

// WithChat enables the chat route.
func (s *Server) WithChat(c Chatter) *Server {
	s.chat = c
	return s
}

// WithPrices enables the price lookup route.
func (s *Server) WithPrices(o prices.Oracle) *Server {
	s.prices = o
	return s
}

// WithLabels enables the label lookup route.
func (s *Server) WithLabels(l Labeler) *Server {
	s.labels = l
	return s
}

// WithAllowedOrigins restricts CORS to origins.
func (s *Server) WithAllowedOrigins(origins []string) *Server {
	if len(origins) > 0 {
		s.origins = origins
	}
	return s
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern, name string, h http.Handler) {
		mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, name)(h))
	}

	route("GET /api/v1/analytics/{address}", "analytics", handleGetAnalytics(s.store, s.analyzer, s.logger))
	route("GET /api/v1/jobs/{id}", "get_job", handleGetJob(s.store, s.logger))

	if s.jobs != nil {
		route("POST /api/v1/analytics/{address}/jobs", "start_job", handleStartJob(s.store, s.jobs, s.maxPages, s.logger))
	} else {
		s.logger.Warn("job starter not configured, indexing endpoint disabled")
	}

	if s.events != nil {
		route("GET /api/v1/stream/jobs/{address}", "stream_jobs", handleStreamJobs(s.events, s.metrics, s.logger))
	} else {
		s.logger.Warn("event source not configured, streaming endpoint disabled")
	}

	if s.enricher != nil {
		route("GET /api/v1/enrichment/{address}", "enrichment", handleEnrichment(s.enricher, s.logger))
	}
	if s.chat != nil {
		route("POST /api/v1/chat", "chat", handleChat(s.chat, s.logger))
	}
	if s.prices != nil {
		route("GET /api/v1/prices/{mint}", "price", handleGetPrice(s.prices, s.logger))
	}
	if s.labels != nil {
		route("GET /api/v1/labels/{address}", "label", handleGetLabel(s.labels))
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         3600,
	})
	return c.Handler(mux)
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // SSE streams clear their own deadline
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if s.events != nil {
		s.events.Close()
	}
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
