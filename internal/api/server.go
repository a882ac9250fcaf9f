// Package api exposes the service over HTTP: webhook ingestion, event
// queries and the security rule lifecycle. Handlers are thin plumbing
// over the processors, the transformation service and the store.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"lily/internal/inbound"
	"lily/internal/logger"
	"lily/internal/metrics"
	"lily/internal/rule"
	"lily/internal/stats"
	"lily/internal/storage"
)

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

// Server routes HTTP requests to the ingestion and rule pipelines
type Server struct {
	store   storage.MetadataStore
	service *rule.Service
	inbound *inbound.Processor
	timeout time.Duration
	logger  *logger.Logger
	stats   *stats.StatsCollector
	metrics *metrics.Metrics
	router  chi.Router
}

// NewServer creates the API server and builds its route table
func NewServer(store storage.MetadataStore, service *rule.Service, inboundProc *inbound.Processor,
	requestTimeout time.Duration, log *logger.Logger, statsCollector *stats.StatsCollector,
	metricsService *metrics.Metrics) *Server {
	s := &Server{
		store:   store,
		service: service,
		inbound: inboundProc,
		timeout: requestTimeout,
		logger:  log,
		stats:   statsCollector,
		metrics: metricsService,
	}
	s.router = s.routes()
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))

	r.Post("/webhooks/monte-carlo", s.handleMonteCarloWebhook)

	r.Get("/events", s.handleQueryEvents)
	r.Get("/events/{event_id}", s.handleGetEvent)

	r.Route("/security/rules", func(r chi.Router) {
		r.Post("/", s.handleCreateRule)
		r.Get("/", s.handleQueryRules)
		r.Put("/{rule_id}", s.handleUpdateRule)
		r.Delete("/{rule_id}", s.handleDeleteRule)
	})

	r.Get("/healthz", s.handleHealthz)

	return r
}

// requestLogger emits one structured log line per request through the
// service logger
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"requestID", middleware.GetReqID(r.Context()))
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, map[string]string{"detail": detail})
}

// safeMetricsUpdate safely updates metrics if they are enabled
func (s *Server) safeMetricsUpdate(fn func(*metrics.Metrics)) {
	if s.metrics != nil {
		fn(s.metrics)
	}
}
