package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"spread_go/internal/domain"
	"spread_go/internal/engine"
	"spread_go/internal/event"
	"spread_go/internal/infra"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

const defaultSpreadLimit = 10

// SpreadSource exposes the scanner's latest ranking.
type SpreadSource interface {
	Latest() ([]domain.SpreadRecord, uint64)
	State() engine.State
}

// SignalSource exposes recently delivered signal batches.
type SignalSource interface {
	Recent(limit int) []event.Batch
}

// SignalStore serves persisted signal history.
type SignalStore interface {
	RecentSignals(ctx context.Context, limit int) ([]domain.SignalRecord, error)
	SignalsForInstrument(ctx context.Context, instrument string, limit int) ([]domain.SignalRecord, error)
}

// Queue reports the state of the signal channel.
type Queue interface {
	Len() int
	Cap() int
	Policy() event.OverflowPolicy
	Dropped() uint64
}

// Server is the read-only HTTP status API.
type Server struct {
	config  infra.APIConfig
	spreads SpreadSource
	signals SignalSource
	store   SignalStore
	queue   Queue
	metrics *infra.Metrics
	promH   http.Handler
	started time.Time
	server  *http.Server
	logger  *slog.Logger
}

// NewServer wires the API over its data sources. promHandler may be nil.
func NewServer(cfg infra.APIConfig, spreads SpreadSource, signals SignalSource, metrics *infra.Metrics, promHandler http.Handler) *Server {
	return &Server{
		config:  cfg,
		spreads: spreads,
		signals: signals,
		metrics: metrics,
		promH:   promHandler,
		started: time.Now(),
		logger:  slog.Default().With("module", "api"),
	}
}

// WithStore enables ?source=db on the signals endpoint.
func (s *Server) WithStore(store SignalStore) *Server {
	s.store = store
	return s
}

// WithQueue adds signal channel stats to the health response.
func (s *Server) WithQueue(q Queue) *Server {
	s.queue = q
	return s
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	c := cors.New(cors.Options{
		AllowedOrigins: s.config.CORSOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         3600,
	})

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", s.getHealth).Methods("GET")
	api.HandleFunc("/spreads", s.getSpreads).Methods("GET")
	api.HandleFunc("/signals", s.getSignals).Methods("GET")
	if s.promH != nil {
		router.Handle("/metrics", s.promH).Methods("GET")
	}

	return c.Handler(router)
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.config.BindAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server starting", slog.String("addr", s.config.BindAddress))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	_, cycle := s.spreads.Latest()
	response := struct {
		Status    string                `json:"status"`
		State     string                `json:"state"`
		Cycle     uint64                `json:"cycle"`
		Uptime    string                `json:"uptime"`
		Timestamp time.Time             `json:"timestamp"`
		Metrics   infra.MetricsSnapshot `json:"metrics"`
		Queue     *queueStats           `json:"queue,omitempty"`
	}{
		Status:    "healthy",
		State:     s.spreads.State().String(),
		Cycle:     cycle,
		Uptime:    time.Since(s.started).Truncate(time.Second).String(),
		Timestamp: time.Now(),
	}
	if s.metrics != nil {
		response.Metrics = s.metrics.Snapshot()
	}
	if s.queue != nil {
		response.Queue = &queueStats{
			Len:     s.queue.Len(),
			Cap:     s.queue.Cap(),
			Policy:  string(s.queue.Policy()),
			Dropped: s.queue.Dropped(),
		}
	}
	writeJSON(w, response)
}

func (s *Server) getSpreads(w http.ResponseWriter, r *http.Request) {
	records, cycle := s.spreads.Latest()
	limit := parseLimit(r, defaultSpreadLimit)
	if limit < len(records) {
		records = records[:limit]
	}
	if records == nil {
		records = []domain.SpreadRecord{}
	}

	response := struct {
		Cycle     uint64                `json:"cycle"`
		Spreads   []domain.SpreadRecord `json:"spreads"`
		Count     int                   `json:"count"`
		Timestamp time.Time             `json:"timestamp"`
	}{
		Cycle:     cycle,
		Spreads:   records,
		Count:     len(records),
		Timestamp: time.Now(),
	}
	writeJSON(w, response)
}

type queueStats struct {
	Len     int    `json:"len"`
	Cap     int    `json:"cap"`
	Policy  string `json:"policy"`
	Dropped uint64 `json:"dropped"`
}

func (s *Server) getSignals(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("source") == "db" {
		s.getStoredSignals(w, r)
		return
	}

	batches := s.signals.Recent(parseLimit(r, 0))
	if batches == nil {
		batches = []event.Batch{}
	}

	response := struct {
		Signals   []event.Batch `json:"signals"`
		Count     int           `json:"count"`
		Timestamp time.Time     `json:"timestamp"`
	}{
		Signals:   batches,
		Count:     len(batches),
		Timestamp: time.Now(),
	}
	writeJSON(w, response)
}

func (s *Server) getStoredSignals(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "signal storage disabled", http.StatusNotFound)
		return
	}

	limit := parseLimit(r, 0)
	var (
		records []domain.SignalRecord
		err     error
	)
	if instrument := r.URL.Query().Get("instrument"); instrument != "" {
		records, err = s.store.SignalsForInstrument(r.Context(), instrument, limit)
	} else {
		records, err = s.store.RecentSignals(r.Context(), limit)
	}
	if err != nil {
		s.logger.Error("Failed to read stored signals", slog.Any("error", err))
		http.Error(w, "failed to read signals", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []domain.SignalRecord{}
	}

	response := struct {
		Records   []domain.SignalRecord `json:"records"`
		Count     int                   `json:"count"`
		Timestamp time.Time             `json:"timestamp"`
	}{
		Records:   records,
		Count:     len(records),
		Timestamp: time.Now(),
	}
	writeJSON(w, response)
}

func parseLimit(r *http.Request, def int) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 {
			return l
		}
	}
	return def
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
