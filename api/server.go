// Package api is the HTTP submission/status front: a thin surface over
// the state store with validation, storm protection, and a websocket
// cluster-state stream.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/pmehra7/gridflow/logging"
	"github.com/pmehra7/gridflow/observability"
	"github.com/pmehra7/gridflow/queue"
	"github.com/pmehra7/gridflow/store"
)

// Config holds the API server tunables.
type Config struct {
	ListenAddr string
	// DefaultDeadlineSec fills deadline_sec when a submission omits it.
	DefaultDeadlineSec int
	// SubmitRate/SubmitBurst bound the accepted submission rate.
	SubmitRate  float64
	SubmitBurst int
	// HeartbeatStale is used by the /ws snapshot to classify workers.
	HeartbeatStale time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:         ":8000",
		DefaultDeadlineSec: 10,
		SubmitRate:         100,
		SubmitBurst:        200,
		HeartbeatStale:     20 * time.Second,
	}
}

// Server carries the handlers and their dependencies.
type Server struct {
	store   store.Store
	cfg     Config
	limiter *rate.Limiter
	hub     *Hub
	logger  zerolog.Logger
}

// NewServer creates the API server over the given store.
func NewServer(st store.Store, cfg Config) *Server {
	s := &Server{
		store:   st,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.SubmitRate), cfg.SubmitBurst),
		logger:  logging.WithComponent("api"),
	}
	s.hub = NewHub(s)
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /submit", s.handleSubmit)
	mux.HandleFunc("GET /status/{job_id}", s.handleStatus)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /cluster", s.handleCluster)
	mux.HandleFunc("GET /ws", s.hub.ServeWS)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.Handler(),
	}

	go s.hub.Run(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.cfg.ListenAddr).Msg("API server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// SubmitRequest is the submission payload. deadline_sec is optional and
// defaulted server-side.
type SubmitRequest struct {
	Workload    string `json:"workload"`
	Size        int    `json:"size"`
	Iterations  int    `json:"iterations"`
	Priority    string `json:"priority"`
	DeadlineSec *int   `json:"deadline_sec"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		observability.APIRateLimited.Inc()
		// Jittered Retry-After so a storm does not re-synchronize.
		w.Header().Set("Retry-After", fmt.Sprintf("%d", 1+rand.Intn(2)))
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"detail": "rate limited"})
		return
	}

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid JSON body"})
		return
	}

	priority := queue.Priority(req.Priority)
	if req.Priority == "" {
		priority = queue.PriorityMed
	}
	deadline := s.cfg.DefaultDeadlineSec
	if req.DeadlineSec != nil {
		deadline = *req.DeadlineSec
	}
	job := &queue.Job{
		Workload:    queue.Workload(req.Workload),
		Size:        req.Size,
		Iterations:  req.Iterations,
		Priority:    priority,
		DeadlineSec: deadline,
	}
	if err := job.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}

	jobID, err := queue.Enqueue(r.Context(), s.store, job)
	if err != nil {
		s.logger.Error().Err(err).Msg("Enqueue failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "enqueue failed"})
		return
	}
	observability.JobsSubmitted.Inc()
	s.refreshQueueGauges(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	status, ok, err := queue.GetStatus(r.Context(), s.store, jobID)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("Status read failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "status read failed"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "not found"})
		return
	}
	s.refreshQueueGauges(r.Context())
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleCluster(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.hub.collect(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Cluster snapshot failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "snapshot failed"})
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) refreshQueueGauges(ctx context.Context) {
	high, med, low, err := queue.Lengths(ctx, s.store)
	if err != nil {
		return
	}
	observability.QueueHighLen.Set(float64(high))
	observability.QueueMedLen.Set(float64(med))
	observability.QueueLowLen.Set(float64(low))
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
