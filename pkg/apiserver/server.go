// Package apiserver exposes the decision engine over HTTP: the decision
// endpoint itself, outcome reporting for the learning loop, operator
// endpoints for status and learning control, and Prometheus metrics.
package apiserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/capgate-project/capgate/pkg/decision"
	"github.com/capgate-project/capgate/pkg/observability/logging"
	"github.com/capgate-project/capgate/pkg/signals"
)

// Server wraps one engine instance behind HTTP.
type Server struct {
	engine *decision.Engine
	port   int
}

// NewServer creates a server for the engine.
func NewServer(engine *decision.Engine, port int) *Server {
	return &Server{engine: engine, port: port}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.setupRoutes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.engine.Start()
	defer s.engine.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logging.Infof("CapGate API server listening on port %d", s.port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/decision", s.handleDecision)
	mux.HandleFunc("POST /v1/outcome", s.handleOutcome)

	mux.HandleFunc("POST /v1/learning/retune", s.handleRetune)
	mux.HandleFunc("POST /v1/learning/rollback", s.handleRollback)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusResponse aggregates the health of every pipeline component.
type statusResponse struct {
	Breaker  any `json:"breaker"`
	Monitor  any `json:"monitor"`
	Learning any `json:"learning"`
	Cache    any `json:"cache"`

	Categories int  `json:"categories"`
	Emergency  bool `json:"emergency"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	br := s.engine.BreakerState()
	mon := s.engine.MonitorAggregates()
	writeJSON(w, http.StatusOK, statusResponse{
		Breaker:    br,
		Monitor:    mon,
		Learning:   s.engine.LearningStats(),
		Cache:      s.engine.CacheStats(),
		Categories: len(s.engine.Config().Categories),
		Emergency:  br.Phase == "OPEN" || mon.Degraded,
	})
}

// decisionRequest is the wire form of one evaluation request.
type decisionRequest struct {
	Query          string                `json:"query"`
	Environment    environmentRequest    `json:"environment,omitempty"`
	History        []historyEntryRequest `json:"history,omitempty"`
	Inexperienced  bool                  `json:"inexperienced,omitempty"`
	HighComplexity bool                  `json:"high_complexity,omitempty"`
}

type environmentRequest struct {
	DirtyWorktree     bool   `json:"dirty_worktree,omitempty"`
	MergeConflict     bool   `json:"merge_conflict,omitempty"`
	FailingTests      bool   `json:"failing_tests,omitempty"`
	HasTestDir        bool   `json:"has_test_dir,omitempty"`
	HasSecurityDir    bool   `json:"has_security_dir,omitempty"`
	HasInfraDir       bool   `json:"has_infra_dir,omitempty"`
	RecentErrorOutput string `json:"recent_error_output,omitempty"`
}

type historyEntryRequest struct {
	Query      string    `json:"query"`
	Categories []string  `json:"categories,omitempty"`
	At         time.Time `json:"at,omitempty"`
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	var body decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	req := &signals.Request{
		Query: body.Query,
		Environment: signals.EnvironmentSnapshot{
			DirtyWorktree:     body.Environment.DirtyWorktree,
			MergeConflict:     body.Environment.MergeConflict,
			FailingTests:      body.Environment.FailingTests,
			HasTestDir:        body.Environment.HasTestDir,
			HasSecurityDir:    body.Environment.HasSecurityDir,
			HasInfraDir:       body.Environment.HasInfraDir,
			RecentErrorOutput: body.Environment.RecentErrorOutput,
		},
		Inexperienced:  body.Inexperienced,
		HighComplexity: body.HighComplexity,
	}
	for _, h := range body.History {
		req.History = append(req.History, signals.HistoryEntry{
			Query:      h.Query,
			Categories: h.Categories,
			At:         h.At,
		})
	}

	writeJSON(w, http.StatusOK, s.engine.Decide(req))
}

// outcomeRequest reports which categories were actually used for an earlier
// decision.
type outcomeRequest struct {
	RequestID string   `json:"request_id"`
	Used      []string `json:"used"`
}

func (s *Server) handleOutcome(w http.ResponseWriter, r *http.Request) {
	var body outcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.RequestID == "" {
		writeError(w, http.StatusBadRequest, "request_id is required")
		return
	}
	s.engine.Observe(body.RequestID, body.Used)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

func (s *Server) handleRetune(w http.ResponseWriter, _ *http.Request) {
	s.engine.RetuneNow()
	writeJSON(w, http.StatusOK, s.engine.LearningStats())
}

func (s *Server) handleRollback(w http.ResponseWriter, _ *http.Request) {
	if !s.engine.RollbackLearning() {
		writeError(w, http.StatusConflict, "no previous snapshot to roll back to")
		return
	}
	writeJSON(w, http.StatusOK, s.engine.LearningStats())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
