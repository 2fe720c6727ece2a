// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes workflow runs over HTTP: background runs with
// server-sent event streams that replay on reconnect, a request-bound
// single-query stream, snapshots, health and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/litflow/internal/ai"
	"github.com/pdiddy/litflow/internal/progress"
	"github.com/pdiddy/litflow/internal/workflow"
	"github.com/pdiddy/litflow/pkg/types"
)

const (
	maxBodyBytes      = 1 << 20
	heartbeatInterval = 15 * time.Second
)

// Runner executes one workflow run. *workflow.Coordinator satisfies it.
type Runner interface {
	Run(ctx context.Context, req workflow.Request, bus *progress.Bus) (*types.WorkflowResult, error)
}

// Ledger records run outcomes. *history.Store satisfies it.
type Ledger interface {
	Begin(ctx context.Context, runID string, mode types.Mode, input string, config any) error
	FinishResult(ctx context.Context, runID string, result *types.WorkflowResult, runErr error) error
}

// Mirror copies a run's envelopes elsewhere. *broker.Mirror satisfies it.
type Mirror interface {
	Follow(ctx context.Context, runID string, bus *progress.Bus)
}

// QueryGenerator previews the query a run would search with.
// query.Generator satisfies it.
type QueryGenerator interface {
	Generate(ctx context.Context, intent, source string) (string, error)
}

// ModelLister enumerates the AI backend's models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Server is the HTTP surface.
type Server struct {
	ctx     context.Context
	runner  Runner
	runs    *registry
	ledger  Ledger
	mirror  Mirror
	metrics http.Handler
	queries QueryGenerator
	source  string
	models  ModelLister
	config  any
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLedger records every run in l.
func WithLedger(l Ledger) Option { return func(s *Server) { s.ledger = l } }

// WithMirror mirrors every run through m.
func WithMirror(m Mirror) Option { return func(s *Server) { s.mirror = m } }

// WithMetrics serves h at /metrics.
func WithMetrics(h http.Handler) Option { return func(s *Server) { s.metrics = h } }

// WithQueries serves query previews from g. source is the target used
// when a request names none.
func WithQueries(g QueryGenerator, source string) Option {
	return func(s *Server) { s.queries, s.source = g, source }
}

// WithModels serves the model list from m.
func WithModels(m ModelLister) Option { return func(s *Server) { s.models = m } }

// WithConfigSnapshot stores cfg with each ledger entry.
func WithConfigSnapshot(cfg any) Option { return func(s *Server) { s.config = cfg } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.logger = l } }

// New returns a server. Background runs use ctx, so cancelling it is the
// only way to abort them; client disconnects never do.
func New(ctx context.Context, runner Runner, retention time.Duration, opts ...Option) *Server {
	s := &Server{
		ctx:    ctx,
		runner: runner,
		runs:   newRegistry(retention),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/workflows", s.handleCreate)
	mux.HandleFunc("GET /api/workflows/{id}", s.handleGet)
	mux.HandleFunc("GET /api/workflows/{id}/events", s.handleEvents)
	mux.HandleFunc("POST /api/search/stream", s.handleSearchStream)
	mux.HandleFunc("POST /api/queries", s.handleQuery)
	mux.HandleFunc("GET /api/models", s.handleModels)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

// ListenAndServe serves addr until ctx is done, then shuts down and waits
// for background runs to finish.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	s.Wait()
	return nil
}

// Wait blocks until every run started by the server has finished.
func (s *Server) Wait() { s.wg.Wait() }

// errDuplicateRun is returned by start when the requested run id is taken.
var errDuplicateRun = errors.New("run id already exists")

// start registers and launches a run. Publication stops when runCtx is
// done; the run itself always completes.
func (s *Server) start(runCtx context.Context, req workflow.Request) (*run, error) {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	bus := progress.NewBus()
	entry, ok := s.runs.add(req.RunID, req, bus)
	if !ok {
		return nil, errDuplicateRun
	}

	if s.ledger != nil {
		input := req.Text
		if input == "" {
			input = req.Query
		}
		if err := s.ledger.Begin(s.ctx, req.RunID, modeOf(req), input, s.config); err != nil {
			s.logger.Warn("history begin failed", "run", req.RunID, "error", err)
		}
	}
	if s.mirror != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.mirror.Follow(s.ctx, req.RunID, bus)
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		result, err := s.runner.Run(runCtx, req, bus)
		if err != nil {
			s.logger.Warn("run failed", "run", req.RunID, "error", err)
		}
		// Runners that exit without a terminal envelope must not leave
		// subscribers hanging.
		bus.Close()
		s.runs.finish(req.RunID)
		if s.ledger != nil {
			if err := s.ledger.FinishResult(context.WithoutCancel(s.ctx), req.RunID, result, err); err != nil {
				s.logger.Warn("history finish failed", "run", req.RunID, "error", err)
			}
		}
	}()
	return entry, nil
}

type createResponse struct {
	RunID string `json:"run_id"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	if req.Mode == "" {
		req.Mode = types.ModeMulti
		if strings.TrimSpace(req.Query) != "" {
			req.Mode = types.ModeSingle
		}
	}
	if req.Mode != types.ModeMulti && req.Mode != types.ModeSingle {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown mode %q", req.Mode))
		return
	}
	entry, err := s.start(s.ctx, req)
	if err != nil {
		s.writeError(w, http.StatusConflict, err.Error()+": "+req.RunID)
		return
	}
	s.writeJSON(w, http.StatusAccepted, createResponse{RunID: entry.id})
}

type snapshotResponse struct {
	RunID string `json:"run_id"`
	progress.Snapshot
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.runs.get(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	s.writeJSON(w, http.StatusOK, snapshotResponse{RunID: entry.id, Snapshot: entry.bus.Latest()})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.runs.get(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	s.stream(w, r, entry.bus.Subscribe())
}

// handleSearchStream runs a single query bound to the request and streams
// it directly. A disconnect stops publication; the run still completes and
// is recorded as aborted.
func (s *Server) handleSearchStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	req.Mode = types.ModeSingle
	entry, err := s.start(r.Context(), req)
	if err != nil {
		s.writeError(w, http.StatusConflict, err.Error()+": "+req.RunID)
		return
	}
	s.stream(w, r, entry.bus.Subscribe())
}

type queryRequest struct {
	Intent string `json:"intent"`
	Source string `json:"source,omitempty"`
}

type queryResponse struct {
	Query  string `json:"query"`
	Source string `json:"source"`
}

// handleQuery returns the query generated for an intent without running it.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if s.queries == nil {
		s.writeError(w, http.StatusServiceUnavailable, "query generation not configured")
		return
	}
	var req queryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.Intent = strings.TrimSpace(req.Intent)
	if req.Intent == "" {
		s.writeError(w, http.StatusBadRequest, "intent is required")
		return
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = s.source
	}
	q, err := s.queries.Generate(r.Context(), req.Intent, source)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "generating query: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, queryResponse{Query: q, Source: source})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if s.models == nil {
		s.writeError(w, http.StatusServiceUnavailable, "model listing not configured")
		return
	}
	models, err := s.models.ListModels(r.Context())
	switch {
	case errors.Is(err, ai.ErrNoBackend), errors.Is(err, ai.ErrListUnsupported):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		s.writeError(w, http.StatusBadGateway, "listing models: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"models": models})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "runs": s.runs.len()})
}

func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (workflow.Request, bool) {
	var req workflow.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return req, false
	}
	if strings.TrimSpace(req.Text) == "" && strings.TrimSpace(req.Query) == "" {
		s.writeError(w, http.StatusBadRequest, "text or query is required")
		return req, false
	}
	return req, true
}

// stream writes sub as server-sent events until the run ends or the client
// goes away. Only this subscription is closed on disconnect.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, sub *progress.Subscription) {
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case env, ok := <-sub.C():
			if !ok {
				return
			}
			if err := writeEvent(w, flusher, env); err != nil {
				s.logger.Debug("client disconnected", "error", err)
				return
			}
			if env.Terminal() {
				return
			}
		}
	}
}

// writeEvent writes one SSE frame. The data line carries the whole
// envelope so clients see seq and type alongside the payload.
func writeEvent(w http.ResponseWriter, flusher http.Flusher, env progress.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", env.Seq, env.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	flusher.Flush()
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to write JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func modeOf(req workflow.Request) types.Mode {
	if req.Mode == "" {
		return types.ModeSingle
	}
	return req.Mode
}
