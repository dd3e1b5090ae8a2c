// Package server exposes the runtime over HTTP: task submission, skill and
// audit inspection, pending-confirmation management, and a websocket event
// stream.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/wardlabs/wardclaw/internal/agent"
	"github.com/wardlabs/wardclaw/internal/approval"
	"github.com/wardlabs/wardclaw/internal/audit"
	"github.com/wardlabs/wardclaw/internal/events"
	"github.com/wardlabs/wardclaw/internal/skills"
	"github.com/wardlabs/wardclaw/internal/task"
)

// Server is the HTTP API server.
type Server struct {
	addr       string
	orch       *agent.Orchestrator
	tasks      *task.Store
	registry   *skills.Registry
	approvals  *approval.Store
	bus        *events.Bus
	auditPath  string
	secret     []byte
	logger     *slog.Logger
	httpServer *http.Server
}

// Deps collects the server's collaborators.
type Deps struct {
	Addr      string
	Orch      *agent.Orchestrator
	Tasks     *task.Store
	Registry  *skills.Registry
	Approvals *approval.Store
	Bus       *events.Bus
	AuditPath string
	// Secret enables bearer-token auth on /v1/* when non-empty.
	Secret string
	Logger  *slog.Logger
}

// New creates the server.
func New(d Deps) *Server {
	var secret []byte
	if d.Secret != "" {
		secret = []byte(d.Secret)
	}
	return &Server{
		addr:      d.Addr,
		orch:      d.Orch,
		tasks:     d.Tasks,
		registry:  d.Registry,
		approvals: d.Approvals,
		bus:       d.Bus,
		auditPath: d.AuditPath,
		secret:    secret,
		logger:    d.Logger.With("component", "server"),
	}
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)

	api := http.NewServeMux()
	api.HandleFunc("POST /v1/tasks", s.handleCreateTask)
	api.HandleFunc("GET /v1/tasks/{id}", s.handleGetTask)
	api.HandleFunc("GET /v1/skills", s.handleSkills)
	api.HandleFunc("GET /v1/audit", s.handleAudit)
	api.HandleFunc("GET /v1/pending", s.handlePending)
	api.HandleFunc("POST /v1/pending/{key}/approve", s.handleApprove)
	api.HandleFunc("POST /v1/pending/{key}/deny", s.handleDeny)
	api.HandleFunc("GET /v1/events", s.handleEvents)

	mux.Handle("/v1/", s.authMiddleware(api))
	return s.loggingMiddleware(mux)
}

// Start runs the server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createTaskRequest struct {
	Text    string `json:"text"`
	Profile string `json:"profile"`
}

type createTaskResponse struct {
	TaskID string `json:"task_id"`
	Answer string `json:"answer"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	res, err := s.orch.RunTask(r.Context(), req.Text, req.Profile)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, createTaskResponse{TaskID: res.TaskID, Answer: res.Answer})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t, ok := s.tasks.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleSkills(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Manifests())
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	n := 50
	if q := r.URL.Query().Get("n"); q != "" {
		if _, err := fmt.Sscanf(q, "%d", &n); err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
	}
	entries, err := audit.Tail(s.auditPath, n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	reqs, err := s.approvals.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if reqs == nil {
		reqs = []approval.Request{}
	}
	writeJSON(w, http.StatusOK, reqs)
}

type approveRequest struct {
	// For is an optional approval window like "5m".
	For string `json:"for"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	var body approveRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
			return
		}
	}
	var window time.Duration
	if body.For != "" {
		d, err := time.ParseDuration(body.For)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid duration: %v", err))
			return
		}
		window = d
	}

	if err := s.approvals.Approve(key, window); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "status": "approved"})
}

func (s *Server) handleDeny(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := s.approvals.Deny(key); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "status": "denied"})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
