// Package server provides the HTTP API for recommendations and jobs.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dishscout/dishscout/engine"
	"github.com/dishscout/dishscout/recommend"
	"github.com/dishscout/dishscout/retry"
	"github.com/dishscout/dishscout/state"
	"github.com/dishscout/dishscout/worker"
)

// Server provides the HTTP API
type Server struct {
	engine      *engine.Engine
	recommender worker.Recommender
	logger      *slog.Logger
	config      Config
	httpServer  *http.Server
}

// Config holds server configuration
type Config struct {
	Addr                string
	Engine              *engine.Engine
	Recommender         worker.Recommender
	Metrics             http.Handler
	Logger              *slog.Logger
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	RequestTimeout      time.Duration
	MaxRequestBodyBytes int64
}

// New creates a new API server
func New(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("engine is required")
	}
	if cfg.Recommender == nil {
		return nil, errors.New("recommender is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	// Synchronous recommendations can spend the whole request timeout on
	// retries.
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = cfg.RequestTimeout + 5*time.Second
	}
	if cfg.MaxRequestBodyBytes == 0 {
		cfg.MaxRequestBodyBytes = 64 << 10
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		engine:      cfg.Engine,
		recommender: cfg.Recommender,
		logger:      cfg.Logger,
		config:      cfg,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/recommendations", s.handleRecommendations)
	mux.HandleFunc("/jobs", s.handleJobs)
	mux.HandleFunc("/jobs/", s.handleJobByID)
	mux.HandleFunc("/health", s.handleHealth)
	if cfg.Metrics != nil {
		mux.Handle("/metrics", cfg.Metrics)
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

// Handler wraps h with recovery, request logging and the request timeout.
func (s *Server) Handler(h http.Handler) http.Handler {
	return chain(
		recovery(s.logger),
		requestLogging(s.logger),
	)(http.TimeoutHandler(h, s.config.RequestTimeout, `{"error":"request timeout"}`))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.config.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping API server")
	return s.httpServer.Shutdown(ctx)
}

// SubmitJobRequest is the body of POST /jobs
type SubmitJobRequest struct {
	Mode   string           `json:"mode,omitempty"`
	Params recommend.Params `json:"params"`
}

// JobResponse represents a job status response
type JobResponse struct {
	*state.Job
	Duration string `json:"duration"`
}

// ListJobsResponse is the body of GET /jobs
type ListJobsResponse struct {
	Jobs       []JobResponse `json:"jobs"`
	QueueDepth int           `json:"queue_depth"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleRecommendations handles POST /recommendations[?mode=text]
func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var params recommend.Params
	if !s.decode(w, r, &params) {
		return
	}

	var (
		res *recommend.Result
		err error
	)
	switch mode := r.URL.Query().Get("mode"); mode {
	case "", recommend.ModeTool:
		res, err = s.recommender.Recommend(r.Context(), params)
	case recommend.ModeText:
		res, err = s.recommender.RecommendFromText(r.Context(), params)
	default:
		s.sendError(w, http.StatusBadRequest, fmt.Sprintf("unknown mode %q", mode))
		return
	}
	if err != nil {
		s.sendServiceError(w, r, "recommendation failed", err)
		return
	}
	s.sendJSON(w, http.StatusOK, res)
}

// handleJobs handles POST /jobs (submit) and GET /jobs (list)
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmitJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req SubmitJobRequest
	if !s.decode(w, r, &req) {
		return
	}
	idemKey := r.Header.Get("Idempotency-Key")
	job, created, err := s.engine.Submit(r.Context(), req.Mode, req.Params, engine.SubmitOptions{IdempotencyKey: idemKey})
	if err != nil {
		s.sendServiceError(w, r, "failed to submit job", err)
		return
	}
	status := http.StatusAccepted
	if !created {
		status = http.StatusOK
	}
	w.Header().Set("Location", "/jobs/"+job.ID)
	s.sendJSON(w, status, toJobResponse(job))
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	status := state.JobStatus(r.URL.Query().Get("status"))
	jobs, err := s.engine.ListJobs(r.Context(), status)
	if err != nil {
		s.sendServiceError(w, r, "failed to list jobs", err)
		return
	}
	resp := ListJobsResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, toJobResponse(j))
	}
	if depth, err := s.engine.QueueDepth(r.Context()); err == nil {
		resp.QueueDepth = depth
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// handleJobByID handles GET /jobs/{id}
func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) != 2 || pathParts[1] == "" {
		s.sendError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	job, err := s.engine.GetJob(r.Context(), pathParts[1])
	if err != nil {
		s.sendServiceError(w, r, "failed to get job", err)
		return
	}
	s.sendJSON(w, http.StatusOK, toJobResponse(job))
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

func toJobResponse(j *state.Job) JobResponse {
	return JobResponse{Job: j, Duration: j.Duration().String()}
}

// decode reads a JSON body into v, answering 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, recommend.ErrInvalidParams), errors.Is(err, engine.ErrUnknownMode):
		return http.StatusBadRequest
	case errors.Is(err, state.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case retry.IsLogicalValidation(err):
		return http.StatusBadGateway
	case retry.IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("write response failed", "error", err)
	}
}

// sendServiceError maps err to a status. Client errors carry err's text;
// server errors are logged and answered with msg and the status text only,
// since upstream errors can embed provider response bodies.
func (s *Server) sendServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	if status < http.StatusInternalServerError {
		s.sendError(w, status, fmt.Sprintf("%s: %v", msg, err))
		return
	}
	s.logger.Error(msg, "path", r.URL.Path, "status", status, "error", err)
	s.sendError(w, status, fmt.Sprintf("%s: %s", msg, strings.ToLower(http.StatusText(status))))
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}
