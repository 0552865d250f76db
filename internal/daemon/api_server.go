package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"papercast/internal/api"
	"papercast/internal/config"
	"papercast/internal/jobs"
	"papercast/internal/logging"
	"papercast/internal/services"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	jobSvc *api.JobService

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logger,
		daemon: d,
		jobSvc: api.NewJobService(d.store, cfg),
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Route("/api", func(r chi.Router) {
		r.Get("/status", srv.handleStatus)
		r.Get("/health", srv.handleHealth)
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", srv.handleList)
			r.Post("/", srv.handleSubmit)
			r.Post("/retry", srv.handleRetryAll)
			r.Delete("/", srv.handleClear)
			r.Route("/{token}", func(r chi.Router) {
				r.Get("/", srv.handleDescribe)
				r.Delete("/", srv.handleRemove)
				r.Post("/retry", srv.handleRetry)
				r.Get("/report", srv.handleReport)
				r.Get("/transcript", srv.handleTranscript)
				r.Get("/episode", srv.handleEpisode)
				r.Get("/artifact", srv.handleArtifact)
			})
		})
	})

	srv.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.stop()
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)

	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
	s.mu.Unlock()
}

func (s *apiServer) addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	payload := api.NewDaemonStatus(
		status.Running,
		api.FromStatusSummary(status.Workflow),
		status.JobDBPath,
		status.LockFilePath,
		api.FromChecks(status.Preflight),
	)
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	summary := s.daemon.workflow.Status(r.Context())
	for _, health := range summary.StageHealth {
		if !health.Ready {
			s.writeJSON(w, http.StatusServiceUnavailable, api.FromStatusSummary(summary))
			return
		}
	}
	s.writeJSON(w, http.StatusOK, api.FromStatusSummary(summary))
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	var statuses []jobs.Status
	for _, value := range r.URL.Query()["status"] {
		status, ok := jobs.ParseStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
			return
		}
		statuses = append(statuses, status)
	}
	list, err := s.jobSvc.List(r.Context(), statuses...)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	view, err := s.jobSvc.Submit(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, view)
}

func (s *apiServer) handleDescribe(w http.ResponseWriter, r *http.Request) {
	view, err := s.jobSvc.Describe(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *apiServer) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.jobSvc.Report(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *apiServer) handleTranscript(w http.ResponseWriter, r *http.Request) {
	s.serveArtifact(w, r, func(view api.JobView) string { return view.TranscriptPath }, "text/plain; charset=utf-8")
}

func (s *apiServer) handleEpisode(w http.ResponseWriter, r *http.Request) {
	s.serveArtifact(w, r, func(view api.JobView) string { return view.EpisodePath }, "audio/wav")
}

// handleArtifact is the kind-dispatched alias for the dedicated artifact
// routes.
func (s *apiServer) handleArtifact(w http.ResponseWriter, r *http.Request) {
	switch kind := strings.TrimSpace(r.URL.Query().Get("kind")); kind {
	case "audio":
		s.handleEpisode(w, r)
	case "transcript":
		s.handleTranscript(w, r)
	case "report":
		s.handleReport(w, r)
	default:
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown artifact kind %q", kind))
	}
}

func (s *apiServer) serveArtifact(w http.ResponseWriter, r *http.Request, path func(api.JobView) string, contentType string) {
	view, err := s.jobSvc.Describe(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	artifact := path(view)
	if artifact == "" {
		s.writeError(w, http.StatusNotFound, "artifact not available yet")
		return
	}
	w.Header().Set("Content-Type", contentType)
	http.ServeFile(w, r, artifact)
}

func (s *apiServer) handleRetry(w http.ResponseWriter, r *http.Request) {
	view, err := s.jobSvc.Retry(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *apiServer) handleRetryAll(w http.ResponseWriter, r *http.Request) {
	count, err := s.jobSvc.RetryAll(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.CountResponse{Affected: count})
}

func (s *apiServer) handleRemove(w http.ResponseWriter, r *http.Request) {
	if err := s.jobSvc.Remove(r.Context(), chi.URLParam(r, "token")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleClear(w http.ResponseWriter, r *http.Request) {
	mode := api.ClearMode(strings.TrimSpace(r.URL.Query().Get("mode")))
	if mode == "" {
		mode = api.ClearCompletedMode
	}
	count, err := s.jobSvc.Clear(r.Context(), mode)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.CountResponse{Affected: count})
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrConfiguration):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrContent):
		status = http.StatusUnprocessableEntity
	}
	s.writeError(w, status, err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	return logging.NewComponentLogger(s.logger, "api-server")
}
