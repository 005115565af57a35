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
	"time"

	"chronicle/internal/config"
	"chronicle/internal/logging"
	"chronicle/internal/pipeline"
	"chronicle/internal/recording"
	"chronicle/internal/services"
	"chronicle/internal/store"
)

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		token:  strings.TrimSpace(cfg.Paths.APIToken),
		logger: logging.NewComponentLogger(logger, "api"),
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealthz)
	mux.HandleFunc("/api/status", srv.requireAuth(srv.handleStatus))
	mux.HandleFunc("/api/sessions", srv.requireAuth(srv.handleSessions))
	mux.HandleFunc("/api/sessions/", srv.requireAuth(srv.handleSession))
	mux.HandleFunc("/api/recording/", srv.requireAuth(srv.handleRecording))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// requireAuth gates a handler behind the configured bearer token. An empty
// token leaves the endpoint open; /healthz is never gated so liveness checks
// need no credentials.
func (s *apiServer) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	if s.token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		const scheme = "Bearer "
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, scheme) || strings.TrimPrefix(header, scheme) != s.token {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// addr reports the bound listen address, for tests and logs.
func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusPayload struct {
	Running          bool                `json:"running"`
	ActiveRecordings int                 `json:"active_recordings"`
	DatabasePath     string              `json:"database_path"`
	LockFilePath     string              `json:"lock_file_path"`
	SessionCounts    map[string]int      `json:"session_counts"`
	Dependencies     []dependencyPayload `json:"dependencies"`
}

type dependencyPayload struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Detail    string `json:"detail,omitempty"`
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	counts := make(map[string]int, len(status.SessionCounts))
	for k, v := range status.SessionCounts {
		counts[string(k)] = v
	}
	deps := make([]dependencyPayload, 0, len(status.Dependencies))
	for _, dep := range status.Dependencies {
		deps = append(deps, dependencyPayload{Name: dep.Name, Available: dep.Available, Detail: dep.Detail})
	}
	s.writeJSON(w, http.StatusOK, statusPayload{
		Running:          status.Running,
		ActiveRecordings: status.ActiveRecordings,
		DatabasePath:     status.DatabasePath,
		LockFilePath:     status.LockFilePath,
		SessionCounts:    counts,
		Dependencies:     deps,
	})
}

type sessionPayload struct {
	ID                     string `json:"id"`
	GuildID                int64  `json:"guild_id"`
	ChannelID              int64  `json:"channel_id"`
	NotificationChannelID  int64  `json:"notification_channel_id"`
	Name                   string `json:"name"`
	Status                 string `json:"status"`
	StartedAt              string `json:"started_at"`
	EndedAt                string `json:"ended_at,omitempty"`
	DurationSeconds        int64  `json:"duration_seconds"`
	ErrorMessage           string `json:"error_message,omitempty"`
	MergedAudioPath        string `json:"merged_audio_path,omitempty"`
	TranscriptionCostCents int64  `json:"transcription_cost_cents"`
	LLMCostCents           int64  `json:"llm_cost_cents"`
}

func toSessionPayload(sess *store.Session) sessionPayload {
	payload := sessionPayload{
		ID:                     sess.ID,
		GuildID:                sess.GuildID,
		ChannelID:              sess.ChannelID,
		NotificationChannelID:  sess.NotificationChannelID,
		Name:                   sess.Name,
		Status:                 string(sess.Status),
		StartedAt:              sess.StartedAt.Format(time.RFC3339),
		DurationSeconds:        sess.DurationSeconds,
		ErrorMessage:           sess.ErrorMessage,
		MergedAudioPath:        sess.MergedAudioPath,
		TranscriptionCostCents: sess.TranscriptionCostCents,
		LLMCostCents:           sess.LLMCostCents,
	}
	if sess.EndedAt != nil {
		payload.EndedAt = sess.EndedAt.Format(time.RFC3339)
	}
	return payload
}

func (s *apiServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var statuses []store.Status
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, ok := store.ParseStatus(raw)
		if !ok {
			s.writeError(w, http.StatusBadRequest, "unknown status "+raw)
			return
		}
		statuses = append(statuses, status)
	}
	sessions, err := s.daemon.store.ListSessions(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	payload := make([]sessionPayload, 0, len(sessions))
	for _, sess := range sessions {
		payload = append(payload, toSessionPayload(sess))
	}
	s.writeJSON(w, http.StatusOK, payload)
}

// handleSession serves /api/sessions/{id} and /api/sessions/{id}/process.
func (s *apiServer) handleSession(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		s.writeError(w, http.StatusNotFound, "session id required")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		sess, err := s.daemon.store.GetSession(r.Context(), id)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if sess == nil {
			s.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.writeJSON(w, http.StatusOK, toSessionPayload(sess))
	case action == "process" && r.Method == http.MethodPost:
		sess, err := s.daemon.store.GetSession(r.Context(), id)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if sess == nil {
			s.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		// Early 409 for callers; racing submits that slip past this check
		// are still serialized by the processor's atomic claim.
		if sess.Status != store.StatusRecording {
			s.writeError(w, http.StatusConflict,
				(&pipeline.NotProcessableError{SessionID: id, Status: sess.Status}).Error())
			return
		}
		if err := s.daemon.dispatcher.Submit(id); err != nil {
			s.writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		s.writeJSON(w, http.StatusAccepted, map[string]string{"session_id": id, "state": "queued"})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type recordingRequest struct {
	GuildID               int64  `json:"guild_id"`
	ChannelID             int64  `json:"channel_id"`
	NotificationChannelID int64  `json:"notification_channel_id"`
	Name                  string `json:"name"`
	Participants          []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"participants"`
}

func (s *apiServer) handleRecording(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	action := strings.TrimPrefix(r.URL.Path, "/api/recording/")

	var req recordingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.GuildID == 0 {
		s.writeError(w, http.StatusBadRequest, "guild_id is required")
		return
	}

	switch action {
	case "start":
		params := recording.StartParams{
			GuildID:               req.GuildID,
			ChannelID:             req.ChannelID,
			NotificationChannelID: req.NotificationChannelID,
			Name:                  req.Name,
		}
		for _, p := range req.Participants {
			params.Participants = append(params.Participants, recording.Participant{ID: p.ID, Name: p.Name})
		}
		sess, err := s.daemon.recorder.Start(r.Context(), params)
		if err != nil {
			s.writeRecordingError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, toSessionPayload(sess))
	case "stop":
		sess, err := s.daemon.recorder.Stop(r.Context(), req.GuildID)
		if err != nil {
			s.writeRecordingError(w, err)
			return
		}
		if err := s.daemon.dispatcher.Submit(sess.ID); err != nil {
			s.logger.Error("failed to queue session for processing",
				logging.String(logging.FieldSessionID, sess.ID),
				logging.Error(err),
			)
		}
		s.writeJSON(w, http.StatusOK, toSessionPayload(sess))
	case "pause":
		if err := s.daemon.recorder.Pause(r.Context(), req.GuildID); err != nil {
			s.writeRecordingError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"state": "paused"})
	case "resume":
		if err := s.daemon.recorder.Resume(r.Context(), req.GuildID); err != nil {
			s.writeRecordingError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"state": "recording"})
	default:
		s.writeError(w, http.StatusNotFound, "unknown recording action")
	}
}

func (s *apiServer) writeRecordingError(w http.ResponseWriter, err error) {
	var invalid *recording.InvalidTransitionError
	var disk *recording.InsufficientDiskSpaceError
	switch {
	case errors.Is(err, recording.ErrAlreadyActive):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &invalid):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &disk):
		s.writeError(w, http.StatusInsufficientStorage, err.Error())
	case errors.Is(err, services.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("failed to encode api response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
