package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/depthwise/depthwise/internal/config"
	"github.com/depthwise/depthwise/internal/engine"
	"github.com/depthwise/depthwise/internal/interview"
	"github.com/depthwise/depthwise/internal/observability"
	"github.com/depthwise/depthwise/internal/session"
	"github.com/depthwise/depthwise/internal/store"
)

// Engine is the single entry point a calling layer uses per user message.
type Engine interface {
	StartSession(ctx context.Context, sessionID, rootTopic string) error
	ProcessTurn(ctx context.Context, sessionID, question, utterance string) (interview.TurnResult, error)
	GetSummary(ctx context.Context, sessionID string) (interview.InterviewSummary, error)
	EndSession(ctx context.Context, sessionID string) (interview.InterviewSummary, error)
}

type Server struct {
	cfg      config.Config
	sessions *session.Manager
	engine   Engine
	metrics  *observability.Metrics
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func New(cfg config.Config, sessions *session.Manager, eng Engine, metrics *observability.Metrics, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		engine:   eng,
		metrics:  metrics,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from
				// the same origin, so other sites cannot drive a user's
				// interview if the service is exposed beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/interview/session", s.handleCreateSession)
	r.Post("/v1/interview/session/{id}/turn", s.handleTurn)
	r.Get("/v1/interview/session/{id}/summary", s.handleSummary)
	r.Post("/v1/interview/session/{id}/end", s.handleEndSession)
	r.Get("/v1/interview/session/ws", s.handleSessionWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

type createSessionRequest struct {
	UserID    string `json:"user_id"`
	RootTopic string `json:"root_topic"`
}

type createSessionResponse struct {
	SessionID string         `json:"session_id"`
	UserID    string         `json:"user_id"`
	RootTopic string         `json:"root_topic"`
	Status    session.Status `json:"status"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid JSON body", false)
		return
	}
	rootTopic := strings.TrimSpace(req.RootTopic)
	if rootTopic == "" {
		rootTopic = s.cfg.DefaultRootTopic
	}

	live := s.sessions.Create(req.UserID, rootTopic)
	if err := s.engine.StartSession(r.Context(), live.ID, rootTopic); err != nil {
		_, _ = s.sessions.End(live.ID)
		s.log.Error("session start failed", zap.String("session_id", live.ID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "session_start_failed", "could not start interview session", false)
		return
	}
	if s.metrics != nil {
		s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	}

	respondJSON(w, http.StatusCreated, createSessionResponse{
		SessionID: live.ID,
		UserID:    live.UserID,
		RootTopic: live.RootTopic,
		Status:    live.Status,
	})
}

type turnRequest struct {
	Question  string `json:"question,omitempty"`
	Utterance string `json:"utterance"`
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid JSON body", false)
		return
	}
	if strings.TrimSpace(req.Utterance) == "" {
		respondError(w, http.StatusBadRequest, "bad_request", "utterance must not be empty", false)
		return
	}

	result, err := s.engine.ProcessTurn(r.Context(), sessionID, req.Question, req.Utterance)
	if err != nil {
		s.respondEngineError(w, sessionID, err)
		return
	}
	_ = s.sessions.RecordTurn(sessionID)

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	summary, err := s.engine.GetSummary(r.Context(), sessionID)
	if err != nil {
		s.respondEngineError(w, sessionID, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	summary, err := s.engine.EndSession(r.Context(), sessionID)
	if err != nil {
		s.respondEngineError(w, sessionID, err)
		return
	}
	_, _ = s.sessions.End(sessionID)
	if s.metrics != nil {
		s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	}
	respondJSON(w, http.StatusOK, summary)
}

// respondEngineError maps the engine's error taxonomy onto the API:
// retryable conflicts come back 409, structural corruption is terminal for
// the session but previously persisted turns stay intact.
func (s *Server) respondEngineError(w http.ResponseWriter, sessionID string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "session_not_found", "interview session not found", false)
	case errors.Is(err, store.ErrConflict):
		respondError(w, http.StatusConflict, "session_conflict", "the turn could not be applied, please retry", true)
	case errors.Is(err, engine.ErrSessionCompleted):
		respondError(w, http.StatusConflict, "session_completed", "this interview session is already complete", false)
	case errors.Is(err, interview.ErrCorruptState):
		s.log.Error("session state corrupt", zap.String("session_id", sessionID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "structural_corruption", "we couldn't continue this interview session", false)
	default:
		s.log.Error("turn failed", zap.String("session_id", sessionID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "we couldn't continue this interview session", false)
	}
}

type errorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, code, message string, retryable bool) {
	respondJSON(w, status, errorResponse{Code: code, Message: message, Retryable: retryable})
}
