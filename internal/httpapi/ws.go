package httpapi

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/depthwise/depthwise/internal/engine"
	"github.com/depthwise/depthwise/internal/interview"
	"github.com/depthwise/depthwise/internal/protocol"
	"github.com/depthwise/depthwise/internal/store"
)

// handleSessionWS runs the live turn stream: the client sends one
// client_turn per exchange and receives a turn_result (or error_event) in
// reply. Turns arrive strictly in order on the single connection, matching
// the engine's one-turn-at-a-time contract.
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "bad_request", "session_id query parameter is required", false)
		return
	}
	if _, err := s.sessions.Get(sessionID); err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", "interview session not found", false)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	defer conn.Close()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := protocol.ParseClientMessage(raw)
		if err != nil {
			s.writeWSError(conn, sessionID, "bad_message", err.Error(), false)
			continue
		}

		switch m := msg.(type) {
		case protocol.ClientTurn:
			if m.SessionID != sessionID {
				s.writeWSError(conn, sessionID, "session_mismatch", "message session_id does not match connection", false)
				continue
			}
			result, err := s.engine.ProcessTurn(r.Context(), sessionID, m.Question, m.Utterance)
			if err != nil {
				s.writeWSEngineError(conn, sessionID, err)
				continue
			}
			_ = s.sessions.RecordTurn(sessionID)
			_ = conn.WriteJSON(protocol.TurnResult{
				Type:      protocol.TypeTurnResult,
				SessionID: sessionID,
				Result:    result,
			})
			if result.EligibleForCompletion {
				_ = conn.WriteJSON(protocol.SessionEvent{
					Type:      protocol.TypeSessionEvent,
					SessionID: sessionID,
					Code:      "eligible_for_completion",
				})
			}
		case protocol.ClientControl:
			if m.Action == "end" {
				summary, err := s.engine.EndSession(r.Context(), sessionID)
				if err != nil {
					s.writeWSEngineError(conn, sessionID, err)
					continue
				}
				_, _ = s.sessions.End(sessionID)
				_ = conn.WriteJSON(map[string]any{
					"type":       protocol.TypeSessionEvent,
					"session_id": sessionID,
					"code":       "session_ended",
					"summary":    summary,
				})
				return
			}
			s.writeWSError(conn, sessionID, "bad_control", "unknown control action", false)
		}
	}
}

func (s *Server) writeWSEngineError(conn *websocket.Conn, sessionID string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeWSError(conn, sessionID, "session_not_found", "interview session not found", false)
	case errors.Is(err, store.ErrConflict):
		s.writeWSError(conn, sessionID, "session_conflict", "the turn could not be applied, please retry", true)
	case errors.Is(err, engine.ErrSessionCompleted):
		s.writeWSError(conn, sessionID, "session_completed", "this interview session is already complete", false)
	case errors.Is(err, interview.ErrCorruptState):
		s.log.Error("session state corrupt", zap.String("session_id", sessionID), zap.Error(err))
		s.writeWSError(conn, sessionID, "structural_corruption", "we couldn't continue this interview session", false)
	default:
		s.log.Error("ws turn failed", zap.String("session_id", sessionID), zap.Error(err))
		s.writeWSError(conn, sessionID, "internal_error", "we couldn't continue this interview session", false)
	}
}

func (s *Server) writeWSError(conn *websocket.Conn, sessionID, code, detail string, retryable bool) {
	_ = conn.WriteJSON(protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: sessionID,
		Code:      code,
		Retryable: retryable,
		Detail:    detail,
	})
}
