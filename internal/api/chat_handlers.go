package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"autoelite.com/storefront/internal/core"
)

type CreateSessionRequest struct {
	VehicleID string `json:"vehicleId"`
}

type CreateSessionResponse struct {
	SessionID   string            `json:"sessionId"`
	State       core.SessionState `json:"state"`
	VehicleName string            `json:"vehicleName"`
}

func (h *APIHandler) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.VehicleID == "" {
		writeError(w, http.StatusBadRequest, "vehicleId is required")
		return
	}

	s, err := h.sessions.Open(r.Context(), req.VehicleID)
	if err != nil {
		if errors.Is(err, core.ErrVehicleNotFound) {
			writeError(w, http.StatusNotFound, "Vehicle not found")
			return
		}
		h.log.Error().Err(err).Str("vehicle_id", req.VehicleID).Msg("failed to open chat session")
		writeError(w, http.StatusInternalServerError, "Failed to open chat")
		return
	}
	view := s.View()
	writeJSON(w, http.StatusCreated, CreateSessionResponse{SessionID: view.ID, State: view.State, VehicleName: view.VehicleName})
}

func (h *APIHandler) lookupSession(w http.ResponseWriter, r *http.Request) (*core.Session, bool) {
	s, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Chat session not found")
		return nil, false
	}
	return s, true
}

// SubmitIdentityHandler is the identity form of the widget.
func (h *APIHandler) SubmitIdentityHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	var identity core.Identity
	if err := json.NewDecoder(r.Body).Decode(&identity); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	// The conversation is opened even if the customer navigates away.
	_, err := s.Begin(context.WithoutCancel(r.Context()), identity)
	var (
		verr *core.ValidationError
		perr *core.PersistenceError
	)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, s.View())
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Message)
	case errors.As(err, &perr):
		writeError(w, http.StatusBadGateway, perr.Notice)
	case errors.Is(err, core.ErrSessionActive):
		writeError(w, http.StatusConflict, "Conversation already started")
	case errors.Is(err, core.ErrSessionClosed):
		writeError(w, http.StatusGone, "Chat session closed")
	default:
		h.log.Error().Err(err).Str("session_id", s.ID()).Msg("failed to begin conversation")
		writeError(w, http.StatusInternalServerError, "Failed to start conversation")
	}
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

type SendMessageResponse struct {
	core.SessionView
	Ignored   bool `json:"ignored"`
	Fallback  bool `json:"fallback"`
	Escalated bool `json:"escalated"`
	Discarded bool `json:"discarded"`
}

func (h *APIHandler) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	// A dropped connection must not leave a stored customer message
	// without its reply or unanswered flag.
	result, err := s.Send(context.WithoutCancel(r.Context()), req.Content)
	if errors.Is(err, core.ErrBusy) {
		writeError(w, http.StatusConflict, "A message is already being sent")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("session_id", s.ID()).Msg("failed to send message")
		writeError(w, http.StatusInternalServerError, "Failed to send message")
		return
	}
	writeJSON(w, http.StatusOK, SendMessageResponse{
		SessionView: s.View(),
		Ignored:     result.Ignored,
		Fallback:    result.Fallback,
		Escalated:   result.Escalated,
		Discarded:   result.Discarded,
	})
}

func (h *APIHandler) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

func (h *APIHandler) CloseSessionHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(chi.URLParam(r, "sessionID")); err != nil {
		writeError(w, http.StatusNotFound, "Chat session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ChatAssistantHandler exposes the assistant function over HTTP. It answers
// 200 for every well-formed request; upstream trouble is folded into the
// reply.
func (h *APIHandler) ChatAssistantHandler(w http.ResponseWriter, r *http.Request) {
	var req core.AssistantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	writeJSON(w, http.StatusOK, h.assistant.Respond(r.Context(), req))
}
