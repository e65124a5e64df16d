package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"autoelite.com/storefront/internal/core"
	"autoelite.com/storefront/internal/store"
)

// ListVehiclesHandler is the public catalog: available vehicles only.
func (h *APIHandler) ListVehiclesHandler(w http.ResponseWriter, r *http.Request) {
	vehicles, err := h.vehicles.Search(r.Context(), r.URL.Query().Get("q"), true)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list vehicles")
		writeError(w, http.StatusInternalServerError, "Failed to list vehicles")
		return
	}
	writeJSON(w, http.StatusOK, vehicles)
}

func (h *APIHandler) GetVehicleHandler(w http.ResponseWriter, r *http.Request) {
	vehicleID := chi.URLParam(r, "vehicleID")
	v, err := h.vehicles.GetVehicle(r.Context(), vehicleID)
	if err != nil {
		h.log.Error().Err(err).Str("vehicle_id", vehicleID).Msg("failed to get vehicle")
		writeError(w, http.StatusInternalServerError, "Failed to get vehicle")
		return
	}
	if v == nil {
		writeError(w, http.StatusNotFound, "Vehicle not found")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *APIHandler) AdminListVehiclesHandler(w http.ResponseWriter, r *http.Request) {
	vehicles, err := h.vehicles.Search(r.Context(), r.URL.Query().Get("q"), false)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list inventory")
		writeError(w, http.StatusInternalServerError, "Failed to list vehicles")
		return
	}
	writeJSON(w, http.StatusOK, vehicles)
}

func (h *APIHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.vehicles.Stats(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to compute inventory stats")
		writeError(w, http.StatusInternalServerError, "Failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *APIHandler) CreateVehicleHandler(w http.ResponseWriter, r *http.Request) {
	var v store.Vehicle
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	v.ID = ""

	if err := h.vehicles.Create(r.Context(), &v, userIDFrom(r.Context())); err != nil {
		h.writeVehicleError(w, err, "Failed to create vehicle")
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *APIHandler) UpdateVehicleHandler(w http.ResponseWriter, r *http.Request) {
	vehicleID := chi.URLParam(r, "vehicleID")
	var patch store.VehiclePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	v, err := h.vehicles.Update(r.Context(), vehicleID, patch)
	if err != nil {
		h.writeVehicleError(w, err, "Failed to update vehicle")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *APIHandler) DeleteVehicleHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.vehicles.Delete(r.Context(), chi.URLParam(r, "vehicleID")); err != nil {
		h.writeVehicleError(w, err, "Failed to delete vehicle")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) writeVehicleError(w http.ResponseWriter, err error, message string) {
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Vehicle not found")
	default:
		h.log.Error().Err(err).Msg(message)
		writeError(w, http.StatusInternalServerError, message)
	}
}

func (h *APIHandler) ListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	var status *store.ConversationStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := store.ConversationStatus(raw)
		status = &s
	}

	conversations, err := h.leads.List(r.Context(), status)
	if err != nil {
		if errors.Is(err, core.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error().Err(err).Msg("failed to list conversations")
		writeError(w, http.StatusInternalServerError, "Failed to list conversations")
		return
	}
	writeJSON(w, http.StatusOK, conversations)
}

type ConversationDetailsResponse struct {
	*store.Conversation
	Messages []store.Message `json:"messages"`
}

func (h *APIHandler) GetConversationHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	conv, messages, err := h.leads.Get(r.Context(), conversationID)
	if err != nil {
		h.log.Error().Err(err).Str("conversation_id", conversationID).Msg("failed to get conversation")
		writeError(w, http.StatusInternalServerError, "Failed to get conversation")
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, ConversationDetailsResponse{Conversation: conv, Messages: messages})
}

func (h *APIHandler) CloseConversationHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	err := h.leads.Close(r.Context(), conversationID)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Conversation not found")
	case errors.Is(err, store.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.log.Error().Err(err).Str("conversation_id", conversationID).Msg("failed to close conversation")
		writeError(w, http.StatusInternalServerError, "Failed to close conversation")
	}
}
