package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/voicelayer/switchboard/internal/directory"
	"github.com/voicelayer/switchboard/internal/storage"
	"github.com/voicelayer/switchboard/internal/types"
)

// AgentActionsHandler provides REST endpoints for agent control actions
type AgentActionsHandler struct {
	registry *directory.Registry
	store    storage.Store
	hub      Publisher
	logger   zerolog.Logger
}

// NewAgentActionsHandler creates a new AgentActionsHandler
func NewAgentActionsHandler(registry *directory.Registry, store storage.Store, hub Publisher, logger zerolog.Logger) *AgentActionsHandler {
	return &AgentActionsHandler{
		registry: registry,
		store:    store,
		hub:      hub,
		logger:   logger.With().Str("component", "agent_actions").Logger(),
	}
}

// setStatusRequest is the JSON body for PUT /api/agents/{agentId}/status
type setStatusRequest struct {
	Status string `json:"status"`
}

// SetStatus handles PUT /api/agents/{agentId}/status. A status change
// never cancels in-flight sessions; going offline just stops new
// assignments while current calls run to completion.
func (h *AgentActionsHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	if agentID == "" {
		http.Error(w, "agentId is required", http.StatusBadRequest)
		return
	}

	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	status := types.AgentStatus(req.Status)
	if !types.ValidAgentStatus(status) {
		http.Error(w, "status must be online, offline or busy", http.StatusBadRequest)
		return
	}

	load, err := h.registry.SetStatus(agentID, status)
	if err != nil {
		if errors.Is(err, directory.ErrAgentNotFound) {
			http.Error(w, "agent not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("agent_id", agentID).Msg("failed to set agent status")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	// Persist best effort; the registry is authoritative for live state.
	if err := h.store.UpsertAgent(r.Context(), &load.Agent); err != nil {
		h.logger.Error().Err(err).Str("agent_id", agentID).Msg("failed to persist agent status")
	}

	h.hub.Publish(types.Envelope{
		Type:    types.TopicAgents,
		Event:   types.EventAgentStatus,
		Payload: load,
	})

	h.logger.Info().
		Str("agent_id", agentID).
		Str("status", string(status)).
		Msg("agent status changed via API")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(load)
}
