package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/voicelayer/switchboard/internal/directory"
	"github.com/voicelayer/switchboard/internal/storage"
	"github.com/voicelayer/switchboard/internal/types"
)

// RosterHandler handles agent roster registration and reads
type RosterHandler struct {
	registry *directory.Registry
	store    storage.Store
	hub      Publisher
	logger   zerolog.Logger
}

// NewRosterHandler creates a new RosterHandler
func NewRosterHandler(registry *directory.Registry, store storage.Store, hub Publisher, logger zerolog.Logger) *RosterHandler {
	return &RosterHandler{
		registry: registry,
		store:    store,
		hub:      hub,
		logger:   logger.With().Str("component", "roster").Logger(),
	}
}

// HandleRoster handles POST /internal/agents/roster. Agents are
// persisted and registered in the directory; an already known agent
// keeps its live load.
func (h *RosterHandler) HandleRoster(w http.ResponseWriter, r *http.Request) {
	var roster []types.Agent
	if err := json.NewDecoder(r.Body).Decode(&roster); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	registered := 0
	for i := range roster {
		agent := roster[i]
		if agent.ID == "" {
			continue
		}
		if agent.MaxConcurrentCalls <= 0 {
			agent.MaxConcurrentCalls = 1
		}
		if agent.Status == "" {
			agent.Status = types.AgentOffline
		}
		if agent.CreatedAt.IsZero() {
			agent.CreatedAt = now
		}
		agent.UpdatedAt = now

		if err := h.store.UpsertAgent(r.Context(), &agent); err != nil {
			h.logger.Error().Err(err).Str("agent_id", agent.ID).Msg("failed to persist agent")
			continue
		}
		h.registry.Register(agent)
		registered++
	}

	h.logger.Info().Int("registered", registered).Msg("roster received")

	h.hub.Publish(types.Envelope{
		Type:    types.TopicAgents,
		Event:   types.EventAgentRoster,
		Payload: h.registry.Snapshot(""),
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]int{"registered": registered})
}

// ListAgents returns all agents with their live loads
// GET /api/agents?teamId=
func (h *RosterHandler) ListAgents(w http.ResponseWriter, r *http.Request) {
	teamID := r.URL.Query().Get("teamId")
	if !allowTeam(r, teamID) {
		http.Error(w, "forbidden for this team", http.StatusForbidden)
		return
	}

	roster := h.registry.Snapshot(teamID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(roster)
}

// GetAgent returns one agent with its live load
// GET /api/agents/{agentId}
func (h *RosterHandler) GetAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")

	load, err := h.registry.Get(agentID)
	if err != nil {
		if errors.Is(err, directory.ErrAgentNotFound) {
			http.Error(w, "agent not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("agent_id", agentID).Msg("failed to load agent")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(load)
}
