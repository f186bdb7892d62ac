package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/voicelayer/switchboard/internal/admission"
	"github.com/voicelayer/switchboard/internal/auth"
	"github.com/voicelayer/switchboard/internal/directory"
	"github.com/voicelayer/switchboard/internal/storage"
	"github.com/voicelayer/switchboard/internal/types"
	"github.com/voicelayer/switchboard/internal/waitqueue"
)

// Publisher pushes envelopes to connected dashboard clients
type Publisher interface {
	Publish(env types.Envelope)
}

// QueueHandler exposes the wait queue over REST
type QueueHandler struct {
	queue      *waitqueue.Service
	controller *admission.Controller
	hub        Publisher
	logger     zerolog.Logger
}

// NewQueueHandler creates a new QueueHandler
func NewQueueHandler(queue *waitqueue.Service, controller *admission.Controller, hub Publisher, logger zerolog.Logger) *QueueHandler {
	return &QueueHandler{
		queue:      queue,
		controller: controller,
		hub:        hub,
		logger:     logger.With().Str("component", "queue_handler").Logger(),
	}
}

// GetQueue returns waiting entries ordered by priority then age
// GET /api/queue?teamId=
func (h *QueueHandler) GetQueue(w http.ResponseWriter, r *http.Request) {
	teamID := r.URL.Query().Get("teamId")
	if !allowTeam(r, teamID) {
		http.Error(w, "forbidden for this team", http.StatusForbidden)
		return
	}

	entries, err := h.queue.ActiveQueue(r.Context(), teamID)
	if err != nil {
		h.logger.Error().Err(err).Str("team_id", teamID).Msg("failed to load queue")
		http.Error(w, "failed to retrieve queue", http.StatusInternalServerError)
		return
	}

	if entries == nil {
		entries = []types.CallQueueEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// GetStats returns queue depth, longest wait and service level
// GET /api/queue/stats?teamId=
func (h *QueueHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	teamID := r.URL.Query().Get("teamId")
	if !allowTeam(r, teamID) {
		http.Error(w, "forbidden for this team", http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if teamID != "" {
		snapshot, err := h.queue.Stats(r.Context(), teamID)
		if err != nil {
			h.logger.Error().Err(err).Str("team_id", teamID).Msg("failed to compute queue stats")
			http.Error(w, "failed to retrieve stats", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(snapshot)
		return
	}

	snapshots, err := h.queue.TeamSnapshots(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to compute queue stats")
		http.Error(w, "failed to retrieve stats", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"totalTeams": len(snapshots),
		"teams":      snapshots,
	})
}

// updateEntryRequest is the JSON body for PUT /api/queue/{entryId}/status
type updateEntryRequest struct {
	Status  string `json:"status"`
	AgentID string `json:"agentId,omitempty"`
}

// UpdateEntry applies a status transition to a queue entry. Assignment
// routes through the admission controller so the capacity check still
// happens; terminal resolutions update the entry directly.
// PUT /api/queue/{entryId}/status
func (h *QueueHandler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "entryId")
	if entryID == "" {
		http.Error(w, "entryId is required", http.StatusBadRequest)
		return
	}

	var req updateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	status := types.QueueStatus(req.Status)
	switch status {
	case types.QueueAssigned:
		if req.AgentID == "" {
			http.Error(w, "agentId is required for assignment", http.StatusBadRequest)
			return
		}
		entry, err := h.controller.AssignEntry(r.Context(), entryID, req.AgentID)
		if err != nil {
			h.writeUpdateError(w, err, entryID)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(entry)

	case types.QueueCompleted, types.QueueAbandoned:
		entry, err := h.queue.UpdateStatus(r.Context(), entryID, status, "")
		if err != nil {
			h.writeUpdateError(w, err, entryID)
			return
		}
		h.hub.Publish(types.Envelope{Type: types.TopicQueue, Event: types.EventCallUpdated, Payload: entry})
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(entry)

	default:
		http.Error(w, "status must be assigned, completed or abandoned", http.StatusBadRequest)
	}
}

func (h *QueueHandler) writeUpdateError(w http.ResponseWriter, err error, entryID string) {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, directory.ErrAgentNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, directory.ErrAgentUnavailable):
		http.Error(w, "agent has no free capacity", http.StatusConflict)
	case errors.Is(err, waitqueue.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error().Err(err).Str("entry_id", entryID).Msg("failed to update queue entry")
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// allowTeam applies the caller's team scope. Requests without claims
// (internal surfaces, SKIP_AUTH off paths) pass through.
func allowTeam(r *http.Request, teamID string) bool {
	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok || teamID == "" {
		return true
	}
	return claims.CanAccessTeam(teamID)
}
