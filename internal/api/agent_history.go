package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/voicelayer/switchboard/internal/audit"
	"github.com/voicelayer/switchboard/internal/types"
)

// AgentHistoryHandler provides REST endpoints for agent history data
type AgentHistoryHandler struct {
	sink   audit.Sink
	logger zerolog.Logger
}

// NewAgentHistoryHandler creates a new AgentHistoryHandler
func NewAgentHistoryHandler(sink audit.Sink, logger zerolog.Logger) *AgentHistoryHandler {
	return &AgentHistoryHandler{
		sink:   sink,
		logger: logger.With().Str("component", "agent_history_handler").Logger(),
	}
}

// GetHistory returns agent daily stats for the given agent
// GET /api/agents/{agentId}/history
func (h *AgentHistoryHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	if agentID == "" {
		http.Error(w, "agentId is required", http.StatusBadRequest)
		return
	}

	stats, err := h.sink.GetAgentDailyStats(agentID)
	if err != nil {
		h.logger.Error().Err(err).Str("agent_id", agentID).Msg("failed to get agent daily stats")
		http.Error(w, "failed to retrieve history", http.StatusInternalServerError)
		return
	}

	if stats == nil {
		stats = []types.AgentDailyStats{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// GetTransfers returns transfer records routed to the given agent on a
// specific date
// GET /api/agents/{agentId}/transfers?date=YYYY-MM-DD
func (h *AgentHistoryHandler) GetTransfers(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	if agentID == "" {
		http.Error(w, "agentId is required", http.StatusBadRequest)
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		http.Error(w, "date query parameter is required (YYYY-MM-DD)", http.StatusBadRequest)
		return
	}

	records, err := h.sink.GetAgentTransfersByDate(agentID, date)
	if err != nil {
		h.logger.Error().Err(err).
			Str("agent_id", agentID).
			Str("date", date).
			Msg("failed to get agent transfers")
		http.Error(w, "failed to retrieve transfers", http.StatusInternalServerError)
		return
	}

	if records == nil {
		records = []types.TransferRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}
