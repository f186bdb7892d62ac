package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/voicelayer/switchboard/internal/livecalls"
	"github.com/voicelayer/switchboard/internal/storage"
	"github.com/voicelayer/switchboard/internal/types"
)

// LiveCallsHandler exposes the aggregated live-call views over REST
type LiveCallsHandler struct {
	svc    *livecalls.Service
	logger zerolog.Logger
}

// NewLiveCallsHandler creates a new LiveCallsHandler
func NewLiveCallsHandler(svc *livecalls.Service, logger zerolog.Logger) *LiveCallsHandler {
	return &LiveCallsHandler{
		svc:    svc,
		logger: logger.With().Str("component", "livecalls_handler").Logger(),
	}
}

// List returns one page of live calls
// GET /api/live-calls?teamId=&status=&limit=&offset=
func (h *LiveCallsHandler) List(w http.ResponseWriter, r *http.Request) {
	teamID := r.URL.Query().Get("teamId")
	if !allowTeam(r, teamID) {
		http.Error(w, "forbidden for this team", http.StatusForbidden)
		return
	}

	statuses, err := parseStatuses(r.URL.Query().Get("status"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit, err := parseIntParam(r, "limit", 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	offset, err := parseIntParam(r, "offset", 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	page, err := h.svc.List(r.Context(), livecalls.ListParams{
		TeamID:   teamID,
		Statuses: statuses,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list live calls")
		http.Error(w, "failed to retrieve live calls", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(page)
}

// Get returns the full detail view for one call
// GET /api/live-calls/{callId}
func (h *LiveCallsHandler) Get(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callId")

	detail, err := h.svc.Get(r.Context(), callID)
	if err != nil {
		h.writeReadError(w, err, callID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(detail)
}

// GetMetrics returns running averages over the call's analytics history
// GET /api/live-calls/{callId}/metrics
func (h *LiveCallsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callId")

	metrics, err := h.svc.Metrics(r.Context(), callID)
	if err != nil {
		h.writeReadError(w, err, callID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(metrics)
}

// GetTranscript returns the call's transcript in spoken order
// GET /api/live-calls/{callId}/transcript
func (h *LiveCallsHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callId")

	transcript, err := h.svc.Transcript(r.Context(), callID)
	if err != nil {
		h.writeReadError(w, err, callID)
		return
	}

	if transcript == nil {
		transcript = []types.TranscriptLine{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transcript)
}

func (h *LiveCallsHandler) writeReadError(w http.ResponseWriter, err error, callID string) {
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "call not found", http.StatusNotFound)
		return
	}
	h.logger.Error().Err(err).Str("call_id", callID).Msg("failed to load live call")
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// parseStatuses splits a comma-separated status filter and validates
// each value. An empty filter returns nil so the live set applies.
func parseStatuses(raw string) ([]types.CallStatus, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	statuses := make([]types.CallStatus, 0, len(parts))
	for _, part := range parts {
		status := types.CallStatus(strings.TrimSpace(part))
		if !types.ValidCallStatus(status) {
			return nil, fmt.Errorf("unknown status %q", status)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func parseIntParam(r *http.Request, name string, defaultValue int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: must be an integer", name)
	}
	return value, nil
}
