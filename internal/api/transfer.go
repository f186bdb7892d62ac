package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/voicelayer/switchboard/internal/admission"
	"github.com/voicelayer/switchboard/internal/storage"
	"github.com/voicelayer/switchboard/internal/types"
)

// TransferHandler exposes the admission decision over REST
type TransferHandler struct {
	controller *admission.Controller
	store      storage.Store
	logger     zerolog.Logger
}

// NewTransferHandler creates a new TransferHandler
func NewTransferHandler(controller *admission.Controller, store storage.Store, logger zerolog.Logger) *TransferHandler {
	return &TransferHandler{
		controller: controller,
		store:      store,
		logger:     logger.With().Str("component", "transfer_handler").Logger(),
	}
}

// transferRequest is the JSON body for POST /api/transfers
type transferRequest struct {
	CallID         string                 `json:"callId"`
	TeamID         string                 `json:"teamId,omitempty"`
	Reason         string                 `json:"reason,omitempty"`
	Priority       int                    `json:"priority,omitempty"`
	RequiredSkills []string               `json:"requiredSkills,omitempty"`
	FromBot        *bool                  `json:"fromBot,omitempty"` // defaults to true, transfers normally come from the bot
	Context        map[string]interface{} `json:"context,omitempty"`
}

// HandleTransfer handles POST /api/transfers. The caller always gets a
// definitive assigned or queued answer; bridge failures surface through
// the alerts topic, never here.
func (h *TransferHandler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	fromBot := true
	if req.FromBot != nil {
		fromBot = *req.FromBot
	}

	result, err := h.controller.RequestTransfer(r.Context(), admission.TransferRequest{
		CallID:         req.CallID,
		TeamID:         req.TeamID,
		Reason:         req.Reason,
		Priority:       req.Priority,
		RequiredSkills: req.RequiredSkills,
		FromBot:        fromBot,
		Context:        req.Context,
	})
	if err != nil {
		switch {
		case errors.Is(err, admission.ErrMissingCallID):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, storage.ErrDuplicateCall):
			http.Error(w, "call is already waiting in the queue", http.StatusConflict)
		default:
			h.logger.Error().Err(err).Str("call_id", req.CallID).Msg("transfer request failed")
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// GetTransferLog returns the audit trail for one call
// GET /api/calls/{callId}/transfers
func (h *TransferHandler) GetTransferLog(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callId")
	if callID == "" {
		http.Error(w, "callId is required", http.StatusBadRequest)
		return
	}

	entries, err := h.store.ListTransferLog(r.Context(), callID)
	if err != nil {
		h.logger.Error().Err(err).Str("call_id", callID).Msg("failed to list transfer log")
		http.Error(w, "failed to retrieve transfer log", http.StatusInternalServerError)
		return
	}

	if entries == nil {
		entries = []types.TransferLogEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}
