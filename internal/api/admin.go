package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/voicelayer/switchboard/internal/admission"
	"github.com/voicelayer/switchboard/internal/audit"
	"github.com/voicelayer/switchboard/internal/auth"
)

// AdminHandler handles operator actions behind role checks
type AdminHandler struct {
	controller *admission.Controller
	sink       audit.Sink
	logger     zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(controller *admission.Controller, sink audit.Sink, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		controller: controller,
		sink:       sink,
		logger:     logger.With().Str("component", "admin").Logger(),
	}
}

// RequireAdmin middleware — only admin role allowed
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.GetUserFromContext(r.Context())
		if !ok || !auth.HasRole(claims, "admin") {
			w.Header().Set("Content-Type", "application/json")
			http.Error(w, `{"error":"admin role required"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSupervisorOrAdmin middleware — supervisor or admin role allowed
func RequireSupervisorOrAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.GetUserFromContext(r.Context())
		if !ok || (claims.Role != "admin" && claims.Role != "supervisor") {
			w.Header().Set("Content-Type", "application/json")
			http.Error(w, `{"error":"supervisor or admin role required"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// drainRequest is the optional JSON body for POST /api/admin/queue/drain
type drainRequest struct {
	TeamID string `json:"teamId,omitempty"`
}

// TriggerDrain runs one drain pass immediately instead of waiting for
// the next scheduled cycle
// POST /api/admin/queue/drain
func (h *AdminHandler) TriggerDrain(w http.ResponseWriter, r *http.Request) {
	var req drainRequest
	if r.Body != nil {
		// Body is optional; an empty or malformed one just means no scope.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	assigned, err := h.controller.ProcessQueue(r.Context(), req.TeamID)
	if err != nil {
		h.logger.Error().Err(err).Msg("manual drain pass failed")
		http.Error(w, "drain pass failed", http.StatusInternalServerError)
		return
	}

	h.logger.Info().Int("assigned", assigned).Str("team_id", req.TeamID).Msg("manual drain pass completed")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":  "drain pass completed",
		"assigned": assigned,
	})
}

// WipeAudit truncates the analytics sink tables
// DELETE /api/admin/audit
func (h *AdminHandler) WipeAudit(w http.ResponseWriter, r *http.Request) {
	if err := h.sink.TruncateAll(); err != nil {
		h.logger.Error().Err(err).Msg("failed to truncate audit tables")
		http.Error(w, `{"error":"failed to truncate audit tables"}`, http.StatusInternalServerError)
		return
	}

	h.logger.Info().Msg("audit tables truncated")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "audit tables truncated",
	})
}
