package lifecycle

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/voicelayer/switchboard/internal/types"
)

// Receiver exposes the call lifecycle feed over HTTP for the voice
// pipeline. Endpoints are internal and sit behind the ingest routes,
// not the dashboard API.
type Receiver struct {
	processor *Processor
	logger    zerolog.Logger
}

func NewReceiver(processor *Processor, logger zerolog.Logger) *Receiver {
	return &Receiver{
		processor: processor,
		logger:    logger.With().Str("component", "lifecycle_receiver").Logger(),
	}
}

// statusChangedEvent is the body for mid-call status updates
type statusChangedEvent struct {
	CallID string `json:"callId"`
	Status string `json:"status"`
}

// HandleCallStarted ingests a call-connected event
func (r *Receiver) HandleCallStarted(w http.ResponseWriter, req *http.Request) {
	var ev CallStartedEvent
	if err := json.NewDecoder(req.Body).Decode(&ev); err != nil {
		r.logger.Error().Err(err).Msg("Failed to decode call started event")
		http.Error(w, "invalid event", http.StatusBadRequest)
		return
	}

	call, err := r.processor.CallStarted(req.Context(), ev)
	if err != nil {
		r.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(call)
}

// HandleCallEnded ingests a call-terminated event
func (r *Receiver) HandleCallEnded(w http.ResponseWriter, req *http.Request) {
	var ev CallEndedEvent
	if err := json.NewDecoder(req.Body).Decode(&ev); err != nil {
		r.logger.Error().Err(err).Msg("Failed to decode call ended event")
		http.Error(w, "invalid event", http.StatusBadRequest)
		return
	}

	call, err := r.processor.CallEnded(req.Context(), ev)
	if err != nil {
		r.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(call)
}

// HandleStatusChanged ingests a mid-call status transition
func (r *Receiver) HandleStatusChanged(w http.ResponseWriter, req *http.Request) {
	var ev statusChangedEvent
	if err := json.NewDecoder(req.Body).Decode(&ev); err != nil {
		r.logger.Error().Err(err).Msg("Failed to decode status event")
		http.Error(w, "invalid event", http.StatusBadRequest)
		return
	}

	call, err := r.processor.StatusChanged(req.Context(), ev.CallID, types.CallStatus(ev.Status))
	if err != nil {
		r.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(call)
}

// HandleTranscript ingests one transcript utterance
func (r *Receiver) HandleTranscript(w http.ResponseWriter, req *http.Request) {
	var line types.TranscriptLine
	if err := json.NewDecoder(req.Body).Decode(&line); err != nil {
		r.logger.Error().Err(err).Msg("Failed to decode transcript line")
		http.Error(w, "invalid event", http.StatusBadRequest)
		return
	}

	if err := r.processor.Transcript(req.Context(), &line); err != nil {
		r.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// HandleAnalytics ingests one analytics snapshot
func (r *Receiver) HandleAnalytics(w http.ResponseWriter, req *http.Request) {
	var snap types.AnalyticsSnapshot
	if err := json.NewDecoder(req.Body).Decode(&snap); err != nil {
		r.logger.Error().Err(err).Msg("Failed to decode analytics snapshot")
		http.Error(w, "invalid event", http.StatusBadRequest)
		return
	}

	if err := r.processor.Analytics(req.Context(), &snap); err != nil {
		r.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// GetStats returns ingestion counters
func (r *Receiver) GetStats(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(r.processor.Stats())
}

func (r *Receiver) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrInvalidEvent) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	r.logger.Error().Err(err).Msg("Failed to process lifecycle event")
	http.Error(w, "internal server error", http.StatusInternalServerError)
}
