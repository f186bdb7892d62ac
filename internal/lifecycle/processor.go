package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/voicelayer/switchboard/internal/directory"
	"github.com/voicelayer/switchboard/internal/metrics"
	"github.com/voicelayer/switchboard/internal/storage"
	"github.com/voicelayer/switchboard/internal/types"
	"github.com/voicelayer/switchboard/internal/waitqueue"
)

// ErrInvalidEvent rejects a lifecycle event before any state is touched
var ErrInvalidEvent = errors.New("invalid lifecycle event")

// Publisher pushes envelopes to connected dashboard clients
type Publisher interface {
	Publish(env types.Envelope)
}

// Store is the slice of the storage layer the lifecycle processor needs
type Store interface {
	GetCall(ctx context.Context, id string) (*types.Call, error)
	UpsertCall(ctx context.Context, call *types.Call) error
	EndSessionsForCall(ctx context.Context, callID string, endedAt time.Time) ([]types.AgentSession, error)
	AppendTranscriptLine(ctx context.Context, line *types.TranscriptLine) error
	AppendAnalyticsSnapshot(ctx context.Context, snap *types.AnalyticsSnapshot) error
}

// CallStartedEvent is sent by the voice pipeline when a call connects
type CallStartedEvent struct {
	CallID         string     `json:"callId"`
	ProviderCallID string     `json:"providerCallId,omitempty"`
	TeamID         string     `json:"teamId,omitempty"`
	CallerNumber   string     `json:"callerNumber,omitempty"`
	Status         string     `json:"status,omitempty"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
}

// CallEndedEvent is sent by the voice pipeline when a call terminates
type CallEndedEvent struct {
	CallID   string     `json:"callId"`
	Outcome  string     `json:"outcome,omitempty"` // "completed" (default) or "failed"
	EndedAt  *time.Time `json:"endedAt,omitempty"`
	Duration *float64   `json:"duration,omitempty"`
}

// Processor applies call lifecycle events from the voice pipeline to
// the call store, the agent directory and the wait queue, and fans the
// resulting changes out to dashboards. Cleanup of sessions and queue
// entries hangs off the call-ended event, so it is an explicit step of
// the call's lifecycle rather than something a sweeper gets to later.
type Processor struct {
	store    Store
	registry *directory.Registry
	queue    *waitqueue.Service
	hub      Publisher
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	eventsIngested int64
	mu             sync.RWMutex
	lastIngested   time.Time
}

func NewProcessor(store Store, registry *directory.Registry, queue *waitqueue.Service, hub Publisher, m *metrics.Metrics, logger zerolog.Logger) *Processor {
	return &Processor{
		store:    store,
		registry: registry,
		queue:    queue,
		hub:      hub,
		metrics:  m,
		logger:   logger.With().Str("component", "lifecycle").Logger(),
	}
}

// CallStarted records a newly connected call and announces it
func (p *Processor) CallStarted(ctx context.Context, ev CallStartedEvent) (*types.Call, error) {
	if ev.CallID == "" {
		return nil, fmt.Errorf("%w: callId is required", ErrInvalidEvent)
	}

	now := time.Now().UTC()
	startedAt := now
	if ev.StartedAt != nil {
		startedAt = ev.StartedAt.UTC()
	}
	status := types.CallStatusActive
	if ev.Status != "" {
		if !types.ValidCallStatus(types.CallStatus(ev.Status)) {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidEvent, ev.Status)
		}
		status = types.CallStatus(ev.Status)
	}

	call, err := p.store.GetCall(ctx, ev.CallID)
	if errors.Is(err, storage.ErrNotFound) {
		call = &types.Call{ID: ev.CallID, CreatedAt: now}
	} else if err != nil {
		return nil, fmt.Errorf("load call: %w", err)
	}

	call.Status = status
	call.StartedAt = startedAt
	call.UpdatedAt = now
	if ev.ProviderCallID != "" {
		call.ProviderCallID = ev.ProviderCallID
	}
	if ev.TeamID != "" {
		call.TeamID = ev.TeamID
	}
	if ev.CallerNumber != "" {
		call.CallerNumber = ev.CallerNumber
	}

	if err := p.store.UpsertCall(ctx, call); err != nil {
		return nil, fmt.Errorf("save call: %w", err)
	}

	p.metrics.CallsIngested.WithLabelValues("call_started").Inc()
	p.hub.Publish(types.Envelope{Type: types.TopicCalls, Event: types.EventCallStarted, Payload: call})
	p.countEvent()

	p.logger.Debug().Str("call_id", call.ID).Str("team_id", call.TeamID).Msg("Call started")
	return call, nil
}

// CallEnded closes the call, ends its agent sessions, resolves its
// queue entry and announces the termination. An end event for a call
// that was never started still gets recorded.
func (p *Processor) CallEnded(ctx context.Context, ev CallEndedEvent) (*types.Call, error) {
	if ev.CallID == "" {
		return nil, fmt.Errorf("%w: callId is required", ErrInvalidEvent)
	}

	now := time.Now().UTC()
	endedAt := now
	if ev.EndedAt != nil {
		endedAt = ev.EndedAt.UTC()
	}
	status := types.CallStatusCompleted
	if ev.Outcome == string(types.CallStatusFailed) {
		status = types.CallStatusFailed
	}

	call, err := p.store.GetCall(ctx, ev.CallID)
	if errors.Is(err, storage.ErrNotFound) {
		call = &types.Call{ID: ev.CallID, StartedAt: endedAt, CreatedAt: now}
	} else if err != nil {
		return nil, fmt.Errorf("load call: %w", err)
	}

	call.Status = status
	call.EndedAt = &endedAt
	call.UpdatedAt = now
	if ev.Duration != nil {
		call.Duration = ev.Duration
	}

	if err := p.store.UpsertCall(ctx, call); err != nil {
		return nil, fmt.Errorf("save call: %w", err)
	}

	p.releaseSessions(ctx, ev.CallID, endedAt)
	p.resolveQueueEntry(ctx, ev.CallID)

	p.metrics.CallsIngested.WithLabelValues("call_ended").Inc()
	p.hub.Publish(types.Envelope{Type: types.TopicCalls, Event: types.EventCallEnded, Payload: call})
	p.countEvent()

	p.logger.Info().
		Str("call_id", call.ID).
		Str("status", string(status)).
		Msg("Call ended")
	return call, nil
}

// StatusChanged moves a call to a new status. Terminal statuses take
// the full call-ended path so cleanup always runs.
func (p *Processor) StatusChanged(ctx context.Context, callID string, status types.CallStatus) (*types.Call, error) {
	if callID == "" {
		return nil, fmt.Errorf("%w: callId is required", ErrInvalidEvent)
	}
	if !types.ValidCallStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidEvent, status)
	}
	if status == types.CallStatusCompleted || status == types.CallStatusFailed {
		return p.CallEnded(ctx, CallEndedEvent{CallID: callID, Outcome: string(status)})
	}

	now := time.Now().UTC()
	call, err := p.store.GetCall(ctx, callID)
	if errors.Is(err, storage.ErrNotFound) {
		call = &types.Call{ID: callID, StartedAt: now, CreatedAt: now}
	} else if err != nil {
		return nil, fmt.Errorf("load call: %w", err)
	}

	call.Status = status
	call.UpdatedAt = now
	if err := p.store.UpsertCall(ctx, call); err != nil {
		return nil, fmt.Errorf("save call: %w", err)
	}

	p.hub.Publish(types.Envelope{Type: types.TopicCalls, Event: types.EventCallStatus, Payload: call})
	p.countEvent()
	return call, nil
}

// Transcript appends one utterance and streams it to dashboards
func (p *Processor) Transcript(ctx context.Context, line *types.TranscriptLine) error {
	if line.CallID == "" || line.Text == "" {
		return fmt.Errorf("%w: callId and text are required", ErrInvalidEvent)
	}
	if line.ID == "" {
		line.ID = uuid.New().String()
	}
	if line.Timestamp.IsZero() {
		line.Timestamp = time.Now().UTC()
	}

	if err := p.store.AppendTranscriptLine(ctx, line); err != nil {
		return fmt.Errorf("save transcript line: %w", err)
	}

	p.metrics.CallsIngested.WithLabelValues("transcript_line").Inc()
	p.hub.Publish(types.Envelope{Type: types.TopicCalls, Event: types.EventTranscriptLine, Payload: line})
	p.countEvent()
	return nil
}

// Analytics appends one snapshot and streams it to dashboards
func (p *Processor) Analytics(ctx context.Context, snap *types.AnalyticsSnapshot) error {
	if snap.CallID == "" {
		return fmt.Errorf("%w: callId is required", ErrInvalidEvent)
	}
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}

	if err := p.store.AppendAnalyticsSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("save analytics snapshot: %w", err)
	}

	p.metrics.CallsIngested.WithLabelValues("analytics_snapshot").Inc()
	p.hub.Publish(types.Envelope{Type: types.TopicAnalytics, Event: types.EventSnapshotRecorded, Payload: snap})
	p.countEvent()
	return nil
}

// Stats reports ingestion counters for the health surface
func (p *Processor) Stats() map[string]interface{} {
	p.mu.RLock()
	lastIngested := p.lastIngested
	p.mu.RUnlock()

	return map[string]interface{}{
		"events_ingested": atomic.LoadInt64(&p.eventsIngested),
		"last_ingested":   lastIngested,
	}
}

func (p *Processor) releaseSessions(ctx context.Context, callID string, endedAt time.Time) {
	closed, err := p.store.EndSessionsForCall(ctx, callID, endedAt)
	if err != nil {
		p.logger.Error().Err(err).Str("call_id", callID).Msg("Failed to end sessions")
		return
	}
	for _, session := range closed {
		if _, err := p.registry.Release(session.AgentID); err != nil {
			p.logger.Debug().Err(err).Str("agent_id", session.AgentID).Msg("Agent gone from directory, skipping release")
			continue
		}
		p.metrics.ActiveSessions.Dec()
		if load, err := p.registry.Get(session.AgentID); err == nil {
			p.hub.Publish(types.Envelope{Type: types.TopicAgents, Event: types.EventAgentLoad, Payload: load})
		}
	}
}

func (p *Processor) resolveQueueEntry(ctx context.Context, callID string) {
	entry, err := p.queue.EntryByCall(ctx, callID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			p.logger.Error().Err(err).Str("call_id", callID).Msg("Failed to look up queue entry")
		}
		return
	}

	var target types.QueueStatus
	switch entry.Status {
	case types.QueueWaiting:
		// Caller hung up before an agent picked the call up.
		target = types.QueueAbandoned
	case types.QueueAssigned:
		target = types.QueueCompleted
	default:
		return
	}

	updated, err := p.queue.UpdateStatus(ctx, entry.ID, target, "")
	if err != nil {
		p.logger.Error().Err(err).Str("entry_id", entry.ID).Msg("Failed to resolve queue entry")
		return
	}
	p.hub.Publish(types.Envelope{Type: types.TopicQueue, Event: types.EventCallUpdated, Payload: updated})
}

func (p *Processor) countEvent() {
	count := atomic.AddInt64(&p.eventsIngested, 1)
	p.mu.Lock()
	p.lastIngested = time.Now()
	p.mu.Unlock()

	if count%1000 == 0 {
		p.logger.Info().Int64("total_ingested", count).Msg("Lifecycle events ingested")
	}
}
