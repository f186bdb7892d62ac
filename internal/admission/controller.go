package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/voicelayer/switchboard/internal/directory"
	"github.com/voicelayer/switchboard/internal/metrics"
	"github.com/voicelayer/switchboard/internal/storage"
	"github.com/voicelayer/switchboard/internal/types"
	"github.com/voicelayer/switchboard/internal/voice"
	"github.com/voicelayer/switchboard/internal/waitqueue"
)

// ErrMissingCallID rejects a transfer request before any state is touched
var ErrMissingCallID = errors.New("callId is required")

// Publisher pushes envelopes to connected dashboard clients
type Publisher interface {
	Publish(env types.Envelope)
}

// Store is the slice of the storage layer the admission controller needs
type Store interface {
	AppendTransferLog(ctx context.Context, entry *types.TransferLogEntry) error
	CreateSession(ctx context.Context, session *types.AgentSession) error
	EndSessionsForCall(ctx context.Context, callID string, endedAt time.Time) ([]types.AgentSession, error)
	GetCall(ctx context.Context, id string) (*types.Call, error)
	UpsertCall(ctx context.Context, call *types.Call) error
}

// AuditSink receives flat transfer records for offline analytics.
// A sink failure never blocks or rolls back a routing decision.
type AuditSink interface {
	SaveTransferRecord(record types.TransferRecord) error
}

// Outcome of an admission decision
type Outcome string

const (
	OutcomeAssigned Outcome = "assigned"
	OutcomeQueued   Outcome = "queued"
)

// TransferRequest asks for a call to be handed to a human agent
type TransferRequest struct {
	CallID         string
	TeamID         string
	Reason         string
	Priority       int
	RequiredSkills []string
	FromBot        bool
	Context        map[string]interface{}
}

// TransferResult reports the synchronous admission decision
type TransferResult struct {
	Outcome   Outcome               `json:"status"`
	AgentID   string                `json:"agentId,omitempty"`
	SessionID string                `json:"sessionId,omitempty"`
	Entry     *types.CallQueueEntry `json:"queueEntry,omitempty"`
}

// Controller decides whether an incoming transfer is served immediately
// or parked in the wait queue. All collaborators are injected so tests
// can substitute fakes.
type Controller struct {
	registry *directory.Registry
	queue    *waitqueue.Service
	store    Store
	sink     AuditSink
	bridger  voice.Bridger
	hub      Publisher
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

func NewController(registry *directory.Registry, queue *waitqueue.Service, store Store, sink AuditSink, bridger voice.Bridger, hub Publisher, m *metrics.Metrics, logger zerolog.Logger) *Controller {
	return &Controller{
		registry: registry,
		queue:    queue,
		store:    store,
		sink:     sink,
		bridger:  bridger,
		hub:      hub,
		metrics:  m,
		logger:   logger.With().Str("component", "admission").Logger(),
	}
}

// RequestTransfer records the attempt, then either assigns the least
// loaded qualifying agent or enqueues the call. The transfer log entry
// is written before any routing decision so that no attempt can vanish,
// whatever happens afterwards.
func (c *Controller) RequestTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if req.CallID == "" {
		return nil, ErrMissingCallID
	}

	logEntry := &types.TransferLogEntry{
		ID:        uuid.New().String(),
		CallID:    req.CallID,
		FromBot:   req.FromBot,
		Context:   req.Context,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.store.AppendTransferLog(ctx, logEntry); err != nil {
		return nil, fmt.Errorf("append transfer log: %w", err)
	}

	// Candidates come back least loaded first. Reserve re-checks capacity
	// under the registry lock, so two racing transfers can never both take
	// an agent's last slot; a lost race just moves on to the next candidate.
	candidates := c.registry.FindAvailable(req.TeamID, req.RequiredSkills)
	for _, cand := range candidates {
		if _, err := c.registry.Reserve(cand.Agent.ID); err != nil {
			continue
		}
		result, err := c.assign(ctx, req, cand.Agent)
		if err != nil {
			c.registry.Release(cand.Agent.ID)
			return nil, err
		}
		return result, nil
	}

	return c.enqueue(ctx, req)
}

func (c *Controller) assign(ctx context.Context, req TransferRequest, agent types.Agent) (*TransferResult, error) {
	session := &types.AgentSession{
		ID:        uuid.New().String(),
		AgentID:   agent.ID,
		CallID:    req.CallID,
		StartedAt: time.Now().UTC(),
	}
	if err := c.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	call := c.markCallTransferring(ctx, req)
	bridged := c.bridge(ctx, req.CallID, call.ProviderCallID, agent)

	c.metrics.TransfersTotal.WithLabelValues(string(OutcomeAssigned)).Inc()
	c.metrics.ActiveSessions.Inc()

	c.hub.Publish(types.Envelope{
		Type:  types.TopicQueue,
		Event: types.EventCallAssigned,
		Payload: map[string]interface{}{
			"callId":    req.CallID,
			"teamId":    req.TeamID,
			"agentId":   agent.ID,
			"sessionId": session.ID,
			"bridged":   bridged,
		},
	})
	c.publishAgentLoad(agent.ID)

	go c.saveTransferRecord(req.CallID, req.TeamID, string(OutcomeAssigned), agent.ID, session.ID, req.Reason, req.Priority, req.FromBot, 0, bridged)

	c.logger.Info().
		Str("call_id", req.CallID).
		Str("agent_id", agent.ID).
		Str("session_id", session.ID).
		Bool("bridged", bridged).
		Msg("Call assigned to agent")

	return &TransferResult{Outcome: OutcomeAssigned, AgentID: agent.ID, SessionID: session.ID}, nil
}

func (c *Controller) enqueue(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	entry, err := c.queue.Enqueue(ctx, waitqueue.EnqueueParams{
		CallID:   req.CallID,
		TeamID:   req.TeamID,
		Reason:   req.Reason,
		Priority: req.Priority,
	})
	if err != nil {
		return nil, err
	}

	c.markCallQueued(ctx, req)

	c.metrics.TransfersTotal.WithLabelValues(string(OutcomeQueued)).Inc()

	c.hub.Publish(types.Envelope{
		Type:    types.TopicQueue,
		Event:   types.EventCallAdded,
		Payload: entry,
	})

	go c.saveTransferRecord(req.CallID, req.TeamID, string(OutcomeQueued), "", entry.ID, req.Reason, req.Priority, req.FromBot, 0, false)

	c.logger.Info().
		Str("call_id", req.CallID).
		Str("entry_id", entry.ID).
		Int("priority", entry.Priority).
		Msg("No agent available, call queued")

	return &TransferResult{Outcome: OutcomeQueued, Entry: entry}, nil
}

// AssignEntry hands a specific waiting entry to a specific agent, for
// operators pushing a call to a chosen colleague. Capacity is reserved
// exactly like automatic assignment, so a manual push can never
// overshoot the agent's limit.
func (c *Controller) AssignEntry(ctx context.Context, entryID, agentID string) (*types.CallQueueEntry, error) {
	entry, err := c.queue.Entry(ctx, entryID)
	if err != nil {
		return nil, err
	}

	reserved, err := c.registry.Reserve(agentID)
	if err != nil {
		return nil, err
	}
	agent := reserved.Agent

	session := &types.AgentSession{
		ID:        uuid.New().String(),
		AgentID:   agent.ID,
		CallID:    entry.CallID,
		StartedAt: time.Now().UTC(),
	}
	if err := c.store.CreateSession(ctx, session); err != nil {
		c.registry.Release(agent.ID)
		return nil, fmt.Errorf("create session: %w", err)
	}

	updated, err := c.queue.UpdateStatus(ctx, entry.ID, types.QueueAssigned, agent.ID)
	if err != nil {
		if _, endErr := c.store.EndSessionsForCall(ctx, entry.CallID, time.Now().UTC()); endErr != nil {
			c.logger.Error().Err(endErr).Str("call_id", entry.CallID).Msg("Failed to end orphaned session")
		}
		c.registry.Release(agent.ID)
		return nil, err
	}

	call := c.markCallTransferring(ctx, TransferRequest{CallID: entry.CallID, TeamID: entry.TeamID})
	bridged := c.bridge(ctx, entry.CallID, call.ProviderCallID, agent)

	waitSecs := time.Since(entry.CreatedAt).Seconds()
	c.metrics.AssignWaitTime.Observe(waitSecs)
	c.metrics.ActiveSessions.Inc()

	c.hub.Publish(types.Envelope{
		Type:  types.TopicQueue,
		Event: types.EventCallAssigned,
		Payload: map[string]interface{}{
			"callId":    entry.CallID,
			"teamId":    entry.TeamID,
			"agentId":   agent.ID,
			"sessionId": session.ID,
			"entry":     updated,
			"bridged":   bridged,
		},
	})
	c.publishAgentLoad(agent.ID)

	go c.saveTransferRecord(entry.CallID, entry.TeamID, string(OutcomeAssigned), agent.ID, entry.ID, entry.ReasonForTransfer, entry.Priority, false, waitSecs, bridged)

	c.logger.Info().
		Str("call_id", entry.CallID).
		Str("agent_id", agent.ID).
		Str("entry_id", entry.ID).
		Bool("bridged", bridged).
		Msg("Queued call assigned to chosen agent")

	return updated, nil
}

// bridge performs the voice-provider hand-off. The session already
// exists at this point; a provider failure is recorded and alerted on
// but never unwinds the assignment, so a third-party outage degrades
// to "assigned but not yet bridged" instead of losing the decision.
func (c *Controller) bridge(ctx context.Context, callID, providerCallID string, agent types.Agent) bool {
	target := providerCallID
	if target == "" {
		target = callID
	}
	if err := c.bridger.Bridge(ctx, target, agent.ContactEndpoint); err != nil {
		c.metrics.BridgeFailures.Inc()
		c.logger.Error().Err(err).
			Str("call_id", callID).
			Str("agent_id", agent.ID).
			Str("endpoint", agent.ContactEndpoint).
			Msg("External transfer failed, keeping assignment for manual follow-up")
		c.hub.Publish(types.Envelope{
			Type:  types.TopicAlerts,
			Event: types.EventBridgeFailure,
			Payload: map[string]interface{}{
				"callId":  callID,
				"agentId": agent.ID,
				"error":   err.Error(),
			},
		})
		return false
	}
	return true
}

// markCallTransferring moves the call record into transferring state,
// creating a minimal record when the transfer arrives before any
// lifecycle event did. Best effort: the session is the source of truth.
func (c *Controller) markCallTransferring(ctx context.Context, req TransferRequest) *types.Call {
	call := c.loadOrSeedCall(ctx, req)
	call.Status = types.CallStatusTransferring
	call.UpdatedAt = time.Now().UTC()
	if err := c.store.UpsertCall(ctx, call); err != nil {
		c.logger.Error().Err(err).Str("call_id", req.CallID).Msg("Failed to update call status")
	}
	return call
}

func (c *Controller) markCallQueued(ctx context.Context, req TransferRequest) {
	call := c.loadOrSeedCall(ctx, req)
	call.Status = types.CallStatusQueued
	call.UpdatedAt = time.Now().UTC()
	if err := c.store.UpsertCall(ctx, call); err != nil {
		c.logger.Error().Err(err).Str("call_id", req.CallID).Msg("Failed to update call status")
	}
}

func (c *Controller) loadOrSeedCall(ctx context.Context, req TransferRequest) *types.Call {
	call, err := c.store.GetCall(ctx, req.CallID)
	if err == nil {
		return call
	}
	if !errors.Is(err, storage.ErrNotFound) {
		c.logger.Error().Err(err).Str("call_id", req.CallID).Msg("Failed to load call record")
	}
	now := time.Now().UTC()
	return &types.Call{
		ID:        req.CallID,
		TeamID:    req.TeamID,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (c *Controller) publishAgentLoad(agentID string) {
	load, err := c.registry.Get(agentID)
	if err != nil {
		return
	}
	c.hub.Publish(types.Envelope{
		Type:    types.TopicAgents,
		Event:   types.EventAgentLoad,
		Payload: load,
	})
}

func (c *Controller) saveTransferRecord(callID, teamID, outcome, agentID, refID, reason string, priority int, fromBot bool, waitTime float64, bridged bool) {
	now := time.Now().UTC()
	record := types.TransferRecord{
		DateKey:   now.Format("2006-01-02"),
		RecordID:  fmt.Sprintf("%s#%s", now.Format(time.RFC3339Nano), refID),
		CallID:    callID,
		TeamID:    teamID,
		Outcome:   outcome,
		AgentID:   agentID,
		Priority:  priority,
		Reason:    reason,
		FromBot:   fromBot,
		WaitTime:  waitTime,
		Bridged:   bridged,
		Timestamp: now.Format(time.RFC3339),
	}
	if err := c.sink.SaveTransferRecord(record); err != nil {
		c.logger.Error().Err(err).Str("call_id", callID).Msg("Failed to save transfer record")
	}
}
