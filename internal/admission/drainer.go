package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/voicelayer/switchboard/internal/types"
)

// ProcessQueue walks the waiting entries in priority order and hands
// each one to a free agent if it can. Queued calls are matched without
// a skill filter: a call that already waited beats a perfect skill
// match. Entries that cannot be placed stay untouched for the next
// pass, and one entry failing never stops the rest of the pass.
func (c *Controller) ProcessQueue(ctx context.Context, teamScope string) (int, error) {
	start := time.Now()
	defer func() { c.metrics.ObserveDrain(time.Since(start)) }()

	entries, err := c.queue.ActiveQueue(ctx, teamScope)
	if err != nil {
		return 0, fmt.Errorf("list waiting entries: %w", err)
	}

	assigned := 0
	for _, entry := range entries {
		ok, err := c.assignFromQueue(ctx, entry)
		if err != nil {
			c.logger.Error().Err(err).
				Str("entry_id", entry.ID).
				Str("call_id", entry.CallID).
				Msg("Failed to assign queued call")
			continue
		}
		if ok {
			assigned++
		}
	}
	return assigned, nil
}

func (c *Controller) assignFromQueue(ctx context.Context, entry types.CallQueueEntry) (bool, error) {
	candidates := c.registry.FindAvailable(entry.TeamID, nil)
	for _, cand := range candidates {
		if _, err := c.registry.Reserve(cand.Agent.ID); err != nil {
			continue
		}

		session := &types.AgentSession{
			ID:        uuid.New().String(),
			AgentID:   cand.Agent.ID,
			CallID:    entry.CallID,
			StartedAt: time.Now().UTC(),
		}
		if err := c.store.CreateSession(ctx, session); err != nil {
			c.registry.Release(cand.Agent.ID)
			return false, fmt.Errorf("create session: %w", err)
		}

		updated, err := c.queue.UpdateStatus(ctx, entry.ID, types.QueueAssigned, cand.Agent.ID)
		if err != nil {
			// The entry was resolved by someone else between listing and
			// claiming it. Back the session and reservation out again.
			if _, endErr := c.store.EndSessionsForCall(ctx, entry.CallID, time.Now().UTC()); endErr != nil {
				c.logger.Error().Err(endErr).Str("call_id", entry.CallID).Msg("Failed to end orphaned session")
			}
			c.registry.Release(cand.Agent.ID)
			return false, fmt.Errorf("claim queue entry: %w", err)
		}

		call := c.markCallTransferring(ctx, TransferRequest{CallID: entry.CallID, TeamID: entry.TeamID})
		bridged := c.bridge(ctx, entry.CallID, call.ProviderCallID, cand.Agent)

		waitSecs := time.Since(entry.CreatedAt).Seconds()
		c.metrics.AssignWaitTime.Observe(waitSecs)
		c.metrics.ActiveSessions.Inc()

		c.hub.Publish(types.Envelope{
			Type:  types.TopicQueue,
			Event: types.EventCallAssigned,
			Payload: map[string]interface{}{
				"callId":    entry.CallID,
				"teamId":    entry.TeamID,
				"agentId":   cand.Agent.ID,
				"sessionId": session.ID,
				"entry":     updated,
				"bridged":   bridged,
			},
		})
		c.publishAgentLoad(cand.Agent.ID)

		go c.saveTransferRecord(entry.CallID, entry.TeamID, string(OutcomeAssigned), cand.Agent.ID, entry.ID, entry.ReasonForTransfer, entry.Priority, false, waitSecs, bridged)

		c.logger.Info().
			Str("call_id", entry.CallID).
			Str("agent_id", cand.Agent.ID).
			Str("entry_id", entry.ID).
			Float64("wait_secs", waitSecs).
			Bool("bridged", bridged).
			Msg("Queued call assigned to agent")

		return true, nil
	}
	return false, nil
}

// Drainer periodically retries the wait queue so calls get picked up
// as soon as agents free up or come online.
type Drainer struct {
	controller *Controller
	interval   time.Duration
	logger     zerolog.Logger
}

func NewDrainer(controller *Controller, interval time.Duration, logger zerolog.Logger) *Drainer {
	return &Drainer{
		controller: controller,
		interval:   interval,
		logger:     logger.With().Str("component", "drainer").Logger(),
	}
}

// Run blocks until ctx is cancelled
func (d *Drainer) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info().Dur("interval", d.interval).Msg("Queue drainer started")
	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("Queue drainer stopped")
			return
		case <-ticker.C:
			if n, err := d.controller.ProcessQueue(ctx, ""); err != nil {
				d.logger.Error().Err(err).Msg("Queue drain pass failed")
			} else if n > 0 {
				d.logger.Debug().Int("assigned", n).Msg("Queue drain pass assigned calls")
			}
		}
	}
}
