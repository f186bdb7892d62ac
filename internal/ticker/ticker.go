package ticker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/voicelayer/switchboard/internal/directory"
	"github.com/voicelayer/switchboard/internal/metrics"
	"github.com/voicelayer/switchboard/internal/types"
	"github.com/voicelayer/switchboard/internal/waitqueue"
	"github.com/voicelayer/switchboard/internal/websocket"
)

// Ticker periodically broadcasts queue statistics and the agent roster
// to dashboard clients, and keeps the queue depth gauges current
type Ticker struct {
	queue    *waitqueue.Service
	registry *directory.Registry
	hub      *websocket.Hub
	metrics  *metrics.Metrics
	interval time.Duration
	logger   zerolog.Logger

	seenTeams map[string]bool
}

// NewTicker creates a new Ticker
func NewTicker(queue *waitqueue.Service, registry *directory.Registry, hub *websocket.Hub, m *metrics.Metrics, interval time.Duration, logger zerolog.Logger) *Ticker {
	return &Ticker{
		queue:     queue,
		registry:  registry,
		hub:       hub,
		metrics:   m,
		interval:  interval,
		logger:    logger.With().Str("component", "ticker").Logger(),
		seenTeams: make(map[string]bool),
	}
}

// Start begins broadcasting stats updates
func (t *Ticker) Start(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.logger.Info().Dur("interval", t.interval).Msg("Stats ticker started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info().Msg("Stats ticker stopped")
			return

		case <-ticker.C:
			t.publishQueueStats(ctx)
			t.publishRoster()
		}
	}
}

func (t *Ticker) publishQueueStats(ctx context.Context) {
	snapshots, err := t.queue.TeamSnapshots(ctx)
	if err != nil {
		t.logger.Error().Err(err).Msg("Failed to load queue snapshots")
		return
	}

	current := make(map[string]bool, len(snapshots))
	for _, snap := range snapshots {
		current[snap.TeamID] = true
		t.seenTeams[snap.TeamID] = true
		t.metrics.QueueDepth.WithLabelValues(snap.TeamID).Set(float64(snap.WaitingCount))
	}
	// Teams that drained completely drop out of the snapshots; their
	// gauge must go back to zero rather than hold the last value.
	for team := range t.seenTeams {
		if !current[team] {
			t.metrics.QueueDepth.WithLabelValues(team).Set(0)
			delete(t.seenTeams, team)
		}
	}

	if len(snapshots) == 0 {
		return
	}

	t.hub.Publish(types.Envelope{
		Type:    types.TopicQueue,
		Event:   types.EventQueueStats,
		Payload: snapshots,
	})
	t.logger.Debug().
		Int("teams", len(snapshots)).
		Int("clients", t.hub.ClientCount()).
		Msg("Queue stats broadcasted")
}

func (t *Ticker) publishRoster() {
	roster := t.registry.Snapshot("")
	if len(roster) == 0 {
		return
	}
	t.hub.Publish(types.Envelope{
		Type:    types.TopicAgents,
		Event:   types.EventAgentRoster,
		Payload: roster,
	})
}
