package rollup

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/voicelayer/switchboard/internal/types"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow)
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Store is the slice of the storage layer the rollup reads from
type Store interface {
	ListSessionsStartedBetween(ctx context.Context, from, to time.Time) ([]types.AgentSession, error)
}

// Sink is where transfer records come from and daily stats go to
type Sink interface {
	GetTransferRecords(dateKey string) ([]types.TransferRecord, error)
	SaveAgentDailyStats(stats types.AgentDailyStats) error
}

// Roller aggregates one day of transfer records and agent sessions
// into per-agent daily stats for the analytics sink
type Roller struct {
	store    Store
	sink     Sink
	schedule string
	logger   zerolog.Logger
}

func NewRoller(store Store, sink Sink, schedule string, logger zerolog.Logger) *Roller {
	return &Roller{
		store:    store,
		sink:     sink,
		schedule: schedule,
		logger:   logger.With().Str("component", "rollup").Logger(),
	}
}

// Run fires the rollup on the configured cron schedule, aggregating
// the previous day each time. Blocks until ctx is cancelled.
func (r *Roller) Run(ctx context.Context) {
	sched, err := cronParser.Parse(r.schedule)
	if err != nil {
		r.logger.Error().Err(err).Str("schedule", r.schedule).Msg("Invalid rollup schedule, rollup disabled")
		return
	}

	r.logger.Info().Str("schedule", r.schedule).Msg("Rollup scheduler started")
	timer := time.NewTimer(time.Until(sched.Next(time.Now())))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("Rollup scheduler stopped")
			return
		case <-timer.C:
			yesterday := time.Now().UTC().AddDate(0, 0, -1)
			if n, err := r.RunOnce(ctx, yesterday); err != nil {
				r.logger.Error().Err(err).Msg("Daily rollup failed")
			} else {
				r.logger.Info().
					Int("agents", n).
					Str("date", yesterday.Format("2006-01-02")).
					Msg("Daily rollup completed")
			}
			timer.Reset(time.Until(sched.Next(time.Now())))
		}
	}
}

type agentDay struct {
	teamID         string
	assigned       int
	completed      int
	waitSum        float64
	waitCount      int
	handleSum      float64
	handleCount    int
	bridgeFailures int
}

// RunOnce aggregates the given day and saves one stats row per agent
// that handled anything. Returns the number of agents rolled up.
func (r *Roller) RunOnce(ctx context.Context, date time.Time) (int, error) {
	day := date.UTC()
	dateKey := day.Format("2006-01-02")
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	records, err := r.sink.GetTransferRecords(dateKey)
	if err != nil {
		return 0, fmt.Errorf("load transfer records: %w", err)
	}
	sessions, err := r.store.ListSessionsStartedBetween(ctx, dayStart, dayEnd)
	if err != nil {
		return 0, fmt.Errorf("load sessions: %w", err)
	}

	byAgent := make(map[string]*agentDay)
	acc := func(agentID string) *agentDay {
		agg, ok := byAgent[agentID]
		if !ok {
			agg = &agentDay{}
			byAgent[agentID] = agg
		}
		return agg
	}

	for _, record := range records {
		if record.AgentID == "" {
			continue
		}
		agg := acc(record.AgentID)
		if record.TeamID != "" {
			agg.teamID = record.TeamID
		}
		agg.assigned++
		agg.waitSum += record.WaitTime
		agg.waitCount++
		if !record.Bridged {
			agg.bridgeFailures++
		}
	}

	for _, session := range sessions {
		if session.EndedAt == nil {
			continue
		}
		agg := acc(session.AgentID)
		agg.completed++
		agg.handleSum += session.EndedAt.Sub(session.StartedAt).Seconds()
		agg.handleCount++
	}

	saved := 0
	for agentID, agg := range byAgent {
		stats := types.AgentDailyStats{
			AgentID:        agentID,
			Date:           dateKey,
			TeamID:         agg.teamID,
			TotalAssigned:  agg.assigned,
			TotalCompleted: agg.completed,
			BridgeFailures: agg.bridgeFailures,
		}
		if agg.waitCount > 0 {
			stats.AvgWaitTime = agg.waitSum / float64(agg.waitCount)
		}
		if agg.handleCount > 0 {
			stats.AvgHandleTime = agg.handleSum / float64(agg.handleCount)
		}
		if err := r.sink.SaveAgentDailyStats(stats); err != nil {
			r.logger.Error().Err(err).Str("agent_id", agentID).Msg("Failed to save daily stats")
			continue
		}
		saved++
	}
	return saved, nil
}
