package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/voicelayer/switchboard/internal/types"
	"github.com/voicelayer/switchboard/internal/waitqueue"
)

// Severity of a fired alert
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is one fired alert rule evaluation
type Alert struct {
	Rule      string    `json:"rule"`
	Severity  Severity  `json:"severity"`
	TeamID    string    `json:"teamId,omitempty"`
	Message   string    `json:"message"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// Thresholds configures the queue alert rules. A zero threshold
// disables the rule.
type Thresholds struct {
	QueueDepthWarning  int
	QueueDepthCritical int
	QueueWaitWarning   time.Duration
	QueueWaitCritical  time.Duration
	Cooldown           time.Duration
}

// Publisher pushes envelopes to connected dashboard clients
type Publisher interface {
	Publish(env types.Envelope)
}

// Checker periodically evaluates queue health per team and raises
// alerts. Identical alerts are suppressed for the cooldown window so a
// deep queue does not flood the alert channel every tick.
type Checker struct {
	queue      *waitqueue.Service
	hub        Publisher
	thresholds Thresholds
	interval   time.Duration
	logger     zerolog.Logger

	mu        sync.Mutex
	lastFired map[string]time.Time
}

func NewChecker(queue *waitqueue.Service, hub Publisher, thresholds Thresholds, interval time.Duration, logger zerolog.Logger) *Checker {
	return &Checker{
		queue:      queue,
		hub:        hub,
		thresholds: thresholds,
		interval:   interval,
		logger:     logger.With().Str("component", "alerts").Logger(),
		lastFired:  make(map[string]time.Time),
	}
}

// Run blocks until ctx is cancelled
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info().Dur("interval", c.interval).Msg("Alert checker started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("Alert checker stopped")
			return
		case <-ticker.C:
			c.CheckOnce(ctx)
		}
	}
}

// CheckOnce evaluates every team's queue snapshot and returns the
// alerts that actually fired (survived the cooldown)
func (c *Checker) CheckOnce(ctx context.Context) []Alert {
	snapshots, err := c.queue.TeamSnapshots(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to load queue snapshots")
		return nil
	}

	now := time.Now().UTC()
	var fired []Alert
	for _, snap := range snapshots {
		for _, alert := range c.evaluate(snap, now) {
			if !c.shouldFire(alert.Rule+"/"+alert.TeamID, now) {
				continue
			}
			c.publish(alert)
			fired = append(fired, alert)
		}
	}
	return fired
}

func (c *Checker) evaluate(snap types.TeamQueueSnapshot, now time.Time) []Alert {
	var alerts []Alert

	if rule := c.depthAlert(snap, now); rule != nil {
		alerts = append(alerts, *rule)
	}
	if rule := c.waitAlert(snap, now); rule != nil {
		alerts = append(alerts, *rule)
	}
	return alerts
}

func (c *Checker) depthAlert(snap types.TeamQueueSnapshot, now time.Time) *Alert {
	depth := snap.WaitingCount
	var severity Severity
	var threshold int
	switch {
	case c.thresholds.QueueDepthCritical > 0 && depth >= c.thresholds.QueueDepthCritical:
		severity, threshold = SeverityCritical, c.thresholds.QueueDepthCritical
	case c.thresholds.QueueDepthWarning > 0 && depth >= c.thresholds.QueueDepthWarning:
		severity, threshold = SeverityWarning, c.thresholds.QueueDepthWarning
	default:
		return nil
	}
	return &Alert{
		Rule:      "queue_depth",
		Severity:  severity,
		TeamID:    snap.TeamID,
		Message:   fmt.Sprintf("%d calls waiting for team %s", depth, snap.TeamID),
		Value:     float64(depth),
		Threshold: float64(threshold),
		Timestamp: now,
	}
}

func (c *Checker) waitAlert(snap types.TeamQueueSnapshot, now time.Time) *Alert {
	wait := time.Duration(snap.LongestWaitSecs * float64(time.Second))
	var severity Severity
	var threshold time.Duration
	switch {
	case c.thresholds.QueueWaitCritical > 0 && wait >= c.thresholds.QueueWaitCritical:
		severity, threshold = SeverityCritical, c.thresholds.QueueWaitCritical
	case c.thresholds.QueueWaitWarning > 0 && wait >= c.thresholds.QueueWaitWarning:
		severity, threshold = SeverityWarning, c.thresholds.QueueWaitWarning
	default:
		return nil
	}
	return &Alert{
		Rule:      "queue_wait",
		Severity:  severity,
		TeamID:    snap.TeamID,
		Message:   fmt.Sprintf("Longest wait for team %s is %s", snap.TeamID, formatDuration(wait)),
		Value:     snap.LongestWaitSecs,
		Threshold: threshold.Seconds(),
		Timestamp: now,
	}
}

func (c *Checker) publish(alert Alert) {
	event := types.EventQueueDepthAlert
	if alert.Rule == "queue_wait" {
		event = types.EventQueueWaitAlert
	}
	c.hub.Publish(types.Envelope{Type: types.TopicAlerts, Event: event, Payload: alert})
	c.logger.Warn().
		Str("rule", alert.Rule).
		Str("severity", string(alert.Severity)).
		Str("team_id", alert.TeamID).
		Float64("value", alert.Value).
		Msg(alert.Message)
}

func (c *Checker) shouldFire(key string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if last, ok := c.lastFired[key]; ok && now.Sub(last) < c.thresholds.Cooldown {
		return false
	}
	c.lastFired[key] = now
	return true
}

func formatDuration(d time.Duration) string {
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if mins >= 60 {
		hours := mins / 60
		mins = mins % 60
		return fmt.Sprintf("%dh%dm", hours, mins)
	}
	return fmt.Sprintf("%dm%ds", mins, secs)
}
