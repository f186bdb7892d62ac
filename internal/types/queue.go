package types

import "time"

// QueueStatus represents the lifecycle state of a queue entry
type QueueStatus string

const (
	QueueWaiting   QueueStatus = "waiting"   // no agent could take the call yet
	QueueAssigned  QueueStatus = "assigned"  // an agent picked it up
	QueueCompleted QueueStatus = "completed" // call ended after assignment
	QueueAbandoned QueueStatus = "abandoned" // caller hung up while waiting
)

// Terminal reports whether s is a final queue state
func (s QueueStatus) Terminal() bool {
	return s == QueueCompleted || s == QueueAbandoned
}

// CallQueueEntry represents one call waiting for (or recently assigned) a human agent
type CallQueueEntry struct {
	ID                string      `json:"id"`
	CallID            string      `json:"callId"`
	TeamID            string      `json:"teamId,omitempty"`
	ReasonForTransfer string      `json:"reasonForTransfer,omitempty"`
	Priority          int         `json:"priority"` // higher is more urgent
	Status            QueueStatus `json:"status"`
	AssignedAgentID   string      `json:"assignedAgentId,omitempty"`
	WaitTime          *float64    `json:"waitTime,omitempty"` // seconds, frozen when the entry reaches a terminal state
	CreatedAt         time.Time   `json:"createdAt"`
	UpdatedAt         time.Time   `json:"updatedAt"`
}

// TransferLogEntry is an append-only audit record of a transfer request.
// Written before the routing decision is made and never mutated afterwards.
type TransferLogEntry struct {
	ID        string                 `json:"id"`
	CallID    string                 `json:"callId"`
	FromBot   bool                   `json:"fromBot"` // true when the automated voice agent requested the hand-off
	AgentID   string                 `json:"agentId,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

// ServiceLevel tracks answered-within-threshold counters for a team's queue
type ServiceLevel struct {
	ThresholdSecs int     `json:"thresholdSecs"` // threshold in seconds (e.g., 20)
	AnsweredInSL  int     `json:"answeredInSL"`  // calls assigned within threshold
	TotalAnswered int     `json:"totalAnswered"` // total calls assigned
	CurrentSL     float64 `json:"currentSL"`     // calculated SL percentage
}

// TeamQueueSnapshot summarizes one team's wait queue at a point in time
type TeamQueueSnapshot struct {
	TeamID          string       `json:"teamId"`
	WaitingCount    int          `json:"waitingCount"`
	HighestPriority int          `json:"highestPriority"`
	LongestWaitSecs float64      `json:"longestWaitSecs"`
	ServiceLevel    ServiceLevel `json:"serviceLevel"`
	Timestamp       time.Time    `json:"timestamp"`
}
