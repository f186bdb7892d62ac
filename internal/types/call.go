package types

import "time"

// CallStatus represents the lifecycle state of a call
type CallStatus string

const (
	CallStatusInitiated    CallStatus = "initiated"
	CallStatusActive       CallStatus = "active"
	CallStatusInProgress   CallStatus = "in_progress"
	CallStatusQueued       CallStatus = "queued"
	CallStatusTransferring CallStatus = "transferring"
	CallStatusCompleted    CallStatus = "completed"
	CallStatusFailed       CallStatus = "failed"
)

// ValidCallStatus reports whether s is a known call status
func ValidCallStatus(s CallStatus) bool {
	switch s {
	case CallStatusInitiated, CallStatusActive, CallStatusInProgress,
		CallStatusQueued, CallStatusTransferring, CallStatusCompleted, CallStatusFailed:
		return true
	}
	return false
}

// LiveStatuses is the default set of statuses shown on live dashboards
var LiveStatuses = []CallStatus{
	CallStatusActive,
	CallStatusInProgress,
	CallStatusQueued,
	CallStatusTransferring,
	CallStatusInitiated,
}

// Call represents a voice conversation tracked by the platform
type Call struct {
	ID             string     `json:"id"`
	ProviderCallID string     `json:"providerCallId,omitempty"` // voice-provider identifier, needed for live transfers
	TeamID         string     `json:"teamId,omitempty"`
	CallerNumber   string     `json:"callerNumber,omitempty"`
	Status         CallStatus `json:"status"`
	StartedAt      time.Time  `json:"startedAt"`
	EndedAt        *time.Time `json:"endedAt,omitempty"`
	Duration       *float64   `json:"duration,omitempty"` // seconds, reported by the provider on completion
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// TranscriptLine is one utterance in a call transcript
type TranscriptLine struct {
	ID        string    `json:"id"`
	CallID    string    `json:"callId"`
	Speaker   string    `json:"speaker"` // "caller", "bot" or "agent"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// AnalyticsSnapshot is one point-in-time measurement recorded during a call
type AnalyticsSnapshot struct {
	ID                string    `json:"id"`
	CallID            string    `json:"callId"`
	SentimentScore    float64   `json:"sentimentScore"` // -1.0 to 1.0
	SentimentLabel    string    `json:"sentimentLabel"`
	LatencyMs         float64   `json:"latencyMs"`
	TalkTimeSecs      float64   `json:"talkTimeSecs"`
	SilenceTimeSecs   float64   `json:"silenceTimeSecs"`
	InterruptionCount int       `json:"interruptionCount"`
	CreatedAt         time.Time `json:"createdAt"`
}

// QueueInfo is the queue metadata attached to a live call view
type QueueInfo struct {
	Status          QueueStatus `json:"status"`
	Priority        int         `json:"priority"`
	WaitTime        *float64    `json:"waitTime,omitempty"`
	AssignedAgentID string      `json:"assignedAgentId,omitempty"`
}

// LiveCallSummary is the list-view projection of a live call
type LiveCallSummary struct {
	Call             Call               `json:"call"`
	LatestAnalytics  *AnalyticsSnapshot `json:"latestAnalytics,omitempty"`
	LatestTranscript *TranscriptLine    `json:"latestTranscript,omitempty"`
	Queue            *QueueInfo         `json:"queue,omitempty"`
}

// LiveCallDetail is the full detail view of one call
type LiveCallDetail struct {
	Call       Call                `json:"call"`
	Transcript []TranscriptLine    `json:"transcript"`
	Analytics  []AnalyticsSnapshot `json:"analytics"`
	Queue      *CallQueueEntry     `json:"queue,omitempty"`
}

// LiveCallMetrics holds running averages computed over a call's analytics history
type LiveCallMetrics struct {
	CallID             string  `json:"callId"`
	AvgSentimentScore  float64 `json:"avgSentimentScore"`
	SentimentLabel     string  `json:"sentimentLabel,omitempty"` // label of the most recent snapshot
	AvgLatencyMs       float64 `json:"avgLatencyMs"`
	AvgTalkTimeSecs    float64 `json:"avgTalkTimeSecs"`
	AvgSilenceTimeSecs float64 `json:"avgSilenceTimeSecs"`
	AvgInterruptions   float64 `json:"avgInterruptions"`
	DurationSecs       float64 `json:"durationSecs"`
	SnapshotCount      int     `json:"snapshotCount"`
}

// Pagination describes an offset-paged result window
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

// LiveCallPage is one page of live calls
type LiveCallPage struct {
	Items      []LiveCallSummary `json:"items"`
	Pagination Pagination        `json:"pagination"`
}
