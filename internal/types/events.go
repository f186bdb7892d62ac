package types

import "time"

// Topic identifies a broadcast channel dashboard clients can subscribe to
type Topic string

const (
	TopicCalls         Topic = "calls"
	TopicOrders        Topic = "orders"
	TopicAgents        Topic = "agents"
	TopicQueue         Topic = "queue"
	TopicAlerts        Topic = "alerts"
	TopicNotifications Topic = "notifications"
	TopicAnalytics     Topic = "analytics"

	// TopicSystem is reserved for server control replies (connected, pong).
	// It is not subscribable; every client receives system messages.
	TopicSystem Topic = "system"
)

// AllTopics lists every subscribable topic
var AllTopics = []Topic{
	TopicCalls,
	TopicOrders,
	TopicAgents,
	TopicQueue,
	TopicAlerts,
	TopicNotifications,
	TopicAnalytics,
}

// ValidTopic reports whether name is a subscribable topic
func ValidTopic(name string) bool {
	for _, t := range AllTopics {
		if string(t) == name {
			return true
		}
	}
	return false
}

// Envelope is the wire format for every broadcast event
type Envelope struct {
	Type      Topic       `json:"type"`
	Event     string      `json:"event"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// ControlMessage is a client-to-server WebSocket control frame
type ControlMessage struct {
	Type     string   `json:"type"` // "subscribe", "unsubscribe" or "ping"
	Channels []string `json:"channels,omitempty"`
}

// Control message types
const (
	ControlSubscribe   = "subscribe"
	ControlUnsubscribe = "unsubscribe"
	ControlPing        = "ping"
)

// Event names published on the queue topic
const (
	EventCallAdded    = "call_added"
	EventCallAssigned = "call_assigned"
	EventCallUpdated  = "call_updated"
	EventQueueStats   = "stats"
)

// Event names published on the calls topic
const (
	EventCallStarted    = "call_started"
	EventCallEnded      = "call_ended"
	EventCallStatus     = "status_changed"
	EventTranscriptLine = "transcript_line"
)

// Event names published on the agents topic
const (
	EventAgentStatus = "status_changed"
	EventAgentLoad   = "load_changed"
	EventAgentRoster = "roster"
)

// Event names published on the alerts topic
const (
	EventQueueDepthAlert = "queue_depth"
	EventQueueWaitAlert  = "queue_wait"
	EventBridgeFailure   = "bridge_failure"
)

// Event names published on the analytics topic
const (
	EventSnapshotRecorded = "snapshot_recorded"
)

// Event names published on the system pseudo-topic
const (
	EventConnected = "connected"
	EventPong      = "pong"
)
