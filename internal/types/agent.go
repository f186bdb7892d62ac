package types

import "time"

// AgentStatus represents an agent's availability
type AgentStatus string

const (
	AgentOnline  AgentStatus = "online"
	AgentOffline AgentStatus = "offline"
	AgentBusy    AgentStatus = "busy" // manually set do-not-disturb, distinct from being at capacity
)

// ValidAgentStatus reports whether s is a known availability value
func ValidAgentStatus(s AgentStatus) bool {
	switch s {
	case AgentOnline, AgentOffline, AgentBusy:
		return true
	}
	return false
}

// Agent represents a human operator that can receive escalated calls
type Agent struct {
	ID                 string      `json:"id"`
	Name               string      `json:"name"`
	ContactEndpoint    string      `json:"contactEndpoint"` // phone number or SIP URI used for live transfers
	TeamID             string      `json:"teamId"`
	Status             AgentStatus `json:"status"`
	Skills             []string    `json:"skills"`
	MaxConcurrentCalls int         `json:"maxConcurrentCalls"`
	CreatedAt          time.Time   `json:"createdAt"`
	UpdatedAt          time.Time   `json:"updatedAt"`
}

// HasAnySkill reports whether the agent's skill set intersects required.
// An empty required set matches every agent.
func (a *Agent) HasAnySkill(required []string) bool {
	if len(required) == 0 {
		return true
	}
	for _, want := range required {
		for _, have := range a.Skills {
			if have == want {
				return true
			}
		}
	}
	return false
}

// AgentSession represents one agent handling one call.
// A session is open while EndedAt is nil.
type AgentSession struct {
	ID        string     `json:"id"`
	AgentID   string     `json:"agentId"`
	CallID    string     `json:"callId"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	Notes     string     `json:"notes,omitempty"`
}

// AgentLoad pairs an agent with its current open session count
type AgentLoad struct {
	Agent Agent `json:"agent"`
	Load  int   `json:"load"`
}
