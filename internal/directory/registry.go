package directory

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/voicelayer/switchboard/internal/types"
)

var (
	// ErrAgentNotFound is returned when an agent is not present in the registry
	ErrAgentNotFound = errors.New("agent not found in directory")
	// ErrAgentUnavailable is returned when a reservation fails because the agent
	// is offline, busy, or already at capacity
	ErrAgentUnavailable = errors.New("agent unavailable for reservation")
)

// Registry maintains the current status and live call load of all agents.
// Load counters are authoritative here; the store keeps sessions for audit.
type Registry struct {
	agents map[string]*agentEntry // agentID -> current state
	mu     sync.RWMutex
}

type agentEntry struct {
	agent types.Agent
	load  int
}

// NewRegistry creates a new agent registry
func NewRegistry() *Registry {
	return &Registry{
		agents: make(map[string]*agentEntry),
	}
}

// Hydrate seeds the registry from persisted agents and their open session
// counts. Called once at startup before any reservations are taken.
func (r *Registry) Hydrate(agents []types.Agent, openLoads map[string]int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, agent := range agents {
		r.agents[agent.ID] = &agentEntry{
			agent: agent,
			load:  openLoads[agent.ID],
		}
	}
}

// Register adds or updates an agent. An existing agent keeps its current load.
func (r *Registry) Register(agent types.Agent) types.AgentLoad {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.agents[agent.ID]
	load := 0
	if exists {
		load = existing.load
	}
	r.agents[agent.ID] = &agentEntry{agent: agent, load: load}
	return types.AgentLoad{Agent: agent, Load: load}
}

// Get returns the current state of a single agent
func (r *Registry) Get(agentID string) (types.AgentLoad, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.agents[agentID]
	if !exists {
		return types.AgentLoad{}, ErrAgentNotFound
	}
	return types.AgentLoad{Agent: entry.agent, Load: entry.load}, nil
}

// SetStatus updates an agent's availability status
func (r *Registry) SetStatus(agentID string, status types.AgentStatus) (types.AgentLoad, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.agents[agentID]
	if !exists {
		return types.AgentLoad{}, ErrAgentNotFound
	}
	entry.agent.Status = status
	entry.agent.UpdatedAt = time.Now()
	return types.AgentLoad{Agent: entry.agent, Load: entry.load}, nil
}

// FindAvailable returns agents that are online, below capacity, in the given
// team, and hold at least one of the required skills. Least loaded first so
// assignments spread across the team.
func (r *Registry) FindAvailable(teamID string, skills []string) []types.AgentLoad {
	r.mu.RLock()
	defer r.mu.RUnlock()

	available := make([]types.AgentLoad, 0)
	for _, entry := range r.agents {
		if entry.agent.Status != types.AgentOnline {
			continue
		}
		if entry.load >= entry.agent.MaxConcurrentCalls {
			continue
		}
		if teamID != "" && entry.agent.TeamID != teamID {
			continue
		}
		if !entry.agent.HasAnySkill(skills) {
			continue
		}
		available = append(available, types.AgentLoad{Agent: entry.agent, Load: entry.load})
	}

	sort.Slice(available, func(i, j int) bool {
		if available[i].Load != available[j].Load {
			return available[i].Load < available[j].Load
		}
		return available[i].Agent.ID < available[j].Agent.ID
	})
	return available
}

// Reserve atomically claims one unit of capacity on an agent. The status and
// load checks happen under the same lock as the increment, so two concurrent
// reservations can never both take an agent's last slot.
func (r *Registry) Reserve(agentID string) (types.AgentLoad, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.agents[agentID]
	if !exists {
		return types.AgentLoad{}, ErrAgentNotFound
	}
	if entry.agent.Status != types.AgentOnline {
		return types.AgentLoad{}, ErrAgentUnavailable
	}
	if entry.load >= entry.agent.MaxConcurrentCalls {
		return types.AgentLoad{}, ErrAgentUnavailable
	}
	entry.load++
	return types.AgentLoad{Agent: entry.agent, Load: entry.load}, nil
}

// Release returns one unit of capacity to an agent. Load never goes below zero.
func (r *Registry) Release(agentID string) (types.AgentLoad, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.agents[agentID]
	if !exists {
		return types.AgentLoad{}, ErrAgentNotFound
	}
	if entry.load > 0 {
		entry.load--
	}
	return types.AgentLoad{Agent: entry.agent, Load: entry.load}, nil
}

// Snapshot returns all agents with their current loads, sorted by ID.
// An empty teamID matches all teams.
func (r *Registry) Snapshot(teamID string) []types.AgentLoad {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roster := make([]types.AgentLoad, 0, len(r.agents))
	for _, entry := range r.agents {
		if teamID != "" && entry.agent.TeamID != teamID {
			continue
		}
		roster = append(roster, types.AgentLoad{Agent: entry.agent, Load: entry.load})
	}
	sort.Slice(roster, func(i, j int) bool {
		return roster[i].Agent.ID < roster[j].Agent.ID
	})
	return roster
}

// Count returns the total number of registered agents
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// TotalLoad returns the sum of live calls across all agents
func (r *Registry) TotalLoad() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, entry := range r.agents {
		total += entry.load
	}
	return total
}
