package directory

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voicelayer/switchboard/internal/types"
)

func testAgent(id, teamID string, maxCalls int, skills ...string) types.Agent {
	return types.Agent{
		ID:                 id,
		Name:               id,
		TeamID:             teamID,
		Status:             types.AgentOnline,
		Skills:             skills,
		MaxConcurrentCalls: maxCalls,
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}
}

func TestRegisterAndGet(t *testing.T) {
	registry := NewRegistry()

	registry.Register(testAgent("agent-1", "support", 2, "billing"))

	got, err := registry.Get("agent-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Load != 0 {
		t.Errorf("expected zero load for new agent, got %d", got.Load)
	}

	if _, err := registry.Get("missing"); !errors.Is(err, ErrAgentNotFound) {
		t.Errorf("expected ErrAgentNotFound, got %v", err)
	}
}

func TestRegisterPreservesLoad(t *testing.T) {
	registry := NewRegistry()
	registry.Register(testAgent("agent-1", "support", 3))

	if _, err := registry.Reserve("agent-1"); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	// Re-registering (profile update) must not reset the live load
	updated := testAgent("agent-1", "support", 3, "billing")
	result := registry.Register(updated)
	if result.Load != 1 {
		t.Errorf("expected load 1 preserved across re-register, got %d", result.Load)
	}
}

func TestReserveRespectsCapacity(t *testing.T) {
	registry := NewRegistry()
	registry.Register(testAgent("agent-1", "support", 2))

	for i := 0; i < 2; i++ {
		if _, err := registry.Reserve("agent-1"); err != nil {
			t.Fatalf("Reserve %d failed: %v", i, err)
		}
	}

	if _, err := registry.Reserve("agent-1"); !errors.Is(err, ErrAgentUnavailable) {
		t.Errorf("expected ErrAgentUnavailable at capacity, got %v", err)
	}

	if _, err := registry.Release("agent-1"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := registry.Reserve("agent-1"); err != nil {
		t.Errorf("expected Reserve to succeed after Release, got %v", err)
	}
}

func TestReserveRejectsOfflineAndBusy(t *testing.T) {
	registry := NewRegistry()
	registry.Register(testAgent("agent-1", "support", 2))

	if _, err := registry.SetStatus("agent-1", types.AgentOffline); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	if _, err := registry.Reserve("agent-1"); !errors.Is(err, ErrAgentUnavailable) {
		t.Errorf("expected ErrAgentUnavailable for offline agent, got %v", err)
	}

	if _, err := registry.SetStatus("agent-1", types.AgentBusy); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	if _, err := registry.Reserve("agent-1"); !errors.Is(err, ErrAgentUnavailable) {
		t.Errorf("expected ErrAgentUnavailable for busy agent, got %v", err)
	}
}

func TestConcurrentReserveNeverExceedsCapacity(t *testing.T) {
	registry := NewRegistry()
	registry.Register(testAgent("agent-1", "support", 2))

	const attempts = 50
	var (
		wg        sync.WaitGroup
		succeeded int64
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := registry.Reserve("agent-1"); err == nil {
				atomic.AddInt64(&succeeded, 1)
			}
		}()
	}
	wg.Wait()

	if succeeded != 2 {
		t.Errorf("expected exactly 2 successful reservations, got %d", succeeded)
	}

	got, _ := registry.Get("agent-1")
	if got.Load != 2 {
		t.Errorf("expected load 2 after concurrent reservations, got %d", got.Load)
	}
}

func TestFindAvailableFiltersAndSorts(t *testing.T) {
	registry := NewRegistry()
	registry.Register(testAgent("agent-a", "support", 2, "billing"))
	registry.Register(testAgent("agent-b", "support", 2, "billing", "tech"))
	registry.Register(testAgent("agent-c", "support", 1, "tech"))
	registry.Register(testAgent("agent-d", "sales", 2, "billing"))

	offline := testAgent("agent-e", "support", 2, "billing")
	offline.Status = types.AgentOffline
	registry.Register(offline)

	// agent-a takes a call, so agent-b should come first among billing agents
	if _, err := registry.Reserve("agent-a"); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	available := registry.FindAvailable("support", []string{"billing"})
	if len(available) != 2 {
		t.Fatalf("expected 2 available billing agents, got %d", len(available))
	}
	if available[0].Agent.ID != "agent-b" || available[1].Agent.ID != "agent-a" {
		t.Errorf("expected least loaded first [agent-b agent-a], got [%s %s]",
			available[0].Agent.ID, available[1].Agent.ID)
	}

	// A saturated agent disappears from the pool
	if _, err := registry.Reserve("agent-c"); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	tech := registry.FindAvailable("support", []string{"tech"})
	if len(tech) != 1 || tech[0].Agent.ID != "agent-b" {
		t.Errorf("expected only agent-b available for tech, got %+v", tech)
	}

	// Empty skill list matches any agent
	any := registry.FindAvailable("support", nil)
	if len(any) != 3 {
		t.Errorf("expected 3 available support agents for no skill filter, got %d", len(any))
	}
}

func TestHydrateSeedsLoads(t *testing.T) {
	registry := NewRegistry()
	registry.Hydrate(
		[]types.Agent{
			testAgent("agent-1", "support", 2),
			testAgent("agent-2", "support", 1),
		},
		map[string]int{"agent-1": 2, "agent-2": 0},
	)

	if _, err := registry.Reserve("agent-1"); !errors.Is(err, ErrAgentUnavailable) {
		t.Errorf("expected hydrated agent-1 to be at capacity, got %v", err)
	}
	if _, err := registry.Reserve("agent-2"); err != nil {
		t.Errorf("expected hydrated agent-2 to accept a call, got %v", err)
	}
	if registry.TotalLoad() != 3 {
		t.Errorf("expected total load 3, got %d", registry.TotalLoad())
	}
}

func TestReleaseFloorsAtZero(t *testing.T) {
	registry := NewRegistry()
	registry.Register(testAgent("agent-1", "support", 2))

	result, err := registry.Release("agent-1")
	if err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if result.Load != 0 {
		t.Errorf("expected load to stay at 0, got %d", result.Load)
	}
}

func TestSnapshotSortedByID(t *testing.T) {
	registry := NewRegistry()
	registry.Register(testAgent("agent-c", "support", 2))
	registry.Register(testAgent("agent-a", "support", 2))
	registry.Register(testAgent("agent-b", "sales", 2))

	all := registry.Snapshot("")
	if len(all) != 3 {
		t.Fatalf("expected 3 agents, got %d", len(all))
	}
	if all[0].Agent.ID != "agent-a" || all[2].Agent.ID != "agent-c" {
		t.Errorf("expected agents sorted by ID, got %s %s %s",
			all[0].Agent.ID, all[1].Agent.ID, all[2].Agent.ID)
	}

	support := registry.Snapshot("support")
	if len(support) != 2 {
		t.Errorf("expected 2 support agents, got %d", len(support))
	}
}
