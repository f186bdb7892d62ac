package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/voicelayer/switchboard/internal/types"
)

// MemoryStore is an in-memory Store implementation used for development and tests
type MemoryStore struct {
	mu          sync.RWMutex
	agents      map[string]*types.Agent
	sessions    map[string]*types.AgentSession
	entries     map[string]*types.CallQueueEntry
	transferLog []*types.TransferLogEntry
	calls       map[string]*types.Call
	transcripts map[string][]types.TranscriptLine
	analytics   map[string][]types.AnalyticsSnapshot
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agents:      make(map[string]*types.Agent),
		sessions:    make(map[string]*types.AgentSession),
		entries:     make(map[string]*types.CallQueueEntry),
		calls:       make(map[string]*types.Call),
		transcripts: make(map[string][]types.TranscriptLine),
		analytics:   make(map[string][]types.AnalyticsSnapshot),
	}
}

func (s *MemoryStore) UpsertAgent(_ context.Context, agent *types.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *agent
	s.agents[agent.ID] = &cp
	return nil
}

func (s *MemoryStore) GetAgent(_ context.Context, id string) (*types.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agent, ok := s.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *agent
	return &cp, nil
}

func (s *MemoryStore) ListAgents(_ context.Context, teamID string) ([]types.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agents := make([]types.Agent, 0, len(s.agents))
	for _, agent := range s.agents {
		if teamID != "" && agent.TeamID != teamID {
			continue
		}
		agents = append(agents, *agent)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	return agents, nil
}

func (s *MemoryStore) CreateSession(_ context.Context, session *types.AgentSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *MemoryStore) AppendSessionNote(_ context.Context, sessionID, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	if session.Notes == "" {
		session.Notes = note
	} else {
		session.Notes += "\n" + note
	}
	return nil
}

func (s *MemoryStore) EndSessionsForCall(_ context.Context, callID string, endedAt time.Time) ([]types.AgentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var closed []types.AgentSession
	for _, session := range s.sessions {
		if session.CallID == callID && session.EndedAt == nil {
			end := endedAt
			session.EndedAt = &end
			closed = append(closed, *session)
		}
	}
	return closed, nil
}

func (s *MemoryStore) OpenSessionCounts(_ context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, session := range s.sessions {
		if session.EndedAt == nil {
			counts[session.AgentID]++
		}
	}
	return counts, nil
}

func (s *MemoryStore) ListSessionsStartedBetween(_ context.Context, from, to time.Time) ([]types.AgentSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sessions []types.AgentSession
	for _, session := range s.sessions {
		if !session.StartedAt.Before(from) && session.StartedAt.Before(to) {
			sessions = append(sessions, *session)
		}
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].StartedAt.Before(sessions[j].StartedAt) })
	return sessions, nil
}

func (s *MemoryStore) CreateQueueEntry(_ context.Context, entry *types.CallQueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.entries {
		if existing.CallID == entry.CallID && !existing.Status.Terminal() {
			return ErrDuplicateCall
		}
	}

	cp := *entry
	s.entries[entry.ID] = &cp
	return nil
}

func (s *MemoryStore) GetQueueEntry(_ context.Context, id string) (*types.CallQueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *entry
	return &cp, nil
}

func (s *MemoryStore) GetQueueEntryByCallID(_ context.Context, callID string) (*types.CallQueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *types.CallQueueEntry
	for _, entry := range s.entries {
		if entry.CallID != callID {
			continue
		}
		if latest == nil || entry.CreatedAt.After(latest.CreatedAt) {
			latest = entry
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *MemoryStore) ListWaitingEntries(_ context.Context, teamID string) ([]types.CallQueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]types.CallQueueEntry, 0)
	for _, entry := range s.entries {
		if entry.Status != types.QueueWaiting {
			continue
		}
		if teamID != "" && entry.TeamID != teamID {
			continue
		}
		entries = append(entries, *entry)
	}

	// Priority descending, then FIFO within equal priority
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Priority != entries[j].Priority {
			return entries[i].Priority > entries[j].Priority
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}

func (s *MemoryStore) UpdateQueueEntry(_ context.Context, entry *types.CallQueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[entry.ID]; !ok {
		return ErrNotFound
	}
	cp := *entry
	s.entries[entry.ID] = &cp
	return nil
}

func (s *MemoryStore) ListEntriesCreatedBetween(_ context.Context, from, to time.Time) ([]types.CallQueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []types.CallQueueEntry
	for _, entry := range s.entries {
		if !entry.CreatedAt.Before(from) && entry.CreatedAt.Before(to) {
			entries = append(entries, *entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.Before(entries[j].CreatedAt) })
	return entries, nil
}

func (s *MemoryStore) AppendTransferLog(_ context.Context, entry *types.TransferLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *entry
	s.transferLog = append(s.transferLog, &cp)
	return nil
}

func (s *MemoryStore) ListTransferLog(_ context.Context, callID string) ([]types.TransferLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var log []types.TransferLogEntry
	for _, entry := range s.transferLog {
		if entry.CallID == callID {
			log = append(log, *entry)
		}
	}
	return log, nil
}

func (s *MemoryStore) UpsertCall(_ context.Context, call *types.Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *call
	s.calls[call.ID] = &cp
	return nil
}

func (s *MemoryStore) GetCall(_ context.Context, id string) (*types.Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	call, ok := s.calls[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *call
	return &cp, nil
}

func (s *MemoryStore) ListCallsByStatus(_ context.Context, teamID string, statuses []types.CallStatus, limit, offset int) ([]types.Call, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[types.CallStatus]bool, len(statuses))
	for _, st := range statuses {
		wanted[st] = true
	}

	matched := make([]types.Call, 0)
	for _, call := range s.calls {
		if teamID != "" && call.TeamID != teamID {
			continue
		}
		if len(wanted) > 0 && !wanted[call.Status] {
			continue
		}
		matched = append(matched, *call)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].StartedAt.Equal(matched[j].StartedAt) {
			return matched[i].StartedAt.After(matched[j].StartedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	if offset >= total {
		return []types.Call{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (s *MemoryStore) AppendTranscriptLine(_ context.Context, line *types.TranscriptLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transcripts[line.CallID] = append(s.transcripts[line.CallID], *line)
	return nil
}

func (s *MemoryStore) ListTranscript(_ context.Context, callID string) ([]types.TranscriptLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := make([]types.TranscriptLine, len(s.transcripts[callID]))
	copy(lines, s.transcripts[callID])
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Timestamp.Before(lines[j].Timestamp) })
	return lines, nil
}

func (s *MemoryStore) LatestTranscriptLine(_ context.Context, callID string) (*types.TranscriptLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := s.transcripts[callID]
	if len(lines) == 0 {
		return nil, ErrNotFound
	}
	latest := lines[0]
	for _, line := range lines[1:] {
		if !line.Timestamp.Before(latest.Timestamp) {
			latest = line
		}
	}
	return &latest, nil
}

func (s *MemoryStore) AppendAnalyticsSnapshot(_ context.Context, snap *types.AnalyticsSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.analytics[snap.CallID] = append(s.analytics[snap.CallID], *snap)
	return nil
}

func (s *MemoryStore) ListAnalytics(_ context.Context, callID string) ([]types.AnalyticsSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snaps := make([]types.AnalyticsSnapshot, len(s.analytics[callID]))
	copy(snaps, s.analytics[callID])
	sort.SliceStable(snaps, func(i, j int) bool { return snaps[i].CreatedAt.Before(snaps[j].CreatedAt) })
	return snaps, nil
}

func (s *MemoryStore) LatestAnalyticsSnapshot(_ context.Context, callID string) (*types.AnalyticsSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snaps := s.analytics[callID]
	if len(snaps) == 0 {
		return nil, ErrNotFound
	}
	latest := snaps[0]
	for _, snap := range snaps[1:] {
		if !snap.CreatedAt.Before(latest.CreatedAt) {
			latest = snap
		}
	}
	return &latest, nil
}

func (s *MemoryStore) Close() error { return nil }
