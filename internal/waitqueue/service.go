package waitqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/voicelayer/switchboard/internal/types"
)

var (
	// ErrInvalidTransition is returned for a status change the queue lifecycle does not allow
	ErrInvalidTransition = errors.New("invalid queue status transition")
	// ErrAgentRequired is returned when assigning an entry without an agent ID
	ErrAgentRequired = errors.New("assignment requires an agent id")
)

// QueueStore is the subset of storage.Store needed by the wait queue service
type QueueStore interface {
	CreateQueueEntry(ctx context.Context, entry *types.CallQueueEntry) error
	GetQueueEntry(ctx context.Context, id string) (*types.CallQueueEntry, error)
	GetQueueEntryByCallID(ctx context.Context, callID string) (*types.CallQueueEntry, error)
	ListWaitingEntries(ctx context.Context, teamID string) ([]types.CallQueueEntry, error)
	UpdateQueueEntry(ctx context.Context, entry *types.CallQueueEntry) error
}

// Service owns the wait queue lifecycle: enqueueing calls, status
// transitions, wait time accounting, and per-team service level counters.
type Service struct {
	store           QueueStore
	slThresholdSecs int
	sl              map[string]*SLTracker // teamID -> tracker
	mu              sync.Mutex
	logger          zerolog.Logger
}

// NewService creates a new wait queue service
func NewService(store QueueStore, slThresholdSecs int, logger zerolog.Logger) *Service {
	return &Service{
		store:           store,
		slThresholdSecs: slThresholdSecs,
		sl:              make(map[string]*SLTracker),
		logger:          logger,
	}
}

// EnqueueParams describes a call to place in the wait queue
type EnqueueParams struct {
	CallID   string
	TeamID   string
	Reason   string
	Priority int
}

// Enqueue creates a waiting queue entry for a call. A call with an active
// entry cannot be enqueued again until that entry reaches a terminal state.
func (s *Service) Enqueue(ctx context.Context, params EnqueueParams) (*types.CallQueueEntry, error) {
	now := time.Now()
	entry := &types.CallQueueEntry{
		ID:                uuid.New().String(),
		CallID:            params.CallID,
		TeamID:            params.TeamID,
		ReasonForTransfer: params.Reason,
		Priority:          params.Priority,
		Status:            types.QueueWaiting,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.store.CreateQueueEntry(ctx, entry); err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("entry_id", entry.ID).
		Str("call_id", entry.CallID).
		Str("team_id", entry.TeamID).
		Int("priority", entry.Priority).
		Msg("call enqueued")

	return entry, nil
}

// ActiveQueue returns all waiting entries ordered by priority (highest first)
// then enqueue time. Wait times on the returned copies are computed live;
// stored entries keep a null wait time until they reach a terminal state.
func (s *Service) ActiveQueue(ctx context.Context, teamID string) ([]types.CallQueueEntry, error) {
	entries, err := s.store.ListWaitingEntries(ctx, teamID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	for i := range entries {
		wait := now.Sub(entries[i].CreatedAt).Seconds()
		entries[i].WaitTime = &wait
	}
	return entries, nil
}

// EntryByCall returns the most recent queue entry for a call
func (s *Service) EntryByCall(ctx context.Context, callID string) (*types.CallQueueEntry, error) {
	return s.store.GetQueueEntryByCallID(ctx, callID)
}

// Entry returns a queue entry by its ID
func (s *Service) Entry(ctx context.Context, entryID string) (*types.CallQueueEntry, error) {
	return s.store.GetQueueEntry(ctx, entryID)
}

// UpdateStatus applies a status transition to a queue entry. Assigning
// requires an agent ID. When the entry reaches a terminal state its wait
// time is frozen as the elapsed time since it was enqueued and never
// updated again.
func (s *Service) UpdateStatus(ctx context.Context, entryID string, status types.QueueStatus, agentID string) (*types.CallQueueEntry, error) {
	entry, err := s.store.GetQueueEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}

	if err := validateTransition(entry.Status, status); err != nil {
		return nil, fmt.Errorf("%w: %s -> %s", err, entry.Status, status)
	}

	now := time.Now()
	switch status {
	case types.QueueAssigned:
		if agentID == "" {
			return nil, ErrAgentRequired
		}
		entry.AssignedAgentID = agentID
		s.recordAnswer(entry.TeamID, now.Sub(entry.CreatedAt).Seconds())
	case types.QueueCompleted, types.QueueAbandoned:
		if entry.WaitTime == nil {
			wait := now.Sub(entry.CreatedAt).Seconds()
			entry.WaitTime = &wait
		}
	}

	entry.Status = status
	entry.UpdatedAt = now
	if err := s.store.UpdateQueueEntry(ctx, entry); err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("entry_id", entry.ID).
		Str("call_id", entry.CallID).
		Str("status", string(status)).
		Str("agent_id", entry.AssignedAgentID).
		Msg("queue entry updated")

	return entry, nil
}

func validateTransition(from, to types.QueueStatus) error {
	if from.Terminal() {
		return ErrInvalidTransition
	}
	switch from {
	case types.QueueWaiting:
		// A waiting call may be assigned, abandoned by the caller, or
		// completed directly by an operator cleaning up.
		if to == types.QueueAssigned || to == types.QueueAbandoned || to == types.QueueCompleted {
			return nil
		}
	case types.QueueAssigned:
		if to == types.QueueCompleted {
			return nil
		}
	}
	return ErrInvalidTransition
}

func (s *Service) recordAnswer(teamID string, waitSecs float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tracker, ok := s.sl[teamID]
	if !ok {
		tracker = NewSLTracker(s.slThresholdSecs)
		s.sl[teamID] = tracker
	}
	tracker.RecordAnswer(waitSecs)
}

// ServiceLevel returns the current service level snapshot for a team
func (s *Service) ServiceLevel(teamID string) types.ServiceLevel {
	s.mu.Lock()
	defer s.mu.Unlock()

	tracker, ok := s.sl[teamID]
	if !ok {
		return NewSLTracker(s.slThresholdSecs).Snapshot()
	}
	return tracker.Snapshot()
}

// Stats summarizes a team's queue: depth, highest waiting priority, longest
// current wait, and the service level so far.
func (s *Service) Stats(ctx context.Context, teamID string) (*types.TeamQueueSnapshot, error) {
	entries, err := s.store.ListWaitingEntries(ctx, teamID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	snapshot := &types.TeamQueueSnapshot{
		TeamID:       teamID,
		WaitingCount: len(entries),
		ServiceLevel: s.ServiceLevel(teamID),
		Timestamp:    now,
	}
	for _, entry := range entries {
		if entry.Priority > snapshot.HighestPriority {
			snapshot.HighestPriority = entry.Priority
		}
		if wait := now.Sub(entry.CreatedAt).Seconds(); wait > snapshot.LongestWaitSecs {
			snapshot.LongestWaitSecs = wait
		}
	}
	return snapshot, nil
}

// TeamSnapshots returns queue stats for every team that currently has
// waiting calls or has assigned calls since startup.
func (s *Service) TeamSnapshots(ctx context.Context) ([]types.TeamQueueSnapshot, error) {
	entries, err := s.store.ListWaitingEntries(ctx, "")
	if err != nil {
		return nil, err
	}

	teams := make(map[string]bool)
	for _, entry := range entries {
		teams[entry.TeamID] = true
	}
	s.mu.Lock()
	for teamID := range s.sl {
		teams[teamID] = true
	}
	s.mu.Unlock()

	snapshots := make([]types.TeamQueueSnapshot, 0, len(teams))
	for teamID := range teams {
		snapshot, err := s.Stats(ctx, teamID)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, *snapshot)
	}
	return snapshots, nil
}
