package storage

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/voicelayer/switchboard/internal/types"
)

var (
	// ErrNotFound is returned when a record does not exist in the store
	ErrNotFound = errors.New("record not found in store")

	// ErrDuplicateCall is returned when an active queue entry already exists for a call
	ErrDuplicateCall = errors.New("active queue entry already exists for call")
)

// Store is the operational persistence layer for agents, sessions,
// queue entries, the transfer log, calls, transcripts and analytics.
type Store interface {
	// Agents
	UpsertAgent(ctx context.Context, agent *types.Agent) error
	GetAgent(ctx context.Context, id string) (*types.Agent, error)
	ListAgents(ctx context.Context, teamID string) ([]types.Agent, error)

	// Sessions
	CreateSession(ctx context.Context, session *types.AgentSession) error
	AppendSessionNote(ctx context.Context, sessionID, note string) error
	EndSessionsForCall(ctx context.Context, callID string, endedAt time.Time) ([]types.AgentSession, error)
	OpenSessionCounts(ctx context.Context) (map[string]int, error)
	ListSessionsStartedBetween(ctx context.Context, from, to time.Time) ([]types.AgentSession, error)

	// Queue entries. ListWaitingEntries returns waiting entries ordered by
	// priority descending, then creation time ascending. An empty teamID
	// matches every team.
	CreateQueueEntry(ctx context.Context, entry *types.CallQueueEntry) error
	GetQueueEntry(ctx context.Context, id string) (*types.CallQueueEntry, error)
	GetQueueEntryByCallID(ctx context.Context, callID string) (*types.CallQueueEntry, error)
	ListWaitingEntries(ctx context.Context, teamID string) ([]types.CallQueueEntry, error)
	UpdateQueueEntry(ctx context.Context, entry *types.CallQueueEntry) error
	ListEntriesCreatedBetween(ctx context.Context, from, to time.Time) ([]types.CallQueueEntry, error)

	// Transfer log (append-only)
	AppendTransferLog(ctx context.Context, entry *types.TransferLogEntry) error
	ListTransferLog(ctx context.Context, callID string) ([]types.TransferLogEntry, error)

	// Calls
	UpsertCall(ctx context.Context, call *types.Call) error
	GetCall(ctx context.Context, id string) (*types.Call, error)
	ListCallsByStatus(ctx context.Context, teamID string, statuses []types.CallStatus, limit, offset int) ([]types.Call, int, error)

	// Transcripts and analytics
	AppendTranscriptLine(ctx context.Context, line *types.TranscriptLine) error
	ListTranscript(ctx context.Context, callID string) ([]types.TranscriptLine, error)
	LatestTranscriptLine(ctx context.Context, callID string) (*types.TranscriptLine, error)
	AppendAnalyticsSnapshot(ctx context.Context, snap *types.AnalyticsSnapshot) error
	ListAnalytics(ctx context.Context, callID string) ([]types.AnalyticsSnapshot, error)
	LatestAnalyticsSnapshot(ctx context.Context, callID string) (*types.AnalyticsSnapshot, error)

	Close() error
}

// NewStore creates the appropriate store based on the configured mode
func NewStore(ctx context.Context, mode, databaseURL string, logger zerolog.Logger) (Store, error) {
	switch mode {
	case "postgres":
		return NewPostgresStore(ctx, databaseURL, logger)
	default:
		logger.Info().Msg("using in-memory store (STORE_MODE != postgres)")
		return NewMemoryStore(), nil
	}
}
