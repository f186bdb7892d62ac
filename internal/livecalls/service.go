package livecalls

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/voicelayer/switchboard/internal/storage"
	"github.com/voicelayer/switchboard/internal/types"
)

// Paging bounds for the live call list
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// CallStore is the slice of the storage layer the live-call views read from
type CallStore interface {
	ListCallsByStatus(ctx context.Context, teamID string, statuses []types.CallStatus, limit, offset int) ([]types.Call, int, error)
	GetCall(ctx context.Context, id string) (*types.Call, error)
	ListTranscript(ctx context.Context, callID string) ([]types.TranscriptLine, error)
	LatestTranscriptLine(ctx context.Context, callID string) (*types.TranscriptLine, error)
	ListAnalytics(ctx context.Context, callID string) ([]types.AnalyticsSnapshot, error)
	LatestAnalyticsSnapshot(ctx context.Context, callID string) (*types.AnalyticsSnapshot, error)
	GetQueueEntryByCallID(ctx context.Context, callID string) (*types.CallQueueEntry, error)
}

// Service assembles dashboard views of in-flight calls. It only reads;
// every mutation happens elsewhere.
type Service struct {
	store  CallStore
	logger zerolog.Logger
}

func NewService(store CallStore, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With().Str("component", "livecalls").Logger(),
	}
}

// ListParams filters and pages the live call list
type ListParams struct {
	TeamID   string
	Statuses []types.CallStatus
	Limit    int
	Offset   int
}

// List returns one page of live calls, newest first, each enriched with
// its latest analytics snapshot, latest transcript line and queue state.
// Without an explicit status filter the live set is used.
func (s *Service) List(ctx context.Context, params ListParams) (*types.LiveCallPage, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}
	statuses := params.Statuses
	if len(statuses) == 0 {
		statuses = types.LiveStatuses
	}

	calls, total, err := s.store.ListCallsByStatus(ctx, params.TeamID, statuses, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}

	items := make([]types.LiveCallSummary, 0, len(calls))
	for _, call := range calls {
		items = append(items, s.summarize(ctx, call))
	}

	return &types.LiveCallPage{
		Items: items,
		Pagination: types.Pagination{
			Total:   total,
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+limit < total,
		},
	}, nil
}

// Get returns the full detail view for one call, or storage.ErrNotFound
func (s *Service) Get(ctx context.Context, callID string) (*types.LiveCallDetail, error) {
	call, err := s.store.GetCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	transcript, err := s.store.ListTranscript(ctx, callID)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	analytics, err := s.store.ListAnalytics(ctx, callID)
	if err != nil {
		return nil, fmt.Errorf("load analytics: %w", err)
	}

	detail := &types.LiveCallDetail{
		Call:       *call,
		Transcript: transcript,
		Analytics:  analytics,
	}
	if entry, err := s.store.GetQueueEntryByCallID(ctx, callID); err == nil {
		detail.Queue = entry
	}
	return detail, nil
}

// Transcript returns the call's transcript in spoken order, or
// storage.ErrNotFound for an unknown call
func (s *Service) Transcript(ctx context.Context, callID string) ([]types.TranscriptLine, error) {
	if _, err := s.store.GetCall(ctx, callID); err != nil {
		return nil, err
	}
	return s.store.ListTranscript(ctx, callID)
}

// Metrics computes running averages over the call's analytics history.
// The sentiment label is the one from the most recent snapshot, not an
// average, so the dashboard shows where the conversation is now.
func (s *Service) Metrics(ctx context.Context, callID string) (*types.LiveCallMetrics, error) {
	call, err := s.store.GetCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	snaps, err := s.store.ListAnalytics(ctx, callID)
	if err != nil {
		return nil, fmt.Errorf("load analytics: %w", err)
	}

	out := &types.LiveCallMetrics{
		CallID:        callID,
		DurationSecs:  callDuration(call, time.Now().UTC()),
		SnapshotCount: len(snaps),
	}
	if len(snaps) == 0 {
		return out, nil
	}

	var sentiment, latency, talk, silence, interruptions float64
	for _, snap := range snaps {
		sentiment += snap.SentimentScore
		latency += snap.LatencyMs
		talk += snap.TalkTimeSecs
		silence += snap.SilenceTimeSecs
		interruptions += float64(snap.InterruptionCount)
	}
	n := float64(len(snaps))
	out.AvgSentimentScore = sentiment / n
	out.AvgLatencyMs = latency / n
	out.AvgTalkTimeSecs = talk / n
	out.AvgSilenceTimeSecs = silence / n
	out.AvgInterruptions = interruptions / n
	out.SentimentLabel = snaps[len(snaps)-1].SentimentLabel
	return out, nil
}

func (s *Service) summarize(ctx context.Context, call types.Call) types.LiveCallSummary {
	summary := types.LiveCallSummary{Call: call}

	if snap, err := s.store.LatestAnalyticsSnapshot(ctx, call.ID); err == nil {
		summary.LatestAnalytics = snap
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn().Err(err).Str("call_id", call.ID).Msg("Failed to load latest analytics")
	}

	if line, err := s.store.LatestTranscriptLine(ctx, call.ID); err == nil {
		summary.LatestTranscript = line
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn().Err(err).Str("call_id", call.ID).Msg("Failed to load latest transcript line")
	}

	if entry, err := s.store.GetQueueEntryByCallID(ctx, call.ID); err == nil {
		summary.Queue = &types.QueueInfo{
			Status:          entry.Status,
			Priority:        entry.Priority,
			WaitTime:        entry.WaitTime,
			AssignedAgentID: entry.AssignedAgentID,
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn().Err(err).Str("call_id", call.ID).Msg("Failed to load queue entry")
	}

	return summary
}

// callDuration prefers the provider-reported duration and otherwise
// measures start to end, or start to now for a call still running
func callDuration(call *types.Call, now time.Time) float64 {
	if call.Duration != nil {
		return *call.Duration
	}
	end := now
	if call.EndedAt != nil {
		end = *call.EndedAt
	}
	secs := end.Sub(call.StartedAt).Seconds()
	if secs < 0 {
		return 0
	}
	return secs
}
