package livecalls

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/voicelayer/switchboard/internal/storage"
	"github.com/voicelayer/switchboard/internal/types"
)

func newTestService() (*Service, *storage.MemoryStore) {
	store := storage.NewMemoryStore()
	return NewService(store, zerolog.Nop()), store
}

func seedCall(t *testing.T, store *storage.MemoryStore, id, team string, status types.CallStatus, startedAgo time.Duration) *types.Call {
	t.Helper()
	now := time.Now().UTC()
	call := &types.Call{
		ID:        id,
		TeamID:    team,
		Status:    status,
		StartedAt: now.Add(-startedAgo),
		CreatedAt: now.Add(-startedAgo),
		UpdatedAt: now,
	}
	if err := store.UpsertCall(context.Background(), call); err != nil {
		t.Fatalf("UpsertCall failed: %v", err)
	}
	return call
}

func seedSnapshot(t *testing.T, store *storage.MemoryStore, callID string, score float64, label string, at time.Time) {
	t.Helper()
	err := store.AppendAnalyticsSnapshot(context.Background(), &types.AnalyticsSnapshot{
		ID:             callID + "-" + at.Format("150405.000"),
		CallID:         callID,
		SentimentScore: score,
		SentimentLabel: label,
		LatencyMs:      100,
		CreatedAt:      at,
	})
	if err != nil {
		t.Fatalf("AppendAnalyticsSnapshot failed: %v", err)
	}
}

func TestListDefaultsToLiveStatuses(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	seedCall(t, store, "call-active", "support", types.CallStatusActive, time.Minute)
	seedCall(t, store, "call-queued", "support", types.CallStatusQueued, 2*time.Minute)
	seedCall(t, store, "call-done", "support", types.CallStatusCompleted, 3*time.Minute)

	page, err := svc.List(ctx, ListParams{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 live calls, got %d", len(page.Items))
	}
	for _, item := range page.Items {
		if item.Call.Status == types.CallStatusCompleted {
			t.Error("completed call leaked into the live list")
		}
	}
	if page.Pagination.Total != 2 || page.Pagination.HasMore {
		t.Errorf("unexpected pagination: %+v", page.Pagination)
	}
}

func TestListFiltersByTeamAndStatus(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	seedCall(t, store, "call-1", "support", types.CallStatusActive, time.Minute)
	seedCall(t, store, "call-2", "sales", types.CallStatusActive, time.Minute)
	seedCall(t, store, "call-3", "support", types.CallStatusCompleted, time.Minute)

	page, err := svc.List(ctx, ListParams{TeamID: "support", Statuses: []types.CallStatus{types.CallStatusCompleted}})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Call.ID != "call-3" {
		t.Fatalf("expected only the completed support call, got %+v", page.Items)
	}
}

func TestListPagination(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		seedCall(t, store, "call-"+string(rune('a'+i)), "support", types.CallStatusActive, time.Duration(i)*time.Minute)
	}

	page, err := svc.List(ctx, ListParams{Limit: 2})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(page.Items))
	}
	if !page.Pagination.HasMore || page.Pagination.Total != 5 {
		t.Errorf("unexpected pagination: %+v", page.Pagination)
	}
	// Newest call first: call-a started most recently.
	if page.Items[0].Call.ID != "call-a" {
		t.Errorf("expected newest call first, got %s", page.Items[0].Call.ID)
	}

	last, err := svc.List(ctx, ListParams{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(last.Items) != 1 || last.Pagination.HasMore {
		t.Errorf("expected final page with one item and no more, got %d items hasMore=%v", len(last.Items), last.Pagination.HasMore)
	}
}

func TestListEnrichment(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	now := time.Now().UTC()

	seedCall(t, store, "call-1", "support", types.CallStatusQueued, time.Minute)
	seedSnapshot(t, store, "call-1", 0.2, "neutral", now.Add(-40*time.Second))
	seedSnapshot(t, store, "call-1", -0.5, "negative", now.Add(-10*time.Second))

	if err := store.AppendTranscriptLine(ctx, &types.TranscriptLine{
		ID: "l1", CallID: "call-1", Speaker: "caller", Text: "I want to speak to a human", Timestamp: now.Add(-30 * time.Second),
	}); err != nil {
		t.Fatalf("AppendTranscriptLine failed: %v", err)
	}
	if err := store.CreateQueueEntry(ctx, &types.CallQueueEntry{
		ID: "q1", CallID: "call-1", TeamID: "support", Priority: 4, Status: types.QueueWaiting, CreatedAt: now.Add(-time.Minute), UpdatedAt: now,
	}); err != nil {
		t.Fatalf("CreateQueueEntry failed: %v", err)
	}

	page, err := svc.List(ctx, ListParams{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected one item, got %d", len(page.Items))
	}
	item := page.Items[0]
	if item.LatestAnalytics == nil || item.LatestAnalytics.SentimentLabel != "negative" {
		t.Errorf("expected latest snapshot to win, got %+v", item.LatestAnalytics)
	}
	if item.LatestTranscript == nil || item.LatestTranscript.ID != "l1" {
		t.Errorf("expected transcript line attached, got %+v", item.LatestTranscript)
	}
	if item.Queue == nil || item.Queue.Priority != 4 {
		t.Errorf("expected queue info attached, got %+v", item.Queue)
	}
}

func TestGetDetailAndNotFound(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	now := time.Now().UTC()

	seedCall(t, store, "call-1", "support", types.CallStatusActive, time.Minute)
	seedSnapshot(t, store, "call-1", 0.3, "neutral", now)
	if err := store.AppendTranscriptLine(ctx, &types.TranscriptLine{ID: "l1", CallID: "call-1", Speaker: "bot", Text: "hello", Timestamp: now}); err != nil {
		t.Fatalf("AppendTranscriptLine failed: %v", err)
	}

	detail, err := svc.Get(ctx, "call-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(detail.Transcript) != 1 || len(detail.Analytics) != 1 {
		t.Errorf("expected full transcript and analytics, got %d/%d", len(detail.Transcript), len(detail.Analytics))
	}

	if _, err := svc.Get(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMetricsAveragesAndLatestLabel(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	now := time.Now().UTC()

	seedCall(t, store, "call-1", "support", types.CallStatusActive, time.Minute)
	seedSnapshot(t, store, "call-1", 0.2, "neutral", now.Add(-30*time.Second))
	seedSnapshot(t, store, "call-1", 0.4, "neutral", now.Add(-20*time.Second))
	seedSnapshot(t, store, "call-1", 0.9, "positive", now.Add(-10*time.Second))

	m, err := svc.Metrics(ctx, "call-1")
	if err != nil {
		t.Fatalf("Metrics failed: %v", err)
	}
	if math.Abs(m.AvgSentimentScore-0.5) > 1e-9 {
		t.Errorf("expected average sentiment 0.5, got %f", m.AvgSentimentScore)
	}
	if m.SentimentLabel != "positive" {
		t.Errorf("expected label of the most recent snapshot, got %q", m.SentimentLabel)
	}
	if m.SnapshotCount != 3 {
		t.Errorf("expected 3 snapshots, got %d", m.SnapshotCount)
	}
	if m.DurationSecs < 59 || m.DurationSecs > 61 {
		t.Errorf("expected duration close to 60s for a running call, got %f", m.DurationSecs)
	}
}

func TestMetricsEmptyHistory(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	seedCall(t, store, "call-1", "support", types.CallStatusActive, time.Minute)

	m, err := svc.Metrics(ctx, "call-1")
	if err != nil {
		t.Fatalf("Metrics failed: %v", err)
	}
	if m.SnapshotCount != 0 || m.AvgSentimentScore != 0 || m.SentimentLabel != "" {
		t.Errorf("expected zero-valued metrics for empty history, got %+v", m)
	}
}

func TestMetricsDurationPrefersProviderValue(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	now := time.Now().UTC()

	reported := 123.0
	ended := now.Add(-time.Minute)
	call := &types.Call{
		ID:        "call-1",
		TeamID:    "support",
		Status:    types.CallStatusCompleted,
		StartedAt: now.Add(-10 * time.Minute),
		EndedAt:   &ended,
		Duration:  &reported,
		CreatedAt: now.Add(-10 * time.Minute),
		UpdatedAt: now,
	}
	if err := store.UpsertCall(ctx, call); err != nil {
		t.Fatalf("UpsertCall failed: %v", err)
	}

	m, err := svc.Metrics(ctx, "call-1")
	if err != nil {
		t.Fatalf("Metrics failed: %v", err)
	}
	if m.DurationSecs != 123.0 {
		t.Errorf("expected provider-reported duration, got %f", m.DurationSecs)
	}
}

func TestTranscriptUnknownCall(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.Transcript(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
