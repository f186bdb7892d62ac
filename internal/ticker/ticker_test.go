package ticker

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/voicelayer/switchboard/internal/directory"
	"github.com/voicelayer/switchboard/internal/metrics"
	"github.com/voicelayer/switchboard/internal/storage"
	"github.com/voicelayer/switchboard/internal/types"
	"github.com/voicelayer/switchboard/internal/waitqueue"
	"github.com/voicelayer/switchboard/internal/websocket"
)

func newTestTicker(interval time.Duration) (*Ticker, *storage.MemoryStore, *metrics.Metrics) {
	logger := zerolog.New(&bytes.Buffer{})
	store := storage.NewMemoryStore()
	queue := waitqueue.NewService(store, 20, logger)
	registry := directory.NewRegistry()
	m := metrics.New("test", prometheus.NewRegistry())
	hub := websocket.NewHub(m, logger)
	go hub.Run()
	return NewTicker(queue, registry, hub, m, interval, logger), store, m
}

func TestNewTicker(t *testing.T) {
	ticker, _, _ := newTestTicker(time.Second)

	if ticker == nil {
		t.Fatal("expected ticker to be created")
	}
	if ticker.interval != time.Second {
		t.Errorf("expected interval 1s, got %v", ticker.interval)
	}
}

func TestTickerStopsOnContextCancel(t *testing.T) {
	ticker, _, _ := newTestTicker(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool)
	go func() {
		ticker.Start(ctx)
		done <- true
	}()

	time.Sleep(120 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("ticker did not stop within timeout after context cancel")
	}
}

func TestPublishQueueStatsSetsDepthGauge(t *testing.T) {
	ticker, store, m := newTestTicker(time.Second)
	ctx := context.Background()

	for _, id := range []string{"q1", "q2"} {
		err := store.CreateQueueEntry(ctx, &types.CallQueueEntry{
			ID:        id,
			CallID:    "call-" + id,
			TeamID:    "support",
			Status:    types.QueueWaiting,
			CreatedAt: time.Now().UTC(),
			UpdatedAt: time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("CreateQueueEntry failed: %v", err)
		}
	}

	ticker.publishQueueStats(ctx)

	if got := testutil.ToFloat64(m.QueueDepth.WithLabelValues("support")); got != 2 {
		t.Errorf("expected depth gauge 2, got %f", got)
	}
}

func TestPublishQueueStatsResetsDrainedTeams(t *testing.T) {
	ticker, store, m := newTestTicker(time.Second)
	ctx := context.Background()

	entry := &types.CallQueueEntry{
		ID:        "q1",
		CallID:    "call-1",
		TeamID:    "support",
		Status:    types.QueueWaiting,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := store.CreateQueueEntry(ctx, entry); err != nil {
		t.Fatalf("CreateQueueEntry failed: %v", err)
	}
	ticker.publishQueueStats(ctx)
	if got := testutil.ToFloat64(m.QueueDepth.WithLabelValues("support")); got != 1 {
		t.Fatalf("expected depth gauge 1, got %f", got)
	}

	entry.Status = types.QueueAbandoned
	if err := store.UpdateQueueEntry(ctx, entry); err != nil {
		t.Fatalf("UpdateQueueEntry failed: %v", err)
	}
	ticker.publishQueueStats(ctx)
	if got := testutil.ToFloat64(m.QueueDepth.WithLabelValues("support")); got != 0 {
		t.Errorf("expected drained team gauge reset to 0, got %f", got)
	}
}

func TestTickerRunsWithEmptyState(t *testing.T) {
	ticker, _, _ := newTestTicker(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan bool)
	go func() {
		ticker.Start(ctx)
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("ticker did not stop after context timeout")
	}
}
