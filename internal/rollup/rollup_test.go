package rollup

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

type fakeSink struct {
	records []types.TransferRecord
	saved   []types.AgentDailyStats
	saveErr error
}

func (f *fakeSink) GetTransferRecords(dateKey string) ([]types.TransferRecord, error) {
	var out []types.TransferRecord
	for _, record := range f.records {
		if record.DateKey == dateKey {
			out = append(out, record)
		}
	}
	return out, nil
}

func (f *fakeSink) SaveAgentDailyStats(stats types.AgentDailyStats) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, stats)
	return nil
}

func TestRunOnceAggregatesAgentDay(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	day := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	sink := &fakeSink{records: []types.TransferRecord{
		{DateKey: "2026-08-24", AgentID: "a1", TeamID: "support", Outcome: "assigned", WaitTime: 10, Bridged: true},
		{DateKey: "2026-08-24", AgentID: "a1", TeamID: "support", Outcome: "assigned", WaitTime: 30, Bridged: false},
		{DateKey: "2026-08-24", AgentID: "", Outcome: "queued"},
		{DateKey: "2026-08-23", AgentID: "a1", Outcome: "assigned", WaitTime: 99},
	}}

	started := day.Add(9 * time.Hour)
	ended := started.Add(5 * time.Minute)
	if err := store.CreateSession(ctx, &types.AgentSession{ID: "s1", AgentID: "a1", CallID: "c1", StartedAt: started}); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, err := store.EndSessionsForCall(ctx, "c1", ended); err != nil {
		t.Fatalf("EndSessionsForCall failed: %v", err)
	}
	// Still-open session must not count as completed.
	if err := store.CreateSession(ctx, &types.AgentSession{ID: "s2", AgentID: "a1", CallID: "c2", StartedAt: day.Add(10 * time.Hour)}); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	roller := NewRoller(store, sink, "5 0 * * *", zerolog.Nop())
	n, err := roller.RunOnce(ctx, day)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one agent rolled up, got %d", n)
	}

	stats := sink.saved[0]
	if stats.AgentID != "a1" || stats.Date != "2026-08-24" || stats.TeamID != "support" {
		t.Errorf("unexpected identity fields: %+v", stats)
	}
	if stats.TotalAssigned != 2 {
		t.Errorf("expected 2 assigned (previous day excluded), got %d", stats.TotalAssigned)
	}
	if stats.TotalCompleted != 1 {
		t.Errorf("expected 1 completed session, got %d", stats.TotalCompleted)
	}
	if math.Abs(stats.AvgWaitTime-20) > 1e-9 {
		t.Errorf("expected avg wait 20s, got %f", stats.AvgWaitTime)
	}
	if math.Abs(stats.AvgHandleTime-300) > 1e-9 {
		t.Errorf("expected avg handle 300s, got %f", stats.AvgHandleTime)
	}
	if stats.BridgeFailures != 1 {
		t.Errorf("expected 1 bridge failure, got %d", stats.BridgeFailures)
	}
}

func TestRunOnceEmptyDay(t *testing.T) {
	roller := NewRoller(storage.NewMemoryStore(), &fakeSink{}, "5 0 * * *", zerolog.Nop())

	n, err := roller.RunOnce(context.Background(), time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected nothing rolled up, got %d", n)
	}
}

func TestRunOnceKeepsGoingOnSaveError(t *testing.T) {
	sink := &fakeSink{
		records: []types.TransferRecord{
			{DateKey: "2026-08-24", AgentID: "a1", Outcome: "assigned", WaitTime: 5, Bridged: true},
		},
		saveErr: errors.New("throttled"),
	}
	roller := NewRoller(storage.NewMemoryStore(), sink, "5 0 * * *", zerolog.Nop())

	n, err := roller.RunOnce(context.Background(), time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected zero saved on sink errors, got %d", n)
	}
}

func TestRunStopsOnCancelAndRejectsBadSchedule(t *testing.T) {
	store := storage.NewMemoryStore()

	// Invalid schedule returns immediately.
	bad := NewRoller(store, &fakeSink{}, "not a cron expr", zerolog.Nop())
	done := make(chan struct{})
	go func() {
		bad.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to bail out on an invalid schedule")
	}

	good := NewRoller(store, &fakeSink{}, "5 0 * * *", zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		good.Run(ctx)
		close(stopped)
	}()
	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("expected Run to stop after cancel")
	}
}
