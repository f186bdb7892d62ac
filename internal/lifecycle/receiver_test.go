package lifecycle

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/voicelayer/switchboard/internal/types"
)

func newTestReceiver() (*Receiver, *testRig) {
	rig := newTestRig()
	return NewReceiver(rig.processor, zerolog.Nop()), rig
}

func TestHandleCallStarted(t *testing.T) {
	receiver, rig := newTestReceiver()

	body := `{"callId":"call-1","teamId":"support","callerNumber":"+4915112345678"}`
	req := httptest.NewRequest(http.MethodPost, "/internal/calls/started", strings.NewReader(body))
	w := httptest.NewRecorder()

	receiver.HandleCallStarted(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var call types.Call
	if err := json.NewDecoder(w.Body).Decode(&call); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if call.ID != "call-1" || call.Status != types.CallStatusActive {
		t.Errorf("unexpected call in response: %+v", call)
	}
	if rig.published.count(types.TopicCalls, types.EventCallStarted) != 1 {
		t.Error("expected a call_started event")
	}
}

func TestHandleCallStartedInvalidJSON(t *testing.T) {
	receiver, _ := newTestReceiver()

	req := httptest.NewRequest(http.MethodPost, "/internal/calls/started", strings.NewReader("{not json"))
	w := httptest.NewRecorder()

	receiver.HandleCallStarted(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleCallStartedMissingCallID(t *testing.T) {
	receiver, _ := newTestReceiver()

	req := httptest.NewRequest(http.MethodPost, "/internal/calls/started", strings.NewReader(`{"teamId":"support"}`))
	w := httptest.NewRecorder()

	receiver.HandleCallStarted(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing callId, got %d", w.Code)
	}
}

func TestHandleCallEnded(t *testing.T) {
	receiver, rig := newTestReceiver()

	start := httptest.NewRequest(http.MethodPost, "/internal/calls/started", strings.NewReader(`{"callId":"call-1"}`))
	receiver.HandleCallStarted(httptest.NewRecorder(), start)

	req := httptest.NewRequest(http.MethodPost, "/internal/calls/ended", strings.NewReader(`{"callId":"call-1","duration":12.5}`))
	w := httptest.NewRecorder()

	receiver.HandleCallEnded(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var call types.Call
	if err := json.NewDecoder(w.Body).Decode(&call); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if call.Status != types.CallStatusCompleted || call.EndedAt == nil {
		t.Errorf("expected completed call, got %+v", call)
	}
	if rig.published.count(types.TopicCalls, types.EventCallEnded) != 1 {
		t.Error("expected a call_ended event")
	}
}

func TestHandleStatusChanged(t *testing.T) {
	receiver, _ := newTestReceiver()

	req := httptest.NewRequest(http.MethodPost, "/internal/calls/status", strings.NewReader(`{"callId":"call-1","status":"in_progress"}`))
	w := httptest.NewRecorder()

	receiver.HandleStatusChanged(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var call types.Call
	if err := json.NewDecoder(w.Body).Decode(&call); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if call.Status != types.CallStatusInProgress {
		t.Errorf("expected in_progress, got %s", call.Status)
	}
}

func TestHandleStatusChangedUnknownStatus(t *testing.T) {
	receiver, _ := newTestReceiver()

	req := httptest.NewRequest(http.MethodPost, "/internal/calls/status", strings.NewReader(`{"callId":"call-1","status":"levitating"}`))
	w := httptest.NewRecorder()

	receiver.HandleStatusChanged(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown status, got %d", w.Code)
	}
}

func TestHandleTranscript(t *testing.T) {
	receiver, rig := newTestReceiver()

	body := `{"callId":"call-1","speaker":"caller","text":"hello there"}`
	req := httptest.NewRequest(http.MethodPost, "/internal/calls/transcript", strings.NewReader(body))
	w := httptest.NewRecorder()

	receiver.HandleTranscript(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if rig.published.count(types.TopicCalls, types.EventTranscriptLine) != 1 {
		t.Error("expected a transcript_line event")
	}
}

func TestHandleAnalytics(t *testing.T) {
	receiver, rig := newTestReceiver()

	payload, _ := json.Marshal(types.AnalyticsSnapshot{CallID: "call-1", SentimentScore: -0.4, SentimentLabel: "negative"})
	req := httptest.NewRequest(http.MethodPost, "/internal/calls/analytics", bytes.NewReader(payload))
	w := httptest.NewRecorder()

	receiver.HandleAnalytics(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if rig.published.count(types.TopicAnalytics, types.EventSnapshotRecorded) != 1 {
		t.Error("expected a snapshot_recorded event")
	}
}

func TestGetStats(t *testing.T) {
	receiver, _ := newTestReceiver()

	start := httptest.NewRequest(http.MethodPost, "/internal/calls/started", strings.NewReader(`{"callId":"call-1"}`))
	receiver.HandleCallStarted(httptest.NewRecorder(), start)

	req := httptest.NewRequest(http.MethodGet, "/internal/calls/stats", nil)
	w := httptest.NewRecorder()

	receiver.GetStats(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var stats map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if stats["events_ingested"].(float64) != 1 {
		t.Errorf("expected 1 ingested event, got %v", stats["events_ingested"])
	}
}
