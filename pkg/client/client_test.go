package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func newTestClient(baseURL string) *Client {
	c := New(baseURL, "", zerolog.Nop())
	c.backoffBase = time.Millisecond
	c.backoffCap = 4 * time.Millisecond
	return c
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func recvControl(t *testing.T, ch <-chan controlMessage) controlMessage {
	t.Helper()
	select {
	case ctrl := <-ch:
		return ctrl
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for control frame")
		return controlMessage{}
	}
}

func hasChannels(ctrl controlMessage, want ...string) bool {
	got := make(map[string]bool, len(ctrl.Channels))
	for _, ch := range ctrl.Channels {
		got[ch] = true
	}
	for _, ch := range want {
		if !got[ch] {
			return false
		}
	}
	return true
}

func TestSubscribeAndReceive(t *testing.T) {
	controls := make(chan controlMessage, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var ctrl controlMessage
		if err := json.Unmarshal(msg, &ctrl); err != nil {
			return
		}
		controls <- ctrl

		env := map[string]interface{}{
			"type":      "queue",
			"event":     "call_added",
			"payload":   map[string]string{"callId": "call-1"},
			"timestamp": time.Now(),
		}
		data, _ := json.Marshal(env)
		conn.WriteMessage(websocket.TextMessage, data)
		conn.ReadMessage()
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	defer c.Close()

	if err := c.Subscribe(TopicQueue); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	ctrl := recvControl(t, controls)
	if ctrl.Type != "subscribe" || !hasChannels(ctrl, TopicQueue) {
		t.Errorf("unexpected control frame: %+v", ctrl)
	}

	select {
	case env := <-c.Events():
		if env.Type != TopicQueue || env.Event != "call_added" {
			t.Errorf("unexpected envelope: %+v", env)
		}
		var payload struct {
			CallID string `json:"callId"`
		}
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			t.Fatalf("failed to decode payload: %v", err)
		}
		if payload.CallID != "call-1" {
			t.Errorf("expected callId call-1, got %s", payload.CallID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive envelope")
	}
}

func TestNewlineBatchedFrames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Two envelopes batched into one message, like the hub's write pump
		batch := `{"type":"calls","event":"call_started","payload":{},"timestamp":"2026-08-25T10:00:00Z"}` +
			"\n" +
			`{"type":"calls","event":"call_ended","payload":{},"timestamp":"2026-08-25T10:00:01Z"}`
		conn.WriteMessage(websocket.TextMessage, []byte(batch))
		conn.ReadMessage()
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	defer c.Close()

	events := []string{}
	for i := 0; i < 2; i++ {
		select {
		case env := <-c.Events():
			events = append(events, env.Event)
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d of 2 batched envelopes", len(events))
		}
	}
	if events[0] != "call_started" || events[1] != "call_ended" {
		t.Errorf("unexpected events: %v", events)
	}
}

func TestGiveUpAfterConsecutiveFailures(t *testing.T) {
	var accepting atomic.Bool
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		if !accepting.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.ReadMessage()
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	defer c.Close()

	// Three failed attempts, then the client must stop dialing
	waitFor(t, func() bool { return attempts.Load() >= 3 })
	settled := attempts.Load()
	time.Sleep(50 * time.Millisecond)
	if attempts.Load() != settled {
		t.Fatalf("expected no dials after giving up, got %d more", attempts.Load()-settled)
	}
	if c.IsConnected() {
		t.Error("client must not report connected after giving up")
	}

	// Explicit trigger resumes dialing
	accepting.Store(true)
	c.Reconnect()
	waitFor(t, c.IsConnected)
}

func TestResubscribeAfterConnectionDrop(t *testing.T) {
	controls := make(chan controlMessage, 4)
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := conns.Add(1)

		_, msg, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			return
		}
		var ctrl controlMessage
		if err := json.Unmarshal(msg, &ctrl); err == nil {
			controls <- ctrl
		}

		if n == 1 {
			// Drop the first connection to force a reconnect
			conn.Close()
			return
		}
		conn.ReadMessage()
		conn.Close()
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	defer c.Close()

	if err := c.Subscribe(TopicCalls, TopicAlerts); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	first := recvControl(t, controls)
	if first.Type != "subscribe" || !hasChannels(first, TopicCalls, TopicAlerts) {
		t.Errorf("unexpected first control frame: %+v", first)
	}

	// The reconnected client replays its subscription set unprompted
	second := recvControl(t, controls)
	if second.Type != "subscribe" || !hasChannels(second, TopicCalls, TopicAlerts) {
		t.Errorf("unexpected replayed control frame: %+v", second)
	}

	if c.Reconnects() < 1 {
		t.Error("expected at least one recorded reconnect")
	}
}

func TestUnsubscribeNarrowsReplay(t *testing.T) {
	c := newTestClient("http://127.0.0.1:0")

	c.Subscribe(TopicQueue, TopicCalls, TopicAgents)
	c.Unsubscribe(TopicCalls)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.topics[TopicCalls] {
		t.Error("expected calls removed from subscription set")
	}
	if !c.topics[TopicQueue] || !c.topics[TopicAgents] {
		t.Error("unrelated topics must survive unsubscribe")
	}
}

func TestPing(t *testing.T) {
	controls := make(chan controlMessage, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var ctrl controlMessage
			if err := json.Unmarshal(msg, &ctrl); err == nil {
				controls <- ctrl
			}
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	defer c.Close()

	waitFor(t, c.IsConnected)
	if err := c.Ping(); err != nil {
		t.Fatalf("ping failed: %v", err)
	}

	ctrl := recvControl(t, controls)
	if ctrl.Type != "ping" {
		t.Errorf("expected ping control frame, got %+v", ctrl)
	}
}

func TestCloseStopsRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.ReadMessage()
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	done := make(chan struct{})
	go func() {
		c.Run(context.Background())
		close(done)
	}()

	waitFor(t, c.IsConnected)
	c.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
	if c.IsConnected() {
		t.Error("client must not report connected after Close")
	}
}
