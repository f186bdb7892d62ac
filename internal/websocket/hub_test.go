package websocket

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/voicelayer/switchboard/internal/metrics"
	"github.com/voicelayer/switchboard/internal/types"
)

func newTestHub() *Hub {
	logger := zerolog.New(&bytes.Buffer{})
	m := metrics.New("test", prometheus.NewRegistry())
	return NewHub(m, logger)
}

func newTestClient(hub *Hub, id string, buffer int, topics ...types.Topic) *Client {
	client := &Client{
		id:     id,
		hub:    hub,
		send:   make(chan []byte, buffer),
		topics: make(map[types.Topic]bool),
		logger: zerolog.Nop(),
	}
	for _, topic := range topics {
		client.topics[topic] = true
	}
	return client
}

func TestNewHub(t *testing.T) {
	hub := newTestHub()

	if hub == nil {
		t.Fatal("expected hub to be created")
	}

	if hub.clients == nil {
		t.Error("expected clients map to be initialized")
	}

	if hub.broadcast == nil {
		t.Error("expected broadcast channel to be initialized")
	}

	if hub.register == nil {
		t.Error("expected register channel to be initialized")
	}

	if hub.unregister == nil {
		t.Error("expected unregister channel to be initialized")
	}
}

func TestHubClientCount(t *testing.T) {
	hub := newTestHub()

	// Initial count should be 0
	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}

	// Simulate adding clients
	hub.mu.Lock()
	hub.clients[newTestClient(hub, "test1", 1)] = true
	hub.clients[newTestClient(hub, "test2", 1)] = true
	hub.mu.Unlock()

	if hub.ClientCount() != 2 {
		t.Errorf("expected 2 clients, got %d", hub.ClientCount())
	}
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := newTestHub()
	go hub.Run()

	client := newTestClient(hub, "test-client", 1)

	// Register client
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	if hub.ClientCount() != 1 {
		t.Errorf("expected 1 client after register, got %d", hub.ClientCount())
	}

	// Unregister client
	hub.unregister <- client
	time.Sleep(10 * time.Millisecond)

	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients after unregister, got %d", hub.ClientCount())
	}
}

func TestPublishReachesSubscribers(t *testing.T) {
	hub := newTestHub()
	go hub.Run()

	client := newTestClient(hub, "client1", 10, types.TopicQueue)
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.Publish(types.Envelope{
		Type:    types.TopicQueue,
		Event:   types.EventCallAdded,
		Payload: map[string]string{"callId": "call-1"},
	})

	select {
	case data := <-client.send:
		var envelope types.Envelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			t.Fatalf("failed to unmarshal envelope: %v", err)
		}
		if envelope.Type != types.TopicQueue || envelope.Event != types.EventCallAdded {
			t.Errorf("unexpected envelope: %+v", envelope)
		}
		if envelope.Timestamp.IsZero() {
			t.Error("expected timestamp to be stamped on publish")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("subscribed client did not receive event")
	}
}

func TestSubscriptionIsolation(t *testing.T) {
	hub := newTestHub()
	go hub.Run()

	ordersOnly := newTestClient(hub, "orders-only", 10, types.TopicOrders)
	callsClient := newTestClient(hub, "calls-client", 10, types.TopicCalls)

	hub.register <- ordersOnly
	hub.register <- callsClient
	time.Sleep(10 * time.Millisecond)

	hub.Publish(types.Envelope{
		Type:  types.TopicCalls,
		Event: types.EventCallStarted,
	})
	time.Sleep(20 * time.Millisecond)

	select {
	case <-callsClient.send:
		// Expected delivery
	case <-time.After(100 * time.Millisecond):
		t.Error("calls subscriber did not receive calls event")
	}

	select {
	case data := <-ordersOnly.send:
		t.Errorf("orders-only client received unexpected event: %s", data)
	default:
		// Correctly isolated
	}
}

func TestSlowClientDropped(t *testing.T) {
	hub := newTestHub()
	go hub.Run()

	slow := newTestClient(hub, "slow", 1, types.TopicQueue)
	hub.register <- slow
	time.Sleep(10 * time.Millisecond)

	// First event fills the buffer, second one overflows it
	hub.Publish(types.Envelope{Type: types.TopicQueue, Event: types.EventQueueStats})
	hub.Publish(types.Envelope{Type: types.TopicQueue, Event: types.EventQueueStats})
	time.Sleep(20 * time.Millisecond)

	if hub.ClientCount() != 0 {
		t.Errorf("expected slow client to be dropped, still have %d clients", hub.ClientCount())
	}
}

func TestHandleControlSubscribe(t *testing.T) {
	hub := newTestHub()
	client := newTestClient(hub, "client1", 10)

	client.handleControl([]byte(`{"type":"subscribe","channels":["queue","calls","bogus"]}`))

	if !client.subscribedTo(types.TopicQueue) || !client.subscribedTo(types.TopicCalls) {
		t.Error("expected client subscribed to queue and calls")
	}
	if client.subscribedTo(types.Topic("bogus")) {
		t.Error("unknown channel must not be subscribable")
	}

	// Confirmation lists the effective subscription set
	select {
	case data := <-client.send:
		var envelope types.Envelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			t.Fatalf("failed to unmarshal reply: %v", err)
		}
		if envelope.Type != types.TopicSystem || envelope.Event != types.EventConnected {
			t.Errorf("unexpected reply envelope: %+v", envelope)
		}
	default:
		t.Error("expected subscription confirmation")
	}

	client.handleControl([]byte(`{"type":"unsubscribe","channels":["calls"]}`))
	if client.subscribedTo(types.TopicCalls) {
		t.Error("expected calls unsubscribed")
	}
	if !client.subscribedTo(types.TopicQueue) {
		t.Error("queue subscription should survive unrelated unsubscribe")
	}
}

func TestHandleControlPing(t *testing.T) {
	hub := newTestHub()
	client := newTestClient(hub, "client1", 10)

	client.handleControl([]byte(`{"type":"ping"}`))

	select {
	case data := <-client.send:
		var envelope types.Envelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			t.Fatalf("failed to unmarshal reply: %v", err)
		}
		if envelope.Event != types.EventPong {
			t.Errorf("expected pong, got %s", envelope.Event)
		}
	default:
		t.Error("expected pong reply")
	}
}

func TestHandleControlMalformed(t *testing.T) {
	hub := newTestHub()
	client := newTestClient(hub, "client1", 10)

	client.handleControl([]byte(`not json`))
	client.handleControl([]byte(`{"type":"dance"}`))

	select {
	case data := <-client.send:
		t.Errorf("malformed control must not produce a reply, got %s", data)
	default:
	}
	if len(client.Topics()) != 0 {
		t.Errorf("expected no subscriptions, got %v", client.Topics())
	}
}
