package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/voicelayer/switchboard/internal/metrics"
	"github.com/voicelayer/switchboard/internal/types"
)

// Hub maintains the set of active clients and fans published events out to
// the clients subscribed to each topic
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Outbound events waiting for fan-out
	broadcast chan outbound

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Mutex to protect clients map
	mu sync.RWMutex

	metrics *metrics.Metrics
	logger  zerolog.Logger
}

type outbound struct {
	topic types.Topic
	data  []byte
}

// NewHub creates a new Hub
func NewHub(m *metrics.Metrics, logger zerolog.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan outbound, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		metrics:    m,
		logger:     logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.metrics.WSClients.Inc()
			h.logger.Info().
				Str("client_id", client.id).
				Int("total_clients", total).
				Msg("client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.metrics.WSClients.Dec()
				h.logger.Info().
					Str("client_id", client.id).
					Int("total_clients", len(h.clients)).
					Msg("client disconnected")
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.fanOut(message.topic, message.data)
		}
	}
}

// Publish sends an event envelope to every client subscribed to its topic.
// Delivery is best-effort: disconnected clients miss events, and a client
// that cannot keep up with its send buffer is dropped.
func (h *Hub) Publish(envelope types.Envelope) {
	if envelope.Timestamp.IsZero() {
		envelope.Timestamp = time.Now()
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		h.logger.Error().Err(err).Str("topic", string(envelope.Type)).Msg("failed to marshal envelope")
		return
	}

	h.metrics.EventsPublished.WithLabelValues(string(envelope.Type)).Inc()
	h.broadcast <- outbound{topic: envelope.Type, data: data}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// fanOut delivers one event to every subscriber of its topic
func (h *Hub) fanOut(topic types.Topic, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if !client.subscribedTo(topic) {
			continue
		}
		select {
		case client.send <- data:
		default:
			// Client's send buffer is full, close and remove it
			close(client.send)
			delete(h.clients, client)
			h.metrics.WSClients.Dec()
			h.logger.Warn().
				Str("client_id", client.id).
				Msg("client send buffer full, closing connection")
		}
	}
}
