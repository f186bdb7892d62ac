package websocket

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/voicelayer/switchboard/internal/auth"
	"github.com/voicelayer/switchboard/internal/config"
	"github.com/voicelayer/switchboard/internal/types"
)

// Client is a middleman between the websocket connection and the hub
type Client struct {
	// Unique client ID
	id string

	// The hub this client belongs to
	hub *Hub

	// The websocket connection
	conn *websocket.Conn

	// Buffered channel of outbound messages
	send chan []byte

	// Topics this client subscribed to
	topics   map[types.Topic]bool
	topicsMu sync.RWMutex

	// Configuration
	config *config.Config

	// Logger
	logger zerolog.Logger

	// User claims of the connected dashboard user
	claims *auth.Claims
}

// NewClient creates a new Client. Clients start with no subscriptions and
// receive nothing until they send a subscribe control message.
func NewClient(hub *Hub, conn *websocket.Conn, cfg *config.Config, logger zerolog.Logger, claims *auth.Claims) *Client {
	clientID := uuid.New().String()
	return &Client{
		id:     clientID,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		topics: make(map[types.Topic]bool),
		config: cfg,
		logger: logger.With().Str("client_id", clientID).Logger(),
		claims: claims,
	}
}

// readPump pumps messages from the websocket connection to the hub
//
// The application runs readPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error().Err(err).Msg("websocket read error")
			}
			break
		}
		c.handleControl(message)
	}
}

// handleControl processes a client control frame (subscribe/unsubscribe/ping)
func (c *Client) handleControl(message []byte) {
	var control types.ControlMessage
	if err := json.Unmarshal(message, &control); err != nil {
		c.logger.Debug().Str("message", string(message)).Msg("ignoring malformed control message")
		return
	}

	switch control.Type {
	case types.ControlSubscribe:
		c.topicsMu.Lock()
		for _, name := range control.Channels {
			if !types.ValidTopic(name) {
				c.logger.Debug().Str("channel", name).Msg("ignoring unknown channel in subscribe")
				continue
			}
			c.topics[types.Topic(name)] = true
		}
		c.topicsMu.Unlock()
		c.sendSubscriptionState()

	case types.ControlUnsubscribe:
		c.topicsMu.Lock()
		for _, name := range control.Channels {
			delete(c.topics, types.Topic(name))
		}
		c.topicsMu.Unlock()
		c.sendSubscriptionState()

	case types.ControlPing:
		c.sendEnvelope(types.Envelope{
			Type:      types.TopicSystem,
			Event:     types.EventPong,
			Timestamp: time.Now(),
		})

	default:
		c.logger.Debug().Str("type", control.Type).Msg("ignoring unknown control message type")
	}
}

// Topics returns the client's current subscription set, sorted
func (c *Client) Topics() []string {
	c.topicsMu.RLock()
	defer c.topicsMu.RUnlock()

	names := make([]string, 0, len(c.topics))
	for topic := range c.topics {
		names = append(names, string(topic))
	}
	sort.Strings(names)
	return names
}

// subscribedTo reports whether the client receives events for a topic
func (c *Client) subscribedTo(topic types.Topic) bool {
	c.topicsMu.RLock()
	defer c.topicsMu.RUnlock()
	return c.topics[topic]
}

// sendSubscriptionState confirms the effective subscription set to the client
func (c *Client) sendSubscriptionState() {
	c.sendEnvelope(types.Envelope{
		Type:      types.TopicSystem,
		Event:     types.EventConnected,
		Payload:   map[string]interface{}{"channels": c.Topics()},
		Timestamp: time.Now(),
	})
}

// sendEnvelope queues a server-originated message for this client only
func (c *Client) sendEnvelope(envelope types.Envelope) {
	data, err := json.Marshal(envelope)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to marshal control reply")
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn().Msg("dropping control reply, send buffer full")
	}
}

// writePump pumps messages from the hub to the websocket connection
//
// A goroutine running writePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start starts the client's read and write pumps
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}
