// Package client provides a reconnecting WebSocket client for the
// switchboard event stream. Dashboards use it to subscribe to broadcast
// topics and receive envelopes without managing the connection themselves.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// Reconnect backoff
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second

	// Consecutive failed connection attempts before the client stops
	// dialing and waits for an explicit Reconnect call
	maxConnectFailures = 3

	// Write timeout
	writeTimeout = 10 * time.Second

	// Buffered received-event capacity
	eventBuffer = 256
)

// Subscribable topic names
const (
	TopicCalls         = "calls"
	TopicOrders        = "orders"
	TopicAgents        = "agents"
	TopicQueue         = "queue"
	TopicAlerts        = "alerts"
	TopicNotifications = "notifications"
	TopicAnalytics     = "analytics"
)

// Envelope mirrors the server's broadcast wire format. Payload is left
// raw so callers can decode into their own types per event.
type Envelope struct {
	Type      string          `json:"type"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

type controlMessage struct {
	Type     string   `json:"type"`
	Channels []string `json:"channels,omitempty"`
}

// Client maintains a WebSocket connection to the switchboard /ws endpoint.
// It reconnects with exponential backoff when the connection drops, and
// after maxConnectFailures consecutive failed dial attempts it stops and
// waits for Reconnect before trying again.
type Client struct {
	baseURL string
	token   string
	logger  zerolog.Logger

	events    chan Envelope
	reconnect chan struct{}
	done      chan struct{}

	mu         sync.Mutex
	conn       *websocket.Conn
	connected  bool
	closed     bool
	topics     map[string]bool
	reconnects int64

	// Overridable in tests
	backoffBase time.Duration
	backoffCap  time.Duration
	maxFailures int
}

// New creates a client for the given backend base URL (http or https).
// An empty token skips the token query parameter; the server then only
// accepts the connection when auth is bypassed.
func New(baseURL, token string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		token:       token,
		logger:      logger.With().Str("component", "ws_client").Logger(),
		events:      make(chan Envelope, eventBuffer),
		reconnect:   make(chan struct{}, 1),
		done:        make(chan struct{}),
		topics:      make(map[string]bool),
		backoffBase: initialReconnectDelay,
		backoffCap:  maxReconnectDelay,
		maxFailures: maxConnectFailures,
	}
}

// Events returns the channel where received envelopes are delivered.
// Envelopes are dropped when the channel is full.
func (c *Client) Events() <-chan Envelope {
	return c.events
}

// Run dials and maintains the connection until ctx is cancelled or Close
// is called. Blocks; run it in its own goroutine.
func (c *Client) Run(ctx context.Context) {
	delay := c.backoffBase
	failures := 0

	for {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}

		select {
		case <-ctx.Done():
			c.Close()
			return
		default:
		}

		if err := c.connect(ctx); err != nil {
			failures++
			if failures >= c.maxFailures {
				c.logger.Warn().Err(err).Int("failures", failures).Msg("giving up, waiting for explicit reconnect")
				select {
				case <-ctx.Done():
					return
				case <-c.done:
					return
				case <-c.reconnect:
					failures = 0
					delay = c.backoffBase
				}
				continue
			}

			c.logger.Debug().Err(err).Dur("retry_in", delay).Msg("connection failed, retrying")
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			case <-time.After(delay):
			}
			// Exponential backoff
			delay *= 2
			if delay > c.backoffCap {
				delay = c.backoffCap
			}
			continue
		}

		// Reset backoff on successful connection
		failures = 0
		delay = c.backoffBase

		c.resubscribe()
		c.readLoop(ctx)

		// Connection lost, try to reconnect
		c.mu.Lock()
		c.connected = false
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.reconnects++
		c.mu.Unlock()
	}
}

// connect establishes the WebSocket connection
func (c *Client) connect(ctx context.Context) error {
	wsURL := c.baseURL + "/ws"
	// Convert http:// to ws:// or https:// to wss://
	if strings.HasPrefix(wsURL, "http") {
		wsURL = "ws" + strings.TrimPrefix(wsURL, "http")
	}
	if c.token != "" {
		wsURL += "?token=" + url.QueryEscape(c.token)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.logger.Debug().Msg("websocket connected")
	return nil
}

// readLoop consumes server messages until the connection drops or the
// client shuts down
func (c *Client) readLoop(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				return
			}
			c.handleMessage(message)
		}
	}()

	select {
	case <-ctx.Done():
		conn.Close()
		<-readDone
	case <-c.done:
		<-readDone
	case <-readDone:
	}
}

// handleMessage decodes one WebSocket message. The server batches queued
// envelopes into a single message separated by newlines.
func (c *Client) handleMessage(message []byte) {
	for _, frame := range bytes.Split(message, []byte{'\n'}) {
		if len(frame) == 0 {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			c.logger.Debug().Str("frame", string(frame)).Msg("ignoring malformed frame")
			continue
		}
		select {
		case c.events <- env:
		default:
			c.logger.Warn().Str("event", env.Event).Msg("events channel full, dropping envelope")
		}
	}
}

// Subscribe adds topics to the subscription set. When connected the
// change is sent immediately; otherwise it is applied on the next
// successful connect.
func (c *Client) Subscribe(topics ...string) error {
	c.mu.Lock()
	for _, topic := range topics {
		c.topics[topic] = true
	}
	c.mu.Unlock()
	return c.sendControl("subscribe", topics)
}

// Unsubscribe removes topics from the subscription set
func (c *Client) Unsubscribe(topics ...string) error {
	c.mu.Lock()
	for _, topic := range topics {
		delete(c.topics, topic)
	}
	c.mu.Unlock()
	return c.sendControl("unsubscribe", topics)
}

// Ping sends an application-level ping; the server answers with a
// system/pong envelope
func (c *Client) Ping() error {
	return c.sendControl("ping", nil)
}

// resubscribe replays the recorded subscription set after a connect
func (c *Client) resubscribe() {
	c.mu.Lock()
	topics := make([]string, 0, len(c.topics))
	for topic := range c.topics {
		topics = append(topics, topic)
	}
	c.mu.Unlock()

	if len(topics) == 0 {
		return
	}
	if err := c.sendControl("subscribe", topics); err != nil {
		c.logger.Error().Err(err).Msg("failed to resubscribe")
	}
}

// sendControl writes a control frame. Returns nil when disconnected; the
// subscription set is replayed on reconnect instead.
func (c *Client) sendControl(msgType string, channels []string) error {
	data, err := json.Marshal(controlMessage{Type: msgType, Channels: channels})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.connected {
		return nil
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Reconnect resumes dialing after the client has given up. Triggers are
// coalesced; calling it while connected is a no-op for the current
// connection.
func (c *Client) Reconnect() {
	select {
	case c.reconnect <- struct{}{}:
	default:
	}
}

// Close permanently closes the connection and prevents reconnects
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
}

// IsConnected reports whether the connection is currently established
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Reconnects returns how many established connections have dropped
func (c *Client) Reconnects() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnects
}
