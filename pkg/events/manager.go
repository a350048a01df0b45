package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

const (
	// catchupLimit caps a single catchup replay. Past that the client is
	// told to reload over REST instead of paginating.
	catchupLimit = 200

	// listenTimeout bounds the LISTEN issued for a channel's first
	// subscriber, so a stalled PG connection cannot wedge the read loop.
	listenTimeout = 10 * time.Second
)

// Catchup replays persisted events missed by a reconnecting client.
// Implemented by Store.
type Catchup interface {
	CatchupEvents(ctx context.Context, channel string, sinceID int64, limit int) ([]StoredEvent, error)
}

// ConnectionManager tracks WebSocket clients and their channel
// subscriptions, and fans broadcast events out to them.
type ConnectionManager struct {
	catchup      Catchup
	writeTimeout time.Duration

	mu       sync.RWMutex
	conns    map[string]*connection
	channels map[string]map[string]*connection // channel → conn ID → conn

	// subMu serializes subscribe/unsubscribe so only one goroutine decides
	// whether a channel needs LISTEN/UNLISTEN. Broadcasts never take it.
	subMu    sync.Mutex
	listener *Listener
}

type connection struct {
	id     string
	ws     *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc

	// subscribed is only touched by the connection's own read loop.
	subscribed map[string]bool
}

// NewConnectionManager creates a manager. SetListener wires the PG listener
// in once both exist.
func NewConnectionManager(catchup Catchup, writeTimeout time.Duration) *ConnectionManager {
	return &ConnectionManager{
		catchup:      catchup,
		writeTimeout: writeTimeout,
		conns:        make(map[string]*connection),
		channels:     make(map[string]map[string]*connection),
	}
}

// SetListener attaches the PG notify listener used for dynamic
// LISTEN/UNLISTEN.
func (m *ConnectionManager) SetListener(l *Listener) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.listener = l
}

// HandleConnection runs a client's read loop. Blocks until the connection
// closes; the HTTP handler calls it right after the upgrade.
func (m *ConnectionManager) HandleConnection(parent context.Context, ws *websocket.Conn) {
	ctx, cancel := context.WithCancel(parent)
	c := &connection{
		id:         uuid.New().String(),
		ws:         ws,
		ctx:        ctx,
		cancel:     cancel,
		subscribed: make(map[string]bool),
	}

	m.mu.Lock()
	m.conns[c.id] = c
	m.mu.Unlock()
	defer m.drop(c)

	m.sendJSON(c, map[string]string{"type": "connected", "connection_id": c.id})

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Invalid WebSocket frame", "connection_id", c.id, "error", err)
			continue
		}
		m.handle(ctx, c, &msg)
	}
}

// Broadcast delivers an event to every subscriber of a channel.
func (m *ConnectionManager) Broadcast(channel string, event []byte) {
	m.mu.RLock()
	targets := make([]*connection, 0, len(m.channels[channel]))
	for _, c := range m.channels[channel] {
		targets = append(targets, c)
	}
	m.mu.RUnlock()

	for _, c := range targets {
		if err := m.send(c, event); err != nil {
			slog.Warn("WebSocket send failed", "connection_id", c.id, "error", err)
		}
	}
}

// ActiveConnections returns the number of connected clients.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

func (m *ConnectionManager) handle(ctx context.Context, c *connection, msg *ClientMessage) {
	switch msg.Action {
	case "subscribe":
		if msg.Channel == "" {
			m.sendJSON(c, map[string]string{"type": "error", "message": "channel is required"})
			return
		}
		if err := m.subscribe(c, msg.Channel); err != nil {
			m.sendJSON(c, map[string]string{
				"type": "subscription_error", "channel": msg.Channel,
				"message": "failed to subscribe",
			})
			return
		}
		m.sendJSON(c, map[string]string{"type": "subscribed", "channel": msg.Channel})
		// Replay everything already persisted so a late subscriber starts
		// from a complete picture.
		m.replay(ctx, c, msg.Channel, 0)

	case "unsubscribe":
		if msg.Channel == "" {
			m.sendJSON(c, map[string]string{"type": "error", "message": "channel is required"})
			return
		}
		m.unsubscribe(c, msg.Channel)

	case "catchup":
		if msg.Channel == "" || msg.LastEventID == nil {
			m.sendJSON(c, map[string]string{"type": "error", "message": "channel and last_event_id are required"})
			return
		}
		m.replay(ctx, c, msg.Channel, *msg.LastEventID)

	case "ping":
		m.sendJSON(c, map[string]string{"type": "pong"})
	}
}

// subscribe adds the connection to a channel. The first subscriber performs
// the PG LISTEN before the subscription becomes visible, so a confirmed
// subscription always has LISTEN active behind it.
func (m *ConnectionManager) subscribe(c *connection, channel string) error {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	m.mu.RLock()
	_, exists := m.channels[channel]
	m.mu.RUnlock()

	if !exists && m.listener != nil {
		ctx, cancel := context.WithTimeout(context.Background(), listenTimeout)
		defer cancel()
		if err := m.listener.Listen(ctx, channel); err != nil {
			slog.Error("Channel LISTEN failed", "channel", channel, "error", err)
			return fmt.Errorf("listen on %s: %w", channel, err)
		}
	}

	m.mu.Lock()
	if m.channels[channel] == nil {
		m.channels[channel] = make(map[string]*connection)
	}
	m.channels[channel][c.id] = c
	m.mu.Unlock()

	c.subscribed[channel] = true
	return nil
}

// unsubscribe removes the connection from a channel and drops the PG LISTEN
// when the last subscriber leaves.
func (m *ConnectionManager) unsubscribe(c *connection, channel string) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	m.mu.Lock()
	last := false
	if subs, ok := m.channels[channel]; ok {
		delete(subs, c.id)
		if len(subs) == 0 {
			delete(m.channels, channel)
			last = true
		}
	}
	m.mu.Unlock()

	delete(c.subscribed, channel)

	if last && m.listener != nil {
		ctx, cancel := context.WithTimeout(context.Background(), listenTimeout)
		defer cancel()
		if err := m.listener.Unlisten(ctx, channel); err != nil {
			slog.Error("Channel UNLISTEN failed", "channel", channel, "error", err)
		}
	}
}

// replay sends persisted events after sinceID to one client, in order.
func (m *ConnectionManager) replay(ctx context.Context, c *connection, channel string, sinceID int64) {
	if m.catchup == nil {
		return
	}
	stored, err := m.catchup.CatchupEvents(ctx, channel, sinceID, catchupLimit+1)
	if err != nil {
		slog.Error("Catchup query failed", "channel", channel, "error", err)
		return
	}
	overflow := len(stored) > catchupLimit
	if overflow {
		stored = stored[:catchupLimit]
	}

	for _, evt := range stored {
		// Stored payloads carry no db_event_id (it is injected into the
		// NOTIFY copy only), so add it here from the row ID.
		evt.Payload["db_event_id"] = evt.ID
		body, err := json.Marshal(evt.Payload)
		if err != nil {
			continue
		}
		if err := m.send(c, body); err != nil {
			slog.Warn("Catchup send failed", "connection_id", c.id, "error", err)
			return
		}
	}

	if overflow {
		m.sendJSON(c, map[string]any{"type": "catchup_overflow", "channel": channel})
	}
}

func (m *ConnectionManager) drop(c *connection) {
	for ch := range c.subscribed {
		m.unsubscribe(c, ch)
	}
	m.mu.Lock()
	delete(m.conns, c.id)
	m.mu.Unlock()

	c.cancel()
	_ = c.ws.Close(websocket.StatusNormalClosure, "")
}

func (m *ConnectionManager) sendJSON(c *connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := m.send(c, data); err != nil {
		slog.Warn("WebSocket send failed", "connection_id", c.id, "error", err)
	}
}

func (m *ConnectionManager) send(c *connection, data []byte) error {
	ctx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	return c.ws.Write(ctx, websocket.MessageText, data)
}
