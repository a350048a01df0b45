package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatchup struct {
	events []StoredEvent
}

func (f *fakeCatchup) CatchupEvents(_ context.Context, _ string, sinceID int64, limit int) ([]StoredEvent, error) {
	var out []StoredEvent
	for _, evt := range f.events {
		if evt.ID > sinceID {
			out = append(out, evt)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func newTestManager(t *testing.T, catchup Catchup) (*ConnectionManager, *httptest.Server) {
	t.Helper()
	manager := NewConnectionManager(catchup, 5*time.Second)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		manager.HandleConnection(r.Context(), ws)
	}))
	t.Cleanup(server.Close)
	return manager, server
}

func dialWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, "ws"+server.URL[len("http"):], nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close(websocket.StatusNormalClosure, "") })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := ws.Read(ctx)
	require.NoError(t, err)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func writeFrame(t *testing.T, ws *websocket.Conn, msg ClientMessage) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, ws.Write(ctx, websocket.MessageText, data))
}

func TestManagerHandshake(t *testing.T) {
	_, server := newTestManager(t, &fakeCatchup{})
	ws := dialWS(t, server)

	msg := readFrame(t, ws)
	assert.Equal(t, "connected", msg["type"])
	assert.NotEmpty(t, msg["connection_id"])
}

func TestManagerSubscribeAndBroadcast(t *testing.T) {
	manager, server := newTestManager(t, &fakeCatchup{})
	ws := dialWS(t, server)
	readFrame(t, ws) // connected

	writeFrame(t, ws, ClientMessage{Action: "subscribe", Channel: SessionChannel("s-1")})
	msg := readFrame(t, ws)
	assert.Equal(t, "subscribed", msg["type"])
	assert.Equal(t, "session:s-1", msg["channel"])

	manager.Broadcast(SessionChannel("s-1"), []byte(`{"type":"progress","stage":"started"}`))
	msg = readFrame(t, ws)
	assert.Equal(t, "progress", msg["type"])

	// Broadcasts on other channels must not reach this client.
	manager.Broadcast(SessionChannel("s-other"), []byte(`{"type":"completed"}`))
	writeFrame(t, ws, ClientMessage{Action: "ping"})
	msg = readFrame(t, ws)
	assert.Equal(t, "pong", msg["type"])
}

func TestManagerSubscribeReplaysStoredEvents(t *testing.T) {
	catchup := &fakeCatchup{events: []StoredEvent{
		{ID: 1, Payload: map[string]any{"type": "model_result", "prompt_id": "p-1"}},
		{ID: 2, Payload: map[string]any{"type": "clarification", "prompt_id": "p-1"}},
	}}
	_, server := newTestManager(t, catchup)
	ws := dialWS(t, server)
	readFrame(t, ws) // connected

	writeFrame(t, ws, ClientMessage{Action: "subscribe", Channel: SessionChannel("s-1")})
	readFrame(t, ws) // subscribed

	first := readFrame(t, ws)
	assert.Equal(t, "model_result", first["type"])
	assert.Equal(t, float64(1), first["db_event_id"])

	second := readFrame(t, ws)
	assert.Equal(t, "clarification", second["type"])
	assert.Equal(t, float64(2), second["db_event_id"])
}

func TestManagerCatchupFromPosition(t *testing.T) {
	catchup := &fakeCatchup{events: []StoredEvent{
		{ID: 5, Payload: map[string]any{"type": "model_result"}},
		{ID: 9, Payload: map[string]any{"type": "completed"}},
	}}
	_, server := newTestManager(t, catchup)
	ws := dialWS(t, server)
	readFrame(t, ws) // connected

	since := int64(5)
	writeFrame(t, ws, ClientMessage{Action: "catchup", Channel: SessionChannel("s-1"), LastEventID: &since})

	msg := readFrame(t, ws)
	assert.Equal(t, "completed", msg["type"])
	assert.Equal(t, float64(9), msg["db_event_id"])
}

func TestManagerUnsubscribeStopsDelivery(t *testing.T) {
	manager, server := newTestManager(t, &fakeCatchup{})
	ws := dialWS(t, server)
	readFrame(t, ws) // connected

	writeFrame(t, ws, ClientMessage{Action: "subscribe", Channel: SessionChannel("s-1")})
	readFrame(t, ws) // subscribed

	writeFrame(t, ws, ClientMessage{Action: "unsubscribe", Channel: SessionChannel("s-1")})

	// Wait until the read loop has processed the unsubscribe.
	require.Eventually(t, func() bool {
		manager.mu.RLock()
		defer manager.mu.RUnlock()
		return len(manager.channels) == 0
	}, 2*time.Second, 10*time.Millisecond)

	manager.Broadcast(SessionChannel("s-1"), []byte(`{"type":"progress"}`))
	writeFrame(t, ws, ClientMessage{Action: "ping"})
	msg := readFrame(t, ws)
	assert.Equal(t, "pong", msg["type"], "unsubscribed client must not receive the broadcast")
}

func TestManagerSubscribeRequiresChannel(t *testing.T) {
	_, server := newTestManager(t, &fakeCatchup{})
	ws := dialWS(t, server)
	readFrame(t, ws) // connected

	writeFrame(t, ws, ClientMessage{Action: "subscribe"})
	msg := readFrame(t, ws)
	assert.Equal(t, "error", msg["type"])
}
