package transport

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taxi-assistant/server/internal/agent/model"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func roundTrip(t *testing.T, ws *websocket.Conn, frame string) map[string]any {
	t.Helper()
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(frame)))
	return read(t, ws)
}

func read(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var out map[string]any
	require.NoError(t, ws.ReadJSON(&out))
	return out
}

func TestWebSocketIdentifiesUnity(t *testing.T) {
	e := newEnv(t)
	srv := httptest.NewServer(e.server.Handler())
	defer srv.Close()

	unity := dial(t, srv)
	resp := roundTrip(t, unity, `{"type":"unity_message","session_id":"unity","action":"ping"}`)
	assert.Equal(t, model.TypeUnityResponse, resp["type"])
	assert.Equal(t, "pong", resp["action"])
	assert.True(t, e.hub.IsConnected())

	require.NoError(t, unity.Close())
	assert.Eventually(t, func() bool { return !e.hub.IsConnected() }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketInvalidJSON(t *testing.T) {
	e := newEnv(t)
	srv := httptest.NewServer(e.server.Handler())
	defer srv.Close()

	ws := dial(t, srv)
	resp := roundTrip(t, ws, `{oops`)
	assert.Equal(t, "error", resp["type"])
	assert.Equal(t, "Invalid JSON format", resp["message"])
	assert.Zero(t, e.hub.ChatClients())

	resp = roundTrip(t, ws, `{"type":"teleport","session_id":"s1"}`)
	assert.Equal(t, "Unknown message type: teleport", resp["message"])
	assert.Equal(t, 1, e.hub.ChatClients())
}

func TestWebSocketRelaysPolicyChangeToUnity(t *testing.T) {
	e := newEnv(t)
	srv := httptest.NewServer(e.server.Handler())
	defer srv.Close()

	unity := dial(t, srv)
	roundTrip(t, unity, `{"type":"unity_message","session_id":"unity","action":"ping"}`)

	chat := dial(t, srv)
	resp := roundTrip(t, chat, `{"type":"ui_action","session_id":"s1","action_id":"policy:eco"}`)
	assert.Equal(t, "Richiesta inviata: sto verificando se posso passare a Eco.", resp["message"])

	frame := read(t, unity)
	assert.Equal(t, model.SimChangePolicy, frame["type"])
	assert.Equal(t, "s1", frame["session_id"])
	assert.Equal(t, "Eco", frame["payload"].(map[string]any)["nuova_policy"])
}

func TestWebSocketPushesToChatClient(t *testing.T) {
	e := newEnv(t)
	srv := httptest.NewServer(e.server.Handler())
	defer srv.Close()

	chat := dial(t, srv)
	roundTrip(t, chat, `{"type":"trigger","session_id":"s1","name":"ARRIVED_PICKUP"}`)

	unity := dial(t, srv)
	ack := roundTrip(t, unity, `{"type":"unity_message","session_id":"s1","action":"passenger_pickup","payload":{"passenger_name":"Marco"}}`)
	assert.Equal(t, "pickup_ack", ack["action"])

	pushed := read(t, chat)
	assert.Equal(t, model.TypeAssistantResponse, pushed["type"])
	assert.Equal(t, model.BookingRideStarted, pushed["booking_status"])
}

func TestHubRegistration(t *testing.T) {
	h := NewHub()
	a, b := &conn{}, &conn{}

	assert.True(t, h.registerChat("s1", a))
	assert.False(t, h.registerChat("s1", b), "a session keeps its first socket")
	h.unregisterChat("s1", b)
	assert.Equal(t, 1, h.ChatClients())
	h.unregisterChat("s1", a)
	assert.Zero(t, h.ChatClients())

	h.registerUnity(a)
	h.registerUnity(b)
	h.unregisterUnity(a)
	assert.True(t, h.IsConnected(), "a stale socket does not drop its replacement")
	h.unregisterUnity(b)
	assert.False(t, h.IsConnected())

	assert.False(t, h.Send(context.Background(), map[string]any{"type": "noop"}))
	assert.False(t, h.Notify(context.Background(), "s1", map[string]any{"type": "noop"}))
}
