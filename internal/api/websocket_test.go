package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-client-bridge/internal/logging"
	"media-client-bridge/internal/types"
)

func httptestUpgrade(wsm *WebSocketManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wsm.HandleConnection(w, r)
	}
}

func TestWantsType(t *testing.T) {
	conn := &wsConnection{}
	assert.True(t, conn.wantsType(WSEventDecision), "no subscription means everything")

	conn.eventTypes = []string{WSEventCredential}
	assert.True(t, conn.wantsType(WSEventCredential))
	assert.False(t, conn.wantsType(WSEventDecision))
}

func TestWebSocketBroadcast(t *testing.T) {
	logger := logging.Initialize("error")
	wsm := NewWebSocketManager(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wsm.Start(ctx)
	defer wsm.Stop()

	server := httptest.NewServer(httptestUpgrade(wsm))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Wait for registration before broadcasting
	require.Eventually(t, func() bool {
		return wsm.ConnectionCount() == 1
	}, time.Second, 10*time.Millisecond)

	wsm.BroadcastDecision(types.DecisionEvent{
		EventID:       "evt-1",
		Container:     "mkv",
		CanDirectPlay: true,
		Score:         110,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var message WebSocketMessage
	require.NoError(t, conn.ReadJSON(&message))
	assert.Equal(t, WSEventDecision, message.Type)
	assert.Equal(t, "evt-1", message.EventID)
}

func TestWebSocketPongTimeoutDropsConnection(t *testing.T) {
	logger := logging.Initialize("error")
	wsm := NewWebSocketManager(logger)
	wsm.pingInterval = 10 * time.Millisecond
	wsm.pongTimeout = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wsm.Start(ctx)
	defer wsm.Stop()

	server := httptest.NewServer(httptestUpgrade(wsm))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return wsm.ConnectionCount() == 1
	}, time.Second, 10*time.Millisecond)

	// The client never reads, so its automatic pong replies never run and
	// the ping cycle must drop the connection
	require.Eventually(t, func() bool {
		return wsm.ConnectionCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	// The event loop must survive the drop: a fresh connection still registers
	conn2, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn2.Close()

	require.Eventually(t, func() bool {
		return wsm.ConnectionCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketSubscriptionFilter(t *testing.T) {
	logger := logging.Initialize("error")
	wsm := NewWebSocketManager(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wsm.Start(ctx)
	defer wsm.Stop()

	server := httptest.NewServer(httptestUpgrade(wsm))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return wsm.ConnectionCount() == 1
	}, time.Second, 10*time.Millisecond)

	// Subscribe to credential events only
	require.NoError(t, conn.WriteJSON(clientMessage{Type: "subscribe", EventTypes: []string{WSEventCredential}}))

	// Give the subscription time to land before broadcasting
	require.Eventually(t, func() bool {
		wsm.mutex.RLock()
		defer wsm.mutex.RUnlock()
		for _, c := range wsm.connections {
			if len(c.eventTypes) == 1 {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	wsm.BroadcastDecision(types.DecisionEvent{EventID: "evt-decision"})
	wsm.BroadcastCredential(types.CredentialEvent{EventID: "evt-credential", EventType: types.EventTypeSaved})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var message WebSocketMessage
	require.NoError(t, conn.ReadJSON(&message))
	assert.Equal(t, WSEventCredential, message.Type, "decision event should have been filtered out")
	assert.Equal(t, "evt-credential", message.EventID)
}
