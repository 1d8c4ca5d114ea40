package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"media-client-bridge/internal/types"
)

// Event types broadcast over the WebSocket stream
const (
	WSEventDecision   = "decision"
	WSEventCredential = "credential"
)

// WebSocketMessage represents a message sent over WebSocket
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	EventID   string      `json:"eventId,omitempty"`
}

// wsConnection represents a single WebSocket connection
type wsConnection struct {
	id         string
	conn       *websocket.Conn
	send       chan WebSocketMessage
	eventTypes []string
	lastPong   atomic.Int64 // unix nanos; written by readPump, read by the run loop
	remoteAddr string
}

func (c *wsConnection) touchPong() {
	c.lastPong.Store(time.Now().UnixNano())
}

func (c *wsConnection) sincePong() time.Duration {
	return time.Since(time.Unix(0, c.lastPong.Load()))
}

// wantsType reports whether the connection subscribed to the event type. An
// empty subscription list means everything.
func (c *wsConnection) wantsType(eventType string) bool {
	if len(c.eventTypes) == 0 {
		return true
	}
	for _, et := range c.eventTypes {
		if et == eventType {
			return true
		}
	}
	return false
}

// WebSocketManager fans playback decision and credential lifecycle events
// out to connected UI clients
type WebSocketManager struct {
	connections map[string]*wsConnection
	mutex       sync.RWMutex
	upgrader    websocket.Upgrader
	logger      *logrus.Logger
	broadcast   chan WebSocketMessage
	register    chan *wsConnection
	unregister  chan *wsConnection
	done        chan struct{}

	pingInterval   time.Duration
	pongTimeout    time.Duration
	writeTimeout   time.Duration
	readTimeout    time.Duration
	maxConnections int
}

// NewWebSocketManager creates a new WebSocket manager
func NewWebSocketManager(logger *logrus.Logger) *WebSocketManager {
	return &WebSocketManager{
		connections: make(map[string]*wsConnection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Auth runs before the upgrade; the origin is not trusted
				// for anything beyond that
				return true
			},
		},
		logger:         logger,
		broadcast:      make(chan WebSocketMessage, 256),
		register:       make(chan *wsConnection),
		unregister:     make(chan *wsConnection),
		done:           make(chan struct{}),
		pingInterval:   30 * time.Second,
		pongTimeout:    60 * time.Second,
		writeTimeout:   10 * time.Second,
		readTimeout:    60 * time.Second,
		maxConnections: 32,
	}
}

// Start starts the manager's event loop
func (wsm *WebSocketManager) Start(ctx context.Context) {
	go wsm.run(ctx)
}

// Stop stops the manager
func (wsm *WebSocketManager) Stop() {
	close(wsm.done)
}

// BroadcastDecision fans a playback decision event out to clients
func (wsm *WebSocketManager) BroadcastDecision(event types.DecisionEvent) {
	wsm.enqueue(WebSocketMessage{
		Type:      WSEventDecision,
		Timestamp: time.Now().UTC(),
		Data:      event,
		EventID:   event.EventID,
	})
}

// BroadcastCredential fans a credential lifecycle event out to clients.
// Only metadata crosses the socket, never password material.
func (wsm *WebSocketManager) BroadcastCredential(event types.CredentialEvent) {
	wsm.enqueue(WebSocketMessage{
		Type:      WSEventCredential,
		Timestamp: time.Now().UTC(),
		Data:      event,
		EventID:   event.EventID,
	})
}

// ConnectionCount returns the current number of connections
func (wsm *WebSocketManager) ConnectionCount() int {
	wsm.mutex.RLock()
	defer wsm.mutex.RUnlock()
	return len(wsm.connections)
}

// HandleConnection upgrades an HTTP request to a WebSocket connection
func (wsm *WebSocketManager) HandleConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := wsm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	wsConn := &wsConnection{
		id:         uuid.New().String(),
		conn:       conn,
		send:       make(chan WebSocketMessage, 64),
		remoteAddr: r.RemoteAddr,
	}
	wsConn.touchPong()

	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(wsm.readTimeout))
	conn.SetPongHandler(func(string) error {
		wsConn.touchPong()
		conn.SetReadDeadline(time.Now().Add(wsm.readTimeout))
		return nil
	})

	wsm.register <- wsConn

	go wsm.writePump(wsConn)
	go wsm.readPump(wsConn)

	return nil
}

// run is the manager's main loop
func (wsm *WebSocketManager) run(ctx context.Context) {
	ticker := time.NewTicker(wsm.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-wsm.done:
			return
		case conn := <-wsm.register:
			wsm.registerConnection(conn)
		case conn := <-wsm.unregister:
			wsm.unregisterConnection(conn)
		case message := <-wsm.broadcast:
			wsm.broadcastMessage(message)
		case <-ticker.C:
			wsm.pingConnections()
		}
	}
}

func (wsm *WebSocketManager) enqueue(message WebSocketMessage) {
	select {
	case wsm.broadcast <- message:
	default:
		wsm.logger.WithField("type", message.Type).Warn("Broadcast channel full, dropping event")
	}
}

func (wsm *WebSocketManager) registerConnection(conn *wsConnection) {
	wsm.mutex.Lock()
	defer wsm.mutex.Unlock()

	if len(wsm.connections) >= wsm.maxConnections {
		wsm.logger.WithField("connection_id", conn.id).Warn("Maximum WebSocket connections reached")
		conn.conn.Close()
		return
	}

	wsm.connections[conn.id] = conn
	wsm.logger.WithFields(logrus.Fields{
		"connection_id": conn.id,
		"remote_addr":   conn.remoteAddr,
		"total":         len(wsm.connections),
	}).Info("WebSocket connection registered")
}

func (wsm *WebSocketManager) unregisterConnection(conn *wsConnection) {
	wsm.mutex.Lock()
	defer wsm.mutex.Unlock()

	if _, exists := wsm.connections[conn.id]; exists {
		delete(wsm.connections, conn.id)
		close(conn.send)

		wsm.logger.WithFields(logrus.Fields{
			"connection_id": conn.id,
			"total":         len(wsm.connections),
		}).Info("WebSocket connection unregistered")
	}
}

func (wsm *WebSocketManager) broadcastMessage(message WebSocketMessage) {
	wsm.mutex.RLock()
	defer wsm.mutex.RUnlock()

	for _, conn := range wsm.connections {
		if !conn.wantsType(message.Type) {
			continue
		}
		select {
		case conn.send <- message:
		default:
			// Blocked connection; drop it rather than stall the broadcast
			wsm.logger.WithField("connection_id", conn.id).Warn("Connection buffer full, closing")
			go func(c *wsConnection) { wsm.unregister <- c }(conn)
		}
	}
}

func (wsm *WebSocketManager) pingConnections() {
	wsm.mutex.RLock()
	connections := make([]*wsConnection, 0, len(wsm.connections))
	for _, conn := range wsm.connections {
		connections = append(connections, conn)
	}
	wsm.mutex.RUnlock()

	// Drop connections inline: pingConnections runs on the run goroutine,
	// which is the only receiver of the unregister channel, so sending on
	// it from here would deadlock the event loop.
	for _, conn := range connections {
		if conn.sincePong() > wsm.pongTimeout {
			wsm.logger.WithField("connection_id", conn.id).Warn("WebSocket connection timed out")
			wsm.unregisterConnection(conn)
			continue
		}

		conn.conn.SetWriteDeadline(time.Now().Add(wsm.writeTimeout))
		if err := conn.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			wsm.unregisterConnection(conn)
		}
	}
}

// writePump pushes queued messages down the connection
func (wsm *WebSocketManager) writePump(conn *wsConnection) {
	defer conn.conn.Close()

	for message := range conn.send {
		conn.conn.SetWriteDeadline(time.Now().Add(wsm.writeTimeout))
		if err := conn.conn.WriteJSON(message); err != nil {
			wsm.logger.WithError(err).WithField("connection_id", conn.id).Debug("WebSocket write failed")
			return
		}
	}

	conn.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump handles inbound client messages (subscriptions)
func (wsm *WebSocketManager) readPump(conn *wsConnection) {
	defer func() {
		wsm.unregister <- conn
		conn.conn.Close()
	}()

	for {
		_, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				wsm.logger.WithError(err).WithField("connection_id", conn.id).Debug("WebSocket connection error")
			}
			return
		}

		wsm.handleClientMessage(conn, data)
		conn.conn.SetReadDeadline(time.Now().Add(wsm.readTimeout))
	}
}

// clientMessage is the single inbound message shape: a subscription update
type clientMessage struct {
	Type       string   `json:"type"`
	EventTypes []string `json:"eventTypes,omitempty"`
}

func (wsm *WebSocketManager) handleClientMessage(conn *wsConnection, data []byte) {
	var message clientMessage
	if err := json.Unmarshal(data, &message); err != nil {
		wsm.logger.WithError(err).WithField("connection_id", conn.id).Warn("Unparseable WebSocket message")
		return
	}

	switch message.Type {
	case "subscribe":
		// eventTypes is read under the manager's RLock during broadcast
		wsm.mutex.Lock()
		conn.eventTypes = message.EventTypes
		wsm.mutex.Unlock()
		wsm.logger.WithFields(logrus.Fields{
			"connection_id": conn.id,
			"event_types":   message.EventTypes,
		}).Debug("WebSocket subscription updated")
	default:
		wsm.logger.WithFields(logrus.Fields{
			"connection_id": conn.id,
			"type":          message.Type,
		}).Warn("Unknown WebSocket message type")
	}
}
