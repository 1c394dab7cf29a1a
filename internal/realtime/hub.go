package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/homefleet/core/internal/device"
	"github.com/homefleet/core/internal/infrastructure/config"
)

// Logger is the minimal logging interface the hub needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Commander executes device commands on behalf of clients.
// The registry satisfies it.
type Commander interface {
	ProcessCommand(ctx context.Context, cmd device.Command) (*device.CommandResult, error)
}

// Hub manages WebSocket connections and fans device events out to
// subscribed clients. It satisfies the registry's broadcast port, so
// every accepted state change ends up here.
//
// Broadcasting with no connected clients, or no subscribers for the
// device, is a no-op.
type Hub struct {
	cfg       config.WebSocketConfig
	logger    Logger
	commander Commander
	clients   map[*Client]struct{}
	mu        sync.RWMutex
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// NewHub creates a hub.
func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  noopLogger{},
		clients: make(map[*Client]struct{}),
	}
}

// SetLogger sets the logger.
func (h *Hub) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	h.logger = l
}

// SetCommander wires the command executor clients talk to.
func (h *Hub) SetCommander(c Commander) {
	h.commander = c
}

// Run blocks until the context is cancelled, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// ServeWS upgrades an HTTP request and starts the client's pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:           h,
		conn:          conn,
		id:            uuid.New().String(),
		send:          make(chan []byte, h.sendBuffer()),
		subscriptions: make(map[string]struct{}),
	}

	h.register(client)

	go client.writePump(h.cfg)
	go client.readPump(h.cfg)
}

// register adds a client and greets it. The greeting goes to the new
// client only and reports the post-registration connection count.
func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	client.sendEvent("", EventConnectionEstablished, ConnectionEstablishedPayload{
		ClientID:         client.id,
		ConnectedClients: count,
	})

	h.logger.Debug("websocket client connected", "client_id", client.id, "clients", count)
}

// unregister removes a client.
// Only the goroutine that successfully removes the client from the map
// closes the send channel, preventing double-close panics during shutdown.
func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "client_id", client.id, "clients", h.ClientCount())
}

// BroadcastDeviceUpdate sends a device's full state to its subscribers.
func (h *Hub) BroadcastDeviceUpdate(d *device.Device) {
	h.broadcastToSubscribers(d.ID, EventDeviceUpdate, d)
}

// BroadcastDeviceStatus sends an availability transition to the
// device's subscribers.
func (h *Hub) BroadcastDeviceStatus(deviceID string, status device.Status) {
	h.broadcastToSubscribers(deviceID, EventDeviceStatus, StatusPayload{
		DeviceID: deviceID,
		Status:   status,
	})
}

// CloseDeviceRoom drops every client's subscription to a removed
// device. Clients stay connected; they just stop receiving events for
// a device that no longer exists.
func (h *Hub) CloseDeviceRoom(deviceID string) {
	for _, client := range h.snapshot() {
		client.unsubscribe(deviceID)
	}
	h.logger.Debug("device room closed", "device_id", deviceID)
}

// BroadcastNotification sends a fleet-wide announcement to every
// connected client, subscriptions notwithstanding.
func (h *Hub) BroadcastNotification(level, message string) {
	data, err := marshalEvent("", EventNotification, NotificationPayload{
		Level:   level,
		Message: message,
	})
	if err != nil {
		h.logger.Error("marshalling notification failed", "error", err)
		return
	}

	for _, client := range h.snapshot() {
		client.trySend(data)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// broadcastToSubscribers fans one event out to clients subscribed to
// the device. Marshalling happens once, not per client.
func (h *Hub) broadcastToSubscribers(deviceID, eventType string, payload any) {
	data, err := marshalEvent("", eventType, payload)
	if err != nil {
		h.logger.Error("marshalling broadcast failed", "event", eventType, "error", err)
		return
	}

	sent := 0
	for _, client := range h.snapshot() {
		if client.isSubscribed(deviceID) {
			client.trySend(data)
			sent++
		}
	}
	if sent > 0 {
		h.logger.Debug("broadcast sent", "event", eventType, "device_id", deviceID, "recipients", sent)
	}
}

// snapshot copies the client list under the hub lock so sends happen
// without holding it.
func (h *Hub) snapshot() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// closeAll disconnects all clients and closes their send channels so
// writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

func (h *Hub) sendBuffer() int {
	if h.cfg.SendBuffer > 0 {
		return h.cfg.SendBuffer
	}
	return defaultSendBuffer
}

const defaultSendBuffer = 256

// marshalEvent builds and marshals a timestamped envelope.
func marshalEvent(id, eventType string, payload any) ([]byte, error) {
	return json.Marshal(WSMessage{
		Type:      eventType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
}
