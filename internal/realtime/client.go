package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/homefleet/core/internal/device"
	"github.com/homefleet/core/internal/infrastructure/config"
)

// commandTimeout caps how long a client command may occupy its device's
// write slot.
const commandTimeout = 10 * time.Second

// Client represents one connected WebSocket client.
type Client struct {
	hub           *Hub
	conn          *websocket.Conn
	id            string
	send          chan []byte
	subscriptions map[string]struct{}
	mu            sync.RWMutex
}

// readPump reads messages from the WebSocket connection.
func (c *Client) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "client_id", c.id, "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "client_id", c.id, "error", err)
			}
			return
		}
		// Any client message resets the read deadline, keeping the
		// connection alive even if the peer never answers pings.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *Client) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes one incoming WebSocket message.
func (c *Client) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case EventSubscribeDevice:
		c.handleSubscribe(msg)
	case EventUnsubscribeDevice:
		c.handleUnsubscribe(msg)
	case EventDeviceCommand:
		c.handleCommand(msg)
	case EventPing:
		c.sendEvent(msg.ID, EventPong, nil)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// handleSubscribe adds a device to the client's subscription set.
// Subscribing twice is harmless, and unknown device IDs are accepted;
// they simply never produce events. The acknowledgement goes to this
// client only.
func (c *Client) handleSubscribe(msg WSMessage) {
	deviceID, ok := c.parseSubscribePayload(msg)
	if !ok {
		return
	}

	c.mu.Lock()
	c.subscriptions[deviceID] = struct{}{}
	c.mu.Unlock()

	c.hub.logger.Debug("client subscribed to device", "client_id", c.id, "device_id", deviceID)
	c.sendEvent(msg.ID, EventDeviceSubscribed, SubscribeAckPayload{DeviceID: deviceID})
}

// handleUnsubscribe removes a device from the subscription set.
// Unsubscribing from a device the client never subscribed to still
// acknowledges.
func (c *Client) handleUnsubscribe(msg WSMessage) {
	deviceID, ok := c.parseSubscribePayload(msg)
	if !ok {
		return
	}

	c.unsubscribe(deviceID)

	c.hub.logger.Debug("client unsubscribed from device", "client_id", c.id, "device_id", deviceID)
	c.sendEvent(msg.ID, EventDeviceUnsubscribed, SubscribeAckPayload{DeviceID: deviceID})
}

// handleCommand executes a device command. Every command message gets
// exactly one device-command-response, malformed ones included.
func (c *Client) handleCommand(msg WSMessage) {
	var cmd CommandPayload
	if !c.parsePayload(msg.Payload, &cmd) {
		c.sendEvent(msg.ID, EventDeviceCommandResponse, CommandResponsePayload{
			Success: false,
			Message: "invalid command payload",
		})
		return
	}
	if cmd.DeviceID == "" || cmd.ControlKey == "" {
		c.sendEvent(msg.ID, EventDeviceCommandResponse, CommandResponsePayload{
			DeviceID: cmd.DeviceID,
			Success:  false,
			Message:  "deviceId and controlKey are required",
		})
		return
	}

	if c.hub.commander == nil {
		c.sendEvent(msg.ID, EventDeviceCommandResponse, CommandResponsePayload{
			DeviceID: cmd.DeviceID,
			Success:  false,
			Message:  "command processing unavailable",
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	result, err := c.hub.commander.ProcessCommand(ctx, device.Command{
		DeviceID:   cmd.DeviceID,
		ControlKey: cmd.ControlKey,
		Value:      cmd.Value,
		IssuedAt:   time.Now().UTC(),
	})
	if err != nil {
		c.hub.logger.Error("command processing failed",
			"client_id", c.id, "device_id", cmd.DeviceID, "error", err)
		c.sendEvent(msg.ID, EventDeviceCommandResponse, CommandResponsePayload{
			DeviceID: cmd.DeviceID,
			Success:  false,
			Message:  "internal error",
		})
		return
	}

	c.sendEvent(msg.ID, EventDeviceCommandResponse, CommandResponsePayload{
		DeviceID: cmd.DeviceID,
		Success:  result.Success,
		Message:  result.Message,
		Data:     result.Data,
	})
}

// parseSubscribePayload extracts and validates the device ID of a
// subscribe or unsubscribe request.
func (c *Client) parseSubscribePayload(msg WSMessage) (string, bool) {
	var sub SubscribePayload
	if !c.parsePayload(msg.Payload, &sub) {
		c.sendError(msg.ID, "invalid subscription payload")
		return "", false
	}
	if sub.DeviceID == "" {
		c.sendError(msg.ID, "deviceId is required")
		return "", false
	}
	return sub.DeviceID, true
}

// parsePayload remarshals the envelope's loose payload into a typed one.
func (c *Client) parsePayload(payload any, dst any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

// unsubscribe removes one device subscription.
func (c *Client) unsubscribe(deviceID string) {
	c.mu.Lock()
	delete(c.subscriptions, deviceID)
	c.mu.Unlock()
}

// isSubscribed checks whether the client follows a device.
func (c *Client) isSubscribed(deviceID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[deviceID]
	return ok
}

// trySend attempts to queue data for the client. A closed channel
// (client disconnected during broadcast) and a full buffer (slow
// client) are both absorbed.
func (c *Client) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
		// Client buffer full, skip
	}
}

// sendEvent queues a timestamped message to this client only.
func (c *Client) sendEvent(id, eventType string, payload any) {
	data, err := marshalEvent(id, eventType, payload)
	if err != nil {
		return
	}
	c.trySend(data)
}

// sendError queues an error message to this client.
func (c *Client) sendError(id, message string) {
	c.sendEvent(id, EventError, map[string]string{"message": message})
}
