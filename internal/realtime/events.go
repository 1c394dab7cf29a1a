package realtime

import "github.com/homefleet/core/internal/device"

// Message types carried over the WebSocket.
const (
	// Client to hub.
	EventSubscribeDevice   = "subscribe-device"
	EventUnsubscribeDevice = "unsubscribe-device"
	EventDeviceCommand     = "device-command"
	EventPing              = "ping"

	// Hub to client.
	EventConnectionEstablished = "connection-established"
	EventDeviceSubscribed      = "device-subscribed"
	EventDeviceUnsubscribed    = "device-unsubscribed"
	EventDeviceCommandResponse = "device-command-response"
	EventDeviceUpdate          = "device-update"
	EventDeviceStatus          = "device-status"
	EventNotification          = "notification"
	EventPong                  = "pong"
	EventError                 = "error"
)

// WSMessage is the envelope for every WebSocket message in either
// direction. ID correlates a request with its acknowledgement.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// ConnectionEstablishedPayload greets a client after the upgrade.
type ConnectionEstablishedPayload struct {
	ClientID         string `json:"clientId"`
	ConnectedClients int    `json:"connectedClients"`
}

// SubscribePayload names the device a client wants updates for.
type SubscribePayload struct {
	DeviceID string `json:"deviceId"`
}

// SubscribeAckPayload confirms a subscription change to its caller.
type SubscribeAckPayload struct {
	DeviceID string `json:"deviceId"`
}

// CommandPayload carries a device command from a client.
type CommandPayload struct {
	DeviceID   string `json:"deviceId"`
	ControlKey string `json:"controlKey"`
	Value      any    `json:"value"`
}

// CommandResponsePayload is the single response every command gets.
type CommandResponsePayload struct {
	DeviceID string           `json:"deviceId,omitempty"`
	Success  bool             `json:"success"`
	Message  string           `json:"message,omitempty"`
	Data     *device.Property `json:"data,omitempty"`
}

// StatusPayload announces a device availability transition.
type StatusPayload struct {
	DeviceID string        `json:"deviceId"`
	Status   device.Status `json:"status"`
}

// NotificationPayload is a fleet-wide announcement every connected
// client receives regardless of subscriptions.
type NotificationPayload struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}
