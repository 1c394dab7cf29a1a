package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/homefleet/core/internal/infrastructure/mqtt"
)

// Dispatcher publishes accepted commands to devices over the bus.
// Dispatch is fire and forget: the registry has already applied the
// command, and any device confirmation arrives separately on the
// command response channel.
type Dispatcher struct {
	transport Transport
	qos       byte
	topics    mqtt.Topics
}

// NewDispatcher creates a dispatcher over a transport.
func NewDispatcher(transport Transport, qos byte) *Dispatcher {
	return &Dispatcher{transport: transport, qos: qos}
}

// DispatchCommand publishes one command to the device's command topic.
func (d *Dispatcher) DispatchCommand(_ context.Context, deviceID, controlKey string, value any) error {
	payload, err := json.Marshal(commandPayload{
		ControlKey: controlKey,
		Value:      value,
		IssuedAt:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshalling command: %w", err)
	}

	topic := d.topics.DeviceCommand(deviceID)
	if err := d.transport.Publish(topic, payload, d.qos, false); err != nil {
		return fmt.Errorf("publishing command to %s: %w", topic, err)
	}
	return nil
}
