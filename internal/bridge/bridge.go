package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/homefleet/core/internal/device"
	"github.com/homefleet/core/internal/infrastructure/mqtt"
)

// Logger is the minimal logging interface the bridge needs.
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

// Fleet is the registry surface the bridge feeds.
type Fleet interface {
	ApplyDiscovery(ctx context.Context, ann device.Discovery) (*device.Device, error)
	SetStatus(ctx context.Context, id string, status device.Status, ts time.Time) error
	ApplyProperty(ctx context.Context, id, key string, value any, unit string, ts time.Time) error
}

// Transport is the message bus surface the bridge consumes.
// The MQTT client satisfies it.
type Transport interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// Confirmation is a device's acknowledgement of an earlier command.
// It arrives on its own channel, independent of the dispatch that
// triggered it; a command can succeed in the registry long before, or
// without, a confirmation showing up.
type Confirmation struct {
	DeviceID   string    `json:"deviceId"`
	ControlKey string    `json:"controlKey"`
	Success    bool      `json:"success"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Bridge consumes device traffic from the message bus and feeds the
// registry. A malformed payload is logged and dropped; it never takes
// the subscription down.
type Bridge struct {
	transport      Transport
	fleet          Fleet
	qos            byte
	logger         Logger
	topics         mqtt.Topics
	onConfirmation func(Confirmation)
	statusMirror   func(deviceID string, online bool, ts time.Time)
}

// New creates a bridge between a transport and the fleet registry.
func New(transport Transport, fleet Fleet, qos byte) *Bridge {
	return &Bridge{
		transport: transport,
		fleet:     fleet,
		qos:       qos,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger.
func (b *Bridge) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	b.logger = l
}

// SetOnConfirmation registers a hook invoked for every device command
// acknowledgement.
func (b *Bridge) SetOnConfirmation(fn func(Confirmation)) {
	b.onConfirmation = fn
}

// SetStatusMirror registers a sink that receives every applied
// online/offline transition, for time-series availability charts.
func (b *Bridge) SetStatusMirror(fn func(deviceID string, online bool, ts time.Time)) {
	b.statusMirror = fn
}

// Start subscribes to all inbound device channels.
func (b *Bridge) Start() error {
	subs := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{b.topics.AllDeviceDiscovery(), b.handleDiscovery},
		{b.topics.AllDeviceStatus(), b.handleStatus},
		{b.topics.AllDeviceProperties(), b.handleProperty},
		{b.topics.AllCommandResponses(), b.handleConfirmation},
	}

	for _, s := range subs {
		if err := b.transport.Subscribe(s.topic, b.qos, s.handler); err != nil {
			return fmt.Errorf("subscribing to %s: %w", s.topic, err)
		}
	}

	b.logger.Info("telemetry bridge started", "subscriptions", len(subs))
	return nil
}

// handleDiscovery upserts a device from its retained announcement and
// marks it online. Re-announcements are harmless.
func (b *Bridge) handleDiscovery(topic string, payload []byte) error {
	deviceID, _, err := parseDeviceTopic(topic)
	if err != nil {
		b.logger.Warn("unparseable discovery topic", "topic", topic)
		return nil
	}

	var ann discoveryPayload
	if err := json.Unmarshal(payload, &ann); err != nil {
		b.logger.Warn("malformed discovery payload, discarding",
			"device_id", deviceID, "error", err)
		return nil
	}

	ctx := context.Background()
	d, err := b.fleet.ApplyDiscovery(ctx, ann.toDiscovery(deviceID))
	if err != nil {
		if errors.Is(err, device.ErrInvalidDevice) ||
			errors.Is(err, device.ErrInvalidName) ||
			errors.Is(err, device.ErrInvalidDeviceType) {
			b.logger.Warn("invalid discovery announcement, discarding",
				"device_id", deviceID, "error", err)
			return nil
		}
		return fmt.Errorf("applying discovery for %s: %w", deviceID, err)
	}

	// An announcing device is reachable.
	if err := b.fleet.SetStatus(ctx, d.ID, device.StatusOnline, time.Now().UTC()); err != nil {
		b.logger.Warn("marking discovered device online failed",
			"device_id", d.ID, "error", err)
	}

	b.logger.Info("device discovered", "device_id", d.ID, "name", d.Name)
	return nil
}

// handleStatus applies an online/offline transition.
func (b *Bridge) handleStatus(topic string, payload []byte) error {
	deviceID, _, err := parseDeviceTopic(topic)
	if err != nil {
		b.logger.Warn("unparseable status topic", "topic", topic)
		return nil
	}

	var msg statusPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.logger.Warn("malformed status payload, discarding",
			"device_id", deviceID, "error", err)
		return nil
	}

	status := device.Status(msg.Status)
	ts := msg.timestamp()

	err = b.fleet.SetStatus(context.Background(), deviceID, status, ts)
	switch {
	case err == nil:
		if b.statusMirror != nil {
			b.statusMirror(deviceID, status == device.StatusOnline, ts)
		}
		return nil
	case errors.Is(err, device.ErrDeviceNotFound):
		b.logger.Debug("status for unknown device, discarding", "device_id", deviceID)
		return nil
	case errors.Is(err, device.ErrInvalidStatus):
		b.logger.Warn("invalid status value, discarding",
			"device_id", deviceID, "status", msg.Status)
		return nil
	default:
		return fmt.Errorf("applying status for %s: %w", deviceID, err)
	}
}

// handleProperty applies one telemetry reading. Readings that arrive
// out of order are discarded so the registry only ever moves forward.
func (b *Bridge) handleProperty(topic string, payload []byte) error {
	deviceID, rest, err := parseDeviceTopic(topic)
	if err != nil || len(rest) != 1 {
		b.logger.Warn("unparseable property topic", "topic", topic)
		return nil
	}
	key := rest[0]

	var msg propertyPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.logger.Warn("malformed property payload, discarding",
			"device_id", deviceID, "property", key, "error", err)
		return nil
	}

	err = b.fleet.ApplyProperty(context.Background(), deviceID, key, msg.Value, msg.Unit, msg.timestamp())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, device.ErrStaleReading):
		b.logger.Debug("stale reading discarded",
			"device_id", deviceID, "property", key)
		return nil
	case errors.Is(err, device.ErrDeviceNotFound):
		b.logger.Debug("reading for unknown device, discarding",
			"device_id", deviceID, "property", key)
		return nil
	default:
		return fmt.Errorf("applying property %s for %s: %w", key, deviceID, err)
	}
}

// handleConfirmation relays a device's command acknowledgement.
func (b *Bridge) handleConfirmation(topic string, payload []byte) error {
	deviceID, _, err := parseDeviceTopic(topic)
	if err != nil {
		b.logger.Warn("unparseable confirmation topic", "topic", topic)
		return nil
	}

	var msg confirmationPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.logger.Warn("malformed confirmation payload, discarding",
			"device_id", deviceID, "error", err)
		return nil
	}

	conf := Confirmation{
		DeviceID:   deviceID,
		ControlKey: msg.ControlKey,
		Success:    msg.Success,
		Message:    msg.Message,
		Timestamp:  msg.timestamp(),
	}

	b.logger.Debug("command confirmed by device",
		"device_id", deviceID, "control", conf.ControlKey, "success", conf.Success)

	if b.onConfirmation != nil {
		b.onConfirmation(conf)
	}
	return nil
}

// parseDeviceTopic extracts the device ID and trailing segments from a
// device/{id}/{channel}/... topic.
func parseDeviceTopic(topic string) (deviceID string, rest []string, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[0] != mqtt.TopicPrefixDevice || parts[1] == "" {
		return "", nil, fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	return parts[1], parts[3:], nil
}
