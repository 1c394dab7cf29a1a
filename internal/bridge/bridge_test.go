package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/homefleet/core/internal/device"
	"github.com/homefleet/core/internal/infrastructure/mqtt"
)

// fakeTransport records subscriptions and publishes, and lets tests
// deliver inbound messages to registered handlers.
type fakeTransport struct {
	mu        sync.Mutex
	handlers  map[string]mqtt.MessageHandler
	published []publishedMsg
	connected bool
	subErr    error
	pubErr    error
}

type publishedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		handlers:  make(map[string]mqtt.MessageHandler),
		connected: true,
	}
}

func (f *fakeTransport) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	if f.subErr != nil {
		return f.subErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeTransport) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if f.pubErr != nil {
		return f.pubErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedMsg{topic, payload, qos, retained})
	return nil
}

func (f *fakeTransport) IsConnected() bool {
	return f.connected
}

// deliver routes a message to the handler whose wildcard pattern
// matches the topic's channel.
func (f *fakeTransport) deliver(t *testing.T, pattern, topic string, payload []byte) error {
	t.Helper()
	f.mu.Lock()
	handler, ok := f.handlers[pattern]
	f.mu.Unlock()
	if !ok {
		t.Fatalf("no subscription for pattern %q", pattern)
	}
	return handler(topic, payload)
}

// fakeFleet records registry calls.
type fakeFleet struct {
	mu          sync.Mutex
	discoveries []device.Discovery
	statuses    []device.Status
	properties  []appliedProperty
	propertyErr error
	statusErr   error
}

type appliedProperty struct {
	deviceID string
	key      string
	value    any
	unit     string
	ts       time.Time
}

func (f *fakeFleet) ApplyDiscovery(_ context.Context, ann device.Discovery) (*device.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discoveries = append(f.discoveries, ann)
	return &device.Device{ID: ann.DeviceID, Name: ann.Name, Type: ann.Type}, nil
}

func (f *fakeFleet) SetStatus(_ context.Context, id string, status device.Status, _ time.Time) error {
	if f.statusErr != nil {
		return f.statusErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeFleet) ApplyProperty(_ context.Context, id, key string, value any, unit string, ts time.Time) error {
	if f.propertyErr != nil {
		return f.propertyErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.properties = append(f.properties, appliedProperty{id, key, value, unit, ts})
	return nil
}

func newTestBridge(t *testing.T) (*Bridge, *fakeTransport, *fakeFleet) {
	t.Helper()

	transport := newFakeTransport()
	fleet := &fakeFleet{}
	b := New(transport, fleet, 1)
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return b, transport, fleet
}

func TestStart_SubscribesAllChannels(t *testing.T) {
	_, transport, _ := newTestBridge(t)

	want := []string{
		"device/+/discovery",
		"device/+/status",
		"device/+/property/+",
		"device/+/command/response",
	}
	for _, pattern := range want {
		if _, ok := transport.handlers[pattern]; !ok {
			t.Errorf("missing subscription for %q", pattern)
		}
	}
}

func TestHandleDiscovery(t *testing.T) {
	_, transport, fleet := newTestBridge(t)

	payload := []byte(`{
		"name": "Garden Sensor",
		"type": "sensor",
		"room": "Garden",
		"capabilities": ["temperature_read"],
		"properties": [{"key": "temperature", "value": 18.5, "unit": "C"}]
	}`)

	err := transport.deliver(t, "device/+/discovery", "device/sensor-garden-01/discovery", payload)
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}

	if len(fleet.discoveries) != 1 {
		t.Fatalf("got %d discoveries, want 1", len(fleet.discoveries))
	}
	ann := fleet.discoveries[0]
	if ann.DeviceID != "sensor-garden-01" {
		t.Errorf("device ID = %q, want from topic", ann.DeviceID)
	}
	if ann.Type != device.TypeSensor || ann.Room != "Garden" {
		t.Errorf("announcement = %+v", ann)
	}
	if len(ann.Properties) != 1 || ann.Properties[0].Key != "temperature" {
		t.Errorf("properties = %+v", ann.Properties)
	}
	if ann.Properties[0].Timestamp.IsZero() {
		t.Error("missing payload timestamp should default to now")
	}

	// Discovery marks the device online.
	if len(fleet.statuses) != 1 || fleet.statuses[0] != device.StatusOnline {
		t.Errorf("statuses = %v, want [online]", fleet.statuses)
	}
}

func TestHandleDiscovery_Malformed(t *testing.T) {
	_, transport, fleet := newTestBridge(t)

	err := transport.deliver(t, "device/+/discovery", "device/x/discovery", []byte("{not json"))
	if err != nil {
		t.Fatalf("malformed payload must be discarded, got error %v", err)
	}
	if len(fleet.discoveries) != 0 {
		t.Error("malformed discovery reached the registry")
	}
}

func TestHandleStatus(t *testing.T) {
	_, transport, fleet := newTestBridge(t)

	err := transport.deliver(t, "device/+/status", "device/dev-1/status",
		[]byte(`{"status": "offline"}`))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if len(fleet.statuses) != 1 || fleet.statuses[0] != device.StatusOffline {
		t.Errorf("statuses = %v, want [offline]", fleet.statuses)
	}
}

func TestHandleStatus_MirrorsTransition(t *testing.T) {
	b, transport, _ := newTestBridge(t)

	type transition struct {
		deviceID string
		online   bool
	}
	var mu sync.Mutex
	var got []transition
	b.SetStatusMirror(func(deviceID string, online bool, _ time.Time) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, transition{deviceID, online})
	})

	err := transport.deliver(t, "device/+/status", "device/dev-1/status",
		[]byte(`{"status": "online"}`))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].deviceID != "dev-1" || !got[0].online {
		t.Errorf("mirrored transitions = %+v", got)
	}
}

func TestHandleStatus_UnknownDeviceDiscarded(t *testing.T) {
	_, transport, fleet := newTestBridge(t)
	fleet.statusErr = device.ErrDeviceNotFound

	err := transport.deliver(t, "device/+/status", "device/ghost/status",
		[]byte(`{"status": "online"}`))
	if err != nil {
		t.Errorf("status for unknown device must be discarded, got error %v", err)
	}
}

func TestHandleProperty(t *testing.T) {
	_, transport, fleet := newTestBridge(t)

	ts := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	payload, _ := json.Marshal(propertyPayload{Value: 21.5, Unit: "C", Timestamp: &ts})

	err := transport.deliver(t, "device/+/property/+",
		"device/thermo-hall/property/temperature", payload)
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}

	if len(fleet.properties) != 1 {
		t.Fatalf("got %d applied properties, want 1", len(fleet.properties))
	}
	p := fleet.properties[0]
	if p.deviceID != "thermo-hall" || p.key != "temperature" {
		t.Errorf("applied to %s/%s, want thermo-hall/temperature", p.deviceID, p.key)
	}
	if p.value != 21.5 || p.unit != "C" {
		t.Errorf("value = %v %s", p.value, p.unit)
	}
	if !p.ts.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", p.ts, ts)
	}
}

func TestHandleProperty_StaleDiscarded(t *testing.T) {
	_, transport, fleet := newTestBridge(t)
	fleet.propertyErr = device.ErrStaleReading

	err := transport.deliver(t, "device/+/property/+",
		"device/dev-1/property/temperature", []byte(`{"value": 5}`))
	if err != nil {
		t.Errorf("stale reading must be discarded quietly, got error %v", err)
	}
}

func TestHandleProperty_Malformed(t *testing.T) {
	_, transport, fleet := newTestBridge(t)

	err := transport.deliver(t, "device/+/property/+",
		"device/dev-1/property/temperature", []byte("garbage"))
	if err != nil {
		t.Errorf("malformed payload must be discarded, got error %v", err)
	}
	if len(fleet.properties) != 0 {
		t.Error("malformed reading reached the registry")
	}
}

func TestHandleConfirmation(t *testing.T) {
	b, transport, _ := newTestBridge(t)

	var mu sync.Mutex
	var got []Confirmation
	b.SetOnConfirmation(func(c Confirmation) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, c)
	})

	err := transport.deliver(t, "device/+/command/response",
		"device/light-living/command/response",
		[]byte(`{"controlKey": "power", "success": true}`))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("got %d confirmations, want 1", len(got))
	}
	if got[0].DeviceID != "light-living" || got[0].ControlKey != "power" || !got[0].Success {
		t.Errorf("confirmation = %+v", got[0])
	}
}

func TestParseDeviceTopic(t *testing.T) {
	tests := []struct {
		topic    string
		wantID   string
		wantRest []string
		wantErr  bool
	}{
		{topic: "device/dev-1/discovery", wantID: "dev-1"},
		{topic: "device/dev-1/property/temperature", wantID: "dev-1", wantRest: []string{"temperature"}},
		{topic: "device/dev-1/command/response", wantID: "dev-1", wantRest: []string{"response"}},
		{topic: "other/dev-1/discovery", wantErr: true},
		{topic: "device//discovery", wantErr: true},
		{topic: "device", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			id, rest, err := parseDeviceTopic(tt.topic)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.topic)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseDeviceTopic() error = %v", err)
			}
			if id != tt.wantID {
				t.Errorf("id = %q, want %q", id, tt.wantID)
			}
			if len(rest) != len(tt.wantRest) {
				t.Errorf("rest = %v, want %v", rest, tt.wantRest)
			}
		})
	}
}

func TestDispatcher(t *testing.T) {
	transport := newFakeTransport()
	d := NewDispatcher(transport, 1)

	err := d.DispatchCommand(context.Background(), "light-living", "power", true)
	if err != nil {
		t.Fatalf("DispatchCommand() error = %v", err)
	}

	if len(transport.published) != 1 {
		t.Fatalf("got %d publishes, want 1", len(transport.published))
	}
	msg := transport.published[0]
	if msg.topic != "device/light-living/command" {
		t.Errorf("topic = %q", msg.topic)
	}
	if msg.retained {
		t.Error("commands must not be retained")
	}

	var cmd commandPayload
	if err := json.Unmarshal(msg.payload, &cmd); err != nil {
		t.Fatalf("unmarshalling command payload: %v", err)
	}
	if cmd.ControlKey != "power" || cmd.Value != true {
		t.Errorf("payload = %+v", cmd)
	}
	if cmd.IssuedAt.IsZero() {
		t.Error("issuedAt not set")
	}
}

func TestDispatcher_TransportFailure(t *testing.T) {
	transport := newFakeTransport()
	transport.pubErr = mqtt.ErrNotConnected
	d := NewDispatcher(transport, 1)

	err := d.DispatchCommand(context.Background(), "dev-1", "power", true)
	if err == nil {
		t.Error("expected error from disconnected transport")
	}
}
