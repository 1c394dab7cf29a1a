package device

import (
	"sort"
	"time"
)

// Device represents a single fleet member: a sensor or actuator reachable
// over the telemetry transport. This matches the database schema in
// migrations/20260110_090000_initial_schema.up.sql.
type Device struct {
	// Identity. ID and Type are immutable after creation.
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Type DeviceType `json:"type"`

	// Room is free text, matched exactly and case-sensitively by queries.
	Room string `json:"room"`

	// Availability
	Status   Status     `json:"status"`
	LastSeen *time.Time `json:"last_seen,omitempty"`

	// Properties holds the latest reading per property key.
	// Keys are unique per device.
	Properties map[string]Property `json:"properties"`

	// Controls is determined by the device type at creation and extended
	// only by discovery announcements.
	Controls []Control `json:"controls"`

	// Thresholds are optional alerting bounds on property values.
	Thresholds []Threshold `json:"thresholds,omitempty"`

	// Capabilities are free-form labels announced by the device.
	Capabilities []string `json:"capabilities,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Property is the latest observed value for one property key.
type Property struct {
	Key       string    `json:"key"`
	Value     any       `json:"value"`
	Unit      string    `json:"unit,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Control describes one way a device can be commanded.
type Control struct {
	Key     string      `json:"key"`
	Kind    ControlKind `json:"kind"`
	Label   string      `json:"label"`
	Min     *float64    `json:"min,omitempty"`
	Max     *float64    `json:"max,omitempty"`
	Options []string    `json:"options,omitempty"`
}

// Threshold is an optional alerting bound on a property.
type Threshold struct {
	PropertyKey string   `json:"property_key"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	Enabled     bool     `json:"enabled"`
}

// Registration is the input for explicit device creation.
type Registration struct {
	Name string     `json:"name"`
	Type DeviceType `json:"type"`
	Room string     `json:"room"`
}

// Update carries the mutable metadata fields for UpdateDevice.
// Nil fields are left unchanged. Type and ID are immutable.
type Update struct {
	Name       *string     `json:"name,omitempty"`
	Room       *string     `json:"room,omitempty"`
	Thresholds []Threshold `json:"thresholds,omitempty"`
}

// Command is a user-issued control request. It is ephemeral: its effect
// is recorded as a property mutation plus a historical point, never
// stored as an entity itself.
type Command struct {
	DeviceID   string    `json:"device_id"`
	ControlKey string    `json:"control_key"`
	Value      any       `json:"value"`
	IssuedAt   time.Time `json:"issued_at"`
}

// CommandResult is the structured outcome of a command. Expected failure
// conditions (unknown device, unknown control, bad value) are reported
// here with Success=false rather than as errors.
type CommandResult struct {
	Success bool      `json:"success"`
	Message string    `json:"message,omitempty"`
	Data    *Property `json:"data,omitempty"`
}

// Discovery is a device's retained capability announcement.
type Discovery struct {
	DeviceID     string     `json:"device_id"`
	Name         string     `json:"name"`
	Type         DeviceType `json:"type"`
	Room         string     `json:"room"`
	Capabilities []string   `json:"capabilities,omitempty"`
	Properties   []Property `json:"properties,omitempty"`
	Controls     []Control  `json:"controls,omitempty"`
}

// DeviceType is the fixed device classification.
type DeviceType string //nolint:revive // device.DeviceType is clearer than device.Type in calling code

// Device type constants.
const (
	TypeSensor     DeviceType = "sensor"
	TypeSwitch     DeviceType = "switch"
	TypeDimmer     DeviceType = "dimmer"
	TypeThermostat DeviceType = "thermostat"
	TypeCamera     DeviceType = "camera"
	TypeLock       DeviceType = "lock"
)

// AllDeviceTypes returns all valid device type values.
func AllDeviceTypes() []DeviceType {
	return []DeviceType{
		TypeSensor, TypeSwitch, TypeDimmer, TypeThermostat, TypeCamera, TypeLock,
	}
}

// Status represents device availability.
type Status string

// Status constants.
const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusError   Status = "error"
)

// AllStatuses returns all valid status values.
func AllStatuses() []Status {
	return []Status{StatusOnline, StatusOffline, StatusError}
}

// ControlKind classifies how a control's value is validated.
type ControlKind string

// Control kind constants.
const (
	ControlSwitch ControlKind = "switch"
	ControlSlider ControlKind = "slider"
	ControlInput  ControlKind = "input"
	ControlSelect ControlKind = "select"
)

// AllControlKinds returns all valid control kind values.
func AllControlKinds() []ControlKind {
	return []ControlKind{ControlSwitch, ControlSlider, ControlInput, ControlSelect}
}

// Control returns the control with the given key, or false if the
// device has no such control.
func (d *Device) Control(key string) (Control, bool) {
	for _, c := range d.Controls {
		if c.Key == key {
			return c, true
		}
	}
	return Control{}, false
}

// PropertyKeys returns the device's property keys in sorted order.
// Property maps are unordered; callers that need deterministic output
// iterate via this.
func (d *Device) PropertyKeys() []string {
	keys := make([]string, 0, len(d.Properties))
	for k := range d.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DeepCopy creates a complete independent copy of the Device.
// All map and slice fields are cloned so modifications to the copy
// do not affect the original. This is essential for cache isolation.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d // Shallow copy of value fields

	if d.Properties != nil {
		cpy.Properties = make(map[string]Property, len(d.Properties))
		for k, p := range d.Properties {
			p.Value = deepCopyValue(p.Value)
			cpy.Properties[k] = p
		}
	}

	if d.Controls != nil {
		cpy.Controls = make([]Control, len(d.Controls))
		for i, c := range d.Controls {
			cpy.Controls[i] = *c.deepCopy()
		}
	}

	if d.Thresholds != nil {
		cpy.Thresholds = make([]Threshold, len(d.Thresholds))
		for i, th := range d.Thresholds {
			cpy.Thresholds[i] = *th.deepCopy()
		}
	}

	if d.Capabilities != nil {
		cpy.Capabilities = make([]string, len(d.Capabilities))
		copy(cpy.Capabilities, d.Capabilities)
	}

	// Pointer fields (*time.Time) don't need deep copy because
	// time.Time is immutable in Go

	return &cpy
}

func (c *Control) deepCopy() *Control {
	cpy := *c
	if c.Min != nil {
		v := *c.Min
		cpy.Min = &v
	}
	if c.Max != nil {
		v := *c.Max
		cpy.Max = &v
	}
	if c.Options != nil {
		cpy.Options = make([]string, len(c.Options))
		copy(cpy.Options, c.Options)
	}
	return &cpy
}

func (t *Threshold) deepCopy() *Threshold {
	cpy := *t
	if t.Min != nil {
		v := *t.Min
		cpy.Min = &v
	}
	if t.Max != nil {
		v := *t.Max
		cpy.Max = &v
	}
	return &cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case map[string]any:
		cpy := make(map[string]any, len(val))
		for k, elem := range val {
			cpy[k] = deepCopyValue(elem)
		}
		return cpy
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		// Primitives (string, bool, int, float64, etc.) are safe to copy by value
		return v
	}
}
