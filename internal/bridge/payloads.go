package bridge

import (
	"time"

	"github.com/homefleet/core/internal/device"
)

// Wire formats for device traffic. Timestamps are RFC3339; a missing
// timestamp means "now", since cheap firmware often has no clock.

type discoveryPayload struct {
	Name         string             `json:"name"`
	Type         string             `json:"type"`
	Room         string             `json:"room,omitempty"`
	Capabilities []string           `json:"capabilities,omitempty"`
	Properties   []propertyAnnounce `json:"properties,omitempty"`
	Controls     []controlAnnounce  `json:"controls,omitempty"`
}

type propertyAnnounce struct {
	Key       string     `json:"key"`
	Value     any        `json:"value"`
	Unit      string     `json:"unit,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

type controlAnnounce struct {
	Key     string   `json:"key"`
	Kind    string   `json:"kind"`
	Label   string   `json:"label,omitempty"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Options []string `json:"options,omitempty"`
}

func (p discoveryPayload) toDiscovery(deviceID string) device.Discovery {
	ann := device.Discovery{
		DeviceID:     deviceID,
		Name:         p.Name,
		Type:         device.DeviceType(p.Type),
		Room:         p.Room,
		Capabilities: p.Capabilities,
	}

	now := time.Now().UTC()
	for _, prop := range p.Properties {
		ts := now
		if prop.Timestamp != nil {
			ts = prop.Timestamp.UTC()
		}
		ann.Properties = append(ann.Properties, device.Property{
			Key:       prop.Key,
			Value:     prop.Value,
			Unit:      prop.Unit,
			Timestamp: ts,
		})
	}

	for _, ctl := range p.Controls {
		ann.Controls = append(ann.Controls, device.Control{
			Key:     ctl.Key,
			Kind:    device.ControlKind(ctl.Kind),
			Label:   ctl.Label,
			Min:     ctl.Min,
			Max:     ctl.Max,
			Options: ctl.Options,
		})
	}

	return ann
}

type statusPayload struct {
	Status    string     `json:"status"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

func (p statusPayload) timestamp() time.Time {
	if p.Timestamp != nil {
		return p.Timestamp.UTC()
	}
	return time.Now().UTC()
}

type propertyPayload struct {
	Value     any        `json:"value"`
	Unit      string     `json:"unit,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

func (p propertyPayload) timestamp() time.Time {
	if p.Timestamp != nil {
		return p.Timestamp.UTC()
	}
	return time.Now().UTC()
}

type confirmationPayload struct {
	ControlKey string     `json:"controlKey"`
	Success    bool       `json:"success"`
	Message    string     `json:"message,omitempty"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
}

func (p confirmationPayload) timestamp() time.Time {
	if p.Timestamp != nil {
		return p.Timestamp.UTC()
	}
	return time.Now().UTC()
}

type commandPayload struct {
	ControlKey string    `json:"controlKey"`
	Value      any       `json:"value"`
	IssuedAt   time.Time `json:"issuedAt"`
}
