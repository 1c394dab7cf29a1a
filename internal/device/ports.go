package device

import (
	"context"
	"time"
)

// Dispatcher forwards accepted commands toward the physical device.
//
// Dispatch is fire-and-forget: a nil return means "accepted and
// dispatched", not "confirmed by the device". Device-side confirmation,
// if any, arrives later as a property or status update through the
// telemetry path. These are two independent acknowledgment channels.
type Dispatcher interface {
	DispatchCommand(ctx context.Context, deviceID, controlKey string, value any) error
}

// Broadcaster fans registry mutations out to interested real-time clients.
//
// Implementations must tolerate zero connected clients and must never
// return an error to the registry; undeliverable events are simply dropped.
type Broadcaster interface {
	// BroadcastDeviceUpdate delivers the updated device to connections
	// subscribed to it.
	BroadcastDeviceUpdate(device *Device)

	// BroadcastDeviceStatus delivers a status transition to connections
	// subscribed to the device.
	BroadcastDeviceStatus(deviceID string, status Status)

	// CloseDeviceRoom tears down the subscription room for a removed
	// device, dropping all memberships.
	CloseDeviceRoom(deviceID string)
}

// HistorySink receives accepted property mutations for the time-series log.
type HistorySink interface {
	Append(ctx context.Context, deviceID, property string, value any, ts time.Time) error
}

// NoopDispatcher accepts every command without forwarding it anywhere.
// Substituted when the telemetry transport is unreachable or disabled so
// the rest of the pipeline keeps functioning.
type NoopDispatcher struct{}

// DispatchCommand implements Dispatcher.
func (NoopDispatcher) DispatchCommand(context.Context, string, string, any) error { return nil }

type noopBroadcaster struct{}

func (noopBroadcaster) BroadcastDeviceUpdate(*Device)        {}
func (noopBroadcaster) BroadcastDeviceStatus(string, Status) {}
func (noopBroadcaster) CloseDeviceRoom(string)               {}

type noopHistory struct{}

func (noopHistory) Append(context.Context, string, string, any, time.Time) error { return nil }
