package history

import (
	"context"
	"fmt"
	"time"
)

// Logger is the minimal logging interface the sink needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Mirror receives a copy of every numeric reading the sink stores.
// The InfluxDB client satisfies this for time-series dashboarding.
type Mirror interface {
	WritePropertyReading(deviceID, property string, value float64, ts time.Time)
}

// Sink adapts the Store to the registry's history port. Command and
// telemetry values arrive as decoded JSON; the sink keeps the numeric
// ones and silently drops the rest, since only numbers chart.
// Booleans are stored as 0 and 1 so switch state remains graphable.
type Sink struct {
	store  Store
	mirror Mirror
	logger Logger
}

// NewSink creates a sink over a store. Mirror may be nil.
func NewSink(store Store) *Sink {
	return &Sink{store: store, logger: noopLogger{}}
}

// SetMirror enables duplicating readings to a time-series backend.
func (s *Sink) SetMirror(m Mirror) {
	s.mirror = m
}

// SetLogger sets the logger.
func (s *Sink) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	s.logger = l
}

// Append stores one reading, keyed by the same property key the
// registry wrote, so queries line up with live device state.
func (s *Sink) Append(ctx context.Context, deviceID, property string, value any, ts time.Time) error {
	num, ok := coerceNumeric(value)
	if !ok {
		s.logger.Debug("skipping non-numeric history value",
			"device_id", deviceID, "property", property)
		return nil
	}

	p := Point{DeviceID: deviceID, Property: property, Value: num, Timestamp: ts}
	if err := s.store.Append(ctx, p); err != nil {
		return fmt.Errorf("appending history: %w", err)
	}

	if s.mirror != nil {
		s.mirror.WritePropertyReading(deviceID, property, num, ts)
	}
	return nil
}

// coerceNumeric converts chartable values to float64.
func coerceNumeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
