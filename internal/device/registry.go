package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// historyAppendTimeout bounds the detached history append that runs
// after a broadcast has already gone out.
const historyAppendTimeout = 5 * time.Second

// Registry owns the canonical in-memory device state and routes commands.
// It wraps a Repository for persistence and adds an in-memory cache for
// fast lookups.
//
// Mutating operations on the same device ID are serialized in arrival
// order through a per-device lock; operations on different devices
// proceed independently. This single-writer-per-key discipline prevents
// lost updates from concurrent command and telemetry races.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]*Device // Cached devices by ID
	cacheMu sync.RWMutex       // Protects cache

	// Per-device mutation locks.
	devLocks   map[string]*sync.Mutex
	devLocksMu sync.Mutex

	dispatcher  Dispatcher
	broadcaster Broadcaster
	history     HistorySink
	logger      Logger
}

// NewRegistry creates a new device registry.
// The repository is used for persistence; the registry adds caching.
// Dispatcher, broadcaster and history sink default to no-ops until set.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:        repo,
		cache:       make(map[string]*Device),
		devLocks:    make(map[string]*sync.Mutex),
		dispatcher:  NoopDispatcher{},
		broadcaster: noopBroadcaster{},
		history:     noopHistory{},
		logger:      noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetDispatcher wires the outbound command dispatcher.
// Pass NoopDispatcher{} to run without a device transport.
func (r *Registry) SetDispatcher(d Dispatcher) {
	if d == nil {
		d = NoopDispatcher{}
	}
	r.dispatcher = d
}

// SetBroadcaster wires the real-time fan-out.
func (r *Registry) SetBroadcaster(b Broadcaster) {
	if b == nil {
		b = noopBroadcaster{}
	}
	r.broadcaster = b
}

// SetHistorySink wires the time-series store.
func (r *Registry) SetHistorySink(h HistorySink) {
	if h == nil {
		h = noopHistory{}
	}
	r.history = h
}

// lockDevice returns the mutation lock for a device ID, creating it on
// first use. Lock entries are removed when the device is removed.
// Callers that require an existing device must verify existence before
// calling this, so IDs arriving from websocket clients or the broker
// cannot grow the map with entries for devices that never existed.
func (r *Registry) lockDevice(id string) *sync.Mutex {
	r.devLocksMu.Lock()
	defer r.devLocksMu.Unlock()

	mu, ok := r.devLocks[id]
	if !ok {
		mu = &sync.Mutex{}
		r.devLocks[id] = mu
	}
	return mu
}

// RefreshCache reloads all devices from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	// Clear and rebuild cache with deep copies
	r.cache = make(map[string]*Device, len(devices))
	for i := range devices {
		d := devices[i]
		r.cache[d.ID] = d.DeepCopy()
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// AddDevice registers a new device.
//
// Default controls are derived from the device type (switch gets power,
// dimmer gets power and brightness, thermostat gets target temperature,
// lock gets locked, sensors and cameras get none). The new device starts
// offline until the telemetry path reports otherwise.
func (r *Registry) AddDevice(ctx context.Context, reg Registration) (*Device, error) {
	if err := ValidateRegistration(reg); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	d := &Device{
		ID:         GenerateID(),
		Name:       reg.Name,
		Type:       reg.Type,
		Room:       reg.Room,
		Status:     StatusOffline,
		Properties: make(map[string]Property),
		Controls:   DefaultControls(reg.Type),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := r.repo.Create(ctx, d); err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[d.ID] = d.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("device registered", "id", d.ID, "name", d.Name, "type", d.Type)
	return d.DeepCopy(), nil
}

// GetDevice retrieves a device by ID.
// Returns ErrDeviceNotFound if the device does not exist.
// The returned device is a deep copy; callers can safely modify it.
func (r *Registry) GetDevice(ctx context.Context, id string) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}

	// Fall back to repository (might be a new device not yet cached)
	d, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[id] = d.DeepCopy()
	r.cacheMu.Unlock()

	return d, nil
}

// ListDevices retrieves all devices.
// The returned devices are deep copies; callers can safely modify them.
func (r *Registry) ListDevices(ctx context.Context) ([]Device, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if len(r.cache) > 0 {
		devices := make([]Device, 0, len(r.cache))
		for _, d := range r.cache {
			devices = append(devices, *d.DeepCopy())
		}
		return devices, nil
	}

	return r.repo.List(ctx)
}

// GetDevicesByRoom retrieves all devices in a room.
// Matching is exact-string and case-sensitive, no normalization.
func (r *Registry) GetDevicesByRoom(ctx context.Context, room string) ([]Device, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if len(r.cache) > 0 {
		var devices []Device
		for _, d := range r.cache {
			if d.Room == room {
				devices = append(devices, *d.DeepCopy())
			}
		}
		return devices, nil
	}

	return r.repo.ListByRoom(ctx, room)
}

// GetDevicesByType retrieves all devices of a type.
// Matching is exact-string and case-sensitive, no normalization.
func (r *Registry) GetDevicesByType(ctx context.Context, t DeviceType) ([]Device, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if len(r.cache) > 0 {
		var devices []Device
		for _, d := range r.cache {
			if d.Type == t {
				devices = append(devices, *d.DeepCopy())
			}
		}
		return devices, nil
	}

	return r.repo.ListByType(ctx, t)
}

// UpdateDevice merges metadata changes into an existing device.
// Only name, room and thresholds are mutable; type and ID never change.
// Returns ErrDeviceNotFound if the ID is unknown.
func (r *Registry) UpdateDevice(ctx context.Context, id string, upd Update) (*Device, error) {
	if _, err := r.GetDevice(ctx, id); err != nil {
		return nil, err
	}

	mu := r.lockDevice(id)
	mu.Lock()
	defer mu.Unlock()

	d, err := r.GetDevice(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		if err := ValidateName(*upd.Name); err != nil {
			return nil, err
		}
		d.Name = *upd.Name
	}
	if upd.Room != nil {
		d.Room = *upd.Room
	}
	if upd.Thresholds != nil {
		d.Thresholds = upd.Thresholds
	}
	d.UpdatedAt = time.Now().UTC()

	if err := r.repo.Update(ctx, d); err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[id] = d.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("device updated", "id", id, "name", d.Name)
	return d, nil
}

// ProcessCommand validates and applies a user-issued command.
//
// Expected failures (unknown device, unknown control, value that fails
// the control's validation) are returned as a CommandResult with
// Success=false and a nil error, and cause zero side effects: no
// mutation, no dispatch, no broadcast, no historical append. Only
// unexpected failures, such as a persistence error, surface as errors.
//
// On success the property is upserted with a fresh timestamp, the
// command is dispatched toward the device, subscribed real-time clients
// receive the updated device, and a historical point is appended. The
// append is not awaited: viewers may observe the change slightly before
// it is queryable in history.
func (r *Registry) ProcessCommand(ctx context.Context, cmd Command) (*CommandResult, error) {
	notFound := func() *CommandResult {
		return &CommandResult{
			Success: false,
			Message: fmt.Sprintf("device %q not found", cmd.DeviceID),
		}
	}

	if _, err := r.GetDevice(ctx, cmd.DeviceID); err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			return notFound(), nil
		}
		return nil, err
	}

	mu := r.lockDevice(cmd.DeviceID)
	mu.Lock()
	defer mu.Unlock()

	d, err := r.GetDevice(ctx, cmd.DeviceID)
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			return notFound(), nil
		}
		return nil, err
	}

	control, ok := d.Control(cmd.ControlKey)
	if !ok {
		return &CommandResult{
			Success: false,
			Message: fmt.Sprintf("control %q not found on device %q", cmd.ControlKey, cmd.DeviceID),
		}, nil
	}

	if valid, message := validateCommandValue(control, cmd.Value); !valid {
		return &CommandResult{Success: false, Message: message}, nil
	}

	now := time.Now().UTC()
	prop := Property{
		Key:       control.Key,
		Value:     cmd.Value,
		Timestamp: now,
	}
	if existing, exists := d.Properties[control.Key]; exists {
		prop.Unit = existing.Unit
	}
	d.Properties[control.Key] = prop
	d.UpdatedAt = now

	if err := r.repo.UpdateProperties(ctx, d.ID, d.Properties); err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[d.ID] = d.DeepCopy()
	r.cacheMu.Unlock()

	// Fire-and-forget dispatch: the result below means "accepted and
	// dispatched", not "confirmed". Transport failures degrade to a
	// registry-only apply rather than failing the command.
	if err := r.dispatcher.DispatchCommand(ctx, d.ID, control.Key, cmd.Value); err != nil {
		r.logger.Warn("command dispatch failed",
			"device_id", d.ID,
			"control", control.Key,
			"error", err,
		)
	}

	r.broadcaster.BroadcastDeviceUpdate(d.DeepCopy())
	r.appendHistory(d.ID, control.Key, cmd.Value, now)

	r.logger.Debug("command applied", "device_id", d.ID, "control", control.Key)
	return &CommandResult{
		Success: true,
		Message: fmt.Sprintf("command %q applied", control.Key),
		Data:    &prop,
	}, nil
}

// RemoveDevice deletes a device.
//
// Deletion cascades to the device's historical points through the
// store's foreign key, and the fan-out tears down the device's
// subscription room. Returns ErrDeviceNotFound if the ID is unknown.
func (r *Registry) RemoveDevice(ctx context.Context, id string) error {
	if _, err := r.GetDevice(ctx, id); err != nil {
		return err
	}

	mu := r.lockDevice(id)
	mu.Lock()
	defer mu.Unlock()

	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.devLocksMu.Lock()
	delete(r.devLocks, id)
	r.devLocksMu.Unlock()

	r.broadcaster.CloseDeviceRoom(id)

	r.logger.Info("device removed", "id", id)
	return nil
}

// ApplyDiscovery idempotently upserts a device from a discovery
// announcement.
//
// An unknown device ID creates the device with the announced controls,
// properties and capabilities. A known one has those merged in;
// announced controls replace same-key defaults, announced properties
// only fill in keys the registry has no fresher reading for.
func (r *Registry) ApplyDiscovery(ctx context.Context, ann Discovery) (*Device, error) {
	if err := ValidateDiscovery(ann); err != nil {
		return nil, err
	}

	mu := r.lockDevice(ann.DeviceID)
	mu.Lock()
	defer mu.Unlock()

	d, err := r.GetDevice(ctx, ann.DeviceID)
	switch {
	case err == nil:
		d.Name = ann.Name
		d.Room = ann.Room
		d.Capabilities = mergeStrings(d.Capabilities, ann.Capabilities)
		d.Controls = mergeControls(d.Controls, ann.Controls)
		for _, p := range ann.Properties {
			existing, exists := d.Properties[p.Key]
			if exists && !existing.Timestamp.Before(p.Timestamp) {
				continue
			}
			d.Properties[p.Key] = p
		}
		d.UpdatedAt = time.Now().UTC()

		if err := r.repo.Update(ctx, d); err != nil {
			return nil, err
		}

	case errors.Is(err, ErrDeviceNotFound):
		now := time.Now().UTC()
		d = &Device{
			ID:           ann.DeviceID,
			Name:         ann.Name,
			Type:         ann.Type,
			Room:         ann.Room,
			Status:       StatusOffline,
			Properties:   make(map[string]Property, len(ann.Properties)),
			Controls:     mergeControls(DefaultControls(ann.Type), ann.Controls),
			Capabilities: ann.Capabilities,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		for _, p := range ann.Properties {
			d.Properties[p.Key] = p
		}

		if err := r.repo.Create(ctx, d); err != nil {
			return nil, err
		}

	default:
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[d.ID] = d.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("discovery applied", "id", d.ID, "name", d.Name)
	return d.DeepCopy(), nil
}

// SetStatus records a device's availability transition from telemetry.
// Subscribed real-time clients receive a device-status event.
func (r *Registry) SetStatus(ctx context.Context, id string, status Status, ts time.Time) error {
	if err := ValidateStatus(status); err != nil {
		return err
	}
	if _, err := r.GetDevice(ctx, id); err != nil {
		return err
	}

	mu := r.lockDevice(id)
	mu.Lock()
	defer mu.Unlock()

	d, err := r.GetDevice(ctx, id)
	if err != nil {
		return err
	}

	lastSeen := ts.UTC()
	if err := r.repo.UpdateStatus(ctx, id, status, lastSeen); err != nil {
		return err
	}

	d.Status = status
	d.LastSeen = &lastSeen
	d.UpdatedAt = time.Now().UTC()

	r.cacheMu.Lock()
	r.cache[id] = d.DeepCopy()
	r.cacheMu.Unlock()

	r.broadcaster.BroadcastDeviceStatus(id, status)

	r.logger.Debug("device status updated", "id", id, "status", status)
	return nil
}

// ApplyProperty records a telemetry property reading.
//
// Timestamps are enforced monotonic per (device, property): a reading
// not newer than the stored one returns ErrStaleReading and is
// discarded, which keeps at-least-once redelivery from rolling state
// backwards. Accepted readings are persisted, broadcast to subscribers
// and appended to history (the append is not awaited).
func (r *Registry) ApplyProperty(ctx context.Context, id, key string, value any, unit string, ts time.Time) error {
	if _, err := r.GetDevice(ctx, id); err != nil {
		return err
	}

	mu := r.lockDevice(id)
	mu.Lock()
	defer mu.Unlock()

	d, err := r.GetDevice(ctx, id)
	if err != nil {
		return err
	}

	if existing, exists := d.Properties[key]; exists && !ts.After(existing.Timestamp) {
		return fmt.Errorf("%w: %s/%s at %s", ErrStaleReading, id, key, ts.Format(time.RFC3339))
	}

	now := time.Now().UTC()
	prop := Property{
		Key:       key,
		Value:     value,
		Unit:      unit,
		Timestamp: ts.UTC(),
	}
	d.Properties[key] = prop
	d.LastSeen = &now
	d.UpdatedAt = now

	if err := r.repo.UpdateProperties(ctx, id, d.Properties); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[id] = d.DeepCopy()
	r.cacheMu.Unlock()

	r.broadcaster.BroadcastDeviceUpdate(d.DeepCopy())
	r.appendHistory(id, key, value, ts.UTC())

	r.logger.Debug("property applied", "id", id, "key", key)
	return nil
}

// appendHistory writes a historical point without blocking the caller.
// Failures are logged; by the time the append runs, the mutation has
// already been applied and broadcast.
func (r *Registry) appendHistory(deviceID, property string, value any, ts time.Time) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), historyAppendTimeout)
		defer cancel()

		if err := r.history.Append(ctx, deviceID, property, value, ts); err != nil {
			r.logger.Error("history append failed",
				"device_id", deviceID,
				"property", property,
				"error", err,
			)
		}
	}()
}

// DeviceCount returns the number of cached devices.
func (r *Registry) DeviceCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// mergeControls overlays announced controls onto the existing set.
// Same-key announcements replace, new keys append, order is preserved.
func mergeControls(existing, announced []Control) []Control {
	if len(announced) == 0 {
		return existing
	}

	merged := make([]Control, len(existing))
	copy(merged, existing)

	for _, a := range announced {
		replaced := false
		for i := range merged {
			if merged[i].Key == a.Key {
				merged[i] = a
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, a)
		}
	}
	return merged
}

// mergeStrings unions two string slices, preserving first-seen order.
func mergeStrings(existing, announced []string) []string {
	if len(announced) == 0 {
		return existing
	}

	seen := make(map[string]struct{}, len(existing))
	merged := make([]string, 0, len(existing)+len(announced))
	for _, s := range existing {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		merged = append(merged, s)
	}
	for _, s := range announced {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		merged = append(merged, s)
	}
	return merged
}
