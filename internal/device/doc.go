// Package device provides the Device Registry and Command Router for
// HomeFleet Core.
//
// The registry is the central catalogue of all fleet members. It owns
// the canonical in-memory device state, validates and applies commands,
// absorbs telemetry, and is the leaf dependency for the telemetry
// bridge, the real-time fan-out and the historical store.
//
// # Key Types
//
//   - Device: one fleet member with its properties, controls and thresholds
//   - Registry: cached, per-device-serialized state owner and command router
//   - Repository: persistence abstraction (SQLite implementation included)
//   - Command / CommandResult: ephemeral control request and its structured outcome
//   - Dispatcher / Broadcaster / HistorySink: outbound ports wired at startup
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(log)
//	registry.SetDispatcher(bridge)
//	registry.SetBroadcaster(hub)
//	registry.SetHistorySink(store)
//
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	dev, err := registry.AddDevice(ctx, device.Registration{
//	    Name: "Living Room Lamp",
//	    Type: device.TypeSwitch,
//	    Room: "Living Room",
//	})
//
//	result, err := registry.ProcessCommand(ctx, device.Command{
//	    DeviceID:   dev.ID,
//	    ControlKey: "power",
//	    Value:      true,
//	})
//
// # Concurrency
//
// All Registry methods are safe for concurrent use. Mutations to the
// same device ID are serialized in arrival order; different devices
// proceed in parallel. Reads serve deep copies from the cache, so
// callers can never corrupt shared state.
//
// Expected command failures (unknown device or control, invalid value)
// come back as a CommandResult with Success=false, not as errors. Only
// unexpected conditions, such as persistence failures, return errors.
package device
