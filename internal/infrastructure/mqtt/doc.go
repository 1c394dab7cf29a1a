// Package mqtt provides MQTT client connectivity for HomeFleet Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// HomeFleet uses MQTT as the field bus between the core and device
// firmware. Devices announce themselves on retained discovery topics,
// stream property readings and status transitions, and receive
// commands published by the core:
//
//	HomeFleet Core ↔ MQTT Broker ↔ Device Firmware
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all property readings
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceProperties(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish a command
//	topic := mqtt.Topics{}.DeviceCommand("light-living")
//	client.Publish(topic, []byte(`{"capability":"power","value":true}`), 1, false)
//
// TLS is required for production deployments (cfg.Broker.TLS=true);
// anonymous access is only for local development.
package mqtt
