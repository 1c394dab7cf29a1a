package mqtt

import "fmt"

// Topic prefixes for the fleet message bus.
//
// Device topics use the scheme device/{device_id}/{channel}, matching
// what fleet firmware publishes and subscribes to. System topics carry
// the core's own lifecycle status.
const (
	// TopicPrefixDevice is the base for all device topics.
	TopicPrefixDevice = "device"

	// TopicPrefixSystem is the base for fleet core system topics.
	TopicPrefixSystem = "homefleet/system"
)

// Topics provides builders for fleet MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
//
//	topics := mqtt.Topics{}
//	cmdTopic := topics.DeviceCommand("light-living")
//	// Returns: "device/light-living/command"
type Topics struct{}

// DeviceDiscovery returns the topic a device announces itself on.
// Discovery messages are published retained so the core sees every
// device's announcement even after a restart.
//
// Example: device/light-living/discovery
func (Topics) DeviceDiscovery(deviceID string) string {
	return fmt.Sprintf("%s/%s/discovery", TopicPrefixDevice, deviceID)
}

// DeviceStatus returns the topic for device online/offline transitions.
//
// Example: device/light-living/status
func (Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixDevice, deviceID)
}

// DeviceProperty returns the topic for a single property reading.
//
// Example: device/thermo-hall/property/temperature
func (Topics) DeviceProperty(deviceID, key string) string {
	return fmt.Sprintf("%s/%s/property/%s", TopicPrefixDevice, deviceID, key)
}

// DeviceCommand returns the topic the core publishes commands on.
//
// Example: device/light-living/command
func (Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/%s/command", TopicPrefixDevice, deviceID)
}

// DeviceCommandResponse returns the topic devices confirm commands on.
//
// Example: device/light-living/command/response
func (Topics) DeviceCommandResponse(deviceID string) string {
	return fmt.Sprintf("%s/%s/command/response", TopicPrefixDevice, deviceID)
}

// SystemStatus returns the fleet core's own status topic.
// Carries the LWT and graceful shutdown messages.
//
// Example: homefleet/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// Wildcard patterns for subscriptions.

// AllDeviceDiscovery returns a pattern matching every device announcement.
//
// Pattern: device/+/discovery
func (Topics) AllDeviceDiscovery() string {
	return fmt.Sprintf("%s/+/discovery", TopicPrefixDevice)
}

// AllDeviceStatus returns a pattern matching every status transition.
//
// Pattern: device/+/status
func (Topics) AllDeviceStatus() string {
	return fmt.Sprintf("%s/+/status", TopicPrefixDevice)
}

// AllDeviceProperties returns a pattern matching every property reading.
//
// Pattern: device/+/property/+
func (Topics) AllDeviceProperties() string {
	return fmt.Sprintf("%s/+/property/+", TopicPrefixDevice)
}

// AllCommandResponses returns a pattern matching every command confirmation.
//
// Pattern: device/+/command/response
func (Topics) AllCommandResponses() string {
	return fmt.Sprintf("%s/+/command/response", TopicPrefixDevice)
}

// AllDeviceTopics returns a pattern matching all device traffic.
// Use with caution, this receives everything.
//
// Pattern: device/#
func (Topics) AllDeviceTopics() string {
	return fmt.Sprintf("%s/#", TopicPrefixDevice)
}
