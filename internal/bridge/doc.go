// Package bridge connects the fleet registry to the MQTT message bus.
//
// Inbound, it subscribes to device discovery announcements, status
// transitions, property readings and command confirmations, parses
// their JSON payloads and feeds the registry. Malformed payloads and
// readings for unknown devices are logged and dropped; nothing a
// device publishes can take the bridge down.
//
// Outbound, the Dispatcher publishes accepted commands to each
// device's command topic. When the broker is unreachable the core runs
// without a dispatcher at all and commands still apply locally.
package bridge
