// Package realtime fans device events out to WebSocket clients.
//
// Each client subscribes to individual devices and receives only that
// device's update and status events. Subscribing is idempotent, and
// unknown device IDs are accepted so a dashboard can subscribe before
// the device first announces itself. Notifications go to everyone.
//
// Clients issue commands over the same connection. Every command
// message produces exactly one device-command-response, whether the
// command applied, was rejected, or could not even be parsed.
//
// The hub satisfies the registry's broadcast port; wiring it in is one
// call:
//
//	hub := realtime.NewHub(cfg.WebSocket)
//	hub.SetCommander(registry)
//	registry.SetBroadcaster(hub)
//	http.HandleFunc(cfg.WebSocket.Path, hub.ServeWS)
package realtime
