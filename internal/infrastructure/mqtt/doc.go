// Package mqtt wraps paho.mqtt.golang for Hearth Core's event publishing.
//
// # Architecture
//
// The dispatch engine publishes a snapshot to the broker after every cycle so
// that dashboards and companion services can follow thermostat activity
// without polling the REST API. The client handles connection management,
// automatic reconnection with exponential backoff, and re-subscription of
// tracked topics after a reconnect.
//
// # Topic Hierarchy
//
// All topics live under the "hearth" prefix:
//
//	hearth/thermostat/{slug}/dispatch  - per-cycle dispatch results
//	hearth/thermostat/{slug}/state     - retained thermostat state snapshots
//	hearth/system/status               - service online/offline status (retained, LWT)
//
// # Thread Safety
//
// All client methods are safe for concurrent use. Subscriptions are restored
// automatically when the connection recovers.
package mqtt
