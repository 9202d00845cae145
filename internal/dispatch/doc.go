// Package dispatch contains the engine that turns thermostat configuration
// and live sensor readings into device commands.
//
// One Adjust call is a dispatch cycle: resolve the active profile, evaluate
// every room (readings aggregated per room, overrides respected), translate
// each room's action into turn-on/turn-off commands against the remote device
// API and persist the updated aggregate as a single snapshot.
//
// Cycles for the same thermostat are serialised by a per-id mutex; cycles
// for different thermostats run independently, each with its own gateway so
// device-list caches never cross user credentials. Failures are isolated
// per device and per room: an unreadable thermometer idles its room, a
// rejected command is recorded in the cycle result, and the cycle always
// finishes best-effort.
//
// The Ticker drives periodic cycles for every enabled thermostat; the API
// layer drives on-demand cycles after user edits via Apply.
package dispatch
