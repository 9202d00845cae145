// Package supla talks to the remote SUPLA cloud API that fronts the
// physical sensor and actuator channels.
//
// It has two layers:
//
//   - Client is the thin transport: list I/O devices, read one channel's
//     state, and issue the raw turn-on/turn-off/open-close/open actions.
//     Action calls return a boolean "accepted" flag; a definite rejection
//     by the device is not an error, only transport failures are.
//
//   - Gateway is the actuation layer the dispatch engine uses. It caches
//     the device list for the lifetime of one dispatch cycle, degrades
//     writes through the unpredictable-toggle fallback chain when a
//     channel rejects the direct primitive, and supports a read-only mode
//     in which writes report success without reaching the remote API.
//
// # Thread Safety
//
// HTTPClient is safe for concurrent use. A Gateway is scoped to one
// dispatch cycle and must not be shared across concurrently adjusted
// thermostats (each cycle runs under different user credentials).
package supla
