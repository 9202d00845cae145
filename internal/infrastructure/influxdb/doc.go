// Package influxdb wraps the InfluxDB v2 client for Hearth Core's telemetry.
//
// # Architecture
//
// The dispatch engine pushes two kinds of measurements here: per-room
// temperature readings gathered during a cycle, and per-cycle summaries
// (command and failure counts plus cycle duration). Writes go through the
// non-blocking batched WriteAPI so a slow or unavailable InfluxDB server
// never delays thermostat actuation.
//
// # Measurements
//
//	room_temperature  tags: thermostat_id, room_id   field: celsius
//	dispatch_cycle    tags: thermostat_id            fields: commands, failures, duration_ms
//
// # Thread Safety
//
// All methods are safe for concurrent use. Write errors surface through
// the SetOnError callback since writes are asynchronous.
package influxdb
