package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteRoomTemperature records an aggregated room temperature reading.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Example:
//
//	client.WriteRoomTemperature("th-01", "room-living", 21.5)
func (c *Client) WriteRoomTemperature(thermostatID, roomID string, celsius float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"room_temperature",
		map[string]string{
			"thermostat_id": thermostatID,
			"room_id":       roomID,
		},
		map[string]interface{}{
			"celsius": celsius,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteCycle records a per-cycle dispatch summary: how many device
// commands were issued, how many operations failed, and how long the
// cycle took end to end.
func (c *Client) WriteCycle(thermostatID string, commands, failures int, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"dispatch_cycle",
		map[string]string{
			"thermostat_id": thermostatID,
		},
		map[string]interface{}{
			"commands":    commands,
			"failures":    failures,
			"duration_ms": duration.Milliseconds(),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "thermod-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., backfilled data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
