package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePropertyReading writes a single numeric property reading.
//
// This is the primary method for mirroring device telemetry. The write
// is non-blocking; points are batched and sent asynchronously.
//
// Example:
//
//	client.WritePropertyReading("thermo-hall", "temperature", 21.5, time.Now())
func (c *Client) WritePropertyReading(deviceID, property string, value float64, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_telemetry",
		map[string]string{
			"device_id": deviceID,
			"property":  property,
		},
		map[string]interface{}{
			"value": value,
		},
		ts,
	)

	c.writeAPI.WritePoint(point)
}

// WriteStatusTransition records a device coming online or going offline.
//
// Status is written as a 0/1 gauge so dashboards can chart availability.
func (c *Client) WriteStatusTransition(deviceID string, online bool, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	value := 0.0
	if online {
		value = 1.0
	}

	point := write.NewPoint(
		"device_status",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"online": value,
		},
		ts,
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point for callers that need full control
// over measurement, tags and fields.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}
