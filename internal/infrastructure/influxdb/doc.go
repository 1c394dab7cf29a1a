// Package influxdb provides the optional telemetry mirror for HomeFleet Core.
//
// It wraps the official influxdb-client-go v2 library for mirroring
// numeric property readings and status transitions alongside the
// authoritative SQLite historical store.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    Enabled: true,
//	    URL:     "http://localhost:8086",
//	    Token:   "your-token",
//	    Org:     "homefleet",
//	    Bucket:  "telemetry",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WritePropertyReading("thermo-hall", "temperature", 21.5, time.Now())
//
// Writes are non-blocking and batched per the batch_size and
// flush_interval config settings. Async write failures are delivered
// through the SetOnError callback.
package influxdb
