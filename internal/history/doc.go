// Package history stores and aggregates device property readings.
//
// Every accepted command value and telemetry reading is appended as a
// point keyed by (device, property, timestamp). Appends happen off the
// hot path: the registry fires them without waiting, so a reading can
// be visible on a device slightly before it is queryable here.
//
// Queries return raw points newest first with a total count for
// pagination. Aggregation reduces points into fixed-width buckets
// aligned to the Unix epoch, so repeated queries over the same data
// always produce identical bucket boundaries:
//
//	buckets, err := store.Aggregate(ctx, history.AggregateQuery{
//		DeviceID:        "sensor-01",
//		Property:        "temperature",
//		Start:           start,
//		End:             end,
//		Aggregation:     history.AggAvg,
//		IntervalMinutes: 15,
//	})
//
// Retention is enforced by the Cleaner, which prunes points older than
// a configured number of days on a fixed schedule. Device deletion
// cascades to points at the schema level.
package history
