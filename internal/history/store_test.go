package history

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestStore(t *testing.T) (*SQLiteStore, *sql.DB) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})

	schema := `
	CREATE TABLE historical_data (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		device_id TEXT NOT NULL,
		property TEXT NOT NULL,
		value REAL NOT NULL,
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX idx_historical_lookup
		ON historical_data (device_id, property, timestamp);`

	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating test schema: %v", err)
	}

	return NewSQLiteStore(db), db
}

func mustAppend(t *testing.T, store *SQLiteStore, deviceID, property string, value float64, ts time.Time) {
	t.Helper()
	err := store.Append(context.Background(), Point{
		DeviceID: deviceID, Property: property, Value: value, Timestamp: ts,
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
}

func TestQuery_NewestFirst(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		mustAppend(t, store, "dev-1", "temperature", float64(20+i), base.Add(time.Duration(i)*time.Minute))
	}

	result, err := store.Query(ctx, Query{
		DeviceID: "dev-1",
		Property: "temperature",
		Start:    base,
		End:      base.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	if len(result.Points) != 5 {
		t.Fatalf("got %d points, want 5", len(result.Points))
	}
	if result.Total != 5 {
		t.Errorf("total = %d, want 5", result.Total)
	}
	for i := 1; i < len(result.Points); i++ {
		if result.Points[i].Timestamp.After(result.Points[i-1].Timestamp) {
			t.Fatal("points not ordered newest first")
		}
	}
	if result.Points[0].Value != 24 {
		t.Errorf("newest point value = %v, want 24", result.Points[0].Value)
	}
}

func TestQuery_InclusiveBounds(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	start := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	end := start.Add(10 * time.Minute)

	mustAppend(t, store, "dev-1", "temperature", 1, start.Add(-time.Second)) // before
	mustAppend(t, store, "dev-1", "temperature", 2, start)                  // boundary
	mustAppend(t, store, "dev-1", "temperature", 3, end)                    // boundary
	mustAppend(t, store, "dev-1", "temperature", 4, end.Add(time.Second))   // after

	result, err := store.Query(ctx, Query{
		DeviceID: "dev-1", Property: "temperature", Start: start, End: end,
	})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if result.Total != 2 {
		t.Errorf("total = %d, want 2 (bounds are inclusive)", result.Total)
	}
}

func TestQuery_TotalIgnoresLimit(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		mustAppend(t, store, "dev-1", "temperature", float64(i), base.Add(time.Duration(i)*time.Second))
	}

	result, err := store.Query(ctx, Query{
		DeviceID: "dev-1",
		Property: "temperature",
		Start:    base,
		End:      base.Add(time.Hour),
		Limit:    3,
	})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(result.Points) != 3 {
		t.Errorf("got %d points, want limit of 3", len(result.Points))
	}
	if result.Total != 10 {
		t.Errorf("total = %d, want 10 regardless of limit", result.Total)
	}
}

func TestQuery_IsolatesDeviceAndProperty(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	ts := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	mustAppend(t, store, "dev-1", "temperature", 21, ts)
	mustAppend(t, store, "dev-1", "humidity", 60, ts)
	mustAppend(t, store, "dev-2", "temperature", 25, ts)

	result, err := store.Query(ctx, Query{
		DeviceID: "dev-1", Property: "temperature",
		Start: ts.Add(-time.Minute), End: ts.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if result.Total != 1 {
		t.Errorf("total = %d, want 1", result.Total)
	}
	if result.Points[0].Value != 21 {
		t.Errorf("value = %v, want 21", result.Points[0].Value)
	}
}

func TestQuery_EmptyRange(t *testing.T) {
	store, _ := setupTestStore(t)

	result, err := store.Query(context.Background(), Query{
		DeviceID: "dev-1", Property: "temperature",
		Start: time.Unix(0, 0), End: time.Unix(60, 0),
	})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if result.Total != 0 || len(result.Points) != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
}

func TestQuery_InvalidRange(t *testing.T) {
	store, _ := setupTestStore(t)

	_, err := store.Query(context.Background(), Query{
		DeviceID: "dev-1", Property: "temperature",
		Start: time.Unix(100, 0), End: time.Unix(50, 0),
	})
	if !errors.Is(err, ErrInvalidRange) {
		t.Errorf("Query() error = %v, want ErrInvalidRange", err)
	}
}

func TestBucketStart_EpochAligned(t *testing.T) {
	tests := []struct {
		name     string
		ts       time.Time
		interval int
		want     time.Time
	}{
		{
			name:     "already aligned",
			ts:       time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
			interval: 15,
			want:     time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
		},
		{
			name:     "aligns down within interval",
			ts:       time.Date(2026, 1, 15, 12, 14, 59, 0, time.UTC),
			interval: 15,
			want:     time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
		},
		{
			name:     "hourly interval",
			ts:       time.Date(2026, 1, 15, 12, 37, 11, 0, time.UTC),
			interval: 60,
			want:     time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
		},
		{
			name:     "one minute interval",
			ts:       time.Date(2026, 1, 15, 12, 37, 11, 0, time.UTC),
			interval: 1,
			want:     time.Date(2026, 1, 15, 12, 37, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BucketStart(tt.ts, tt.interval)
			if !got.Equal(tt.want) {
				t.Errorf("BucketStart() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAggregate(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	// Two 15-minute buckets with a gap between them.
	b1 := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	b3 := time.Date(2026, 1, 15, 12, 30, 0, 0, time.UTC)

	mustAppend(t, store, "dev-1", "temperature", 20, b1)
	mustAppend(t, store, "dev-1", "temperature", 22, b1.Add(5*time.Minute))
	mustAppend(t, store, "dev-1", "temperature", 24, b1.Add(10*time.Minute))
	mustAppend(t, store, "dev-1", "temperature", 30, b3.Add(time.Minute))

	tests := []struct {
		name       string
		agg        Aggregation
		wantFirst  float64
		wantSecond float64
	}{
		{name: "avg", agg: AggAvg, wantFirst: 22, wantSecond: 30},
		{name: "min", agg: AggMin, wantFirst: 20, wantSecond: 30},
		{name: "max", agg: AggMax, wantFirst: 24, wantSecond: 30},
		{name: "sum", agg: AggSum, wantFirst: 66, wantSecond: 30},
		{name: "count", agg: AggCount, wantFirst: 3, wantSecond: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buckets, err := store.Aggregate(ctx, AggregateQuery{
				DeviceID:        "dev-1",
				Property:        "temperature",
				Start:           b1,
				End:             b3.Add(15 * time.Minute),
				Aggregation:     tt.agg,
				IntervalMinutes: 15,
			})
			if err != nil {
				t.Fatalf("Aggregate() error = %v", err)
			}

			// The empty middle bucket is omitted.
			if len(buckets) != 2 {
				t.Fatalf("got %d buckets, want 2", len(buckets))
			}
			if !buckets[0].BucketStart.Equal(b1) {
				t.Errorf("first bucket start = %v, want %v", buckets[0].BucketStart, b1)
			}
			if !buckets[1].BucketStart.Equal(b3) {
				t.Errorf("second bucket start = %v, want %v", buckets[1].BucketStart, b3)
			}
			if buckets[0].Value != tt.wantFirst {
				t.Errorf("first bucket value = %v, want %v", buckets[0].Value, tt.wantFirst)
			}
			if buckets[1].Value != tt.wantSecond {
				t.Errorf("second bucket value = %v, want %v", buckets[1].Value, tt.wantSecond)
			}
			if buckets[0].RawPointCount != 3 || buckets[1].RawPointCount != 1 {
				t.Errorf("raw counts = %d, %d, want 3, 1",
					buckets[0].RawPointCount, buckets[1].RawPointCount)
			}
		})
	}
}

func TestAggregate_EvenSpread(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	// Twelve points, one every five minutes across a one-hour range.
	// Bucketing by 15 minutes must yield four buckets of three points.
	start := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	const n = 12
	for i := 0; i < n; i++ {
		mustAppend(t, store, "dev-1", "temperature", float64(20+i), start.Add(time.Duration(i)*5*time.Minute))
	}

	buckets, err := store.Aggregate(ctx, AggregateQuery{
		DeviceID:        "dev-1",
		Property:        "temperature",
		Start:           start,
		End:             start.Add(time.Hour),
		Aggregation:     AggCount,
		IntervalMinutes: 15,
	})
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}

	if len(buckets) != 4 {
		t.Fatalf("got %d buckets, want 4", len(buckets))
	}

	total := 0
	for i, b := range buckets {
		want := start.Add(time.Duration(i) * 15 * time.Minute)
		if !b.BucketStart.Equal(want) {
			t.Errorf("bucket %d start = %v, want %v", i, b.BucketStart, want)
		}
		if b.RawPointCount != 3 {
			t.Errorf("bucket %d raw count = %d, want 3", i, b.RawPointCount)
		}
		total += b.RawPointCount
	}
	if total != n {
		t.Errorf("raw counts sum to %d, want %d", total, n)
	}
}

func TestAggregate_Validation(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	base := AggregateQuery{
		DeviceID: "dev-1", Property: "temperature",
		Start: time.Unix(0, 0), End: time.Unix(3600, 0),
		Aggregation: AggAvg, IntervalMinutes: 15,
	}

	t.Run("unknown aggregation", func(t *testing.T) {
		q := base
		q.Aggregation = "median"
		if _, err := store.Aggregate(ctx, q); !errors.Is(err, ErrInvalidAggregation) {
			t.Errorf("error = %v, want ErrInvalidAggregation", err)
		}
	})

	t.Run("zero interval", func(t *testing.T) {
		q := base
		q.IntervalMinutes = 0
		if _, err := store.Aggregate(ctx, q); !errors.Is(err, ErrInvalidInterval) {
			t.Errorf("error = %v, want ErrInvalidInterval", err)
		}
	})

	t.Run("inverted range", func(t *testing.T) {
		q := base
		q.Start, q.End = q.End, q.Start
		if _, err := store.Aggregate(ctx, q); !errors.Is(err, ErrInvalidRange) {
			t.Errorf("error = %v, want ErrInvalidRange", err)
		}
	})
}

func TestDeleteOlderThan(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	cutoff := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	mustAppend(t, store, "dev-1", "temperature", 1, cutoff.Add(-48*time.Hour))
	mustAppend(t, store, "dev-1", "temperature", 2, cutoff.Add(-time.Second))
	mustAppend(t, store, "dev-1", "temperature", 3, cutoff)
	mustAppend(t, store, "dev-1", "temperature", 4, cutoff.Add(time.Hour))

	removed, err := store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		t.Fatalf("DeleteOlderThan() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2 (cutoff itself survives)", removed)
	}

	result, err := store.Query(ctx, Query{
		DeviceID: "dev-1", Property: "temperature",
		Start: cutoff.Add(-72 * time.Hour), End: cutoff.Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if result.Total != 2 {
		t.Errorf("remaining points = %d, want 2", result.Total)
	}
}

func TestDeleteOlderThan_Empty(t *testing.T) {
	store, _ := setupTestStore(t)

	removed, err := store.DeleteOlderThan(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("DeleteOlderThan() error = %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}
}

func TestDeleteByDevice(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	ts := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	mustAppend(t, store, "dev-1", "temperature", 1, ts)
	mustAppend(t, store, "dev-1", "humidity", 2, ts)
	mustAppend(t, store, "dev-2", "temperature", 3, ts)

	removed, err := store.DeleteByDevice(ctx, "dev-1")
	if err != nil {
		t.Fatalf("DeleteByDevice() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	result, err := store.Query(ctx, Query{
		DeviceID: "dev-2", Property: "temperature",
		Start: ts.Add(-time.Minute), End: ts.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if result.Total != 1 {
		t.Errorf("other device's points = %d, want 1", result.Total)
	}
}
