package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Point is a single recorded property reading.
type Point struct {
	DeviceID  string    `json:"deviceId"`
	Property  string    `json:"property"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Query selects points for one device property over a closed time range.
type Query struct {
	DeviceID string
	Property string
	Start    time.Time
	End      time.Time
	Limit    int
}

// QueryResult carries the selected points plus the total number of
// matching rows regardless of Limit, so callers can paginate.
type QueryResult struct {
	Points []Point `json:"points"`
	Total  int     `json:"total"`
}

// Aggregation names a bucket reduction function.
type Aggregation string

const (
	AggAvg   Aggregation = "avg"
	AggMin   Aggregation = "min"
	AggMax   Aggregation = "max"
	AggSum   Aggregation = "sum"
	AggCount Aggregation = "count"
)

// AggregateQuery reduces a device property's points into fixed-width
// time buckets.
type AggregateQuery struct {
	DeviceID        string
	Property        string
	Start           time.Time
	End             time.Time
	Aggregation     Aggregation
	IntervalMinutes int
}

// Bucket is one aggregated interval. BucketStart is aligned to the Unix
// epoch so identical queries always produce identical bucket boundaries.
type Bucket struct {
	BucketStart   time.Time `json:"bucketStart"`
	Value         float64   `json:"value"`
	RawPointCount int       `json:"rawPointCount"`
}

// Store persists and queries historical property readings.
type Store interface {
	// Append records one point.
	Append(ctx context.Context, p Point) error

	// Query returns points newest first, bounds inclusive. A Limit
	// of zero falls back to a default cap; Total is never capped.
	Query(ctx context.Context, q Query) (*QueryResult, error)

	// Aggregate returns non-empty buckets in ascending order.
	Aggregate(ctx context.Context, q AggregateQuery) ([]Bucket, error)

	// DeleteOlderThan removes points with timestamps strictly before
	// the cutoff and returns how many were removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteByDevice removes all points for a device.
	DeleteByDevice(ctx context.Context, deviceID string) (int64, error)
}

// BucketStart aligns a timestamp down to the start of its interval.
// Alignment is relative to the Unix epoch, not to the query range, so
// the same point always lands in the same bucket.
func BucketStart(ts time.Time, intervalMinutes int) time.Time {
	width := int64(intervalMinutes) * 60
	aligned := ts.Unix() - ts.Unix()%width
	return time.Unix(aligned, 0).UTC()
}

// SQLiteStore implements Store on the fleet's SQLite database.
// Points live in the historical_data table; deleting a device cascades
// its points away at the schema level.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a store over an open SQLite connection.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Append records one point.
func (s *SQLiteStore) Append(ctx context.Context, p Point) error {
	query := `
		INSERT INTO historical_data (device_id, property, value, timestamp)
		VALUES (?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query, p.DeviceID, p.Property, p.Value, p.Timestamp.Unix())
	if err != nil {
		return fmt.Errorf("inserting history point: %w", err)
	}
	return nil
}

// Query returns points newest first. Start and End are inclusive.
// A Limit of zero or less falls back to defaultQueryLimit.
// Total counts every matching row even when Limit truncates Points.
func (s *SQLiteStore) Query(ctx context.Context, q Query) (*QueryResult, error) {
	if err := validateRange(q.Start, q.End); err != nil {
		return nil, err
	}
	if q.Limit <= 0 {
		q.Limit = defaultQueryLimit
	}

	countQuery := `
		SELECT COUNT(*)
		FROM historical_data
		WHERE device_id = ? AND property = ? AND timestamp >= ? AND timestamp <= ?`

	var total int
	err := s.db.QueryRowContext(ctx, countQuery,
		q.DeviceID, q.Property, q.Start.Unix(), q.End.Unix(),
	).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("counting history points: %w", err)
	}

	selectQuery := `
		SELECT device_id, property, value, timestamp
		FROM historical_data
		WHERE device_id = ? AND property = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, selectQuery,
		q.DeviceID, q.Property, q.Start.Unix(), q.End.Unix(), q.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying history points: %w", err)
	}
	defer rows.Close()

	points := make([]Point, 0, q.Limit)
	for rows.Next() {
		var p Point
		var ts int64
		if err := rows.Scan(&p.DeviceID, &p.Property, &p.Value, &ts); err != nil {
			return nil, fmt.Errorf("scanning history point: %w", err)
		}
		p.Timestamp = time.Unix(ts, 0).UTC()
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history points: %w", err)
	}

	return &QueryResult{Points: points, Total: total}, nil
}

// Aggregate reduces points into epoch-aligned buckets. Empty buckets
// are omitted; the result is ordered by bucket start ascending.
func (s *SQLiteStore) Aggregate(ctx context.Context, q AggregateQuery) ([]Bucket, error) {
	if err := validateRange(q.Start, q.End); err != nil {
		return nil, err
	}
	if q.IntervalMinutes <= 0 {
		return nil, fmt.Errorf("%w: %d minutes", ErrInvalidInterval, q.IntervalMinutes)
	}
	fn, err := aggregateFunc(q.Aggregation)
	if err != nil {
		return nil, err
	}

	width := int64(q.IntervalMinutes) * 60

	// The bucket expression matches BucketStart: align down to the epoch.
	query := fmt.Sprintf(`
		SELECT timestamp - (timestamp %% ?) AS bucket, %s, COUNT(value)
		FROM historical_data
		WHERE device_id = ? AND property = ? AND timestamp >= ? AND timestamp <= ?
		GROUP BY bucket
		ORDER BY bucket ASC`, fn)

	rows, err := s.db.QueryContext(ctx, query,
		width, q.DeviceID, q.Property, q.Start.Unix(), q.End.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("aggregating history points: %w", err)
	}
	defer rows.Close()

	var buckets []Bucket
	for rows.Next() {
		var b Bucket
		var start int64
		if err := rows.Scan(&start, &b.Value, &b.RawPointCount); err != nil {
			return nil, fmt.Errorf("scanning bucket: %w", err)
		}
		b.BucketStart = time.Unix(start, 0).UTC()
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating buckets: %w", err)
	}

	return buckets, nil
}

// DeleteOlderThan removes points older than the cutoff in one statement,
// so the count it returns is exact even under concurrent appends.
func (s *SQLiteStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM historical_data WHERE timestamp < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("deleting old history points: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting removed points: %w", err)
	}
	return removed, nil
}

// DeleteByDevice removes all points for a device.
func (s *SQLiteStore) DeleteByDevice(ctx context.Context, deviceID string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM historical_data WHERE device_id = ?`, deviceID)
	if err != nil {
		return 0, fmt.Errorf("deleting device history: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting removed points: %w", err)
	}
	return removed, nil
}

const defaultQueryLimit = 1000

func validateRange(start, end time.Time) error {
	if end.Before(start) {
		return fmt.Errorf("%w: end %s before start %s", ErrInvalidRange,
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return nil
}

func aggregateFunc(agg Aggregation) (string, error) {
	switch agg {
	case AggAvg:
		return "AVG(value)", nil
	case AggMin:
		return "MIN(value)", nil
	case AggMax:
		return "MAX(value)", nil
	case AggSum:
		return "SUM(value)", nil
	case AggCount:
		return "COUNT(value)", nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAggregation, agg)
}
