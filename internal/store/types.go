package store

import "time"

// SeriesRow is one instant of summed traffic, the unit every tier's
// timeline read returns.
type SeriesRow struct {
	Ts            time.Time
	BytesSent     int64
	BytesReceived int64
}

// UsageRow is a per-entity usage total over a window. EntityID is an
// app id or a domain id depending on the query.
type UsageRow struct {
	EntityID      int64
	BytesSent     int64
	BytesReceived int64
	TotalBytes    int64
	SampleCount   int64
}
