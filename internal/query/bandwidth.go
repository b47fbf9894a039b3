package query

import (
	"context"
)

// BandwidthStat is the short-window transfer rate.
type BandwidthStat struct {
	BytesPerSecond float64 `json:"bytes_per_second"`
	WindowSeconds  float64 `json:"window_seconds"`
}

// Bandwidth computes the current rate from the two most recent sampler
// ticks only. Each raw row is already a delta, so letting more than two
// ticks into a single rate number would double-count; the latest tick's
// total divided by the span to its predecessor is the rate. Fewer than
// two ticks in the lookback yields zero, not an error.
func (e *Engine) Bandwidth(ctx context.Context) (*BandwidthStat, error) {
	t := e.tunables()
	now := e.clock().UTC()
	lookback := now.Add(-2 * t.SamplingInterval)

	rows, err := e.samples.TickTotals(ctx, lookback)
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return &BandwidthStat{}, nil
	}

	last := rows[len(rows)-1]
	prev := rows[len(rows)-2]
	span := last.Ts.Sub(prev.Ts)
	if span <= 0 {
		return &BandwidthStat{}, nil
	}

	total := float64(last.BytesSent + last.BytesReceived)
	return &BandwidthStat{
		BytesPerSecond: total / span.Seconds(),
		WindowSeconds:  span.Seconds(),
	}, nil
}
