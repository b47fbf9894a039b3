package metrics

import (
	"sync"
	"time"

	"github.com/nakabonne/tstorage"
)

// Local time-series store for the daemon's own operational gauges
// (per-tick app counts, rollup and prune sizes, host and daemon CPU and
// memory use). Kept separate from
// the usage database so self-monitoring churn never contends with the
// single writer.

var (
	mu      sync.RWMutex
	storage tstorage.Storage
)

// InitMetrics opens the metrics partition under dir.
func InitMetrics(dir string) error {
	mu.Lock()
	defer mu.Unlock()
	s, err := tstorage.NewStorage(
		tstorage.WithDataPath(dir),
		tstorage.WithTimestampPrecision(tstorage.Seconds),
		tstorage.WithRetention(7*24*time.Hour),
	)
	if err != nil {
		return err
	}
	storage = s
	return nil
}

// SetGauge records the current value of a named gauge.
func SetGauge(name string, value int64) {
	mu.RLock()
	defer mu.RUnlock()
	if storage == nil {
		return
	}
	_ = storage.InsertRows([]tstorage.Row{
		{
			Metric:    name,
			DataPoint: tstorage.DataPoint{Timestamp: time.Now().Unix(), Value: float64(value)},
		},
	})
}

// Observe records one datapoint of a named series (e.g. a duration).
func Observe(name string, value float64) {
	mu.RLock()
	defer mu.RUnlock()
	if storage == nil {
		return
	}
	_ = storage.InsertRows([]tstorage.Row{
		{
			Metric:    name,
			DataPoint: tstorage.DataPoint{Timestamp: time.Now().Unix(), Value: value},
		},
	})
}

// Select returns datapoints for a metric over [start, end] unix seconds.
func Select(name string, start, end int64) []*tstorage.DataPoint {
	mu.RLock()
	defer mu.RUnlock()
	if storage == nil {
		return nil
	}
	points, err := storage.Select(name, nil, start, end)
	if err != nil {
		return nil
	}
	return points
}

// Close flushes and closes the metrics partition.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if storage == nil {
		return nil
	}
	err := storage.Close()
	storage = nil
	return err
}
