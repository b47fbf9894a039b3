package sampler

import (
	"context"
	"time"
)

// Cumulative is a monotonically increasing counter value as read from
// the OS. It resets to an unspecified value when the owning process
// restarts; only the collector may convert it into stored deltas.
type Cumulative uint64

// Identity names a process independent of its pid.
type Identity struct {
	ProcessName string
	BundleID    string
}

// Counters holds one process's cumulative traffic counters at a single
// instant. Packet counters may be zero where the platform cannot
// provide them.
type Counters struct {
	BytesOut    Cumulative
	BytesIn     Cumulative
	PacketsOut  Cumulative
	PacketsIn   Cumulative
	Connections int
}

// Snapshot is the full per-process counter map for one instant.
type Snapshot struct {
	TakenAt time.Time
	Procs   map[Identity]Counters
}

// ProcessSampler enumerates per-process cumulative traffic counters. A
// failed call means "no data for this tick", never zero.
type ProcessSampler interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// Clock supplies the current instant; injectable for tests.
type Clock func() time.Time
