package health

import (
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/montanaflynn/stats"
	"github.com/netpulse/netpulse/internal/events"
)

// degradedThreshold invariant failures inside degradedWindow trip the
// degraded flag; the flag clears once the window drains.
const (
	degradedThreshold = 3
	degradedWindow    = 10 * time.Minute
	durationHistory   = 256
)

// Tracker accumulates the daemon's operational signals for the health
// endpoint. It observes the periodic tasks through the event bus and
// never touches the store.
type Tracker struct {
	mu                sync.Mutex
	startedAt         time.Time
	samplesCollected  int64
	ticks             int64
	errorCount        int64
	invariantFailures []time.Time
	tickSeconds       []float64
}

func NewTracker() *Tracker {
	return &Tracker{startedAt: time.Now().UTC()}
}

// Subscribe attaches the tracker to the daemon's event bus.
func (t *Tracker) Subscribe(bus EventBus.Bus) error {
	if err := bus.Subscribe(events.TopicSamplerTick, t.onTick); err != nil {
		return err
	}
	return bus.Subscribe(events.TopicInvariantViolation, t.onInvariant)
}

func (t *Tracker) onTick(s events.TickStats) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ticks++
	t.samplesCollected += int64(s.RowCount)
	t.tickSeconds = append(t.tickSeconds, s.Duration.Seconds())
	if len(t.tickSeconds) > durationHistory {
		t.tickSeconds = t.tickSeconds[len(t.tickSeconds)-durationHistory:]
	}
}

func (t *Tracker) onInvariant(string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.invariantFailures = append(t.invariantFailures, time.Now().UTC())
}

// RecordError counts a transient task failure.
func (t *Tracker) RecordError() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorCount++
}

// Status is the health endpoint payload.
type Status struct {
	Running          bool      `json:"running"`
	Degraded         bool      `json:"degraded"`
	StartedAt        time.Time `json:"started_at"`
	Ticks            int64     `json:"ticks"`
	SamplesCollected int64     `json:"samples_collected"`
	ErrorCount       int64     `json:"error_count"`
	TickP95Seconds   float64   `json:"tick_p95_seconds"`
}

// Snapshot returns the current health view.
func (t *Tracker) Snapshot() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().UTC().Add(-degradedWindow)
	recent := t.invariantFailures[:0]
	for _, ts := range t.invariantFailures {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}
	t.invariantFailures = recent

	var p95 float64
	if len(t.tickSeconds) > 0 {
		p95, _ = stats.Percentile(stats.Float64Data(t.tickSeconds), 95)
	}

	return Status{
		Running:          true,
		Degraded:         len(recent) >= degradedThreshold,
		StartedAt:        t.startedAt,
		Ticks:            t.ticks,
		SamplesCollected: t.samplesCollected,
		ErrorCount:       t.errorCount,
		TickP95Seconds:   p95,
	}
}
