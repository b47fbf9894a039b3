package events

import "time"

// Bus topics connecting the periodic tasks to the health tracker and
// the live stats hub.
const (
	TopicSamplerTick        = "sampler:tick"
	TopicInvariantViolation = "invariant:violation"
)

// TickStats is published after every completed sampler tick.
type TickStats struct {
	At       time.Time
	Apps     int
	RowCount int
	Duration time.Duration
}
