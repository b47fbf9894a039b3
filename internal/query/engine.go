package query

import (
	"context"
	"time"

	"github.com/araddon/dateparse"
	"github.com/netpulse/netpulse/internal/sampler"
	"github.com/netpulse/netpulse/internal/store"
	"github.com/netpulse/netpulse/pkg/common"
)

// Tunables supplies the runtime values tier selection depends on.
type Tunables struct {
	SamplingInterval time.Duration
	RawTTL           time.Duration
	HourTTL          time.Duration
}

// Engine answers every read query. It always serves a window from the
// cheapest tier that still covers it: raw within the raw TTL, hourly
// within the hourly TTL, daily beyond.
type Engine struct {
	apps     *store.AppRepository
	domains  *store.DomainRepository
	samples  *store.SampleRepository
	aggs     *store.AggregateRepository
	summary  *store.SummaryRepository
	tunables func() Tunables
	clock    sampler.Clock
}

func NewEngine(
	apps *store.AppRepository,
	domains *store.DomainRepository,
	samples *store.SampleRepository,
	aggs *store.AggregateRepository,
	summary *store.SummaryRepository,
	tunables func() Tunables,
	clock sampler.Clock,
) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		apps:     apps,
		domains:  domains,
		samples:  samples,
		aggs:     aggs,
		summary:  summary,
		tunables: tunables,
		clock:    clock,
	}
}

// TimelinePoint is one bucket of a timeline. Empty buckets are emitted
// as zero rows so clients never need gap detection.
type TimelinePoint struct {
	Timestamp     time.Time `json:"timestamp"`
	BytesSent     int64     `json:"bytes_sent"`
	BytesReceived int64     `json:"bytes_received"`
	TotalBytes    int64     `json:"total_bytes"`
}

type tier int

const (
	tierRaw tier = iota
	tierHourly
	tierDaily
)

// pickTier selects the cheapest tier that still covers a window of
// length w.
func (e *Engine) pickTier(w time.Duration) tier {
	t := e.tunables()
	switch {
	case w <= t.RawTTL:
		return tierRaw
	case w <= t.HourTTL:
		return tierHourly
	default:
		return tierDaily
	}
}

var periodWindows = map[string]time.Duration{
	"1h":  time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
	"90d": 90 * 24 * time.Hour,
}

var periodBuckets = map[string]int{
	"1h":  60,
	"24h": 288,
	"7d":  168,
	"30d": 720,
	"90d": 720,
}

// defaultBuckets caps the point count for an arbitrary window.
func defaultBuckets(w time.Duration) int {
	switch {
	case w <= time.Hour:
		return 60
	case w <= 24*time.Hour:
		return 288
	case w <= 7*24*time.Hour:
		return 168
	default:
		return 720
	}
}

// Window is a resolved [From, To) query range.
type Window struct {
	From time.Time
	To   time.Time
}

func (w Window) span() time.Duration { return w.To.Sub(w.From) }

// ResolveWindow turns a period name or explicit since/until pair into a
// concrete range anchored at now. Unknown periods are validation
// errors.
func (e *Engine) ResolveWindow(period, since, until string) (Window, int, error) {
	now := e.clock().UTC().Truncate(time.Second)

	if period != "" {
		w, ok := periodWindows[period]
		if !ok {
			return Window{}, 0, common.ValidationError("unknown period %q", period)
		}
		return Window{From: now.Add(-w), To: now}, periodBuckets[period], nil
	}

	win := Window{From: now.Add(-24 * time.Hour), To: now}
	if since != "" {
		t, err := dateparse.ParseAny(since)
		if err != nil {
			return Window{}, 0, common.ValidationError("unparseable since %q", since)
		}
		win.From = t.UTC()
	}
	if until != "" {
		t, err := dateparse.ParseAny(until)
		if err != nil {
			return Window{}, 0, common.ValidationError("unparseable until %q", until)
		}
		win.To = t.UTC()
	}
	if !win.From.Before(win.To) {
		return Window{}, 0, common.ValidationError("since must precede until")
	}
	return win, defaultBuckets(win.span()), nil
}

// series fetches the tier-appropriate summed series for a window,
// optionally filtered to one app.
func (e *Engine) series(ctx context.Context, win Window, appID int64) ([]store.SeriesRow, error) {
	switch e.pickTier(win.span()) {
	case tierRaw:
		return e.samples.RawSeries(ctx, win.From, win.To, appID)
	case tierHourly:
		return e.aggs.HourlySeries(ctx, win.From, win.To, appID)
	default:
		return e.aggs.DailySeries(ctx, win.From, win.To, appID)
	}
}

// Timeline buckets a window into at most buckets points, zero-padded.
func (e *Engine) Timeline(ctx context.Context, win Window, buckets int) ([]TimelinePoint, error) {
	rows, err := e.series(ctx, win, 0)
	if err != nil {
		return nil, err
	}
	return bucketize(rows, win, buckets), nil
}

// AppTimeline is Timeline restricted to one application.
func (e *Engine) AppTimeline(ctx context.Context, appID int64, win Window, buckets int) ([]TimelinePoint, error) {
	if _, err := e.apps.GetByID(ctx, appID); err != nil {
		return nil, err
	}
	rows, err := e.series(ctx, win, appID)
	if err != nil {
		return nil, err
	}
	return bucketize(rows, win, buckets), nil
}

// DomainTimeline buckets one domain's visit series from the browser
// hourly tier. Domain byte fields are zero by design; the rollup tick
// keeps the in-progress bucket fresh, so the hourly tier covers every
// window.
func (e *Engine) DomainTimeline(ctx context.Context, domainID int64, win Window, buckets int) ([]TimelinePoint, error) {
	if _, err := e.domains.GetByID(ctx, domainID); err != nil {
		return nil, err
	}
	rows, err := e.aggs.BrowserHourlySeries(ctx, win.From, win.To, domainID)
	if err != nil {
		return nil, err
	}
	return bucketize(rows, win, buckets), nil
}

// bucketize sums rows into fixed-width buckets spanning the window.
// Exactly `buckets` points come back, evenly spaced, zero-filled where
// the window holds no data.
func bucketize(rows []store.SeriesRow, win Window, buckets int) []TimelinePoint {
	if buckets <= 0 {
		buckets = defaultBuckets(win.span())
	}
	width := win.span() / time.Duration(buckets)
	if width*time.Duration(buckets) < win.span() {
		width += time.Second
	}
	if width <= 0 {
		width = time.Second
	}

	points := make([]TimelinePoint, buckets)
	for i := range points {
		points[i].Timestamp = win.From.Add(time.Duration(i) * width)
	}
	for _, row := range rows {
		if row.Ts.Before(win.From) || !row.Ts.Before(win.To) {
			continue
		}
		idx := int(row.Ts.Sub(win.From) / width)
		if idx >= buckets {
			idx = buckets - 1
		}
		points[idx].BytesSent += row.BytesSent
		points[idx].BytesReceived += row.BytesReceived
	}
	for i := range points {
		points[i].TotalBytes = points[i].BytesSent + points[i].BytesReceived
	}
	return points
}
