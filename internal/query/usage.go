package query

import (
	"context"
	"sort"
	"time"

	"github.com/netpulse/netpulse/internal/store"
	"github.com/netpulse/netpulse/pkg/common"
)

// AppUsage is one application's totals over a window.
type AppUsage struct {
	AppID          int64     `json:"app_id,string"`
	ProcessName    string    `json:"process_name"`
	BundleID       string    `json:"bundle_id,omitempty"`
	BytesSent      int64     `json:"bytes_sent"`
	BytesReceived  int64     `json:"bytes_received"`
	TotalBytes     int64     `json:"total_bytes"`
	TotalFormatted string    `json:"total_formatted"`
	SampleCount    int64     `json:"sample_count"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"`
}

// DomainUsage is one domain's visit totals over a window. Byte fields
// are zero by design: no component attributes bytes to domains.
type DomainUsage struct {
	DomainID       int64     `json:"domain_id,string"`
	Fqdn           string    `json:"domain"`
	ParentDomain   string    `json:"parent_domain"`
	BytesSent      int64     `json:"bytes_sent"`
	BytesReceived  int64     `json:"bytes_received"`
	TotalBytes     int64     `json:"total_bytes"`
	TotalFormatted string    `json:"total_formatted"`
	VisitCount     int64     `json:"visit_count"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"`
}

// ListOptions filter and order a usage listing. Sort inputs must come
// from the closed enums in the store package.
type ListOptions struct {
	Limit      int
	Window     Window
	SortBy     store.SortKey
	Order      store.SortOrder
	ParentOnly bool
}

func (e *Engine) appTotals(ctx context.Context, win Window) (map[int64]store.UsageRow, error) {
	var rows []store.UsageRow
	var err error
	switch e.pickTier(win.span()) {
	case tierRaw:
		rows, err = e.samples.AppTotalsRaw(ctx, win.From, win.To)
	case tierHourly:
		rows, err = e.aggs.AppTotalsHourly(ctx, win.From, win.To)
	default:
		rows, err = e.aggs.AppTotalsDaily(ctx, win.From, win.To)
	}
	if err != nil {
		return nil, err
	}
	out := make(map[int64]store.UsageRow, len(rows))
	for _, r := range rows {
		out[r.EntityID] = r
	}
	return out, nil
}

func (e *Engine) domainTotals(ctx context.Context, win Window) (map[int64]store.UsageRow, error) {
	var rows []store.UsageRow
	var err error
	switch e.pickTier(win.span()) {
	case tierRaw:
		rows, err = e.samples.DomainTotalsRaw(ctx, win.From, win.To)
	case tierHourly:
		rows, err = e.aggs.DomainTotalsHourly(ctx, win.From, win.To)
	default:
		rows, err = e.aggs.DomainTotalsDaily(ctx, win.From, win.To)
	}
	if err != nil {
		return nil, err
	}
	out := make(map[int64]store.UsageRow, len(rows))
	for _, r := range rows {
		out[r.EntityID] = r
	}
	return out, nil
}

// ListApps returns per-app usage over the window, ordered by the
// validated sort key.
func (e *Engine) ListApps(ctx context.Context, opts ListOptions) ([]AppUsage, error) {
	apps, err := e.apps.All(ctx)
	if err != nil {
		return nil, err
	}
	totals, err := e.appTotals(ctx, opts.Window)
	if err != nil {
		return nil, err
	}

	out := make([]AppUsage, 0, len(apps))
	for _, a := range apps {
		u := totals[a.ID]
		out = append(out, AppUsage{
			AppID:          a.ID,
			ProcessName:    a.ProcessName,
			BundleID:       a.BundleID,
			BytesSent:      u.BytesSent,
			BytesReceived:  u.BytesReceived,
			TotalBytes:     u.TotalBytes,
			TotalFormatted: common.FormatBytes(u.TotalBytes),
			SampleCount:    u.SampleCount,
			FirstSeen:      a.FirstSeen,
			LastSeen:       a.LastSeen,
		})
	}
	sortApps(out, opts.SortBy, opts.Order)
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// TopApps returns the n heaviest applications over the window.
func (e *Engine) TopApps(ctx context.Context, n int, win Window) ([]AppUsage, error) {
	return e.ListApps(ctx, ListOptions{
		Limit:  n,
		Window: win,
		SortBy: store.SortTotalBytes,
		Order:  store.OrderDesc,
	})
}

// ListDomains returns per-domain visit usage over the window,
// optionally restricted to registrable (parent) domains.
func (e *Engine) ListDomains(ctx context.Context, opts ListOptions) ([]DomainUsage, error) {
	domains, err := e.domains.All(ctx, opts.ParentOnly)
	if err != nil {
		return nil, err
	}
	totals, err := e.domainTotals(ctx, opts.Window)
	if err != nil {
		return nil, err
	}

	out := make([]DomainUsage, 0, len(domains))
	for _, d := range domains {
		u := totals[d.ID]
		out = append(out, DomainUsage{
			DomainID:       d.ID,
			Fqdn:           d.Fqdn,
			ParentDomain:   d.ParentDomain,
			BytesSent:      u.BytesSent,
			BytesReceived:  u.BytesReceived,
			TotalBytes:     u.TotalBytes,
			TotalFormatted: common.FormatBytes(u.TotalBytes),
			VisitCount:     u.SampleCount,
			FirstSeen:      d.FirstSeen,
			LastSeen:       d.LastSeen,
		})
	}
	sortDomains(out, opts.SortBy, opts.Order)
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// TopDomains returns the n most visited domains over the window.
func (e *Engine) TopDomains(ctx context.Context, n int, win Window, parentOnly bool) ([]DomainUsage, error) {
	out, err := e.ListDomains(ctx, ListOptions{
		Limit:      0,
		Window:     win,
		SortBy:     store.SortTotalBytes,
		Order:      store.OrderDesc,
		ParentOnly: parentOnly,
	})
	if err != nil {
		return nil, err
	}
	// Domain byte totals are zero by design, so rank by visits.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].VisitCount > out[j].VisitCount
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// GetApp returns one application with its usage over the window.
func (e *Engine) GetApp(ctx context.Context, appID int64, win Window) (*AppUsage, error) {
	a, err := e.apps.GetByID(ctx, appID)
	if err != nil {
		return nil, err
	}
	totals, err := e.appTotals(ctx, win)
	if err != nil {
		return nil, err
	}
	u := totals[a.ID]
	return &AppUsage{
		AppID:          a.ID,
		ProcessName:    a.ProcessName,
		BundleID:       a.BundleID,
		BytesSent:      u.BytesSent,
		BytesReceived:  u.BytesReceived,
		TotalBytes:     u.TotalBytes,
		TotalFormatted: common.FormatBytes(u.TotalBytes),
		SampleCount:    u.SampleCount,
		FirstSeen:      a.FirstSeen,
		LastSeen:       a.LastSeen,
	}, nil
}

// GetDomain returns one domain with its visit usage over the window.
func (e *Engine) GetDomain(ctx context.Context, domainID int64, win Window) (*DomainUsage, error) {
	d, err := e.domains.GetByID(ctx, domainID)
	if err != nil {
		return nil, err
	}
	totals, err := e.domainTotals(ctx, win)
	if err != nil {
		return nil, err
	}
	u := totals[d.ID]
	return &DomainUsage{
		DomainID:       d.ID,
		Fqdn:           d.Fqdn,
		ParentDomain:   d.ParentDomain,
		BytesSent:      u.BytesSent,
		BytesReceived:  u.BytesReceived,
		TotalBytes:     u.TotalBytes,
		TotalFormatted: common.FormatBytes(u.TotalBytes),
		VisitCount:     u.SampleCount,
		FirstSeen:      d.FirstSeen,
		LastSeen:       d.LastSeen,
	}, nil
}

// Summary is the quick-stats response.
type Summary struct {
	TotalBytesToday     int64      `json:"total_bytes_today"`
	TotalBytesSentToday int64      `json:"total_bytes_sent_today"`
	TotalBytesRecvToday int64      `json:"total_bytes_received_today"`
	TotalBytesWeek      int64      `json:"total_bytes_this_week"`
	TotalBytesMonth     int64      `json:"total_bytes_this_month"`
	TodayFormatted      string     `json:"today_formatted"`
	WeekFormatted       string     `json:"week_formatted"`
	MonthFormatted      string     `json:"month_formatted"`
	TopAppToday         string     `json:"top_app_today,omitempty"`
	TopDomainToday      string     `json:"top_domain_today,omitempty"`
	MonitoringSince     *time.Time `json:"monitoring_since,omitempty"`
}

// Summary serves today/week/month totals and today's top entities from
// one consistent store snapshot.
func (e *Engine) Summary(ctx context.Context) (*Summary, error) {
	now := e.clock().UTC()
	data, err := e.summary.Collect(ctx, now,
		common.DayStart(now), common.WeekStart(now), common.MonthStart(now))
	if err != nil {
		return nil, err
	}
	return &Summary{
		TotalBytesToday:     data.TotalBytesToday,
		TotalBytesSentToday: data.TotalBytesSentToday,
		TotalBytesRecvToday: data.TotalBytesReceivedToday,
		TotalBytesWeek:      data.TotalBytesWeek,
		TotalBytesMonth:     data.TotalBytesMonth,
		TodayFormatted:      common.FormatBytes(data.TotalBytesToday),
		WeekFormatted:       common.FormatBytes(data.TotalBytesWeek),
		MonthFormatted:      common.FormatBytes(data.TotalBytesMonth),
		TopAppToday:         data.TopAppToday,
		TopDomainToday:      data.TopDomainToday,
		MonitoringSince:     data.MonitoringSince,
	}, nil
}

func sortApps(apps []AppUsage, key store.SortKey, order store.SortOrder) {
	less := func(i, j int) bool { return apps[i].TotalBytes < apps[j].TotalBytes }
	switch key {
	case store.SortBytesIn:
		less = func(i, j int) bool { return apps[i].BytesReceived < apps[j].BytesReceived }
	case store.SortBytesOut:
		less = func(i, j int) bool { return apps[i].BytesSent < apps[j].BytesSent }
	case store.SortLastSeen:
		less = func(i, j int) bool { return apps[i].LastSeen.Before(apps[j].LastSeen) }
	case store.SortFirstSeen:
		less = func(i, j int) bool { return apps[i].FirstSeen.Before(apps[j].FirstSeen) }
	}
	if order == store.OrderDesc {
		inner := less
		less = func(i, j int) bool { return inner(j, i) }
	}
	sort.SliceStable(apps, less)
}

func sortDomains(domains []DomainUsage, key store.SortKey, order store.SortOrder) {
	less := func(i, j int) bool { return domains[i].VisitCount < domains[j].VisitCount }
	switch key {
	case store.SortBytesIn:
		less = func(i, j int) bool { return domains[i].BytesReceived < domains[j].BytesReceived }
	case store.SortBytesOut:
		less = func(i, j int) bool { return domains[i].BytesSent < domains[j].BytesSent }
	case store.SortLastSeen:
		less = func(i, j int) bool { return domains[i].LastSeen.Before(domains[j].LastSeen) }
	case store.SortFirstSeen:
		less = func(i, j int) bool { return domains[i].FirstSeen.Before(domains[j].FirstSeen) }
	}
	if order == store.OrderDesc {
		inner := less
		less = func(i, j int) bool { return inner(j, i) }
	}
	sort.SliceStable(domains, less)
}
