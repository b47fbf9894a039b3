package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/netpulse/netpulse/internal/catalog"
	"github.com/netpulse/netpulse/internal/domain"
	"github.com/netpulse/netpulse/internal/sampler"
	"github.com/netpulse/netpulse/internal/store"
	"github.com/netpulse/netpulse/pkg/common"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// browserProcessNames maps the short browser names reported by the
// agent to the process names the sampler observes, so active-tab
// samples attribute to the same app rows as traffic samples. Unknown
// names are accepted verbatim.
var browserProcessNames = map[string]string{
	"zen":     "zen",
	"chrome":  "Google Chrome",
	"safari":  "Safari",
	"firefox": "firefox",
	"edge":    "Microsoft Edge",
	"brave":   "Brave Browser",
	"arc":     "Arc",
}

// Service accepts active-tab reports from the browser agent and records
// them as browser domain samples.
type Service struct {
	domains *catalog.DomainCatalog
	apps    *catalog.AppCatalog
	samples *store.SampleRepository
	clock   sampler.Clock
}

func NewService(
	domains *catalog.DomainCatalog,
	apps *catalog.AppCatalog,
	samples *store.SampleRepository,
	clock sampler.Clock,
) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{domains: domains, apps: apps, samples: samples, clock: clock}
}

// Report is one active-tab observation from the agent. Timestamp may be
// a unix epoch (seconds or milliseconds) or any parseable datetime; a
// missing timestamp means "now".
type Report struct {
	Domain    string
	Timestamp interface{}
	Browser   string
}

// Result identifies the interned domain for the caller.
type Result struct {
	DomainID int64
	Fqdn     string
	Parent   string
}

// Record validates and stores one report. Repeated identical reports
// within the same second coalesce on the (ts, domain, app) uniqueness.
func (s *Service) Record(ctx context.Context, report Report) (*Result, error) {
	browser := strings.ToLower(strings.TrimSpace(report.Browser))
	if browser == "" {
		return nil, common.ValidationError("browser name cannot be empty")
	}

	ts, err := s.parseTimestamp(report.Timestamp)
	if err != nil {
		return nil, err
	}

	domainID, parent, err := s.domains.Resolve(ctx, report.Domain)
	if err != nil {
		return nil, err
	}

	processName, ok := browserProcessNames[browser]
	if !ok {
		processName = browser
	}
	appID, err := s.apps.Resolve(ctx, processName, "browser."+browser)
	if err != nil {
		return nil, err
	}

	sample := &domain.BrowserDomainSample{
		Timestamp: ts,
		DomainID:  domainID,
		AppID:     appID,
	}
	if err := s.samples.InsertBrowserSample(ctx, sample); err != nil {
		return nil, err
	}

	zap.L().Debug("recorded active tab",
		zap.String("domain", report.Domain),
		zap.String("browser", browser))

	fqdn, _ := catalog.NormalizeDomain(report.Domain)
	return &Result{DomainID: domainID, Fqdn: fqdn, Parent: parent}, nil
}

// parseTimestamp accepts a unix epoch in seconds or milliseconds, a
// datetime string, or nothing.
func (s *Service) parseTimestamp(v interface{}) (time.Time, error) {
	if v == nil {
		return s.clock().UTC().Truncate(time.Second), nil
	}
	switch raw := v.(type) {
	case string:
		if raw == "" {
			return s.clock().UTC().Truncate(time.Second), nil
		}
		t, err := dateparse.ParseAny(raw)
		if err != nil {
			return time.Time{}, common.ValidationError("unparseable timestamp %q", raw)
		}
		return t.UTC().Truncate(time.Second), nil
	default:
		n, err := cast.ToInt64E(v)
		if err != nil {
			return time.Time{}, common.ValidationError("unparseable timestamp")
		}
		if n <= 0 {
			return time.Time{}, common.ValidationError("timestamp must be positive")
		}
		// Second epochs stay below 10^12 until the year 33658, so larger
		// values are read as milliseconds.
		if n > 1_000_000_000_000 {
			return time.UnixMilli(n).UTC().Truncate(time.Second), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
}
