package store

import (
	"context"
	"errors"
	"time"

	"github.com/netpulse/netpulse/internal/domain"
	"github.com/netpulse/netpulse/pkg/common"
	"gorm.io/gorm"
)

// SummaryData is the quick-stats snapshot. All fields come from one
// read transaction; partial results are never returned.
type SummaryData struct {
	TotalBytesSentToday     int64
	TotalBytesReceivedToday int64
	TotalBytesToday         int64
	TotalBytesWeek          int64
	TotalBytesMonth         int64
	TopAppToday             string
	TopAppID                int64
	TopDomainToday          string
	TopDomainID             int64
	MonitoringSince         *time.Time
}

// SummaryRepository serves the quick-stats read.
type SummaryRepository struct {
	store *Store
}

func NewSummaryRepository(s *Store) *SummaryRepository {
	return &SummaryRepository{store: s}
}

type totalsRow struct {
	BytesSent     int64
	BytesReceived int64
}

// Collect gathers today/week/month totals and today's top app and
// domain inside a single read transaction. Today reads the raw tier;
// prior days of the week and month windows read the daily tier.
func (r *SummaryRepository) Collect(ctx context.Context, now, dayStart, weekStart, monthStart time.Time) (*SummaryData, error) {
	out := &SummaryData{}
	err := r.store.ReadTx(ctx, func(tx *gorm.DB) error {
		var today totalsRow
		err := tx.Model(&domain.NetworkSample{}).
			Select("COALESCE(SUM(bytes_sent),0) AS bytes_sent, COALESCE(SUM(bytes_received),0) AS bytes_received").
			Where("timestamp >= ?", dayStart).
			Scan(&today).Error
		if err != nil {
			return err
		}
		out.TotalBytesSentToday = today.BytesSent
		out.TotalBytesReceivedToday = today.BytesReceived
		out.TotalBytesToday = today.BytesSent + today.BytesReceived

		var weekPrior int64
		err = tx.Model(&domain.DailyAggregate{}).
			Select("COALESCE(SUM(bytes_sent + bytes_received),0)").
			Where("day_start >= ? AND day_start < ?", weekStart, dayStart).
			Scan(&weekPrior).Error
		if err != nil {
			return err
		}
		out.TotalBytesWeek = weekPrior + out.TotalBytesToday

		var monthPrior int64
		err = tx.Model(&domain.DailyAggregate{}).
			Select("COALESCE(SUM(bytes_sent + bytes_received),0)").
			Where("day_start >= ? AND day_start < ?", monthStart, dayStart).
			Scan(&monthPrior).Error
		if err != nil {
			return err
		}
		out.TotalBytesMonth = monthPrior + out.TotalBytesToday

		type topRow struct {
			ID    int64
			Name  string
			Total int64
		}
		var topApp topRow
		err = tx.Model(&domain.NetworkSample{}).
			Select("applications.id AS id, applications.process_name AS name, SUM(network_samples.bytes_sent + network_samples.bytes_received) AS total").
			Joins("JOIN applications ON applications.id = network_samples.app_id").
			Where("network_samples.timestamp >= ?", dayStart).
			Group("applications.id").
			Order("total DESC").
			Limit(1).
			Scan(&topApp).Error
		if err != nil {
			return err
		}
		out.TopAppToday = topApp.Name
		out.TopAppID = topApp.ID

		var topDomain topRow
		err = tx.Model(&domain.BrowserDomainSample{}).
			Select("domains.id AS id, domains.fqdn AS name, COUNT(*) AS total").
			Joins("JOIN domains ON domains.id = browser_domain_samples.domain_id").
			Where("browser_domain_samples.timestamp >= ?", dayStart).
			Group("domains.id").
			Order("total DESC").
			Limit(1).
			Scan(&topDomain).Error
		if err != nil {
			return err
		}
		out.TopDomainToday = topDomain.Name
		out.TopDomainID = topDomain.ID

		var oldestDaily domain.DailyAggregate
		err = tx.Order("day_start ASC").First(&oldestDaily).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			var oldestRaw domain.NetworkSample
			err = tx.Order("timestamp ASC").First(&oldestRaw).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			ts := oldestRaw.Timestamp
			out.MonitoringSince = &ts
		case err != nil:
			return err
		default:
			ts := oldestDaily.DayStart
			out.MonitoringSince = &ts
		}
		return nil
	})
	if err != nil {
		return nil, common.TransientError(err, "collect summary")
	}
	return out, nil
}
