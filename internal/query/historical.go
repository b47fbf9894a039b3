package query

import (
	"context"
	"time"

	"github.com/netpulse/netpulse/pkg/common"
)

// HeatmapCell is one (weekday, hour) aggregate for heatmap rendering.
// Day 0 is Sunday.
type HeatmapCell struct {
	Day   int   `json:"day"`
	Hour  int   `json:"hour"`
	Bytes int64 `json:"bytes"`
}

// Heatmap sums the hourly tier by weekday and hour-of-day over [from, to).
func (e *Engine) Heatmap(ctx context.Context, from, to time.Time) ([]HeatmapCell, error) {
	rows, err := e.aggs.HourlySeries(ctx, from, to, 0)
	if err != nil {
		return nil, err
	}
	sums := make(map[[2]int]int64)
	for _, row := range rows {
		ts := row.Ts.UTC()
		key := [2]int{int(ts.Weekday()), ts.Hour()}
		sums[key] += row.BytesSent + row.BytesReceived
	}
	cells := make([]HeatmapCell, 0, len(sums))
	for day := 0; day < 7; day++ {
		for hour := 0; hour < 24; hour++ {
			if total, ok := sums[[2]int{day, hour}]; ok {
				cells = append(cells, HeatmapCell{Day: day, Hour: hour, Bytes: total})
			}
		}
	}
	return cells, nil
}

// DailyTotal is one calendar day's total usage.
type DailyTotal struct {
	Date           string `json:"date"`
	TotalBytes     int64  `json:"total_bytes"`
	TotalFormatted string `json:"total_formatted"`
}

// DailyTotals sums the hourly tier per UTC day over [from, to),
// emitting one row per day including zero days.
func (e *Engine) DailyTotals(ctx context.Context, from, to time.Time) ([]DailyTotal, error) {
	rows, err := e.aggs.HourlySeries(ctx, from, to, 0)
	if err != nil {
		return nil, err
	}
	sums := make(map[string]int64)
	for _, row := range rows {
		sums[common.DayStart(row.Ts).Format("2006-01-02")] += row.BytesSent + row.BytesReceived
	}

	var out []DailyTotal
	for d := common.DayStart(from); d.Before(to); d = d.AddDate(0, 0, 1) {
		key := d.Format("2006-01-02")
		out = append(out, DailyTotal{
			Date:           key,
			TotalBytes:     sums[key],
			TotalFormatted: common.FormatBytes(sums[key]),
		})
	}
	return out, nil
}
