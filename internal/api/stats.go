package api

import (
	"strconv"
	"time"

	"github.com/araddon/dateparse"
	"github.com/labstack/echo/v4"
	"github.com/netpulse/netpulse/internal/webserver"
	"github.com/netpulse/netpulse/pkg/common"
)

func (h *Handler) getSummary(c echo.Context) error {
	summary, err := h.Query.Summary(c.Request().Context())
	if err != nil {
		return webserver.FailErr(c, err)
	}
	return webserver.OK(c, summary)
}

func (h *Handler) getTimeline(c echo.Context) error {
	win, buckets, err := h.Query.ResolveWindow(
		c.QueryParam("period"), c.QueryParam("since"), c.QueryParam("until"))
	if err != nil {
		return webserver.FailErr(c, err)
	}
	if raw := c.QueryParam("buckets"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1440 {
			return webserver.FailErr(c, common.ValidationError("invalid bucket count %q", raw))
		}
		buckets = n
	}

	points, err := h.Query.Timeline(c.Request().Context(), win, buckets)
	if err != nil {
		return webserver.FailErr(c, err)
	}
	return webserver.OK(c, map[string]interface{}{
		"since":       win.From,
		"until":       win.To,
		"data_points": len(points),
		"timeline":    points,
	})
}

func (h *Handler) getBandwidth(c echo.Context) error {
	stat, err := h.Query.Bandwidth(c.Request().Context())
	if err != nil {
		return webserver.FailErr(c, err)
	}
	return webserver.OK(c, map[string]interface{}{
		"bytes_per_second": stat.BytesPerSecond,
		"window_seconds":   stat.WindowSeconds,
		"rate_formatted":   common.FormatRate(stat.BytesPerSecond),
	})
}

func (h *Handler) getHeatmap(c echo.Context) error {
	from, to, err := parseDateRange(c)
	if err != nil {
		return webserver.FailErr(c, err)
	}
	cells, err := h.Query.Heatmap(c.Request().Context(), from, to)
	if err != nil {
		return webserver.FailErr(c, err)
	}
	return webserver.OK(c, map[string]interface{}{
		"start_date": c.QueryParam("start_date"),
		"end_date":   c.QueryParam("end_date"),
		"data":       cells,
	})
}

func (h *Handler) getDailyTotals(c echo.Context) error {
	from, to, err := parseDateRange(c)
	if err != nil {
		return webserver.FailErr(c, err)
	}
	days, err := h.Query.DailyTotals(c.Request().Context(), from, to)
	if err != nil {
		return webserver.FailErr(c, err)
	}
	return webserver.OK(c, map[string]interface{}{
		"start_date": c.QueryParam("start_date"),
		"end_date":   c.QueryParam("end_date"),
		"data":       days,
	})
}

// parseDateRange reads inclusive start_date/end_date query params.
func parseDateRange(c echo.Context) (time.Time, time.Time, error) {
	startRaw := c.QueryParam("start_date")
	endRaw := c.QueryParam("end_date")
	if startRaw == "" || endRaw == "" {
		return time.Time{}, time.Time{}, common.ValidationError("start_date and end_date are required")
	}
	start, err := dateparse.ParseAny(startRaw)
	if err != nil {
		return time.Time{}, time.Time{}, common.ValidationError("unparseable start_date %q", startRaw)
	}
	end, err := dateparse.ParseAny(endRaw)
	if err != nil {
		return time.Time{}, time.Time{}, common.ValidationError("unparseable end_date %q", endRaw)
	}
	from := common.DayStart(start)
	to := common.DayStart(end).AddDate(0, 0, 1)
	if !from.Before(to) {
		return time.Time{}, time.Time{}, common.ValidationError("start_date must not follow end_date")
	}
	return from, to, nil
}
