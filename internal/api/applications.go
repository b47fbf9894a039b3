package api

import (
	"github.com/labstack/echo/v4"
	"github.com/netpulse/netpulse/internal/query"
	"github.com/netpulse/netpulse/internal/store"
	"github.com/netpulse/netpulse/internal/webserver"
)

func (h *Handler) listApplications(c echo.Context) error {
	sortBy, err := store.ParseSortKey(c.QueryParam("sort_by"))
	if err != nil {
		return webserver.FailErr(c, err)
	}
	order, err := store.ParseSortOrder(c.QueryParam("order"))
	if err != nil {
		return webserver.FailErr(c, err)
	}
	win, _, err := h.Query.ResolveWindow(
		c.QueryParam("period"), c.QueryParam("since"), c.QueryParam("until"))
	if err != nil {
		return webserver.FailErr(c, err)
	}

	apps, err := h.Query.ListApps(c.Request().Context(), query.ListOptions{
		Limit:  parseLimit(c, 100, 1000),
		Window: win,
		SortBy: sortBy,
		Order:  order,
	})
	if err != nil {
		return webserver.FailErr(c, err)
	}
	return webserver.OK(c, map[string]interface{}{
		"count":        len(apps),
		"since":        win.From,
		"applications": apps,
	})
}

func (h *Handler) getApplication(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return webserver.FailErr(c, err)
	}
	win, _, err := h.Query.ResolveWindow(c.QueryParam("period"), c.QueryParam("since"), c.QueryParam("until"))
	if err != nil {
		return webserver.FailErr(c, err)
	}
	app, err := h.Query.GetApp(c.Request().Context(), id, win)
	if err != nil {
		return webserver.FailErr(c, err)
	}
	return webserver.OK(c, app)
}

func (h *Handler) getApplicationTimeline(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return webserver.FailErr(c, err)
	}
	win, buckets, err := h.Query.ResolveWindow(
		c.QueryParam("period"), c.QueryParam("since"), c.QueryParam("until"))
	if err != nil {
		return webserver.FailErr(c, err)
	}
	points, err := h.Query.AppTimeline(c.Request().Context(), id, win, buckets)
	if err != nil {
		return webserver.FailErr(c, err)
	}
	return webserver.OK(c, map[string]interface{}{
		"app_id":   id,
		"since":    win.From,
		"until":    win.To,
		"timeline": points,
	})
}
