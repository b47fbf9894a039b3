package api

import (
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/netpulse/netpulse/internal/query"
	"github.com/netpulse/netpulse/internal/store"
	"github.com/netpulse/netpulse/internal/webserver"
	"github.com/netpulse/netpulse/pkg/common"
)

func (h *Handler) listDomains(c echo.Context) error {
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

	parentOnly := false
	if raw := c.QueryParam("parent_only"); raw != "" {
		parentOnly, err = strconv.ParseBool(raw)
		if err != nil {
			return webserver.FailErr(c, common.ValidationError("invalid parent_only %q", raw))
		}
	}

	domains, err := h.Query.ListDomains(c.Request().Context(), query.ListOptions{
		Limit:      parseLimit(c, 100, 1000),
		Window:     win,
		SortBy:     sortBy,
		Order:      order,
		ParentOnly: parentOnly,
	})
	if err != nil {
		return webserver.FailErr(c, err)
	}
	return webserver.OK(c, map[string]interface{}{
		"count":       len(domains),
		"since":       win.From,
		"parent_only": parentOnly,
		"domains":     domains,
	})
}

func (h *Handler) getDomain(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return webserver.FailErr(c, err)
	}
	win, _, err := h.Query.ResolveWindow(c.QueryParam("period"), c.QueryParam("since"), c.QueryParam("until"))
	if err != nil {
		return webserver.FailErr(c, err)
	}
	d, err := h.Query.GetDomain(c.Request().Context(), id, win)
	if err != nil {
		return webserver.FailErr(c, err)
	}
	return webserver.OK(c, d)
}

func (h *Handler) getDomainTimeline(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return webserver.FailErr(c, err)
	}
	win, buckets, err := h.Query.ResolveWindow(
		c.QueryParam("period"), c.QueryParam("since"), c.QueryParam("until"))
	if err != nil {
		return webserver.FailErr(c, err)
	}
	points, err := h.Query.DomainTimeline(c.Request().Context(), id, win, buckets)
	if err != nil {
		return webserver.FailErr(c, err)
	}
	return webserver.OK(c, map[string]interface{}{
		"domain_id": id,
		"since":     win.From,
		"until":     win.To,
		"timeline":  points,
	})
}

func (h *Handler) getTopDomains(c echo.Context) error {
	limit, err := strconv.Atoi(c.Param("limit"))
	if err != nil || limit <= 0 || limit > 1000 {
		return webserver.FailErr(c, common.ValidationError("invalid limit %q", c.Param("limit")))
	}
	win, _, err := h.Query.ResolveWindow(
		c.QueryParam("period"), c.QueryParam("since"), c.QueryParam("until"))
	if err != nil {
		return webserver.FailErr(c, err)
	}

	parentOnly := c.QueryParam("parent_only") == "true"
	domains, err := h.Query.TopDomains(c.Request().Context(), limit, win, parentOnly)
	if err != nil {
		return webserver.FailErr(c, err)
	}
	return webserver.OK(c, map[string]interface{}{
		"limit":       limit,
		"since":       win.From,
		"top_domains": domains,
	})
}
