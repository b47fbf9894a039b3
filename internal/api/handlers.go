package api

import (
	"context"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/netpulse/netpulse/internal/health"
	"github.com/netpulse/netpulse/internal/ingest"
	"github.com/netpulse/netpulse/internal/query"
	"github.com/netpulse/netpulse/internal/webserver"
	"github.com/netpulse/netpulse/pkg/common"
)

// Settings is the runtime-configuration surface the handlers need.
type Settings interface {
	All(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, key, value string) error
	Reload(ctx context.Context) error
	GetString(key string) string
}

// Handler wires the HTTP surface to the query engine and ingest
// service. It holds no state of its own; the supervisor hands in
// references to its components at startup.
type Handler struct {
	Query    *query.Engine
	Ingest   *ingest.Service
	Settings Settings
	Health   *health.Tracker
	Hub      *webserver.Hub
}

// Register attaches every route to the server.
func (h *Handler) Register(ws *webserver.WebServer) {
	e := ws.Echo()

	e.GET("/health", h.getHealth)

	e.GET("/stats", h.getSummary)
	e.GET("/stats/summary", h.getSummary)
	e.GET("/stats/timeline", h.getTimeline)
	e.GET("/stats/bandwidth", h.getBandwidth)
	e.GET("/stats/heatmap", h.getHeatmap)
	e.GET("/stats/daily", h.getDailyTotals)

	e.GET("/applications", h.listApplications)
	e.GET("/applications/:id", h.getApplication)
	e.GET("/applications/:id/timeline", h.getApplicationTimeline)

	e.GET("/domains", h.listDomains)
	e.GET("/domains/top/:limit", h.getTopDomains)
	e.GET("/domains/:id", h.getDomain)
	e.GET("/domains/:id/timeline", h.getDomainTimeline)

	e.POST("/browser/active-tab", h.postActiveTab)
	e.GET("/browser/status", h.getBrowserStatus)

	e.GET("/config", h.getConfig)
	e.PUT("/config/:key", h.putConfig)
	e.POST("/config/reload", h.postConfigReload)

	if h.Hub != nil {
		e.GET("/ws", h.Hub.Handle)
	}
}

func parseIDParam(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, common.ValidationError("invalid id %q", c.Param(name))
	}
	return id, nil
}

func parseLimit(c echo.Context, def, max int) int {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
