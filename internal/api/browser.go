package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/netpulse/netpulse/internal/ingest"
	"github.com/netpulse/netpulse/internal/webserver"
)

type activeTabPayload struct {
	Domain    string      `json:"domain" validate:"required,min=1,max=255"`
	Timestamp interface{} `json:"timestamp"`
	Browser   string      `json:"browser" validate:"required,min=1,max=64"`
}

func (h *Handler) postActiveTab(c echo.Context) error {
	var payload activeTabPayload
	if err := c.Bind(&payload); err != nil {
		return webserver.Fail(c, http.StatusBadRequest, "INVALID_REQUEST", "unable to parse active-tab report")
	}
	if err := c.Validate(&payload); err != nil {
		return webserver.FailErr(c, err)
	}

	result, err := h.Ingest.Record(c.Request().Context(), ingest.Report{
		Domain:    payload.Domain,
		Timestamp: payload.Timestamp,
		Browser:   payload.Browser,
	})
	if err != nil {
		return webserver.FailErr(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"domainId":      result.DomainID,
		"domain":        result.Fqdn,
		"parent_domain": result.Parent,
	})
}

func (h *Handler) getBrowserStatus(c echo.Context) error {
	status := h.Health.Snapshot()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"daemon_running":    status.Running,
		"accepting_reports": true,
		"degraded":          status.Degraded,
	})
}
