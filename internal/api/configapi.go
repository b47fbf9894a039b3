package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/netpulse/netpulse/internal/webserver"
)

type configValuePayload struct {
	Value string `json:"value" validate:"required,max=256"`
}

func (h *Handler) getConfig(c echo.Context) error {
	settings, err := h.Settings.All(c.Request().Context())
	if err != nil {
		return webserver.FailErr(c, err)
	}
	return webserver.OK(c, settings)
}

func (h *Handler) putConfig(c echo.Context) error {
	var payload configValuePayload
	if err := c.Bind(&payload); err != nil {
		return webserver.Fail(c, http.StatusBadRequest, "INVALID_REQUEST", "unable to parse setting value")
	}
	if err := c.Validate(&payload); err != nil {
		return webserver.FailErr(c, err)
	}
	key := c.Param("key")
	if err := h.Settings.Set(c.Request().Context(), key, payload.Value); err != nil {
		return webserver.FailErr(c, err)
	}
	return webserver.OK(c, map[string]string{
		"key":   key,
		"value": payload.Value,
	})
}

func (h *Handler) postConfigReload(c echo.Context) error {
	if err := h.Settings.Reload(c.Request().Context()); err != nil {
		return webserver.FailErr(c, err)
	}
	settings, err := h.Settings.All(c.Request().Context())
	if err != nil {
		return webserver.FailErr(c, err)
	}
	return webserver.OK(c, settings)
}

func (h *Handler) getHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Health.Snapshot())
}
