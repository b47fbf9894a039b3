package webserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/random"
	"github.com/netpulse/netpulse/pkg/common"
	"go.uber.org/zap"
)

// WebServer hosts the read-only query surface and the ingest endpoint
// on loopback. No authentication: the host is trusted and the daemon
// never binds a routable address.
type WebServer struct {
	echo *echo.Echo
	addr string
}

type payloadValidator struct {
	validate *validator.Validate
}

func (v *payloadValidator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		return common.ValidationError("invalid request payload: %s", err.Error())
	}
	return nil
}

type jsonSerializer struct{}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func (jsonSerializer) Serialize(c echo.Context, i interface{}, indent string) error {
	enc := json.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (jsonSerializer) Deserialize(c echo.Context, i interface{}) error {
	if err := json.NewDecoder(c.Request().Body).Decode(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}
	return nil
}

func New(host string, port int) *WebServer {
	// A host that is not a loopback address is replaced with 127.0.0.1.
	if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		zap.L().Warn("server host is not loopback; binding 127.0.0.1", zap.String("host", host))
		host = "127.0.0.1"
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = jsonSerializer{}
	e.Validator = &payloadValidator{validate: validator.New()}
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	return &WebServer{
		echo: e,
		addr: fmt.Sprintf("%s:%d", host, port),
	}
}

// Echo exposes the router for route registration.
func (s *WebServer) Echo() *echo.Echo {
	return s.echo
}

// Start serves until ctx is cancelled, then drains with a bounded
// shutdown.
func (s *WebServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(s.addr)
	}()
	zap.L().Info("web server listening", zap.String("addr", s.addr))

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return common.FatalError(err, "web server")
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	}
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			zap.L().Debug("http request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status))
			return nil
		},
	})
}

// OK writes the standard success envelope.
func OK(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "ok",
		"data":   data,
	})
}

// Fail writes the standard error envelope with a correlation id. The
// message is a generic category description; internal detail stays in
// the logs keyed by the correlation id.
func Fail(c echo.Context, status int, code, message string) error {
	correlationID := random.String(12)
	return c.JSON(status, map[string]interface{}{
		"status":         "error",
		"code":           code,
		"message":        message,
		"correlation_id": correlationID,
	})
}

// FailErr maps a classified error onto the HTTP surface. Internal
// descriptions never reach the caller.
func FailErr(c echo.Context, err error) error {
	correlationID := random.String(12)
	switch common.Kind(err) {
	case common.KindValidation:
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"status":         "error",
			"code":           "INVALID_REQUEST",
			"message":        err.Error(),
			"correlation_id": correlationID,
		})
	case common.KindNotFound:
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"status":         "error",
			"code":           "NOT_FOUND",
			"message":        err.Error(),
			"correlation_id": correlationID,
		})
	case common.KindTransientIO:
		zap.L().Warn("transient failure serving request",
			zap.String("correlation_id", correlationID), zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"status":         "error",
			"code":           "RETRY",
			"message":        "temporarily unavailable",
			"correlation_id": correlationID,
		})
	default:
		zap.L().Error("internal failure serving request",
			zap.String("correlation_id", correlationID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"status":         "error",
			"code":           "INTERNAL",
			"message":        "internal error",
			"correlation_id": correlationID,
		})
	}
}
