package echoutil

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// LogHandlerFunc logs requests and responses with the logger of echo.
func LogHandlerFunc(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		BEGIN := time.Now()
		c.Logger().Debugj(log.JSON{
			"message": "request",
			"method":  req.Method,
			"path":    req.URL.Path,
			"remote":  c.RealIP(),
		})

		err := next(c)

		j := log.JSON{
			"message": "response",
			"method":  req.Method,
			"path":    req.URL.Path,
			"status":  c.Response().Status,
			"latency": time.Since(BEGIN).String(),
		}
		if err != nil {
			j["error"] = err.Error()
			c.Logger().Warnj(j)
		} else {
			c.Logger().Infoj(j)
		}
		return err
	}
}

// ParseLevel reads log levels: debug, info, warn, error and off. Unknown levels are warn.
//
// # Returns
//
// - log.Lvl: level
//
// - bool: true if loglevel is known.
func ParseLevel(loglevel string) (log.Lvl, bool) {
	switch strings.ToLower(loglevel) {
	case "debug":
		return log.DEBUG, true
	case "info":
		return log.INFO, true
	case "warn", "":
		return log.WARN, true
	case "error":
		return log.ERROR, true
	case "off":
		return log.OFF, true
	default:
		return log.WARN, false
	}
}

// SetLevel sets level of the logger shared with e.
func SetLevel(e *echo.Echo, loglevel string) {
	lvl, ok := ParseLevel(loglevel)
	e.Logger.SetLevel(lvl)
	if !ok {
		e.Logger.Warnf("unknown loglevel: %s . fall-backed to warn", loglevel)
	}
}
