package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	applogger "CorrPull/pkg/logger"
)

// Observer receives one observation per finished request.
type Observer interface {
	ObserveHTTP(route string, status int, seconds float64)
}

// Metrics records request latency by route template and logs failed and slow requests.
func Metrics(obs Observer, l *applogger.Logger, slowThreshold time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// let echo write the response so the status is final
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			status := c.Response().Status
			duration := time.Since(start)
			if obs != nil {
				obs.ObserveHTTP(route, status, duration.Seconds())
			}

			switch {
			case status >= 500:
				l.Error("http request failed",
					applogger.String("route", route),
					applogger.String("method", c.Request().Method),
					applogger.Int("status", status),
					applogger.Duration("duration_ms", duration),
				)
			case slowThreshold > 0 && duration >= slowThreshold:
				l.Warn("http request slow",
					applogger.String("route", route),
					applogger.String("method", c.Request().Method),
					applogger.Int("status", status),
					applogger.Duration("duration_ms", duration),
				)
			}
			return nil
		}
	}
}
