package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinicsched/clinic/internal/platform/metrics"
)

// Metrics records request counts and latency keyed by the matched route
// template, so /api/v1/appointments/:id stays a single series.
func Metrics() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if !c.Response().Committed {
					status = 500
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			metrics.ObserveHTTP(c.Request().Method, route, status, time.Since(start))
			return err
		}
	}
}
