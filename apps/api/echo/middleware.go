package echoapi

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/imusici/accademia/core/auth"
)

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "accademia",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status code.",
	}, []string{"method", "route", "code"})

	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "accademia",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latencies by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)

func init() {
	prometheus.MustRegister(requestsTotal, requestDuration)
}

// metricsMiddleware counts requests by route. Errors are handled here so the final status is known.
func metricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		start := time.Now()
		if err := next(ctx); err != nil {
			ctx.Error(err)
		}
		route := ctx.Path()
		if route == "" {
			route = "unmatched"
		}
		method := ctx.Request().Method
		requestsTotal.WithLabelValues(method, route, strconv.Itoa(ctx.Response().Status)).Inc()
		requestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		return nil
	}
}

// gate only lets through the principals allowed by check.
func gate(check func(auth.Principal) error) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			p, err := getPrincipal(ctx)
			if err != nil {
				return err
			}
			if err := check(p); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}

var (
	adminOnly      = gate(auth.Principal.RequireAdmin)
	teacherOrAdmin = gate(auth.Principal.RequireTeacherOrAdmin)
)

// selfOrAdmin gates the routes whose :id param is a user ID.
func selfOrAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		p, err := getPrincipal(ctx)
		if err != nil {
			return err
		}
		if err := p.RequireSelfOrAdmin(ctx.Param("id")); err != nil {
			return err
		}
		return next(ctx)
	}
}
