package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/imusici/accademia/apps/api/jobs"
	"github.com/imusici/accademia/core/attendance"
	"github.com/imusici/accademia/core/payment"
	"github.com/imusici/accademia/core/user"
)

type adminApi struct {
	users      *user.Service
	payments   *payment.Service
	attendance *attendance.Service
	jobs       *jobs.Runner
	validate   *validator.Validate
}

func registerAdminAPI(g *echo.Group, opts *Options) {
	api := adminApi{
		users:      opts.Users,
		payments:   opts.Payments,
		attendance: opts.Attendance,
		jobs:       opts.Jobs,
		validate:   opts.Validate,
	}

	g.GET("/settings", api.settings, adminOnly)
	g.PUT("/settings", api.updateSettings, adminOnly)
	g.GET("/stats", api.stats, adminOnly)

	ag := g.Group("/automation", adminOnly)
	ag.POST("/overdue-sweep", api.overdueSweep)
	ag.POST("/monthly-payments", api.monthlyPayments)
	ag.POST("/reminders", api.reminders)
	ag.GET("/expiring-annual", api.expiringAnnual)
	ag.POST("/session-cleanup", api.sessionCleanup)
}

func (api *adminApi) settings(ctx echo.Context) error {
	st, err := api.payments.Settings(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "loading settings")
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *adminApi) updateSettings(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	var data payment.UpdateSettings
	if err := bind(ctx, &data); err != nil {
		return err
	}
	st, err := api.payments.UpdateSettings(ctx.Request().Context(), p, data)
	if err != nil {
		return errors.Wrap(err, "updating settings")
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *adminApi) stats(ctx echo.Context) error {
	c := ctx.Request().Context()
	res := StatsResponse{
		Users:    make(map[user.Role]int, len(user.AllRoles)),
		Payments: make(map[payment.Status]int, 3),
	}
	for _, role := range user.AllRoles {
		n, err := api.users.Count(c, user.QueryFilter{Role: role})
		if err != nil {
			return errors.Wrap(err, "counting users")
		}
		res.Users[role] = n
	}
	for _, status := range []payment.Status{payment.StatusPending, payment.StatusPaid, payment.StatusOverdue} {
		n, err := api.payments.Count(c, payment.Filter{Status: status})
		if err != nil {
			return errors.Wrap(err, "counting payments")
		}
		res.Payments[status] = n
	}
	n, err := api.attendance.Count(c, attendance.Filter{})
	if err != nil {
		return errors.Wrap(err, "counting attendance")
	}
	res.Attendance = n
	return ctx.JSON(http.StatusOK, res)
}

// Automation

func (api *adminApi) overdueSweep(ctx echo.Context) error {
	res, err := api.jobs.Sweep(ctx.Request().Context(), jobs.TriggerManual)
	if err != nil {
		return errors.Wrap(err, "sweeping overdue payments")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *adminApi) monthlyPayments(ctx echo.Context) error {
	var req payment.MonthlyRequest
	if err := bind(ctx, &req); err != nil { // an empty body means the current month
		return err
	}
	res, err := api.jobs.Monthly(ctx.Request().Context(), jobs.TriggerManual, req)
	if err != nil {
		return errors.Wrap(err, "generating monthly payments")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *adminApi) reminders(ctx echo.Context) error {
	var data ReminderRequest
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	var (
		res payment.ReminderResult
		err error
	)
	if data.Kind == "renewal" {
		res, err = api.payments.SendRenewalReminders(ctx.Request().Context(), data.Days)
	} else {
		res, err = api.payments.SendReminders(ctx.Request().Context(), payment.Status(data.Kind))
	}
	if err != nil {
		return errors.Wrap(err, "sending reminders")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *adminApi) expiringAnnual(ctx echo.Context) error {
	days, err := intQueryParam(ctx, "days")
	if err != nil {
		return err
	}
	pmts, err := api.payments.ExpiringAnnual(ctx.Request().Context(), days)
	if err != nil {
		return errors.Wrap(err, "listing expiring annual payments")
	}
	if pmts == nil {
		pmts = []payment.Payment{}
	}
	return ctx.JSON(http.StatusOK, pmts)
}

func (api *adminApi) sessionCleanup(ctx echo.Context) error {
	n, err := api.jobs.CleanupSessions(ctx.Request().Context(), jobs.TriggerManual)
	if err != nil {
		return errors.Wrap(err, "cleaning up sessions")
	}
	return ctx.JSON(http.StatusOK, CleanupResponse{Deleted: n})
}
