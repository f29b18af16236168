package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/imusici/accademia/core/compensation"
)

type compensationApi struct {
	svc *compensation.Service
}

func registerCompensationAPI(g *echo.Group, opts *Options) {
	api := compensationApi{svc: opts.Compensation}

	cg := g.Group("/compensation")
	cg.GET("/rates", api.listRates, teacherOrAdmin)
	cg.PUT("/rates", api.putRate, adminOnly)
	cg.DELETE("/rates/:id", api.deleteRate, adminOnly)
	cg.GET("/:teacherID", api.calculate, teacherOrAdmin)
	cg.POST("/:teacherID/payout", api.payout, adminOnly)
}

func (api *compensationApi) calculate(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	var req compensation.Request
	if err := bind(ctx, &req); err != nil {
		return err
	}
	sum, err := api.svc.Calculate(ctx.Request().Context(), p, ctx.Param("teacherID"), req)
	if err != nil {
		return errors.Wrap(err, "calculating compensation")
	}
	return ctx.JSON(http.StatusOK, sum)
}

func (api *compensationApi) payout(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	var req compensation.Request
	if err := bind(ctx, &req); err != nil {
		return err
	}
	pmt, sum, err := api.svc.Payout(ctx.Request().Context(), p, ctx.Param("teacherID"), req)
	if err != nil {
		return errors.Wrap(err, "paying out compensation")
	}
	return ctx.JSON(http.StatusCreated, PayoutResponse{Payment: pmt, Summary: sum})
}

func (api *compensationApi) listRates(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	rates, err := api.svc.ListRates(ctx.Request().Context(), p, ctx.QueryParam("teacher_id"))
	if err != nil {
		return errors.Wrap(err, "listing compensation rates")
	}
	if rates == nil {
		rates = []compensation.Rate{}
	}
	return ctx.JSON(http.StatusOK, rates)
}

func (api *compensationApi) putRate(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	var data compensation.PutRate
	if err := bind(ctx, &data); err != nil {
		return err
	}
	rate, err := api.svc.PutRate(ctx.Request().Context(), p, data)
	if err != nil {
		return errors.Wrap(err, "saving compensation rate")
	}
	return ctx.JSON(http.StatusOK, rate)
}

func (api *compensationApi) deleteRate(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.DeleteRate(ctx.Request().Context(), p, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting compensation rate")
	}
	return ctx.NoContent(http.StatusNoContent)
}
