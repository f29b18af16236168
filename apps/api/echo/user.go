package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/imusici/accademia/core/user"
)

type userApi struct {
	svc *user.Service
}

func registerUserAPI(g *echo.Group, opts *Options) {
	api := userApi{svc: opts.Users}

	ug := g.Group("/users")
	ug.GET("", api.query, adminOnly)
	ug.POST("", api.create, adminOnly)
	ug.GET("/:id", api.retrieve, selfOrAdmin)
	ug.PUT("/:id", api.update, adminOnly)
	ug.DELETE("/:id", api.destroy, adminOnly)
	ug.PUT("/:id/student-detail", api.saveStudentDetail, adminOnly)
	ug.PUT("/:id/teacher-detail", api.saveTeacherDetail, adminOnly)
	ug.PUT("/:id/pin", api.setPIN, adminOnly)
}

// Handlers

func (api *userApi) create(ctx echo.Context) error {
	var data user.NewUser
	if err := bind(ctx, &data); err != nil {
		return err
	}
	usr, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) query(ctx echo.Context) error {
	filter, err := bindUserFilter(ctx)
	if err != nil {
		return err
	}
	users, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) retrieve(ctx echo.Context) error {
	prof, err := api.svc.Profile(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding user")
	}
	return ctx.JSON(http.StatusOK, prof)
}

func (api *userApi) update(ctx echo.Context) error {
	var data user.UpdateUser
	if err := bind(ctx, &data); err != nil {
		return err
	}
	usr, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) destroy(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	// Say No to Suicide! an admin cannot delete themselves
	if ctx.Param("id") == p.ID() {
		return errSelfDelete
	}
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) saveStudentDetail(ctx echo.Context) error {
	var data user.SaveStudentDetail
	if err := bind(ctx, &data); err != nil {
		return err
	}
	detail, err := api.svc.SaveStudentDetail(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "saving student detail")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *userApi) saveTeacherDetail(ctx echo.Context) error {
	var data user.SaveTeacherDetail
	if err := bind(ctx, &data); err != nil {
		return err
	}
	detail, err := api.svc.SaveTeacherDetail(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "saving teacher detail")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *userApi) setPIN(ctx echo.Context) error {
	var data SetPINRequest
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := api.svc.SetAdminPIN(ctx.Request().Context(), ctx.Param("id"), data.PIN); err != nil {
		return errors.Wrap(err, "setting admin PIN")
	}
	return ctx.NoContent(http.StatusNoContent)
}
