package echoapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/imusici/accademia/core"
	"github.com/imusici/accademia/core/compensation"
	"github.com/imusici/accademia/core/payment"
	"github.com/imusici/accademia/core/user"
)

// bind decodes the request into dst, reporting any decoding failure as a bad request.
func bind(ctx echo.Context, dst interface{}) error {
	if err := ctx.Bind(dst); err != nil {
		if herr, ok := err.(*echo.HTTPError); ok {
			return herr
		}
		return echo.NewHTTPError(http.StatusBadRequest, msgBadRequestBody).SetInternal(err)
	}
	return nil
}

// intQueryParam parses an optional integer query parameter.
func intQueryParam(ctx echo.Context, name string) (*int, error) {
	v := ctx.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return nil, core.NewFieldError(name, "must be an integer")
	}
	return &i, nil
}

// bindUserFilter reads a user.QueryFilter from the query string.
func bindUserFilter(ctx echo.Context) (user.QueryFilter, error) {
	filter := user.QueryFilter{
		Search: ctx.QueryParam("search"),
		Role:   user.Role(ctx.QueryParam("role")),
	}
	if v := ctx.QueryParam("is_active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			return filter, core.NewFieldError("is_active", "must be true or false")
		}
		filter.IsActive = &active
	}
	return filter, nil
}

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	AdminPINRequest struct {
		Email string `json:"email" validate:"required,email"`
		PIN   string `json:"pin" validate:"required"`
	}

	AdminConfirmRequest struct {
		Email     string `json:"email" validate:"required,email"`
		TempToken string `json:"temp_token" validate:"required"`
		SessionID string `json:"session_id" validate:"required"` // identity provider session handle
	}

	SetPINRequest struct {
		PIN string `json:"pin" validate:"required"`
	}

	ReminderRequest struct {
		// Kind is pending, overdue or renewal.
		Kind string `json:"kind" validate:"required,oneof=pending overdue renewal"`
		Days *int   `json:"days" validate:"omitempty,min=0"`
	}

	LogoutResponse struct {
		Deleted int `json:"deleted"`
	}

	MeResponse struct {
		user.Profile
		Admin            bool      `json:"admin"`
		SessionExpiresAt time.Time `json:"session_expires_at"`
	}

	PayoutResponse struct {
		Payment payment.Payment      `json:"payment"`
		Summary compensation.Summary `json:"summary"`
	}

	StatsResponse struct {
		Users      map[user.Role]int      `json:"users"`
		Payments   map[payment.Status]int `json:"payments"`
		Attendance int                    `json:"attendance"`
	}

	CleanupResponse struct {
		Deleted int `json:"deleted"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}

func (pr *AdminPINRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}

func (cr *AdminConfirmRequest) Validate(validate *validator.Validate) error {
	cr.Email = core.CleanString(cr.Email, true /* lower */)
	cr.SessionID = core.CleanString(cr.SessionID)
	return validate.Struct(cr)
}
