package echoapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/imusici/accademia/core"
	"github.com/imusici/accademia/core/auth"
	"github.com/imusici/accademia/core/user"
)

const (
	contextPrincipalKey = "principal"
	contextTokenKey     = "sessionToken"
	maxUserAgentLen     = 100
)

type authApi struct {
	svc       *auth.Service
	users     *user.Service
	validate  *validator.Validate
	authConf  core.AuthConfig
	secureCke bool
	sameSite  http.SameSite
}

func registerAuthAPI(g *echo.Group, session echo.MiddlewareFunc, opts *Options) {
	api := authApi{
		svc:       opts.Auth,
		users:     opts.Users,
		validate:  opts.Validate,
		authConf:  opts.Conf.Auth,
		secureCke: opts.Conf.Server.CookieSecure,
		sameSite:  cookieSameSite(opts.Conf.Server.CookieSecure),
	}

	ag := g.Group("/auth")
	ag.POST("/login", api.login)
	ag.POST("/admin/pin", api.adminPIN)
	ag.POST("/admin/confirm", api.adminConfirm)
	ag.POST("/logout", api.logout, session)
	ag.GET("/me", api.me, session)
}

// sessionToken reads the session token from the session cookie, then from the Authorization header.
func sessionToken(ctx echo.Context, cookieName string) string {
	if cookie, err := ctx.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	const prefix = "Bearer "
	if h := ctx.Request().Header.Get(echo.HeaderAuthorization); len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

// sessionMiddleware authenticates the request and stores the Principal in the context.
func sessionMiddleware(svc *auth.Service, cookieName string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			token := sessionToken(ctx, cookieName)
			p, err := svc.Authenticate(ctx.Request().Context(), token)
			if err != nil {
				return err
			}
			ctx.Set(contextPrincipalKey, p)
			ctx.Set(contextTokenKey, token)
			return next(ctx)
		}
	}
}

func principalFrom(ctx echo.Context) (auth.Principal, bool) {
	p, ok := ctx.Get(contextPrincipalKey).(auth.Principal)
	return p, ok
}

// getPrincipal returns the authenticated caller. Routes behind sessionMiddleware always have one.
func getPrincipal(ctx echo.Context) (auth.Principal, error) {
	if p, ok := principalFrom(ctx); ok {
		return p, nil
	}
	return auth.Principal{}, core.ErrUnauthenticated
}

func requestMeta(ctx echo.Context) auth.Meta {
	return auth.Meta{
		Device: core.Truncate(ctx.Request().UserAgent(), maxUserAgentLen),
		IP:     ctx.RealIP(),
	}
}

// cookieSameSite allows cross-site cookies only when they are Secure; browsers drop
// SameSite=None cookies sent without it.
func cookieSameSite(secure bool) http.SameSite {
	if secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

func (api *authApi) setSessionCookie(ctx echo.Context, token string, expiresAt time.Time) {
	ctx.SetCookie(&http.Cookie{
		Name:     api.authConf.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(api.authConf.SessionTTL / time.Second),
		HttpOnly: true,
		Secure:   api.secureCke,
		SameSite: api.sameSite,
	})
}

func (api *authApi) clearSessionCookie(ctx echo.Context) {
	ctx.SetCookie(&http.Cookie{
		Name:     api.authConf.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   api.secureCke,
		SameSite: api.sameSite,
	})
}

// Handlers

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.Login(ctx.Request().Context(), data.Email, data.Password, requestMeta(ctx))
	if err != nil {
		return errors.Wrap(err, "logging in")
	}
	api.setSessionCookie(ctx, res.Token, res.ExpiresAt)
	return ctx.JSON(http.StatusOK, res)
}

func (api *authApi) adminPIN(ctx echo.Context) error {
	var data AdminPINRequest
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	pending, err := api.svc.BeginAdminLogin(ctx.Request().Context(), data.Email, data.PIN)
	if err != nil {
		return errors.Wrap(err, "verifying admin PIN")
	}
	return ctx.JSON(http.StatusOK, pending)
}

func (api *authApi) adminConfirm(ctx echo.Context) error {
	var data AdminConfirmRequest
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.CompleteAdminLogin(ctx.Request().Context(), data.Email, data.TempToken, data.SessionID, requestMeta(ctx))
	if err != nil {
		return errors.Wrap(err, "confirming admin identity")
	}
	api.setSessionCookie(ctx, res.Token, res.ExpiresAt)
	return ctx.JSON(http.StatusOK, res)
}

func (api *authApi) logout(ctx echo.Context) error {
	token, _ := ctx.Get(contextTokenKey).(string)
	n, err := api.svc.Logout(ctx.Request().Context(), token)
	if err != nil {
		return err
	}
	api.clearSessionCookie(ctx)
	return ctx.JSON(http.StatusOK, LogoutResponse{Deleted: n})
}

func (api *authApi) me(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	prof, err := api.users.Profile(ctx.Request().Context(), p.ID())
	if err != nil {
		return errors.Wrap(err, "loading profile")
	}
	return ctx.JSON(http.StatusOK, MeResponse{Profile: prof, Admin: p.IsAdmin(), SessionExpiresAt: p.Session.ExpiresAt})
}
