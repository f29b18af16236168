package echoapi

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imusici/accademia/core/auth"
	"github.com/imusici/accademia/core/user"
	testutil "github.com/imusici/accademia/tests"
)

func sessionCookie(t *testing.T, resp *http.Response, name string) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %q not set", name)
	return nil
}

func Test_authApi_login(t *testing.T) {
	env, app := setup(t)
	student := env.CreateUser(t, user.RoleStudent, "Anna", "Verdi")

	tests := []httpTest{
		{
			name: "wrong password", method: http.MethodPost, path: "/v1/auth/login",
			body:     marchallObj(t, LoginRequest{Email: student.Email, Password: "nope"}),
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "invalid credentials"}),
		},
		{
			name: "unknown email", method: http.MethodPost, path: "/v1/auth/login",
			body:     marchallObj(t, LoginRequest{Email: "ghost@scuola.it", Password: "Secret#123"}),
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "invalid credentials"}),
		},
		{
			name: "malformed body", method: http.MethodPost, path: "/v1/auth/login",
			body: []byte(`{"email": `), wantCode: http.StatusBadRequest,
		},
		{
			name: "missing password", method: http.MethodPost, path: "/v1/auth/login",
			body: []byte(`{"email": "anna.verdi@scuola.it"}`), wantCode: http.StatusBadRequest,
		},
	}
	runHTTPTests(t, app, tests)

	t.Run("session cookie", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/auth/login", marchallObj(t, LoginRequest{Email: " ANNA.Verdi@scuola.it ", Password: "Secret#123"}))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res auth.LoginResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.NotEmpty(t, res.Token)
		assert.Equal(t, student.ID, res.User.ID)
		assert.True(t, env.Clock.Now().Add(7*24*time.Hour).Equal(res.ExpiresAt))

		cke := sessionCookie(t, rec.Result(), "session_token")
		assert.Equal(t, res.Token, cke.Value)
		assert.Equal(t, "/", cke.Path)
		assert.True(t, cke.HttpOnly)
		assert.True(t, cke.Secure)
		assert.Equal(t, http.SameSiteNoneMode, cke.SameSite)
		assert.Equal(t, 7*24*3600, cke.MaxAge)

		// the cookie alone authenticates
		req, rec = newRequest(http.MethodGet, "/v1/auth/me")
		req.AddCookie(&http.Cookie{Name: cke.Name, Value: cke.Value})
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var me MeResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
		assert.Equal(t, student.ID, me.ID)
		assert.False(t, me.Admin)
	})
}

func Test_authApi_login_insecureCookie(t *testing.T) {
	env := testutil.Setup(t)
	env.Conf.Server.CookieSecure = false
	app := newTestServer(env)
	student := env.CreateUser(t, user.RoleStudent, "Anna", "Verdi")

	req, rec := newRequest(http.MethodPost, "/v1/auth/login", marchallObj(t, LoginRequest{Email: student.Email, Password: testutil.Password}))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cke := sessionCookie(t, rec.Result(), "session_token")
	assert.False(t, cke.Secure)
	assert.Equal(t, http.SameSiteLaxMode, cke.SameSite, "SameSite=None requires Secure")
}

func Test_authApi_me(t *testing.T) {
	env, app := setup(t)
	student := env.CreateUser(t, user.RoleStudent, "Anna", "Verdi")
	token := login(t, app, student)

	tests := []httpTest{
		{name: "no token", path: "/v1/auth/me", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errUnauthenticated)},
		{name: "unknown token", path: "/v1/auth/me", token: "bogus", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errUnauthenticated)},
		{name: "bearer token", path: "/v1/auth/me", token: token, wantCode: http.StatusOK},
	}
	runHTTPTests(t, app, tests)

	t.Run("lowercase bearer scheme", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/auth/me")
		req.Header.Set("Authorization", "bearer "+token)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("expired session", func(t *testing.T) {
		env.Clock.Add(7*24*time.Hour + time.Second)
		req, rec := newAuthRequest(http.MethodGet, "/v1/auth/me", token)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errUnauthenticated)}, rec)
	})
}

func Test_authApi_logout(t *testing.T) {
	env, app := setup(t)
	student := env.CreateUser(t, user.RoleStudent, "Anna", "Verdi")
	token := login(t, app, student)
	other := login(t, app, student)

	req, rec := newAuthRequest(http.MethodPost, "/v1/auth/logout", token)
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, LogoutResponse{Deleted: 1})}, rec)

	cke := sessionCookie(t, rec.Result(), "session_token")
	assert.Empty(t, cke.Value)
	assert.True(t, cke.MaxAge < 0)

	tests := []httpTest{
		{name: "logged out", path: "/v1/auth/me", token: token, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errUnauthenticated)},
		{name: "other session intact", path: "/v1/auth/me", token: other, wantCode: http.StatusOK},
		{name: "logout requires a session", method: http.MethodPost, path: "/v1/auth/logout", token: token, wantCode: http.StatusUnauthorized},
	}
	runHTTPTests(t, app, tests)
}

func Test_authApi_adminLogin(t *testing.T) {
	env, app := setup(t)
	admin := env.CreateUser(t, user.RoleAdmin, "Paola", "Neri")

	pin := func(pin string) []byte {
		return marchallObj(t, AdminPINRequest{Email: admin.Email, PIN: pin})
	}

	runHTTPTests(t, app, []httpTest{
		{
			name: "wrong PIN", method: http.MethodPost, path: "/v1/auth/admin/pin", body: pin("0000"),
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "invalid PIN"}),
		},
		{
			name: "confirm with a bogus token", method: http.MethodPost, path: "/v1/auth/admin/confirm",
			body:     marchallObj(t, AdminConfirmRequest{Email: admin.Email, TempToken: "bogus", SessionID: "h"}),
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "second factor challenge expired or already used"}),
		},
	})

	// step 1
	req, rec := newRequest(http.MethodPost, "/v1/auth/admin/pin", pin("1234"))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var pending auth.PendingLogin
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))
	assert.Equal(t, admin.ID, pending.UserID)
	require.NotEmpty(t, pending.Token)

	// step 2
	env.IdP.Add("idp-session", admin.Email, "sub-1")
	confirm := marchallObj(t, AdminConfirmRequest{Email: admin.Email, TempToken: pending.Token, SessionID: "idp-session"})
	req, rec = newRequest(http.MethodPost, "/v1/auth/admin/confirm", confirm)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res auth.LoginResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, res.Token, sessionCookie(t, rec.Result(), "session_token").Value)

	runHTTPTests(t, app, []httpTest{
		{
			name: "temp token is single use", method: http.MethodPost, path: "/v1/auth/admin/confirm", body: confirm,
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "second factor challenge expired or already used"}),
		},
		{name: "elevated session is admin", path: "/v1/users", token: res.Token, wantCode: http.StatusOK},
	})

	req, rec = newAuthRequest(http.MethodGet, "/v1/auth/me", res.Token)
	app.ServeHTTP(rec, req)
	var me MeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.True(t, me.Admin)
}

func Test_authApi_adminLogin_identityProviderDown(t *testing.T) {
	env, app := setup(t)
	admin := env.CreateUser(t, user.RoleAdmin, "Paola", "Neri")

	pending, err := env.Auth.BeginAdminLogin(context.Background(), admin.Email, "1234")
	require.NoError(t, err)
	env.IdP.Down = true

	body := marchallObj(t, AdminConfirmRequest{Email: admin.Email, TempToken: pending.Token, SessionID: "idp-session"})
	req, rec := newRequest(http.MethodPost, "/v1/auth/admin/confirm", body)
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusBadGateway, wantData: marchallObj(t, httpErr{Error: "identity provider unavailable"})}, rec)

	// the temp token survives the outage
	env.IdP.Down = false
	env.IdP.Add("idp-session", admin.Email, "sub-paola")
	req, rec = newRequest(http.MethodPost, "/v1/auth/admin/confirm", body)
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func Test_authApi_passwordAdminIsNotElevated(t *testing.T) {
	env, app := setup(t)
	admin := env.CreateUser(t, user.RoleAdmin, "Paola", "Neri")
	token := login(t, app, admin)

	runHTTPTests(t, app, []httpTest{
		{name: "users", path: "/v1/users", token: token, wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "settings", path: "/v1/settings", token: token, wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "own profile", path: "/v1/users/" + admin.ID, token: token, wantCode: http.StatusOK},
	})
}
