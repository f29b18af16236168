package echoapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imusici/accademia/core/payment"
	"github.com/imusici/accademia/core/user"
)

func Test_adminApi_settings(t *testing.T) {
	env, app := setup(t)
	admin := env.CreateUser(t, user.RoleAdmin, "Paola", "Neri")
	token := adminToken(t, env, admin)

	runHTTPTests(t, app, []httpTest{
		{
			name: "defaults", path: "/v1/settings", token: token, wantCode: http.StatusOK,
			wantData: marchallObj(t, payment.DefaultSettings(env.Conf.Payment)),
		},
		{
			name: "due day out of range", method: http.MethodPut, path: "/v1/settings", token: token,
			body: []byte(`{"due_day": 31}`), wantCode: http.StatusBadRequest,
		},
	})

	req, rec := newAuthRequest(http.MethodPut, "/v1/settings", token, []byte(`{"due_day": 10, "tolerance_days": 3}`))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var st payment.Settings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 10, st.DueDay)
	assert.Equal(t, 3, st.ToleranceDays)
	assert.Equal(t, 150.0, st.DefaultMonthlyFee)

	runHTTPTests(t, app, []httpTest{
		{name: "persisted", path: "/v1/settings", token: token, wantCode: http.StatusOK, wantData: rec.Body.Bytes()},
	})
}

func Test_adminApi_stats(t *testing.T) {
	env, app := setup(t)
	admin := env.CreateUser(t, user.RoleAdmin, "Paola", "Neri")
	env.CreateUser(t, user.RoleTeacher, "Luca", "Bianchi")
	student := env.CreateUser(t, user.RoleStudent, "Anna", "Verdi")
	env.CreateUser(t, user.RoleStudent, "Gino", "Gialli")
	token := adminToken(t, env, admin)

	createPayment(t, env, admin, payment.NewPayment{
		UserID: student.ID, Type: payment.TypeMonthly, Amount: 150, Description: "Monthly fee 2024-03", DueDate: "2024-03-07",
	})

	want := StatsResponse{
		Users:    map[user.Role]int{user.RoleAdmin: 1, user.RoleTeacher: 1, user.RoleStudent: 2},
		Payments: map[payment.Status]int{payment.StatusPending: 1, payment.StatusPaid: 0, payment.StatusOverdue: 0},
	}
	runHTTPTests(t, app, []httpTest{
		{name: "stats", path: "/v1/stats", token: token, wantCode: http.StatusOK, wantData: marchallObj(t, want)},
	})
}

func Test_adminApi_automation(t *testing.T) {
	env, app := setup(t)
	admin := env.CreateUser(t, user.RoleAdmin, "Paola", "Neri")
	student := env.CreateUser(t, user.RoleStudent, "Anna", "Verdi")
	token := adminToken(t, env, admin)
	studentToken := login(t, app, student)

	createPayment(t, env, admin, payment.NewPayment{
		UserID: student.ID, Type: payment.TypeMonthly, Amount: 150, Description: "Monthly fee 2024-02", DueDate: "2024-02-07",
	})

	runHTTPTests(t, app, []httpTest{
		{
			name: "admin only", method: http.MethodPost, path: "/v1/automation/overdue-sweep", token: studentToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "monthly (current month)", method: http.MethodPost, path: "/v1/automation/monthly-payments", token: token,
			wantCode: http.StatusOK, wantData: marchallObj(t, payment.MonthlyResult{Period: "2024-03", Created: 1}),
		},
		{
			name: "monthly again", method: http.MethodPost, path: "/v1/automation/monthly-payments", token: token,
			body:     marchallObj(t, payment.MonthlyRequest{Month: "2024-03"}),
			wantCode: http.StatusOK, wantData: marchallObj(t, payment.MonthlyResult{Period: "2024-03", Skipped: 1}),
		},
		{
			name: "monthly (invalid month)", method: http.MethodPost, path: "/v1/automation/monthly-payments", token: token,
			body: []byte(`{"month": "2024-13"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "sweep", method: http.MethodPost, path: "/v1/automation/overdue-sweep", token: token,
			wantCode: http.StatusOK, wantData: marchallObj(t, payment.SweepResult{Checked: 1, Updated: 1}),
		},
		{
			name: "overdue reminders", method: http.MethodPost, path: "/v1/automation/reminders", token: token,
			body:     marchallObj(t, ReminderRequest{Kind: "overdue"}),
			wantCode: http.StatusOK, wantData: marchallObj(t, payment.ReminderResult{Status: payment.StatusOverdue, Recipients: 1}),
		},
		{
			name: "renewal reminders", method: http.MethodPost, path: "/v1/automation/reminders", token: token,
			body:     marchallObj(t, ReminderRequest{Kind: "renewal"}),
			wantCode: http.StatusOK, wantData: marchallObj(t, payment.ReminderResult{}),
		},
		{
			name: "unknown reminder kind", method: http.MethodPost, path: "/v1/automation/reminders", token: token,
			body: []byte(`{"kind": "paid"}`), wantCode: http.StatusBadRequest,
		},
		{name: "expiring annual", path: "/v1/automation/expiring-annual?days=60", token: token, wantCode: http.StatusOK, wantData: marchallList(t)},
		{
			name: "expiring annual (bad days)", path: "/v1/automation/expiring-annual?days=soon", token: token,
			wantCode: http.StatusBadRequest, wantData: []byte(`{"days": "must be an integer"}`),
		},
		{
			name: "expiring annual (negative days)", path: "/v1/automation/expiring-annual?days=-1", token: token,
			wantCode: http.StatusBadRequest, wantData: []byte(`{"days": "must not be negative"}`),
		},
		{
			name: "session cleanup", method: http.MethodPost, path: "/v1/automation/session-cleanup", token: token,
			wantCode: http.StatusOK, wantData: marchallObj(t, CleanupResponse{Deleted: 0}),
		},
	})
}
