package payment_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imusici/accademia/core"
	"github.com/imusici/accademia/core/auth"
	"github.com/imusici/accademia/core/payment"
	"github.com/imusici/accademia/core/user"
	testutil "github.com/imusici/accademia/tests"
)

func intPtr(i int) *int { return &i }

func setup(t *testing.T) (*testutil.Env, auth.Principal, user.User) {
	env := testutil.Setup(t)
	admin := env.CreateUser(t, user.RoleAdmin, "Anna", "Bianchi")
	student := env.CreateUser(t, user.RoleStudent, "Giulia", "Verdi")
	return env, testutil.Principal(admin, true), student
}

func TestService_Sweep(t *testing.T) {
	tests := []struct {
		name      string
		tolerance int
		now       time.Time
		want      payment.Status
	}{
		{name: "on the due day", tolerance: 0, now: time.Date(2024, 3, 7, 23, 59, 59, 0, time.UTC), want: payment.StatusPending},
		{name: "day after due, no tolerance", tolerance: 0, now: time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), want: payment.StatusOverdue},
		{name: "day after due, tolerance 3", tolerance: 3, now: time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), want: payment.StatusPending},
		{name: "last tolerance day", tolerance: 3, now: time.Date(2024, 3, 10, 23, 59, 59, 0, time.UTC), want: payment.StatusPending},
		{name: "after the tolerance", tolerance: 3, now: time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), want: payment.StatusOverdue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, admin, student := setup(t)
			ctx := context.Background()
			env.Clock.Set(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))

			p, err := env.Payments.Create(ctx, admin, payment.NewPayment{
				UserID:        student.ID,
				Type:          payment.TypeMonthly,
				Amount:        150,
				Description:   "Monthly fee March",
				DueDate:       "2024-03-07",
				ToleranceDays: intPtr(tt.tolerance),
			})
			require.NoError(t, err)

			env.Clock.Set(tt.now)
			res, err := env.Payments.Sweep(ctx)
			require.NoError(t, err)
			got, err := env.PaymentRepo.GetPayment(ctx, p.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Status)

			wantUpdated := 0
			if tt.want == payment.StatusOverdue {
				wantUpdated = 1
			}
			assert.Equal(t, wantUpdated, res.Updated)

			res, err = env.Payments.Sweep(ctx)
			require.NoError(t, err)
			assert.Zero(t, res.Updated, "a second sweep is a no-op")
		})
	}
}

func TestService_MarkPaid(t *testing.T) {
	env, admin, student := setup(t)
	ctx := context.Background()

	newPayment := func() payment.Payment {
		p, err := env.Payments.Create(ctx, admin, payment.NewPayment{
			UserID:      student.ID,
			Type:        payment.TypeTeacherCompensation,
			Amount:      80,
			Description: "one-off",
			DueDate:     "2024-03-07",
		})
		require.NoError(t, err)
		return p
	}

	t.Run("pending to paid", func(t *testing.T) {
		p := newPayment()
		paid, err := env.Payments.MarkPaid(ctx, admin, p.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusPaid, paid.Status)
		require.NotNil(t, paid.PaidAt)
		assert.Equal(t, env.Clock.Now(), *paid.PaidAt)

		_, err = env.Payments.MarkPaid(ctx, admin, p.ID)
		assert.Equal(t, payment.ErrInvalidTransition, err)
	})

	t.Run("overdue to paid", func(t *testing.T) {
		p := newPayment()
		env.Clock.Set(time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC))
		_, err := env.Payments.Sweep(ctx)
		require.NoError(t, err)

		paid, err := env.Payments.MarkPaid(ctx, admin, p.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusPaid, paid.Status)
	})

	t.Run("no transition back to pending", func(t *testing.T) {
		p := newPayment()
		_, err := env.Payments.MarkPaid(ctx, admin, p.ID)
		require.NoError(t, err)

		pending := payment.StatusPending
		_, err = env.Payments.Update(ctx, admin, p.ID, payment.UpdatePayment{Status: &pending})
		assert.Equal(t, payment.ErrInvalidTransition, err)
	})

	t.Run("update to paid goes through MarkPaid", func(t *testing.T) {
		p := newPayment()
		paid := payment.StatusPaid
		got, err := env.Payments.Update(ctx, admin, p.ID, payment.UpdatePayment{Status: &paid})
		require.NoError(t, err)
		assert.Equal(t, payment.StatusPaid, got.Status)
		assert.NotNil(t, got.PaidAt)
	})

	t.Run("unknown payment", func(t *testing.T) {
		_, err := env.Payments.MarkPaid(ctx, admin, "missing")
		assert.Equal(t, payment.ErrNotFound, err)
	})

	t.Run("admin only", func(t *testing.T) {
		p := newPayment()
		_, err := env.Payments.MarkPaid(ctx, testutil.Principal(student, false), p.ID)
		assert.Equal(t, core.ErrForbidden, err)
	})
}

func TestService_GenerateMonthly(t *testing.T) {
	env, admin, student := setup(t)
	ctx := context.Background()
	other := env.CreateUser(t, user.RoleStudent, "Luca", "Russo")
	inactive := env.CreateUser(t, user.RoleStudent, "Sara", "Conti")
	env.CreateUser(t, user.RoleTeacher, "Marco", "Neri")
	off := false
	_, err := env.Users.Update(ctx, inactive.ID, user.UpdateUser{IsActive: &off})
	require.NoError(t, err)

	_, err = env.Payments.UpdateSettings(ctx, admin, payment.UpdateSettings{DueDay: intPtr(7)})
	require.NoError(t, err)

	res, err := env.Payments.GenerateMonthly(ctx, payment.MonthlyRequest{Month: "2024-02"})
	require.NoError(t, err)
	assert.Equal(t, payment.MonthlyResult{Period: "2024-02", Created: 2}, res)

	res, err = env.Payments.GenerateMonthly(ctx, payment.MonthlyRequest{Month: "2024-02", Description: "Custom"})
	require.NoError(t, err)
	assert.Equal(t, payment.MonthlyResult{Period: "2024-02", Skipped: 2}, res, "at most one monthly payment per student and period")

	payments, err := env.Payments.Query(ctx, admin, payment.QueryFilter{Type: payment.TypeMonthly})
	require.NoError(t, err)
	require.Len(t, payments, 2)
	for _, p := range payments {
		assert.Contains(t, []string{student.ID, other.ID}, p.UserID)
		assert.Equal(t, "Monthly fee 2024-02", p.Description)
		assert.Equal(t, time.Date(2024, 2, 7, 23, 59, 59, 0, time.UTC), p.DueDate)
		assert.Equal(t, 150.0, p.Amount)
		assert.Equal(t, payment.StatusPending, p.Status)
	}

	t.Run("a manual monthly payment occupies its period", func(t *testing.T) {
		_, err := env.Payments.Create(ctx, admin, payment.NewPayment{
			UserID:      student.ID,
			Type:        payment.TypeMonthly,
			Amount:      120,
			Description: "March, discounted",
			DueDate:     "2024-03-05",
		})
		require.NoError(t, err)

		amount := 140.0
		res, err := env.Payments.GenerateMonthly(ctx, payment.MonthlyRequest{Month: "2024-03", Amount: &amount})
		require.NoError(t, err)
		assert.Equal(t, payment.MonthlyResult{Period: "2024-03", Created: 1, Skipped: 1}, res)
	})

	t.Run("due day comes from the settings", func(t *testing.T) {
		_, err := env.Payments.UpdateSettings(ctx, admin, payment.UpdateSettings{DueDay: intPtr(28)})
		require.NoError(t, err)
		_, err = env.Payments.GenerateMonthly(ctx, payment.MonthlyRequest{Month: "2023-02"})
		require.NoError(t, err)
		payments, err := env.Payments.Query(ctx, admin, payment.QueryFilter{Period: "2023-02"})
		require.NoError(t, err)
		require.NotEmpty(t, payments)
		assert.Equal(t, time.Date(2023, 2, 28, 23, 59, 59, 0, time.UTC), payments[0].DueDate)
	})

	t.Run("invalid month", func(t *testing.T) {
		_, err := env.Payments.GenerateMonthly(ctx, payment.MonthlyRequest{Month: "2024-13"})
		assert.Equal(t, core.KindInvalidInput, core.KindOf(err))
	})
}

func TestService_Create_validation(t *testing.T) {
	env, admin, student := setup(t)
	ctx := context.Background()

	tests := []struct {
		name string
		np   payment.NewPayment
	}{
		{name: "missing user", np: payment.NewPayment{UserID: "nobody", Type: payment.TypeMonthly, Amount: 1, Description: "x", DueDate: "2024-03-07"}},
		{name: "bad due date", np: payment.NewPayment{UserID: student.ID, Type: payment.TypeMonthly, Amount: 1, Description: "x", DueDate: "07/03/2024"}},
		{name: "annual without window", np: payment.NewPayment{UserID: student.ID, Type: payment.TypeAnnual, Amount: 1, Description: "x", DueDate: "2024-03-07"}},
		{name: "window on monthly", np: payment.NewPayment{UserID: student.ID, Type: payment.TypeMonthly, Amount: 1, Description: "x", DueDate: "2024-03-07", ValidFrom: "2024-01-01", ValidTo: "2024-12-31"}},
		{name: "zero amount", np: payment.NewPayment{UserID: student.ID, Type: payment.TypeMonthly, Description: "x", DueDate: "2024-03-07"}},
		{name: "unknown type", np: payment.NewPayment{UserID: student.ID, Type: "weekly", Amount: 1, Description: "x", DueDate: "2024-03-07"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Payments.Create(ctx, admin, tt.np)
			assert.Equal(t, core.KindInvalidInput, core.KindOf(err), "%v", err)
		})
	}
}

func TestService_visibility(t *testing.T) {
	env, admin, student := setup(t)
	ctx := context.Background()
	other := env.CreateUser(t, user.RoleStudent, "Luca", "Russo")
	hidden := false

	visible, err := env.Payments.Create(ctx, admin, payment.NewPayment{
		UserID: student.ID, Type: payment.TypeMonthly, Amount: 150, Description: "March", DueDate: "2024-03-07",
	})
	require.NoError(t, err)
	invisible, err := env.Payments.Create(ctx, admin, payment.NewPayment{
		UserID: student.ID, Type: payment.TypeTeacherCompensation, Amount: 10, Description: "internal", DueDate: "2024-03-07",
		VisibleToUser: &hidden,
	})
	require.NoError(t, err)

	owner := testutil.Principal(student, false)
	payments, err := env.Payments.Query(ctx, owner, payment.QueryFilter{UserID: other.ID})
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, visible.ID, payments[0].ID)

	_, err = env.Payments.Get(ctx, owner, invisible.ID)
	assert.Equal(t, payment.ErrNotFound, err)
	_, err = env.Payments.Get(ctx, testutil.Principal(other, false), visible.ID)
	assert.Equal(t, payment.ErrNotFound, err)

	all, err := env.Payments.Query(ctx, admin, payment.QueryFilter{UserID: student.ID})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestService_ExpiringAnnual(t *testing.T) {
	env, admin, student := setup(t)
	ctx := context.Background()
	env.Clock.Set(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))

	create := func(validTo string) payment.Payment {
		p, err := env.Payments.Create(ctx, admin, payment.NewPayment{
			UserID: student.ID, Type: payment.TypeAnnual, Amount: 50, Description: "Enrollment " + validTo,
			DueDate: "2024-01-15", ValidFrom: "2023-09-01", ValidTo: validTo,
		})
		require.NoError(t, err)
		return p
	}
	soon := create("2024-06-20")
	create("2024-09-30")
	unpaid := create("2024-06-10")

	_, err := env.Payments.MarkPaid(ctx, admin, soon.ID)
	require.NoError(t, err)

	expiring, err := env.Payments.ExpiringAnnual(ctx, intPtr(30))
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, soon.ID, expiring[0].ID)
	assert.NotEqual(t, unpaid.ID, expiring[0].ID)

	_, err = env.Payments.ExpiringAnnual(ctx, intPtr(-1))
	assert.Equal(t, core.KindInvalidInput, core.KindOf(err))

	res, err := env.Payments.SendRenewalReminders(ctx, intPtr(30))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Recipients)
	sent := env.Mail.SentMessages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].TextContent, "expires on 2024-06-20")
}

func TestService_SendReminders(t *testing.T) {
	env, admin, student := setup(t)
	ctx := context.Background()
	other := env.CreateUser(t, user.RoleStudent, "Luca", "Russo")

	for _, usr := range []user.User{student, student, other} {
		_, err := env.Payments.Create(ctx, admin, payment.NewPayment{
			UserID: usr.ID, Type: payment.TypeTeacherCompensation, Amount: 20, Description: "lesson pack", DueDate: "2024-03-07",
		})
		require.NoError(t, err)
	}
	off := false
	_, err := env.Users.Update(ctx, other.ID, user.UpdateUser{IsActive: &off})
	require.NoError(t, err)

	res, err := env.Payments.SendReminders(ctx, payment.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, payment.ReminderResult{Status: payment.StatusPending, Recipients: 1}, res)

	sent := env.Mail.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, student.Email, sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "you have 2 pending payment(s)")

	_, err = env.Payments.SendReminders(ctx, payment.StatusPaid)
	assert.Equal(t, core.KindInvalidInput, core.KindOf(err))
}

func TestPayment_IsOverdueAt(t *testing.T) {
	p := payment.Payment{
		Status:        payment.StatusPending,
		DueDate:       time.Date(2024, 3, 7, 23, 59, 59, 0, time.UTC),
		ToleranceDays: 3,
	}
	assert.Equal(t, time.Date(2024, 3, 10, 23, 59, 59, 0, time.UTC), p.OverdueAfter())
	assert.False(t, p.IsOverdueAt(p.OverdueAfter()))
	assert.True(t, p.IsOverdueAt(p.OverdueAfter().Add(time.Second)))

	p.Status = payment.StatusPaid
	assert.False(t, p.IsOverdueAt(p.OverdueAfter().Add(time.Hour)), "only pending payments become overdue")
}
