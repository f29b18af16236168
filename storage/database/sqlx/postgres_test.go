package sqlxrepos_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imusici/accademia/core"
	"github.com/imusici/accademia/core/auth"
	"github.com/imusici/accademia/core/credential"
	"github.com/imusici/accademia/core/payment"
	"github.com/imusici/accademia/core/user"
	emailsvc "github.com/imusici/accademia/services/email"
	"github.com/imusici/accademia/storage/cache"
	"github.com/imusici/accademia/storage/database"
	sqlxrepos "github.com/imusici/accademia/storage/database/sqlx"
	testutil "github.com/imusici/accademia/tests"
)

type pgEnv struct {
	clock    *testutil.Clock
	idp      *testutil.IdentityProvider
	sessions auth.SessionRepository
	payRepo  payment.Repository
	users    *user.Service
	auth     *auth.Service
	payments *payment.Service
}

// setupPostgres runs against the database named by DATABASE_URL, which is reset first.
// Never point it at a database holding real data.
func setupPostgres(t *testing.T) pgEnv {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	db, err := sqlx.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(db.DB, "reset"))
	require.NoError(t, database.Migrate(db.DB, "up"))
	t.Cleanup(func() { _ = database.Migrate(db.DB, "reset") })

	conf := core.NewTestConfig()
	validate, translator := testutil.NewValidator()
	logger := testutil.NopLogger{}
	creds := credential.NewBcryptStore(conf.Auth.PasswordHashCost)
	clock := &testutil.Clock{}
	clock.Set(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	challenges := cache.NewMemoryChallengeStore()
	challenges.Now = clock.Now

	userRepo := sqlxrepos.NewUserRepository(db)
	env := pgEnv{
		clock:    clock,
		idp:      testutil.NewIdentityProvider(),
		sessions: sqlxrepos.NewSessionRepository(db),
		payRepo:  sqlxrepos.NewPaymentRepository(db),
	}
	env.users = user.NewService(userRepo, creds, validate, translator, conf, logger)
	env.users.Now = clock.Now
	env.auth = auth.NewService(userRepo, env.sessions, creds, env.idp, challenges, conf, logger)
	env.auth.Now = clock.Now
	env.payments = payment.NewService(env.payRepo, userRepo, emailsvc.NewConsoleServiceMock(conf, logger), validate, translator, conf, logger)
	env.payments.Now = clock.Now
	return env
}

func (env pgEnv) createUser(t *testing.T, role user.Role, first, last string) user.User {
	t.Helper()
	usr, err := env.users.Create(context.Background(), user.NewUser{
		FirstName: first,
		LastName:  last,
		Email:     first + "." + last + "@scuola.it",
		Password:  testutil.Password,
		Role:      role,
	})
	require.NoError(t, err)
	return usr
}

func TestPostgres_sessions(t *testing.T) {
	env := setupPostgres(t)
	ctx := context.Background()
	student := env.createUser(t, user.RoleStudent, "giulia", "verdi")
	admin := env.createUser(t, user.RoleAdmin, "anna", "bianchi")

	res, err := env.auth.Login(ctx, student.Email, testutil.Password, auth.Meta{Device: "phone", IP: "10.0.0.1"})
	require.NoError(t, err)
	p, err := env.auth.Authenticate(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, student.ID, p.ID())
	assert.True(t, res.ExpiresAt.Equal(p.Session.ExpiresAt))

	t.Run("elevated admin session", func(t *testing.T) {
		pending, err := env.auth.BeginAdminLogin(ctx, admin.Email, "1234")
		require.NoError(t, err)
		env.idp.Add("anna", admin.Email, "g-anna")
		res, err := env.auth.CompleteAdminLogin(ctx, admin.Email, pending.Token, "anna", auth.Meta{})
		require.NoError(t, err)
		p, err := env.auth.Authenticate(ctx, res.Token)
		require.NoError(t, err)
		assert.True(t, p.IsAdmin())
	})

	t.Run("logout and expiry", func(t *testing.T) {
		n, err := env.auth.Logout(ctx, res.Token)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		_, err = env.auth.Authenticate(ctx, res.Token)
		assert.Equal(t, core.ErrUnauthenticated, err)

		env.clock.Add(8 * 24 * time.Hour)
		n, err = env.auth.CleanupExpiredSessions(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "the admin session")
	})
}

func TestPostgres_payments(t *testing.T) {
	env := setupPostgres(t)
	ctx := context.Background()
	student := env.createUser(t, user.RoleStudent, "giulia", "verdi")
	admin := testutil.Principal(env.createUser(t, user.RoleAdmin, "anna", "bianchi"), true)

	p, err := env.payments.Create(ctx, admin, payment.NewPayment{
		UserID:      student.ID,
		Type:        payment.TypeMonthly,
		Amount:      150,
		Description: "Monthly fee February",
		Period:      "2024-02",
		DueDate:     "2024-02-07",
	})
	require.NoError(t, err)

	t.Run("sweep then mark paid", func(t *testing.T) {
		res, err := env.payments.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, payment.SweepResult{Checked: 1, Updated: 1}, res)
		res, err = env.payments.Sweep(ctx)
		require.NoError(t, err)
		assert.Zero(t, res.Updated)

		paid, err := env.payments.MarkPaid(ctx, admin, p.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusPaid, paid.Status)
		require.NotNil(t, paid.PaidAt)

		_, err = env.payments.MarkPaid(ctx, admin, p.ID)
		assert.Equal(t, payment.ErrInvalidTransition, err)
	})

	t.Run("monthly generation is idempotent", func(t *testing.T) {
		req := payment.MonthlyRequest{Month: "2024-03"}
		res, err := env.payments.GenerateMonthly(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, payment.MonthlyResult{Period: "2024-03", Created: 1}, res)

		res, err = env.payments.GenerateMonthly(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, payment.MonthlyResult{Period: "2024-03", Skipped: 1}, res)

		_, err = env.payments.Create(ctx, admin, payment.NewPayment{
			UserID: student.ID, Type: payment.TypeMonthly, Amount: 150,
			Description: "Duplicate", Period: "2024-03", DueDate: "2024-03-07",
		})
		assert.Equal(t, core.KindConflict, core.KindOf(err))
	})

	t.Run("settings upsert", func(t *testing.T) {
		day := 10
		_, err := env.payments.UpdateSettings(ctx, admin, payment.UpdateSettings{DueDay: &day})
		require.NoError(t, err)
		fee := 180.0
		_, err = env.payments.UpdateSettings(ctx, admin, payment.UpdateSettings{DefaultMonthlyFee: &fee})
		require.NoError(t, err)

		s, err := env.payments.Settings(ctx)
		require.NoError(t, err)
		assert.Equal(t, 10, s.DueDay)
		assert.Equal(t, 180.0, s.DefaultMonthlyFee)
	})
}
