package testutil

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/imusici/accademia/core"
	"github.com/imusici/accademia/core/attendance"
	"github.com/imusici/accademia/core/auth"
	"github.com/imusici/accademia/core/compensation"
	"github.com/imusici/accademia/core/credential"
	"github.com/imusici/accademia/core/payment"
	"github.com/imusici/accademia/core/user"
	emailsvc "github.com/imusici/accademia/services/email"
	"github.com/imusici/accademia/storage/cache"
	inmemdb "github.com/imusici/accademia/storage/database/inmem"
)

const Password = "Secret#123"

type NopLogger struct{}

var _ core.Logger = NopLogger{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
func (NopLogger) Fatal(string, ...interface{}) {}

// IdentityProvider is an in-process auth.IdentityProvider keyed by handle.
type IdentityProvider struct {
	mu         sync.Mutex
	identities map[string]auth.Identity
	Down       bool
}

var _ auth.IdentityProvider = (*IdentityProvider)(nil)

func NewIdentityProvider() *IdentityProvider {
	return &IdentityProvider{identities: make(map[string]auth.Identity)}
}

func (p *IdentityProvider) Add(handle, email, sub string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.identities[handle] = auth.Identity{Email: email, Subject: sub}
}

func (p *IdentityProvider) Resolve(_ context.Context, handle string) (auth.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Down {
		return auth.Identity{}, auth.ErrIdentityUnavailable
	}
	ident, ok := p.identities[handle]
	if !ok {
		return auth.Identity{}, auth.ErrInvalidExternalSession
	}
	return ident, nil
}

// Clock is a settable clock shared by the services of an Env.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

func (c *Clock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Env wires every core service on the in-memory store.
type Env struct {
	Conf       *core.Config
	DB         *inmemdb.DB
	Validate   *validator.Validate
	Translator ut.Translator
	Creds      credential.Store
	Logger     core.Logger
	Mail       *emailsvc.ConsoleServiceMock
	Challenges *cache.MemoryChallengeStore
	IdP        *IdentityProvider
	Clock      *Clock

	UserRepo       user.Repository
	SessionRepo    auth.SessionRepository
	PaymentRepo    payment.Repository
	AttendanceRepo attendance.Repository
	RateRepo       compensation.RateRepository

	Users        *user.Service
	Auth         *auth.Service
	Payments     *payment.Service
	Attendance   *attendance.Service
	Compensation *compensation.Service
}

func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

func Setup(t *testing.T) *Env {
	t.Helper()

	conf := core.NewTestConfig()
	validate, translator := NewValidator()
	db := inmemdb.Open()
	t.Cleanup(func() { _ = db.Close() })

	env := &Env{
		Conf:           conf,
		DB:             db,
		Validate:       validate,
		Translator:     translator,
		Creds:          credential.NewBcryptStore(conf.Auth.PasswordHashCost),
		Logger:         NopLogger{},
		Challenges:     cache.NewMemoryChallengeStore(),
		IdP:            NewIdentityProvider(),
		Clock:          &Clock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
		UserRepo:       inmemdb.NewUserRepository(db),
		SessionRepo:    inmemdb.NewSessionRepository(db),
		PaymentRepo:    inmemdb.NewPaymentRepository(db),
		AttendanceRepo: inmemdb.NewAttendanceRepository(db),
		RateRepo:       inmemdb.NewRateRepository(db),
	}
	env.Mail = emailsvc.NewConsoleServiceMock(conf, env.Logger)
	env.Challenges.Now = env.Clock.Now

	env.Users = user.NewService(env.UserRepo, env.Creds, validate, translator, conf, env.Logger)
	env.Users.Now = env.Clock.Now
	env.Auth = auth.NewService(env.UserRepo, env.SessionRepo, env.Creds, env.IdP, env.Challenges, conf, env.Logger)
	env.Auth.Now = env.Clock.Now
	env.Payments = payment.NewService(env.PaymentRepo, env.UserRepo, env.Mail, validate, translator, conf, env.Logger)
	env.Payments.Now = env.Clock.Now
	env.Attendance = attendance.NewService(env.AttendanceRepo, env.UserRepo, validate, translator)
	env.Attendance.Now = env.Clock.Now
	env.Compensation = compensation.NewService(env.RateRepo, env.Attendance, env.Payments, env.UserRepo, validate, translator, conf)
	env.Compensation.Now = env.Clock.Now
	return env
}

// CreateUser creates an active user with the shared test Password.
func (env *Env) CreateUser(t *testing.T, role user.Role, firstName, lastName string) user.User {
	t.Helper()
	email := strings.ToLower(firstName+"."+lastName) + "@scuola.it"
	usr, err := env.Users.Create(context.Background(), user.NewUser{
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
		Password:  Password,
		Role:      role,
	})
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// Principal builds a principal without going through a login.
func Principal(usr user.User, elevated bool) auth.Principal {
	return auth.Principal{User: usr, Session: auth.Session{UserID: usr.ID, Elevated: elevated}}
}

// AdminLogin runs the two-step login for an admin still using the default PIN.
func (env *Env) AdminLogin(t *testing.T, admin user.User) auth.LoginResult {
	t.Helper()
	ctx := context.Background()
	pending, err := env.Auth.BeginAdminLogin(ctx, admin.Email, env.Conf.Auth.DefaultAdminPIN)
	if err != nil {
		t.Fatalf("BeginAdminLogin() failed: %v", err)
	}
	handle := "handle-" + admin.ID
	env.IdP.Add(handle, admin.Email, "sub-"+admin.ID)
	res, err := env.Auth.CompleteAdminLogin(ctx, admin.Email, pending.Token, handle, auth.Meta{})
	if err != nil {
		t.Fatalf("CompleteAdminLogin() failed: %v", err)
	}
	return res
}
