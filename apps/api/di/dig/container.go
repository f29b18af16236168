package dig_container

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/imusici/accademia/apps/api/echo"
	"github.com/imusici/accademia/apps/api/jobs"
	"github.com/imusici/accademia/core"
	"github.com/imusici/accademia/core/attendance"
	"github.com/imusici/accademia/core/auth"
	"github.com/imusici/accademia/core/compensation"
	"github.com/imusici/accademia/core/credential"
	"github.com/imusici/accademia/core/payment"
	"github.com/imusici/accademia/core/user"
	emailsvc "github.com/imusici/accademia/services/email"
	identitysvc "github.com/imusici/accademia/services/identity"
	logsvc "github.com/imusici/accademia/services/logger"
	"github.com/imusici/accademia/storage/cache"
	"github.com/imusici/accademia/storage/database"
	inmemdb "github.com/imusici/accademia/storage/database/inmem"
	sqlxrepos "github.com/imusici/accademia/storage/database/sqlx"
)

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// ClosersParam collects every resource to release on shutdown.
	ClosersParam struct {
		dig.In
		Closers []io.Closer `group:"closers"`
	}

	stores struct {
		dig.Out
		Users      user.Repository
		Sessions   auth.SessionRepository
		Payments   payment.Repository
		Attendance attendance.Repository
		Rates      compensation.RateRepository
		Closer     io.Closer `group:"closers"`
	}

	challengeStore struct {
		dig.Out
		Store  auth.ChallengeStore
		Closer io.Closer `group:"closers"`
	}

	serverParams struct {
		dig.In
		Conf         *core.Config
		Logger       core.Logger
		Validate     *validator.Validate
		Translator   ut.Translator
		Users        *user.Service
		Auth         *auth.Service
		Payments     *payment.Service
		Attendance   *attendance.Service
		Compensation *compensation.Service
		Jobs         *jobs.Runner
	}
)

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

// newStores opens the in-memory store in DEV, postgres otherwise.
func newStores(conf *core.Config, loggerParam DBLoggerParam) (stores, error) {
	logger := loggerParam.Logger
	if conf.Database.InMemory {
		logger.Warn("using the in-memory store: data is lost on restart")
		db := inmemdb.Open()
		return stores{
			Users:      inmemdb.NewUserRepository(db),
			Sessions:   inmemdb.NewSessionRepository(db),
			Payments:   inmemdb.NewPaymentRepository(db),
			Attendance: inmemdb.NewAttendanceRepository(db),
			Rates:      inmemdb.NewRateRepository(db),
			Closer:     db,
		}, nil
	}

	if err := database.CreateIfNotExist(conf); err != nil {
		return stores{}, errors.Wrap(err, "setting up database")
	}
	db, err := database.Open(conf)
	if err != nil {
		return stores{}, err
	}
	if err = database.Migrate(db.DB, "up"); err != nil {
		_ = db.Close()
		return stores{}, err
	}
	logger.Info(fmt.Sprintf("database ready at %s/%s", conf.Database.Address(), conf.Database.Name))

	return stores{
		Users:      sqlxrepos.NewUserRepository(db),
		Sessions:   sqlxrepos.NewSessionRepository(db),
		Payments:   sqlxrepos.NewPaymentRepository(db),
		Attendance: sqlxrepos.NewAttendanceRepository(db),
		Rates:      sqlxrepos.NewRateRepository(db),
		Closer:     db,
	}, nil
}

// newChallengeStore keeps second factor challenges in redis when configured, so they survive
// restarts and are shared between instances.
func newChallengeStore(conf *core.Config) (challengeStore, error) {
	if conf.Redis.Addr == "" {
		return challengeStore{Store: cache.NewMemoryChallengeStore(), Closer: nopCloser{}}, nil
	}
	client, err := cache.OpenRedis(context.Background(), conf.Redis)
	if err != nil {
		return challengeStore{}, err
	}
	return challengeStore{Store: cache.NewRedisChallengeStore(client), Closer: client}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func newCredentials(conf *core.Config) credential.Store {
	return credential.NewBcryptStore(conf.Auth.PasswordHashCost)
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug || conf.Email.SendgridAPIKey == "" {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newPaymentService(
	repo payment.Repository,
	users user.Repository,
	mailSvc core.EmailService,
	validate *validator.Validate,
	translator ut.Translator,
	conf *core.Config,
	logger core.Logger,
) *payment.Service {
	return payment.NewService(repo, users, mailSvc, validate, translator, conf, logger)
}

func newAttendanceService(repo attendance.Repository, users user.Repository, validate *validator.Validate, translator ut.Translator) *attendance.Service {
	return attendance.NewService(repo, users, validate, translator)
}

func newCompensationService(
	rates compensation.RateRepository,
	ledger *attendance.Service,
	payouts *payment.Service,
	users user.Repository,
	validate *validator.Validate,
	translator ut.Translator,
	conf *core.Config,
) *compensation.Service {
	return compensation.NewService(rates, ledger, payouts, users, validate, translator, conf)
}

func newServerOptions(p serverParams) *echoapi.Options {
	return &echoapi.Options{
		Conf:         p.Conf,
		Logger:       p.Logger,
		Validate:     p.Validate,
		Translator:   p.Translator,
		Users:        p.Users,
		Auth:         p.Auth,
		Payments:     p.Payments,
		Attendance:   p.Attendance,
		Compensation: p.Compensation,
		Jobs:         p.Jobs,
	}
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newValidator))
	must(c.Provide(newStores))
	must(c.Provide(newChallengeStore))
	must(c.Provide(newCredentials))
	must(c.Provide(identitysvc.NewProvider))
	must(c.Provide(newEmailService))
	must(c.Provide(user.NewService))
	must(c.Provide(auth.NewService))
	must(c.Provide(newPaymentService))
	must(c.Provide(newAttendanceService))
	must(c.Provide(newCompensationService))
	must(c.Provide(jobs.NewRunner))
	must(c.Provide(newServerOptions))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
