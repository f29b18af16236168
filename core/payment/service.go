package payment

import (
	"context"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/imusici/accademia/core"
	"github.com/imusici/accademia/core/auth"
	"github.com/imusici/accademia/core/user"
)

var (
	// errors
	ErrNotFound          = core.NewError(core.KindNotFound, "payment not found")
	ErrInvalidTransition = core.NewError(core.KindConflict, "payment status transition not allowed")
	ErrPeriodExists      = core.NewError(core.KindConflict, "a payment of this type already exists for the user and period")
	ErrSettingsNotFound  = core.NewError(core.KindNotFound, "settings not found")
)

type Repository interface {
	// CreatePayment fails with ErrPeriodExists when a payment with the same (user, type, period)
	// exists and period is not empty.
	CreatePayment(ctx context.Context, p Payment) error
	GetPayment(ctx context.Context, id string) (Payment, error)
	// UpdatePayment saves every field but the status & paid-at, which only move through TransitionPayment.
	UpdatePayment(ctx context.Context, p Payment) error
	DeletePayment(ctx context.Context, id string) error
	QueryPayments(ctx context.Context, f Filter) ([]Payment, error)
	CountPayments(ctx context.Context, f Filter) (int, error)
	// TransitionPayment atomically sets the status of a payment currently in one of `from`.
	// It reports false when the payment was not in one of those states.
	TransitionPayment(ctx context.Context, id string, from []Status, to Status, paidAt *time.Time, at time.Time) (bool, error)

	GetSettings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, s Settings) error
}

// Directory looks up payment holders.
type Directory interface {
	GetUser(ctx context.Context, id string) (user.User, error)
	QueryUsers(ctx context.Context, filter user.QueryFilter) ([]user.User, error)
}

type Service struct {
	repo       Repository
	users      Directory
	mailSvc    core.EmailService
	validate   *validator.Validate
	translator ut.Translator
	conf       core.PaymentConfig
	logger     core.Logger

	Now func() time.Time // mockable
}

func NewService(
	repo Repository,
	users Directory,
	mailSvc core.EmailService,
	validate *validator.Validate,
	translator ut.Translator,
	conf *core.Config,
	logger core.Logger,
) *Service {
	return &Service{
		repo:       repo,
		users:      users,
		mailSvc:    mailSvc,
		validate:   validate,
		translator: translator,
		conf:       conf.Payment,
		logger:     logger,
		Now:        time.Now,
	}
}

func (svc *Service) now() time.Time {
	return svc.Now().UTC()
}

// Settings returns the persisted settings, or the configured defaults when none were saved.
func (svc *Service) Settings(ctx context.Context) (Settings, error) {
	s, err := svc.repo.GetSettings(ctx)
	if err != nil {
		if errors.Cause(err) == ErrSettingsNotFound {
			return DefaultSettings(svc.conf), nil
		}
		return Settings{}, errors.Wrap(err, "getting settings")
	}
	return s, nil
}

func (svc *Service) UpdateSettings(ctx context.Context, actor auth.Principal, us UpdateSettings) (Settings, error) {
	if err := actor.RequireAdmin(); err != nil {
		return Settings{}, err
	}
	if err := svc.validate.Struct(us); err != nil {
		return Settings{}, core.TranslateValidationErrors(err, svc.translator)
	}
	s, err := svc.Settings(ctx)
	if err != nil {
		return Settings{}, err
	}
	if us.DueDay != nil {
		s.DueDay = *us.DueDay
	}
	if us.ToleranceDays != nil {
		s.ToleranceDays = *us.ToleranceDays
	}
	if us.DefaultMonthlyFee != nil {
		s.DefaultMonthlyFee = *us.DefaultMonthlyFee
	}
	if us.AnnualReminderDays != nil {
		s.AnnualReminderDays = *us.AnnualReminderDays
	}
	s.UpdatedAt = svc.now()
	if err := svc.repo.SaveSettings(ctx, s); err != nil {
		return Settings{}, errors.Wrap(err, "saving settings")
	}
	return s, nil
}

// Create stores a payment on behalf of an administrator.
// Due dates are taken at the end of their day; monthly payments default their period to the due month.
func (svc *Service) Create(ctx context.Context, actor auth.Principal, np NewPayment) (Payment, error) {
	if err := actor.RequireAdmin(); err != nil {
		return Payment{}, err
	}
	if err := np.Validate(svc.validate, svc.translator); err != nil {
		return Payment{}, err
	}
	if _, err := svc.users.GetUser(ctx, np.UserID); err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return Payment{}, core.NewFieldError("user_id", "user not found")
		}
		return Payment{}, errors.Wrap(err, "finding user")
	}

	due, err := core.ParseDate("due_date", np.DueDate)
	if err != nil {
		return Payment{}, err
	}
	settings, err := svc.Settings(ctx)
	if err != nil {
		return Payment{}, err
	}

	now := svc.now()
	p := Payment{
		ID:            uuid.NewString(),
		UserID:        np.UserID,
		Type:          np.Type,
		Amount:        np.Amount,
		Description:   np.Description,
		Period:        np.Period,
		DueDate:       core.EndOfDay(due),
		Status:        StatusPending,
		ToleranceDays: settings.ToleranceDays,
		VisibleToUser: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if p.Type == TypeMonthly && p.Period == "" {
		p.Period = due.Format(core.MonthLayout)
	}
	if np.ToleranceDays != nil {
		p.ToleranceDays = *np.ToleranceDays
	}
	if np.VisibleToUser != nil {
		p.VisibleToUser = *np.VisibleToUser
	}
	if np.ValidFrom != "" {
		from, err := core.ParseDate("valid_from", np.ValidFrom)
		if err != nil {
			return Payment{}, err
		}
		to, err := core.ParseDate("valid_to", np.ValidTo)
		if err != nil {
			return Payment{}, err
		}
		to = core.EndOfDay(to)
		p.ValidFrom, p.ValidTo = &from, &to
	}

	if err := svc.repo.CreatePayment(ctx, p); err != nil {
		return Payment{}, errors.Wrap(err, "creating payment")
	}
	return p, nil
}

// Get returns a payment to an administrator or, when visible, to its holder.
func (svc *Service) Get(ctx context.Context, actor auth.Principal, id string) (Payment, error) {
	p, err := svc.repo.GetPayment(ctx, id)
	if err != nil {
		return Payment{}, err
	}
	if actor.IsAdmin() {
		return p, nil
	}
	if p.UserID != actor.ID() || !p.VisibleToUser {
		return Payment{}, ErrNotFound
	}
	return p, nil
}

// Query lists payments. Non administrators only see their own visible payments.
func (svc *Service) Query(ctx context.Context, actor auth.Principal, qf QueryFilter) ([]Payment, error) {
	f := Filter{UserID: qf.UserID, Type: qf.Type, Status: qf.Status, Period: qf.Period}
	if !actor.IsAdmin() {
		f.UserID = actor.ID()
		f.VisibleOnly = true
	}
	return svc.repo.QueryPayments(ctx, f)
}

func (svc *Service) Count(ctx context.Context, f Filter) (int, error) {
	return svc.repo.CountPayments(ctx, f)
}

// Update changes the editable fields of a payment. A status change is only allowed towards paid.
func (svc *Service) Update(ctx context.Context, actor auth.Principal, id string, up UpdatePayment) (Payment, error) {
	if err := actor.RequireAdmin(); err != nil {
		return Payment{}, err
	}
	if err := up.Validate(svc.validate, svc.translator); err != nil {
		return Payment{}, err
	}
	p, err := svc.repo.GetPayment(ctx, id)
	if err != nil {
		return Payment{}, err
	}
	if up.Status != nil && *up.Status != p.Status && *up.Status != StatusPaid {
		return Payment{}, ErrInvalidTransition
	}

	if up.Amount != nil {
		p.Amount = *up.Amount
	}
	if up.Description != nil {
		p.Description = core.CleanString(*up.Description)
	}
	if up.DueDate != nil {
		due, err := core.ParseDate("due_date", *up.DueDate)
		if err != nil {
			return Payment{}, err
		}
		p.DueDate = core.EndOfDay(due)
	}
	if up.ToleranceDays != nil {
		p.ToleranceDays = *up.ToleranceDays
	}
	if up.VisibleToUser != nil {
		p.VisibleToUser = *up.VisibleToUser
	}
	p.UpdatedAt = svc.now()
	if err := svc.repo.UpdatePayment(ctx, p); err != nil {
		return Payment{}, errors.Wrap(err, "updating payment")
	}

	if up.Status != nil && *up.Status == StatusPaid && p.Status != StatusPaid {
		return svc.MarkPaid(ctx, actor, id)
	}
	return p, nil
}

func (svc *Service) Delete(ctx context.Context, actor auth.Principal, id string) error {
	if err := actor.RequireAdmin(); err != nil {
		return err
	}
	if _, err := svc.repo.GetPayment(ctx, id); err != nil {
		return err
	}
	return svc.repo.DeletePayment(ctx, id)
}

// MarkPaid moves a Pending or Overdue payment to Paid and records when.
func (svc *Service) MarkPaid(ctx context.Context, actor auth.Principal, id string) (Payment, error) {
	if err := actor.RequireAdmin(); err != nil {
		return Payment{}, err
	}
	now := svc.now()
	ok, err := svc.repo.TransitionPayment(ctx, id, []Status{StatusPending, StatusOverdue}, StatusPaid, &now, now)
	if err != nil {
		return Payment{}, errors.Wrap(err, "marking payment as paid")
	}
	if !ok {
		if _, err := svc.repo.GetPayment(ctx, id); err != nil {
			return Payment{}, err
		}
		return Payment{}, ErrInvalidTransition
	}
	return svc.repo.GetPayment(ctx, id)
}

// Sweep moves every Pending payment whose due date plus tolerance has elapsed to Overdue.
// It is idempotent; a failure returns the transitions applied so far along with the error.
func (svc *Service) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := svc.now()

	pending, err := svc.repo.QueryPayments(ctx, Filter{Status: StatusPending, DueBefore: now})
	if err != nil {
		return res, errors.Wrap(err, "querying pending payments")
	}
	for _, p := range pending {
		res.Checked++
		if !p.IsOverdueAt(now) {
			continue
		}
		ok, err := svc.repo.TransitionPayment(ctx, p.ID, []Status{StatusPending}, StatusOverdue, nil, now)
		if err != nil {
			return res, errors.Wrapf(err, "marking payment %s as overdue", p.ID)
		}
		if ok {
			res.Updated++
		}
	}
	return res, nil
}

// GenerateMonthly creates one monthly payment per active student for the requested month.
// The (user, monthly, period) key makes repeated or concurrent runs create each payment once.
func (svc *Service) GenerateMonthly(ctx context.Context, req MonthlyRequest) (MonthlyResult, error) {
	if err := svc.validate.Struct(req); err != nil {
		return MonthlyResult{}, core.TranslateValidationErrors(err, svc.translator)
	}
	settings, err := svc.Settings(ctx)
	if err != nil {
		return MonthlyResult{}, err
	}

	now := svc.now()
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	if req.Month != "" {
		if month, err = core.ParseMonth("month", req.Month); err != nil {
			return MonthlyResult{}, err
		}
	}
	period := month.Format(core.MonthLayout)
	amount := settings.DefaultMonthlyFee
	if req.Amount != nil {
		amount = *req.Amount
	}
	desc := core.CleanString(req.Description)
	if desc == "" {
		desc = "Monthly fee " + period
	}
	due := core.EndOfDay(month.AddDate(0, 0, dueDay(settings.DueDay, month)-1))

	res := MonthlyResult{Period: period}
	active := true
	students, err := svc.users.QueryUsers(ctx, user.QueryFilter{Role: user.RoleStudent, IsActive: &active})
	if err != nil {
		return res, errors.Wrap(err, "querying active students")
	}
	for _, st := range students {
		err := svc.repo.CreatePayment(ctx, Payment{
			ID:            uuid.NewString(),
			UserID:        st.ID,
			Type:          TypeMonthly,
			Amount:        amount,
			Description:   desc,
			Period:        period,
			DueDate:       due,
			Status:        StatusPending,
			ToleranceDays: settings.ToleranceDays,
			VisibleToUser: true,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		switch {
		case err == nil:
			res.Created++
		case errors.Cause(err) == ErrPeriodExists:
			res.Skipped++
		default:
			return res, errors.Wrapf(err, "creating monthly payment for %s", st.ID)
		}
	}
	return res, nil
}

// dueDay clamps day into month.
func dueDay(day int, month time.Time) int {
	last := month.AddDate(0, 1, -1).Day()
	switch {
	case day < 1:
		return 1
	case day > last:
		return last
	}
	return day
}

// ExpiringAnnual returns the paid annual payments whose validity ends within the next `days` days.
// A nil horizon uses the configured reminder days.
func (svc *Service) ExpiringAnnual(ctx context.Context, days *int) ([]Payment, error) {
	horizon, err := svc.horizon(ctx, days)
	if err != nil {
		return nil, err
	}
	now := svc.now()
	return svc.repo.QueryPayments(ctx, Filter{
		Type:        TypeAnnual,
		Status:      StatusPaid,
		ValidToFrom: now,
		ValidToTill: now.AddDate(0, 0, horizon),
	})
}

func (svc *Service) horizon(ctx context.Context, days *int) (int, error) {
	if days != nil {
		if *days < 0 {
			return 0, core.NewFieldError("days", "must not be negative")
		}
		return *days, nil
	}
	settings, err := svc.Settings(ctx)
	if err != nil {
		return 0, err
	}
	return settings.AnnualReminderDays, nil
}
