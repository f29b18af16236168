package compensation

import (
	"context"
	"fmt"
	"sort"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/imusici/accademia/core"
	"github.com/imusici/accademia/core/attendance"
	"github.com/imusici/accademia/core/auth"
	"github.com/imusici/accademia/core/payment"
	"github.com/imusici/accademia/core/user"
)

var (
	// errors
	ErrRateNotFound = core.NewError(core.KindNotFound, "compensation rate not found")
)

// Rate is the amount paid to a teacher per payable lesson unit.
// An empty CourseID makes it the teacher-wide rate.
type Rate struct {
	ID        string    `json:"id"`
	TeacherID string    `json:"teacher_id"`
	CourseID  string    `json:"course_id,omitempty"`
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type PutRate struct {
	TeacherID string  `json:"teacher_id" validate:"required"`
	CourseID  string  `json:"course_id"`
	Amount    float64 `json:"amount" validate:"gt=0"`
}

// Request selects the attendance window of a calculation. Dates are inclusive.
type Request struct {
	From     string `query:"from" json:"from" validate:"required,date"`
	To       string `query:"to" json:"to" validate:"required,date"`
	CourseID string `query:"course_id" json:"course_id"`
}

type RateRepository interface {
	// PutRate inserts or replaces the rate of the (teacher, course) pair.
	PutRate(ctx context.Context, r Rate) (Rate, error)
	// GetRate returns the rate of the exact (teacher, course) pair.
	GetRate(ctx context.Context, teacherID, courseID string) (Rate, error)
	GetRateByID(ctx context.Context, id string) (Rate, error)
	QueryRates(ctx context.Context, teacherID string) ([]Rate, error)
	DeleteRate(ctx context.Context, id string) error
}

// Ledger reads a teacher's attendance records.
type Ledger interface {
	ForTeacher(ctx context.Context, teacherID, courseID string, from, to time.Time) ([]attendance.Attendance, error)
}

// Payouts records a compensation as a payment.
type Payouts interface {
	Create(ctx context.Context, actor auth.Principal, np payment.NewPayment) (payment.Payment, error)
}

type Directory interface {
	GetUser(ctx context.Context, id string) (user.User, error)
}

type Service struct {
	rates       RateRepository
	ledger      Ledger
	payouts     Payouts
	users       Directory
	validate    *validator.Validate
	translator  ut.Translator
	defaultRate float64

	Now func() time.Time // mockable
}

func NewService(
	rates RateRepository,
	ledger Ledger,
	payouts Payouts,
	users Directory,
	validate *validator.Validate,
	translator ut.Translator,
	conf *core.Config,
) *Service {
	return &Service{
		rates:       rates,
		ledger:      ledger,
		payouts:     payouts,
		users:       users,
		validate:    validate,
		translator:  translator,
		defaultRate: conf.Compensation.DefaultRate,
		Now:         time.Now,
	}
}

// ResolveRate picks the (teacher, course) rate, then the teacher-wide rate, then the most
// recently updated rate of the teacher for any course, then the default.
func (svc *Service) ResolveRate(ctx context.Context, teacherID, courseID string) (float64, error) {
	candidates := []string{""}
	if courseID != "" {
		candidates = []string{courseID, ""}
	}
	for _, c := range candidates {
		r, err := svc.rates.GetRate(ctx, teacherID, c)
		if err == nil {
			return r.Amount, nil
		}
		if errors.Cause(err) != ErrRateNotFound {
			return 0, errors.Wrap(err, "finding rate")
		}
	}

	rates, err := svc.rates.QueryRates(ctx, teacherID)
	if err != nil {
		return 0, errors.Wrap(err, "querying rates")
	}
	var latest *Rate
	for i := range rates {
		if latest == nil || rates[i].UpdatedAt.After(latest.UpdatedAt) {
			latest = &rates[i]
		}
	}
	if latest != nil {
		return latest.Amount, nil
	}
	return svc.defaultRate, nil
}

// price computes the summary of records. Without a course filter every course is priced
// at its own rate and the parts are merged.
func (svc *Service) price(ctx context.Context, teacherID, courseID string, records []attendance.Attendance) (Summary, error) {
	if courseID != "" || len(records) == 0 {
		rate, err := svc.ResolveRate(ctx, teacherID, courseID)
		if err != nil {
			return Summary{}, err
		}
		return Compute(records, rate), nil
	}

	var courses []string
	byCourse := make(map[string][]attendance.Attendance)
	for _, a := range records {
		if _, ok := byCourse[a.CourseID]; !ok {
			courses = append(courses, a.CourseID)
		}
		byCourse[a.CourseID] = append(byCourse[a.CourseID], a)
	}
	sort.Strings(courses)

	parts := make([]Summary, 0, len(courses))
	for _, c := range courses {
		rate, err := svc.ResolveRate(ctx, teacherID, c)
		if err != nil {
			return Summary{}, err
		}
		part := Compute(byCourse[c], rate)
		part.TeacherID = teacherID
		part.CourseID = c
		parts = append(parts, part)
	}
	return Merge(parts), nil
}

// Calculate computes the compensation of a teacher over a date window.
// Teachers may only calculate their own; administrators anyone's.
func (svc *Service) Calculate(ctx context.Context, actor auth.Principal, teacherID string, req Request) (Summary, error) {
	if err := actor.RequireTeacherOrAdmin(); err != nil {
		return Summary{}, err
	}
	if !actor.IsAdmin() && actor.ID() != teacherID {
		return Summary{}, core.ErrForbidden
	}
	if err := svc.validate.Struct(req); err != nil {
		return Summary{}, core.TranslateValidationErrors(err, svc.translator)
	}
	from, err := core.ParseDate("from", req.From)
	if err != nil {
		return Summary{}, err
	}
	to, err := core.ParseDate("to", req.To)
	if err != nil {
		return Summary{}, err
	}
	if to.Before(from) {
		return Summary{}, core.NewFieldError("to", "must not be before from")
	}

	teacher, err := svc.users.GetUser(ctx, teacherID)
	if err != nil {
		return Summary{}, err
	}
	if !teacher.IsTeacher() {
		return Summary{}, core.NewFieldError("teacher_id", "user is not a teacher")
	}

	records, err := svc.ledger.ForTeacher(ctx, teacherID, req.CourseID, from, to)
	if err != nil {
		return Summary{}, errors.Wrap(err, "querying attendance")
	}
	s, err := svc.price(ctx, teacherID, req.CourseID, records)
	if err != nil {
		return Summary{}, err
	}
	s.TeacherID = teacherID
	s.CourseID = req.CourseID
	s.From, s.To = from, to
	for i := range s.Courses {
		s.Courses[i].From, s.Courses[i].To = from, to
	}
	return s, nil
}

// Payout calculates a teacher's compensation and records it as a teacher_compensation payment.
func (svc *Service) Payout(ctx context.Context, actor auth.Principal, teacherID string, req Request) (payment.Payment, Summary, error) {
	if err := actor.RequireAdmin(); err != nil {
		return payment.Payment{}, Summary{}, err
	}
	s, err := svc.Calculate(ctx, actor, teacherID, req)
	if err != nil {
		return payment.Payment{}, Summary{}, err
	}
	if s.Total <= 0 {
		return payment.Payment{}, s, core.NewFieldError("to", "nothing to pay in this period")
	}

	visible := true
	p, err := svc.payouts.Create(ctx, actor, payment.NewPayment{
		UserID: teacherID,
		Type:   payment.TypeTeacherCompensation,
		Amount: s.Total,
		Description: fmt.Sprintf("Compensation %s to %s: %d lessons x %.2f",
			req.From, req.To, s.PayableUnits, s.Rate),
		DueDate:       svc.Now().UTC().Format(core.DateLayout),
		VisibleToUser: &visible,
	})
	if err != nil {
		return payment.Payment{}, s, errors.Wrap(err, "creating compensation payment")
	}
	return p, s, nil
}

// PutRate sets the rate of a (teacher, course) pair. Administrators only.
func (svc *Service) PutRate(ctx context.Context, actor auth.Principal, pr PutRate) (Rate, error) {
	if err := actor.RequireAdmin(); err != nil {
		return Rate{}, err
	}
	pr.TeacherID = core.CleanString(pr.TeacherID)
	pr.CourseID = core.CleanString(pr.CourseID)
	if err := svc.validate.Struct(pr); err != nil {
		return Rate{}, core.TranslateValidationErrors(err, svc.translator)
	}
	teacher, err := svc.users.GetUser(ctx, pr.TeacherID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return Rate{}, core.NewFieldError("teacher_id", "teacher not found")
		}
		return Rate{}, err
	}
	if !teacher.IsTeacher() {
		return Rate{}, core.NewFieldError("teacher_id", "user is not a teacher")
	}

	now := svc.Now().UTC()
	return svc.rates.PutRate(ctx, Rate{
		ID:        uuid.NewString(),
		TeacherID: pr.TeacherID,
		CourseID:  pr.CourseID,
		Amount:    pr.Amount,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// ListRates returns the rates of a teacher (all rates when teacherID is empty).
// Teachers only see their own.
func (svc *Service) ListRates(ctx context.Context, actor auth.Principal, teacherID string) ([]Rate, error) {
	if err := actor.RequireTeacherOrAdmin(); err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		teacherID = actor.ID()
	}
	return svc.rates.QueryRates(ctx, teacherID)
}

func (svc *Service) DeleteRate(ctx context.Context, actor auth.Principal, id string) error {
	if err := actor.RequireAdmin(); err != nil {
		return err
	}
	if _, err := svc.rates.GetRateByID(ctx, id); err != nil {
		return err
	}
	return svc.rates.DeleteRate(ctx, id)
}
