package attendance

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
	ErrNotFound = core.NewError(core.KindNotFound, "attendance not found")
)

type Repository interface {
	CreateAttendance(ctx context.Context, a Attendance) error
	GetAttendance(ctx context.Context, id string) (Attendance, error)
	UpdateAttendance(ctx context.Context, a Attendance) error
	DeleteAttendance(ctx context.Context, id string) error
	QueryAttendance(ctx context.Context, f Filter) ([]Attendance, error)
	CountAttendance(ctx context.Context, f Filter) (int, error)
}

// Directory looks up the users referenced by attendance records.
type Directory interface {
	GetUser(ctx context.Context, id string) (user.User, error)
}

type Service struct {
	repo       Repository
	users      Directory
	validate   *validator.Validate
	translator ut.Translator

	Now func() time.Time // mockable
}

func NewService(repo Repository, users Directory, validate *validator.Validate, translator ut.Translator) *Service {
	return &Service{
		repo:       repo,
		users:      users,
		validate:   validate,
		translator: translator,
		Now:        time.Now,
	}
}

// Create records a lesson occurrence. Teachers record their own lessons; administrators
// must name the teacher.
func (svc *Service) Create(ctx context.Context, actor auth.Principal, na NewAttendance) (Attendance, error) {
	if err := actor.RequireTeacherOrAdmin(); err != nil {
		return Attendance{}, err
	}
	if err := na.Validate(svc.validate, svc.translator); err != nil {
		return Attendance{}, err
	}

	teacherID := na.TeacherID
	if !actor.IsAdmin() {
		teacherID = actor.ID()
	}
	if teacherID == "" {
		return Attendance{}, core.NewFieldError("teacher_id", "this field is required")
	}
	if err := svc.checkRole(ctx, "teacher_id", teacherID, user.RoleTeacher); err != nil {
		return Attendance{}, err
	}
	if err := svc.checkRole(ctx, "student_id", na.StudentID, user.RoleStudent); err != nil {
		return Attendance{}, err
	}

	date, err := core.ParseDate("date", na.Date)
	if err != nil {
		return Attendance{}, err
	}
	var makeup *time.Time
	if na.MakeupDate != "" {
		md, err := core.ParseDate("makeup_date", na.MakeupDate)
		if err != nil {
			return Attendance{}, err
		}
		makeup = &md
	}

	now := svc.Now().UTC()
	a := Attendance{
		ID:         uuid.NewString(),
		CourseID:   core.CleanString(na.CourseID),
		LessonID:   core.CleanString(na.LessonID),
		StudentID:  na.StudentID,
		TeacherID:  teacherID,
		Date:       date,
		Status:     na.Status,
		MakeupDate: makeup,
		Note:       na.Note,
		CreatedBy:  actor.ID(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := svc.repo.CreateAttendance(ctx, a); err != nil {
		return Attendance{}, errors.Wrap(err, "creating attendance")
	}
	return a, nil
}

func (svc *Service) checkRole(ctx context.Context, field, id string, role user.Role) error {
	usr, err := svc.users.GetUser(ctx, id)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return core.NewFieldError(field, string(role)+" not found")
		}
		return errors.Wrap(err, "finding "+string(role))
	}
	if usr.Role != role {
		return core.NewFieldError(field, "user is not a "+string(role))
	}
	return nil
}

// Get returns a record visible to the actor.
func (svc *Service) Get(ctx context.Context, actor auth.Principal, id string) (Attendance, error) {
	a, err := svc.repo.GetAttendance(ctx, id)
	if err != nil {
		return Attendance{}, err
	}
	if !actor.IsAdmin() && a.TeacherID != actor.ID() && a.StudentID != actor.ID() {
		return Attendance{}, core.ErrForbidden
	}
	return a, nil
}

// Update changes a submitted record. Only administrators may alter a record after creation,
// including the teacher who submitted it.
func (svc *Service) Update(ctx context.Context, actor auth.Principal, id string, ua UpdateAttendance) (Attendance, error) {
	a, err := svc.repo.GetAttendance(ctx, id)
	if err != nil {
		return Attendance{}, err
	}
	if err := actor.RequireAdmin(); err != nil {
		return Attendance{}, err
	}
	if err := ua.Validate(svc.validate, svc.translator); err != nil {
		return Attendance{}, err
	}

	if ua.Status != nil {
		a.Status = *ua.Status
	}
	if ua.Note != nil {
		a.Note = core.CleanString(*ua.Note)
	}
	if ua.MakeupDate != nil {
		if *ua.MakeupDate == "" {
			a.MakeupDate = nil
		} else {
			md, err := core.ParseDate("makeup_date", *ua.MakeupDate)
			if err != nil {
				return Attendance{}, err
			}
			a.MakeupDate = &md
		}
	}
	if a.Status != StatusJustified {
		if ua.MakeupDate != nil && a.MakeupDate != nil {
			return Attendance{}, core.NewFieldError("makeup_date", "a makeup date is only allowed on justified absences")
		}
		a.MakeupDate = nil
	}

	a.UpdatedAt = svc.Now().UTC()
	if err := svc.repo.UpdateAttendance(ctx, a); err != nil {
		return Attendance{}, errors.Wrap(err, "updating attendance")
	}
	return a, nil
}

// Delete removes a record. Administrators only.
func (svc *Service) Delete(ctx context.Context, actor auth.Principal, id string) error {
	if _, err := svc.repo.GetAttendance(ctx, id); err != nil {
		return err
	}
	if err := actor.RequireAdmin(); err != nil {
		return err
	}
	return svc.repo.DeleteAttendance(ctx, id)
}

// Query lists records scoped to the actor: students see their own, teachers their lessons,
// administrators everything.
func (svc *Service) Query(ctx context.Context, actor auth.Principal, qf QueryFilter) ([]Attendance, error) {
	if err := svc.validate.Struct(qf); err != nil {
		return nil, core.TranslateValidationErrors(err, svc.translator)
	}
	f := Filter{StudentID: qf.StudentID, TeacherID: qf.TeacherID, CourseID: qf.CourseID}
	if qf.From != "" {
		f.From, _ = core.ParseDate("from", qf.From)
	}
	if qf.To != "" {
		f.To, _ = core.ParseDate("to", qf.To)
	}

	switch {
	case actor.IsAdmin():
	case actor.IsTeacher():
		f.TeacherID = actor.ID()
	default:
		f.StudentID = actor.ID()
	}
	return svc.repo.QueryAttendance(ctx, f)
}

func (svc *Service) Count(ctx context.Context, f Filter) (int, error) {
	return svc.repo.CountAttendance(ctx, f)
}

// ForTeacher returns every record of a teacher between from and to (inclusive), optionally for one course.
func (svc *Service) ForTeacher(ctx context.Context, teacherID, courseID string, from, to time.Time) ([]Attendance, error) {
	return svc.repo.QueryAttendance(ctx, Filter{TeacherID: teacherID, CourseID: courseID, From: from, To: to})
}
