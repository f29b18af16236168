package attendance

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/imusici/accademia/core"
)

type Status string

const (
	StatusPresent   Status = "present"
	StatusAbsent    Status = "absent"
	StatusJustified Status = "justified"
)

// Attendance is one lesson occurrence of a student, recorded by its teacher.
// MakeupDate is only set on Justified records.
type Attendance struct {
	ID         string     `json:"id"`
	CourseID   string     `json:"course_id,omitempty"`
	LessonID   string     `json:"lesson_id,omitempty"`
	StudentID  string     `json:"student_id"`
	TeacherID  string     `json:"teacher_id"`
	Date       time.Time  `json:"date"` // midnight UTC
	Status     Status     `json:"status"`
	MakeupDate *time.Time `json:"makeup_date,omitempty"`
	Note       string     `json:"note,omitempty"`
	CreatedBy  string     `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// HasMakeup reports whether the record is a justified absence with a scheduled makeup lesson.
func (a Attendance) HasMakeup() bool {
	return a.Status == StatusJustified && a.MakeupDate != nil
}

type NewAttendance struct {
	CourseID   string `json:"course_id"`
	LessonID   string `json:"lesson_id"`
	StudentID  string `json:"student_id" validate:"required"`
	TeacherID  string `json:"teacher_id"` // ignored for teachers: they record their own lessons
	Date       string `json:"date" validate:"required,date"`
	Status     Status `json:"status" validate:"required,oneof=present absent justified"`
	MakeupDate string `json:"makeup_date" validate:"omitempty,date"`
	Note       string `json:"note"`
}

func (na *NewAttendance) Validate(validate *validator.Validate, translator ut.Translator) error {
	na.StudentID = core.CleanString(na.StudentID)
	na.TeacherID = core.CleanString(na.TeacherID)
	na.Note = core.CleanString(na.Note)
	if err := validate.Struct(na); err != nil {
		return core.TranslateValidationErrors(err, translator)
	}
	if na.MakeupDate != "" && na.Status != StatusJustified {
		return core.NewFieldError("makeup_date", "a makeup date is only allowed on justified absences")
	}
	return nil
}

// UpdateAttendance holds the fields an administrator may change. An empty MakeupDate clears it.
type UpdateAttendance struct {
	Status     *Status `json:"status" validate:"omitempty,oneof=present absent justified"`
	MakeupDate *string `json:"makeup_date" validate:"omitempty,date"`
	Note       *string `json:"note"`
}

func (ua UpdateAttendance) Validate(validate *validator.Validate, translator ut.Translator) error {
	return core.TranslateValidationErrors(validate.Struct(ua), translator)
}

// QueryFilter is bound from request query parameters.
type QueryFilter struct {
	StudentID string `query:"student_id"`
	TeacherID string `query:"teacher_id"`
	CourseID  string `query:"course_id"`
	From      string `query:"from" validate:"omitempty,date"`
	To        string `query:"to" validate:"omitempty,date"`
}

// Filter is the store filter. Zero dates are unbounded; bounds are inclusive.
type Filter struct {
	StudentID string
	TeacherID string
	CourseID  string
	From      time.Time
	To        time.Time
	Status    Status
}

func (f Filter) Match(a Attendance) bool {
	if f.StudentID != "" && a.StudentID != f.StudentID {
		return false
	}
	if f.TeacherID != "" && a.TeacherID != f.TeacherID {
		return false
	}
	if f.CourseID != "" && a.CourseID != f.CourseID {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && a.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && a.Date.After(f.To) {
		return false
	}
	return true
}
