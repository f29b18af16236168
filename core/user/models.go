package user

import (
	"net/mail"
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/imusici/accademia/core"
)

type Role string

// Roles
const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

var AllRoles = []Role{RoleAdmin, RoleTeacher, RoleStudent}

func (r Role) Valid() bool {
	for _, role := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Instruments taught at the school.
var Instruments = []string{"piano", "voice", "percussion", "violin", "guitar", "electric_guitar"}

// User is the core record shared by every role. Role specific data lives in the detail records.
type User struct {
	ID           string     `json:"id"`
	Role         Role       `json:"role"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Email        string     `json:"email"`
	PasswordHash []byte     `json:"-"`
	IsActive     bool       `json:"is_active"`
	FirstLogin   bool       `json:"first_login"`
	AdminNotes   string     `json:"admin_notes,omitempty"`
	CreatedAt    time.Time  `json:"created_at"` // UTC
	UpdatedAt    time.Time  `json:"updated_at"` // UTC
	LastAccess   *time.Time `json:"last_access,omitempty"`
}

func (u User) IsAdmin() bool   { return u.Role == RoleAdmin }
func (u User) IsTeacher() bool { return u.Role == RoleTeacher }
func (u User) IsStudent() bool { return u.Role == RoleStudent }

func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u User) Address() mail.Address {
	return mail.Address{Name: u.FullName(), Address: u.Email}
}

// StudentDetail is the side record of a Student.
type StudentDetail struct {
	UserID     string    `json:"user_id"`
	Phone      string    `json:"phone,omitempty"`
	BirthDate  string    `json:"birth_date,omitempty"`
	Instrument string    `json:"instrument,omitempty"`
	TeacherID  string    `json:"teacher_id,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TeacherDetail is the side record of a Teacher.
type TeacherDetail struct {
	UserID         string    `json:"user_id"`
	Phone          string    `json:"phone,omitempty"`
	Specialization string    `json:"specialization,omitempty"`
	Bio            string    `json:"bio,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// AdminAccess holds the second factor configuration of an Admin.
// ExternalSubject stays empty until the first successful identity confirmation.
type AdminAccess struct {
	UserID          string     `json:"user_id"`
	PINHash         []byte     `json:"-"`
	PINEnabled      bool       `json:"pin_enabled"`
	ExternalSubject string     `json:"external_subject,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	LastAccess      *time.Time `json:"last_access,omitempty"`
}

// Profile is the redacted view of a User returned to clients.
type Profile struct {
	User
	StudentDetail *StudentDetail `json:"student_detail,omitempty"`
	TeacherDetail *TeacherDetail `json:"teacher_detail,omitempty"`
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	FirstName  string `json:"first_name" validate:"required"`
	LastName   string `json:"last_name" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	Role       Role   `json:"role" validate:"required,oneof=admin teacher student"`
	AdminNotes string `json:"admin_notes"`
}

func (nu *NewUser) Clean() {
	nu.FirstName = core.CleanString(nu.FirstName)
	nu.LastName = core.CleanString(nu.LastName)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.AdminNotes = core.CleanString(nu.AdminNotes)
}

func (nu *NewUser) Validate(validate *validator.Validate, translator ut.Translator) error {
	nu.Clean()
	return core.TranslateValidationErrors(validate.Struct(nu), translator)
}

// UpdateUser defines what information may be provided to modify an existing User.
// The role is fixed at creation.
type UpdateUser struct {
	FirstName  string  `json:"first_name"`
	LastName   string  `json:"last_name"`
	Email      string  `json:"email" validate:"omitempty,email"`
	Password   string  `json:"password"`
	IsActive   *bool   `json:"is_active"`
	AdminNotes *string `json:"admin_notes"`
}

func (uu *UpdateUser) Validate(origUsr User, validate *validator.Validate, translator ut.Translator) error {
	if name := core.CleanString(uu.FirstName); name != "" {
		uu.FirstName = name
	} else {
		uu.FirstName = origUsr.FirstName
	}
	if name := core.CleanString(uu.LastName); name != "" {
		uu.LastName = name
	} else {
		uu.LastName = origUsr.LastName
	}
	if email := core.CleanString(uu.Email, true /* lower */); email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}
	return core.TranslateValidationErrors(validate.Struct(uu), translator)
}

type SaveStudentDetail struct {
	Phone      string `json:"phone"`
	BirthDate  string `json:"birth_date" validate:"omitempty,date"`
	Instrument string `json:"instrument" validate:"omitempty,instrument"`
	TeacherID  string `json:"teacher_id"`
	Notes      string `json:"notes"`
}

func (sd SaveStudentDetail) Validate(validate *validator.Validate, translator ut.Translator) error {
	return core.TranslateValidationErrors(validate.Struct(sd), translator)
}

type SaveTeacherDetail struct {
	Phone          string `json:"phone"`
	Specialization string `json:"specialization" validate:"omitempty,instrument"`
	Bio            string `json:"bio"`
	Notes          string `json:"notes"`
}

func (td SaveTeacherDetail) Validate(validate *validator.Validate, translator ut.Translator) error {
	return core.TranslateValidationErrors(validate.Struct(td), translator)
}

type QueryFilter struct {
	Search   string `query:"search"`
	Role     Role   `query:"role"`
	IsActive *bool  `query:"is_active"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search, true /* lower */)
	qf.Role = Role(core.CleanString(string(qf.Role), true /* lower */))
}

// Match reports whether usr satisfies every set field of the filter.
// Search is a case-insensitive match on names or email.
func (qf QueryFilter) Match(usr User) bool {
	if qf.Role != "" && usr.Role != qf.Role {
		return false
	}
	if qf.IsActive != nil && usr.IsActive != *qf.IsActive {
		return false
	}
	if qf.Search != "" {
		hay := strings.ToLower(usr.FirstName + " " + usr.LastName + " " + usr.Email)
		if !strings.Contains(hay, strings.ToLower(qf.Search)) {
			return false
		}
	}
	return true
}
