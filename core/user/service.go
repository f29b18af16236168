package user

import (
	"context"
	"strconv"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/imusici/accademia/core"
	"github.com/imusici/accademia/core/credential"
)

var (
	// errors
	ErrNotFound            = core.NewError(core.KindNotFound, "user not found")
	ErrEmailExists         = core.NewError(core.KindConflict, "a user with this email already exists")
	ErrAdminAccessNotFound = core.NewError(core.KindNotFound, "admin access not configured")
	ErrDetailNotFound      = core.NewError(core.KindNotFound, "detail record not found")
	ErrNotAdmin            = core.NewError(core.KindInvalidInput, "user is not an administrator")
	ErrWrongRole           = core.NewError(core.KindInvalidInput, "detail record does not match the user's role")
)

type Repository interface {
	CreateUser(ctx context.Context, usr User) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	// GetUserByEmail expects a lowered email.
	GetUserByEmail(ctx context.Context, email string) (User, error)
	// QueryUsers applies AND operation on available QueryFilter fields.
	QueryUsers(ctx context.Context, filter QueryFilter) ([]User, error)
	CountUsers(ctx context.Context, filter QueryFilter) (int, error)
	UpdateUser(ctx context.Context, usr User) (User, error)
	TouchUser(ctx context.Context, id string, at time.Time) error
	// DeleteUser also removes the user's sessions, admin access and detail records.
	DeleteUser(ctx context.Context, id string) error

	GetAdminAccess(ctx context.Context, userID string) (AdminAccess, error)
	SaveAdminAccess(ctx context.Context, acc AdminAccess) error

	GetStudentDetail(ctx context.Context, userID string) (StudentDetail, error)
	SaveStudentDetail(ctx context.Context, detail StudentDetail) error
	GetTeacherDetail(ctx context.Context, userID string) (TeacherDetail, error)
	SaveTeacherDetail(ctx context.Context, detail TeacherDetail) error
}

type Service struct {
	repo       Repository
	creds      credential.Store
	validate   *validator.Validate
	translator ut.Translator
	conf       core.AuthConfig
	logger     core.Logger

	Now func() time.Time // mockable
}

func NewService(
	repo Repository,
	creds credential.Store,
	validate *validator.Validate,
	translator ut.Translator,
	conf *core.Config,
	logger core.Logger,
) *Service {
	return &Service{
		repo:       repo,
		creds:      creds,
		validate:   validate,
		translator: translator,
		conf:       conf.Auth,
		logger:     logger,
		Now:        time.Now,
	}
}

func (svc *Service) now() time.Time {
	return svc.Now().UTC()
}

// Create validates and stores a new User.
// Admins get an AdminAccess with the configured default PIN, which must be rotated.
func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	if err := nu.Validate(svc.validate, svc.translator); err != nil {
		return User{}, err
	}

	hash, err := svc.creds.Hash(nu.Password)
	if err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	now := svc.now()
	usr, err := svc.repo.CreateUser(ctx, User{
		ID:           uuid.NewString(),
		Role:         nu.Role,
		FirstName:    nu.FirstName,
		LastName:     nu.LastName,
		Email:        nu.Email,
		PasswordHash: hash,
		IsActive:     true,
		FirstLogin:   true,
		AdminNotes:   nu.AdminNotes,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return User{}, errors.Wrap(err, "creating user")
	}

	if usr.IsAdmin() {
		if err := svc.setPIN(ctx, usr.ID, svc.conf.DefaultAdminPIN); err != nil {
			return User{}, errors.Wrap(err, "creating admin access")
		}
		svc.logger.Warn("admin created with the default PIN; rotate it before production use", usr)
	}
	return usr, nil
}

func (svc *Service) Get(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

// Profile loads the user with its role specific detail record.
func (svc *Service) Profile(ctx context.Context, id string) (Profile, error) {
	usr, err := svc.repo.GetUser(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	return LoadProfile(ctx, svc.repo, usr)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]User, error) {
	filter.Clean()
	return svc.repo.QueryUsers(ctx, filter)
}

func (svc *Service) Count(ctx context.Context, filter QueryFilter) (int, error) {
	return svc.repo.CountUsers(ctx, filter)
}

func (svc *Service) Update(ctx context.Context, id string, uu UpdateUser) (User, error) {
	usr, err := svc.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	if err := uu.Validate(usr, svc.validate, svc.translator); err != nil {
		return User{}, err
	}

	usr.FirstName = uu.FirstName
	usr.LastName = uu.LastName
	usr.Email = uu.Email
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.AdminNotes != nil {
		usr.AdminNotes = core.CleanString(*uu.AdminNotes)
	}
	if uu.Password != "" {
		if usr.PasswordHash, err = svc.creds.Hash(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "hashing password")
		}
	}
	usr.UpdatedAt = svc.now()
	return svc.repo.UpdateUser(ctx, usr)
}

// SetPassword replaces the password of the user with the given email. Used by the admin CLI.
func (svc *Service) SetPassword(ctx context.Context, email, pwd string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if usr.PasswordHash, err = svc.creds.Hash(pwd); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = svc.now()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return err
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	if _, err := svc.repo.GetUser(ctx, id); err != nil {
		return err
	}
	return svc.repo.DeleteUser(ctx, id)
}

// SetAdminPIN replaces the PIN of an administrator and enables it.
func (svc *Service) SetAdminPIN(ctx context.Context, userID, pin string) error {
	if len(pin) < svc.conf.PINMinLength {
		return core.NewFieldError("pin", "PIN must contain at least "+strconv.Itoa(svc.conf.PINMinLength)+" characters")
	}
	usr, err := svc.repo.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if !usr.IsAdmin() {
		return ErrNotAdmin
	}
	return svc.setPIN(ctx, usr.ID, pin)
}

func (svc *Service) setPIN(ctx context.Context, userID, pin string) error {
	hash, err := svc.creds.Hash(pin)
	if err != nil {
		return errors.Wrap(err, "hashing PIN")
	}
	acc, err := svc.repo.GetAdminAccess(ctx, userID)
	if err != nil {
		if errors.Cause(err) != ErrAdminAccessNotFound {
			return err
		}
		acc = AdminAccess{UserID: userID, CreatedAt: svc.now()}
	}
	acc.PINHash = hash
	acc.PINEnabled = true
	return svc.repo.SaveAdminAccess(ctx, acc)
}

func (svc *Service) SaveStudentDetail(ctx context.Context, userID string, data SaveStudentDetail) (StudentDetail, error) {
	if err := data.Validate(svc.validate, svc.translator); err != nil {
		return StudentDetail{}, err
	}
	usr, err := svc.repo.GetUser(ctx, userID)
	if err != nil {
		return StudentDetail{}, err
	}
	if !usr.IsStudent() {
		return StudentDetail{}, ErrWrongRole
	}
	if data.TeacherID != "" {
		teacher, err := svc.repo.GetUser(ctx, data.TeacherID)
		if err != nil {
			if errors.Cause(err) == ErrNotFound {
				return StudentDetail{}, core.NewFieldError("teacher_id", "teacher not found")
			}
			return StudentDetail{}, err
		}
		if !teacher.IsTeacher() {
			return StudentDetail{}, core.NewFieldError("teacher_id", "user is not a teacher")
		}
	}

	detail := StudentDetail{
		UserID:     usr.ID,
		Phone:      core.CleanString(data.Phone),
		BirthDate:  data.BirthDate,
		Instrument: data.Instrument,
		TeacherID:  data.TeacherID,
		Notes:      core.CleanString(data.Notes),
		UpdatedAt:  svc.now(),
	}
	if err := svc.repo.SaveStudentDetail(ctx, detail); err != nil {
		return StudentDetail{}, errors.Wrap(err, "saving student detail")
	}
	return detail, nil
}

func (svc *Service) SaveTeacherDetail(ctx context.Context, userID string, data SaveTeacherDetail) (TeacherDetail, error) {
	if err := data.Validate(svc.validate, svc.translator); err != nil {
		return TeacherDetail{}, err
	}
	usr, err := svc.repo.GetUser(ctx, userID)
	if err != nil {
		return TeacherDetail{}, err
	}
	if !usr.IsTeacher() {
		return TeacherDetail{}, ErrWrongRole
	}

	detail := TeacherDetail{
		UserID:         usr.ID,
		Phone:          core.CleanString(data.Phone),
		Specialization: data.Specialization,
		Bio:            core.CleanString(data.Bio),
		Notes:          core.CleanString(data.Notes),
		UpdatedAt:      svc.now(),
	}
	if err := svc.repo.SaveTeacherDetail(ctx, detail); err != nil {
		return TeacherDetail{}, errors.Wrap(err, "saving teacher detail")
	}
	return detail, nil
}

// LoadProfile attaches the detail record matching the user's role, if any.
func LoadProfile(ctx context.Context, repo Repository, usr User) (Profile, error) {
	prof := Profile{User: usr}
	switch usr.Role {
	case RoleStudent:
		detail, err := repo.GetStudentDetail(ctx, usr.ID)
		if err == nil {
			prof.StudentDetail = &detail
		} else if errors.Cause(err) != ErrDetailNotFound {
			return Profile{}, errors.Wrap(err, "loading student detail")
		}
	case RoleTeacher:
		detail, err := repo.GetTeacherDetail(ctx, usr.ID)
		if err == nil {
			prof.TeacherDetail = &detail
		} else if errors.Cause(err) != ErrDetailNotFound {
			return Profile{}, errors.Wrap(err, "loading teacher detail")
		}
	}
	return prof, nil
}
