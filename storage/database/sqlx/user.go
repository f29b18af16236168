package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/imusici/accademia/core"
	"github.com/imusici/accademia/core/user"
)

const userColumns = `id, role, first_name, last_name, email, password_hash, is_active, first_login,
	admin_notes, created_at, updated_at, last_access`

type userRow struct {
	ID           string      `db:"id"`
	Role         string      `db:"role"`
	FirstName    string      `db:"first_name"`
	LastName     string      `db:"last_name"`
	Email        string      `db:"email"`
	PasswordHash []byte      `db:"password_hash"`
	IsActive     bool        `db:"is_active"`
	FirstLogin   bool        `db:"first_login"`
	AdminNotes   null.String `db:"admin_notes"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
	LastAccess   null.Time   `db:"last_access"`
}

func toUserRow(usr user.User) userRow {
	return userRow{
		ID:           usr.ID,
		Role:         string(usr.Role),
		FirstName:    usr.FirstName,
		LastName:     usr.LastName,
		Email:        usr.Email,
		PasswordHash: usr.PasswordHash,
		IsActive:     usr.IsActive,
		FirstLogin:   usr.FirstLogin,
		AdminNotes:   null.NewString(usr.AdminNotes, usr.AdminNotes != ""),
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastAccess:   null.TimeFromPtr(usr.LastAccess),
	}
}

func (r userRow) user() user.User {
	return user.User{
		ID:           r.ID,
		Role:         user.Role(r.Role),
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		IsActive:     r.IsActive,
		FirstLogin:   r.FirstLogin,
		AdminNotes:   r.AdminNotes.String,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		LastAccess:   utcPtr(r.LastAccess),
	}
}

type adminAccessRow struct {
	UserID          string      `db:"user_id"`
	PINHash         []byte      `db:"pin_hash"`
	PINEnabled      bool        `db:"pin_enabled"`
	ExternalSubject null.String `db:"external_subject"`
	CreatedAt       time.Time   `db:"created_at"`
	LastAccess      null.Time   `db:"last_access"`
}

type studentDetailRow struct {
	UserID     string      `db:"user_id"`
	Phone      null.String `db:"phone"`
	BirthDate  null.String `db:"birth_date"`
	Instrument null.String `db:"instrument"`
	TeacherID  null.String `db:"teacher_id"`
	Notes      null.String `db:"notes"`
	UpdatedAt  time.Time   `db:"updated_at"`
}

type teacherDetailRow struct {
	UserID         string      `db:"user_id"`
	Phone          null.String `db:"phone"`
	Specialization null.String `db:"specialization"`
	Bio            null.String `db:"bio"`
	Notes          null.String `db:"notes"`
	UpdatedAt      time.Time   `db:"updated_at"`
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

func utcPtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

type userRepository struct {
	exec core.DBExecutor
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(exec core.DBExecutor) user.Repository {
	return &userRepository{exec: exec}
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `INSERT INTO users (` + userColumns + `) VALUES (:id, :role, :first_name, :last_name, :email,
		:password_hash, :is_active, :first_login, :admin_notes, :created_at, :updated_at, :last_access)`
	if _, err := repo.exec.NamedExecContext(ctx, q, toUserRow(usr)); err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) GetUser(ctx context.Context, id string) (user.User, error) {
	if !validID(id) {
		return user.User{}, user.ErrNotFound
	}
	var row userRow
	err := repo.exec.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user by ID")
	}
	return row.user(), nil
}

func (repo userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	var row userRow
	err := repo.exec.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	if err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user by email")
	}
	return row.user(), nil
}

func userWhere(filter user.QueryFilter) where {
	var w where
	if filter.Search != "" {
		w.add(`lower(first_name || ' ' || last_name || ' ' || email) LIKE ?`, "%"+filter.Search+"%")
	}
	if filter.Role != "" {
		w.add("role = ?", string(filter.Role))
	}
	if filter.IsActive != nil {
		w.add("is_active = ?", *filter.IsActive)
	}
	return w
}

func (repo userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter) ([]user.User, error) {
	w := userWhere(filter)
	q := rebind(`SELECT ` + userColumns + ` FROM users` + w.String() +
		core.OrderBy(core.DBOrdering{Field: "created_at"}, core.DBOrdering{Field: "id", Ascending: true}))

	var rows []userRow
	if err := repo.exec.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.user())
	}
	return users, nil
}

func (repo userRepository) CountUsers(ctx context.Context, filter user.QueryFilter) (int, error) {
	w := userWhere(filter)
	var n int
	if err := repo.exec.GetContext(ctx, &n, rebind(`SELECT COUNT(*) FROM users`+w.String()), w.args...); err != nil {
		return 0, errors.Wrap(err, "counting users")
	}
	return n, nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `UPDATE users SET role = :role, first_name = :first_name, last_name = :last_name, email = :email,
		password_hash = :password_hash, is_active = :is_active, first_login = :first_login,
		admin_notes = :admin_notes, updated_at = :updated_at, last_access = :last_access
		WHERE id = :id`
	res, err := repo.exec.NamedExecContext(ctx, q, toUserRow(usr))
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo userRepository) TouchUser(ctx context.Context, id string, at time.Time) error {
	if !validID(id) {
		return user.ErrNotFound
	}
	res, err := repo.exec.ExecContext(ctx, `UPDATE users SET last_access = $1 WHERE id = $2`, at.UTC(), id)
	if err != nil {
		return errors.Wrap(err, "touching user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (repo userRepository) DeleteUser(ctx context.Context, id string) error {
	if !validID(id) {
		return nil
	}
	_, err := repo.exec.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	return errors.Wrap(err, "deleting user")
}

func (repo userRepository) GetAdminAccess(ctx context.Context, userID string) (user.AdminAccess, error) {
	if !validID(userID) {
		return user.AdminAccess{}, user.ErrAdminAccessNotFound
	}
	var row adminAccessRow
	err := repo.exec.GetContext(ctx, &row, `SELECT user_id, pin_hash, pin_enabled, external_subject, created_at, last_access
		FROM admin_access WHERE user_id = $1`, userID)
	if err != nil {
		return user.AdminAccess{}, trapNoRowsErr(err, user.ErrAdminAccessNotFound, "finding admin access")
	}
	return user.AdminAccess{
		UserID:          row.UserID,
		PINHash:         row.PINHash,
		PINEnabled:      row.PINEnabled,
		ExternalSubject: row.ExternalSubject.String,
		CreatedAt:       row.CreatedAt.UTC(),
		LastAccess:      utcPtr(row.LastAccess),
	}, nil
}

func (repo userRepository) SaveAdminAccess(ctx context.Context, acc user.AdminAccess) error {
	row := adminAccessRow{
		UserID:          acc.UserID,
		PINHash:         acc.PINHash,
		PINEnabled:      acc.PINEnabled,
		ExternalSubject: nullString(acc.ExternalSubject),
		CreatedAt:       acc.CreatedAt.UTC(),
		LastAccess:      null.TimeFromPtr(acc.LastAccess),
	}
	q := `INSERT INTO admin_access (user_id, pin_hash, pin_enabled, external_subject, created_at, last_access)
		VALUES (:user_id, :pin_hash, :pin_enabled, :external_subject, :created_at, :last_access)
		ON CONFLICT (user_id) DO UPDATE SET pin_hash = EXCLUDED.pin_hash, pin_enabled = EXCLUDED.pin_enabled,
		external_subject = EXCLUDED.external_subject, last_access = EXCLUDED.last_access`
	_, err := repo.exec.NamedExecContext(ctx, q, row)
	return errors.Wrap(err, "saving admin access")
}

func (repo userRepository) GetStudentDetail(ctx context.Context, userID string) (user.StudentDetail, error) {
	if !validID(userID) {
		return user.StudentDetail{}, user.ErrDetailNotFound
	}
	var row studentDetailRow
	err := repo.exec.GetContext(ctx, &row, `SELECT user_id, phone, birth_date, instrument, teacher_id, notes, updated_at
		FROM student_details WHERE user_id = $1`, userID)
	if err != nil {
		return user.StudentDetail{}, trapNoRowsErr(err, user.ErrDetailNotFound, "finding student detail")
	}
	return user.StudentDetail{
		UserID:     row.UserID,
		Phone:      row.Phone.String,
		BirthDate:  row.BirthDate.String,
		Instrument: row.Instrument.String,
		TeacherID:  row.TeacherID.String,
		Notes:      row.Notes.String,
		UpdatedAt:  row.UpdatedAt.UTC(),
	}, nil
}

func (repo userRepository) SaveStudentDetail(ctx context.Context, detail user.StudentDetail) error {
	row := studentDetailRow{
		UserID:     detail.UserID,
		Phone:      nullString(detail.Phone),
		BirthDate:  nullString(detail.BirthDate),
		Instrument: nullString(detail.Instrument),
		TeacherID:  nullString(detail.TeacherID),
		Notes:      nullString(detail.Notes),
		UpdatedAt:  detail.UpdatedAt.UTC(),
	}
	q := `INSERT INTO student_details (user_id, phone, birth_date, instrument, teacher_id, notes, updated_at)
		VALUES (:user_id, :phone, :birth_date, :instrument, :teacher_id, :notes, :updated_at)
		ON CONFLICT (user_id) DO UPDATE SET phone = EXCLUDED.phone, birth_date = EXCLUDED.birth_date,
		instrument = EXCLUDED.instrument, teacher_id = EXCLUDED.teacher_id, notes = EXCLUDED.notes,
		updated_at = EXCLUDED.updated_at`
	_, err := repo.exec.NamedExecContext(ctx, q, row)
	return errors.Wrap(err, "saving student detail")
}

func (repo userRepository) GetTeacherDetail(ctx context.Context, userID string) (user.TeacherDetail, error) {
	if !validID(userID) {
		return user.TeacherDetail{}, user.ErrDetailNotFound
	}
	var row teacherDetailRow
	err := repo.exec.GetContext(ctx, &row, `SELECT user_id, phone, specialization, bio, notes, updated_at
		FROM teacher_details WHERE user_id = $1`, userID)
	if err != nil {
		return user.TeacherDetail{}, trapNoRowsErr(err, user.ErrDetailNotFound, "finding teacher detail")
	}
	return user.TeacherDetail{
		UserID:         row.UserID,
		Phone:          row.Phone.String,
		Specialization: row.Specialization.String,
		Bio:            row.Bio.String,
		Notes:          row.Notes.String,
		UpdatedAt:      row.UpdatedAt.UTC(),
	}, nil
}

func (repo userRepository) SaveTeacherDetail(ctx context.Context, detail user.TeacherDetail) error {
	row := teacherDetailRow{
		UserID:         detail.UserID,
		Phone:          nullString(detail.Phone),
		Specialization: nullString(detail.Specialization),
		Bio:            nullString(detail.Bio),
		Notes:          nullString(detail.Notes),
		UpdatedAt:      detail.UpdatedAt.UTC(),
	}
	q := `INSERT INTO teacher_details (user_id, phone, specialization, bio, notes, updated_at)
		VALUES (:user_id, :phone, :specialization, :bio, :notes, :updated_at)
		ON CONFLICT (user_id) DO UPDATE SET phone = EXCLUDED.phone, specialization = EXCLUDED.specialization,
		bio = EXCLUDED.bio, notes = EXCLUDED.notes, updated_at = EXCLUDED.updated_at`
	_, err := repo.exec.NamedExecContext(ctx, q, row)
	return errors.Wrap(err, "saving teacher detail")
}
