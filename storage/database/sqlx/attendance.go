package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/imusici/accademia/core"
	"github.com/imusici/accademia/core/attendance"
)

const attendanceColumns = `id, course_id, lesson_id, student_id, teacher_id, date, status, makeup_date, note,
	created_by, created_at, updated_at`

type attendanceRow struct {
	ID         string      `db:"id"`
	CourseID   string      `db:"course_id"`
	LessonID   string      `db:"lesson_id"`
	StudentID  string      `db:"student_id"`
	TeacherID  string      `db:"teacher_id"`
	Date       time.Time   `db:"date"`
	Status     string      `db:"status"`
	MakeupDate null.Time   `db:"makeup_date"`
	Note       null.String `db:"note"`
	CreatedBy  string      `db:"created_by"`
	CreatedAt  time.Time   `db:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at"`
}

func toAttendanceRow(a attendance.Attendance) attendanceRow {
	return attendanceRow{
		ID:         a.ID,
		CourseID:   a.CourseID,
		LessonID:   a.LessonID,
		StudentID:  a.StudentID,
		TeacherID:  a.TeacherID,
		Date:       a.Date.UTC(),
		Status:     string(a.Status),
		MakeupDate: null.TimeFromPtr(a.MakeupDate),
		Note:       nullString(a.Note),
		CreatedBy:  a.CreatedBy,
		CreatedAt:  a.CreatedAt.UTC(),
		UpdatedAt:  a.UpdatedAt.UTC(),
	}
}

func (r attendanceRow) attendance() attendance.Attendance {
	return attendance.Attendance{
		ID:         r.ID,
		CourseID:   r.CourseID,
		LessonID:   r.LessonID,
		StudentID:  r.StudentID,
		TeacherID:  r.TeacherID,
		Date:       r.Date.UTC(),
		Status:     attendance.Status(r.Status),
		MakeupDate: utcPtr(r.MakeupDate),
		Note:       r.Note.String,
		CreatedBy:  r.CreatedBy,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

type attendanceRepository struct {
	exec core.DBExecutor
}

var _ attendance.Repository = (*attendanceRepository)(nil)

func NewAttendanceRepository(exec core.DBExecutor) attendance.Repository {
	return &attendanceRepository{exec: exec}
}

func (repo attendanceRepository) CreateAttendance(ctx context.Context, a attendance.Attendance) error {
	q := `INSERT INTO attendance (` + attendanceColumns + `) VALUES (:id, :course_id, :lesson_id, :student_id,
		:teacher_id, :date, :status, :makeup_date, :note, :created_by, :created_at, :updated_at)`
	_, err := repo.exec.NamedExecContext(ctx, q, toAttendanceRow(a))
	return errors.Wrap(err, "inserting attendance")
}

func (repo attendanceRepository) GetAttendance(ctx context.Context, id string) (attendance.Attendance, error) {
	if !validID(id) {
		return attendance.Attendance{}, attendance.ErrNotFound
	}
	var row attendanceRow
	if err := repo.exec.GetContext(ctx, &row, `SELECT `+attendanceColumns+` FROM attendance WHERE id = $1`, id); err != nil {
		return attendance.Attendance{}, trapNoRowsErr(err, attendance.ErrNotFound, "finding attendance")
	}
	return row.attendance(), nil
}

func (repo attendanceRepository) UpdateAttendance(ctx context.Context, a attendance.Attendance) error {
	q := `UPDATE attendance SET status = :status, makeup_date = :makeup_date, note = :note, updated_at = :updated_at
		WHERE id = :id`
	res, err := repo.exec.NamedExecContext(ctx, q, toAttendanceRow(a))
	if err != nil {
		return errors.Wrap(err, "updating attendance")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return attendance.ErrNotFound
	}
	return nil
}

func (repo attendanceRepository) DeleteAttendance(ctx context.Context, id string) error {
	if !validID(id) {
		return nil
	}
	_, err := repo.exec.ExecContext(ctx, `DELETE FROM attendance WHERE id = $1`, id)
	return errors.Wrap(err, "deleting attendance")
}

func attendanceWhere(f attendance.Filter) where {
	var w where
	if f.StudentID != "" {
		w.add("student_id = ?", f.StudentID)
	}
	if f.TeacherID != "" {
		w.add("teacher_id = ?", f.TeacherID)
	}
	if f.CourseID != "" {
		w.add("course_id = ?", f.CourseID)
	}
	if f.Status != "" {
		w.add("status = ?", string(f.Status))
	}
	if !f.From.IsZero() {
		w.add("date >= ?", f.From.UTC())
	}
	if !f.To.IsZero() {
		w.add("date <= ?", f.To.UTC())
	}
	return w
}

func (repo attendanceRepository) QueryAttendance(ctx context.Context, f attendance.Filter) ([]attendance.Attendance, error) {
	w := attendanceWhere(f)
	q := rebind(`SELECT ` + attendanceColumns + ` FROM attendance` + w.String() +
		core.OrderBy(core.DBOrdering{Field: "date"}, core.DBOrdering{Field: "id", Ascending: true}))

	var rows []attendanceRow
	if err := repo.exec.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying attendance")
	}
	records := make([]attendance.Attendance, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.attendance())
	}
	return records, nil
}

func (repo attendanceRepository) CountAttendance(ctx context.Context, f attendance.Filter) (int, error) {
	w := attendanceWhere(f)
	var n int
	if err := repo.exec.GetContext(ctx, &n, rebind(`SELECT COUNT(*) FROM attendance`+w.String()), w.args...); err != nil {
		return 0, errors.Wrap(err, "counting attendance")
	}
	return n, nil
}
