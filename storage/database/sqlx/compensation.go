package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/imusici/accademia/core"
	"github.com/imusici/accademia/core/compensation"
)

const rateColumns = `id, teacher_id, course_id, amount, created_at, updated_at`

type rateRow struct {
	ID        string    `db:"id"`
	TeacherID string    `db:"teacher_id"`
	CourseID  string    `db:"course_id"`
	Amount    float64   `db:"amount"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r rateRow) rate() compensation.Rate {
	return compensation.Rate{
		ID:        r.ID,
		TeacherID: r.TeacherID,
		CourseID:  r.CourseID,
		Amount:    r.Amount,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type rateRepository struct {
	exec core.DBExecutor
}

var _ compensation.RateRepository = (*rateRepository)(nil)

func NewRateRepository(exec core.DBExecutor) compensation.RateRepository {
	return &rateRepository{exec: exec}
}

func (repo rateRepository) PutRate(ctx context.Context, r compensation.Rate) (compensation.Rate, error) {
	var saved rateRow
	err := repo.exec.GetContext(ctx, &saved, `INSERT INTO compensation_rates (`+rateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (teacher_id, course_id) DO UPDATE SET amount = EXCLUDED.amount, updated_at = EXCLUDED.updated_at
		RETURNING `+rateColumns,
		r.ID, r.TeacherID, r.CourseID, r.Amount, r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
	)
	if err != nil {
		return compensation.Rate{}, errors.Wrap(err, "saving compensation rate")
	}
	return saved.rate(), nil
}

func (repo rateRepository) GetRate(ctx context.Context, teacherID, courseID string) (compensation.Rate, error) {
	if !validID(teacherID) {
		return compensation.Rate{}, compensation.ErrRateNotFound
	}
	var r rateRow
	err := repo.exec.GetContext(ctx, &r, `SELECT `+rateColumns+` FROM compensation_rates
		WHERE teacher_id = $1 AND course_id = $2`, teacherID, courseID)
	if err != nil {
		return compensation.Rate{}, trapNoRowsErr(err, compensation.ErrRateNotFound, "finding compensation rate")
	}
	return r.rate(), nil
}

func (repo rateRepository) GetRateByID(ctx context.Context, id string) (compensation.Rate, error) {
	if !validID(id) {
		return compensation.Rate{}, compensation.ErrRateNotFound
	}
	var r rateRow
	err := repo.exec.GetContext(ctx, &r, `SELECT `+rateColumns+` FROM compensation_rates WHERE id = $1`, id)
	if err != nil {
		return compensation.Rate{}, trapNoRowsErr(err, compensation.ErrRateNotFound, "finding compensation rate")
	}
	return r.rate(), nil
}

func (repo rateRepository) QueryRates(ctx context.Context, teacherID string) ([]compensation.Rate, error) {
	var w where
	if teacherID != "" {
		w.add("teacher_id = ?", teacherID)
	}
	q := rebind(`SELECT ` + rateColumns + ` FROM compensation_rates` + w.String() +
		core.OrderBy(core.DBOrdering{Field: "teacher_id", Ascending: true}, core.DBOrdering{Field: "course_id", Ascending: true}))

	var rows []rateRow
	if err := repo.exec.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying compensation rates")
	}
	rates := make([]compensation.Rate, 0, len(rows))
	for _, r := range rows {
		rates = append(rates, r.rate())
	}
	return rates, nil
}

func (repo rateRepository) DeleteRate(ctx context.Context, id string) error {
	if !validID(id) {
		return nil
	}
	_, err := repo.exec.ExecContext(ctx, `DELETE FROM compensation_rates WHERE id = $1`, id)
	return errors.Wrap(err, "deleting compensation rate")
}
