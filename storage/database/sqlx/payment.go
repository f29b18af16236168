package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/imusici/accademia/core"
	"github.com/imusici/accademia/core/payment"
)

const paymentColumns = `id, user_id, type, amount, description, period, due_date, status, paid_at,
	valid_from, valid_to, tolerance_days, visible_to_user, created_at, updated_at`

type paymentRow struct {
	ID            string    `db:"id"`
	UserID        string    `db:"user_id"`
	Type          string    `db:"type"`
	Amount        float64   `db:"amount"`
	Description   string    `db:"description"`
	Period        string    `db:"period"`
	DueDate       time.Time `db:"due_date"`
	Status        string    `db:"status"`
	PaidAt        null.Time `db:"paid_at"`
	ValidFrom     null.Time `db:"valid_from"`
	ValidTo       null.Time `db:"valid_to"`
	ToleranceDays int       `db:"tolerance_days"`
	VisibleToUser bool      `db:"visible_to_user"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func toPaymentRow(p payment.Payment) paymentRow {
	return paymentRow{
		ID:            p.ID,
		UserID:        p.UserID,
		Type:          string(p.Type),
		Amount:        p.Amount,
		Description:   p.Description,
		Period:        p.Period,
		DueDate:       p.DueDate.UTC(),
		Status:        string(p.Status),
		PaidAt:        null.TimeFromPtr(p.PaidAt),
		ValidFrom:     null.TimeFromPtr(p.ValidFrom),
		ValidTo:       null.TimeFromPtr(p.ValidTo),
		ToleranceDays: p.ToleranceDays,
		VisibleToUser: p.VisibleToUser,
		CreatedAt:     p.CreatedAt.UTC(),
		UpdatedAt:     p.UpdatedAt.UTC(),
	}
}

func (r paymentRow) payment() payment.Payment {
	return payment.Payment{
		ID:            r.ID,
		UserID:        r.UserID,
		Type:          payment.Type(r.Type),
		Amount:        r.Amount,
		Description:   r.Description,
		Period:        r.Period,
		DueDate:       r.DueDate.UTC(),
		Status:        payment.Status(r.Status),
		PaidAt:        utcPtr(r.PaidAt),
		ValidFrom:     utcPtr(r.ValidFrom),
		ValidTo:       utcPtr(r.ValidTo),
		ToleranceDays: r.ToleranceDays,
		VisibleToUser: r.VisibleToUser,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

type paymentRepository struct {
	exec core.DBExecutor
}

var _ payment.Repository = (*paymentRepository)(nil)

func NewPaymentRepository(exec core.DBExecutor) payment.Repository {
	return &paymentRepository{exec: exec}
}

func (repo paymentRepository) CreatePayment(ctx context.Context, p payment.Payment) error {
	q := `INSERT INTO payments (` + paymentColumns + `) VALUES (:id, :user_id, :type, :amount, :description,
		:period, :due_date, :status, :paid_at, :valid_from, :valid_to, :tolerance_days, :visible_to_user,
		:created_at, :updated_at)`
	if _, err := repo.exec.NamedExecContext(ctx, q, toPaymentRow(p)); err != nil {
		if isUniqueViolation(err) {
			return payment.ErrPeriodExists
		}
		return errors.Wrap(err, "inserting payment")
	}
	return nil
}

func (repo paymentRepository) GetPayment(ctx context.Context, id string) (payment.Payment, error) {
	if !validID(id) {
		return payment.Payment{}, payment.ErrNotFound
	}
	var row paymentRow
	if err := repo.exec.GetContext(ctx, &row, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id); err != nil {
		return payment.Payment{}, trapNoRowsErr(err, payment.ErrNotFound, "finding payment")
	}
	return row.payment(), nil
}

func (repo paymentRepository) UpdatePayment(ctx context.Context, p payment.Payment) error {
	q := `UPDATE payments SET amount = :amount, description = :description, due_date = :due_date,
		valid_from = :valid_from, valid_to = :valid_to, tolerance_days = :tolerance_days,
		visible_to_user = :visible_to_user, updated_at = :updated_at
		WHERE id = :id`
	res, err := repo.exec.NamedExecContext(ctx, q, toPaymentRow(p))
	if err != nil {
		return errors.Wrap(err, "updating payment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return payment.ErrNotFound
	}
	return nil
}

func (repo paymentRepository) DeletePayment(ctx context.Context, id string) error {
	if !validID(id) {
		return nil
	}
	_, err := repo.exec.ExecContext(ctx, `DELETE FROM payments WHERE id = $1`, id)
	return errors.Wrap(err, "deleting payment")
}

func paymentWhere(f payment.Filter) where {
	var w where
	if f.UserID != "" {
		w.add("user_id = ?", f.UserID)
	}
	if f.Type != "" {
		w.add("type = ?", string(f.Type))
	}
	if f.Status != "" {
		w.add("status = ?", string(f.Status))
	}
	if f.Period != "" {
		w.add("period = ?", f.Period)
	}
	if f.VisibleOnly {
		w.add("visible_to_user")
	}
	if !f.DueBefore.IsZero() {
		w.add("due_date < ?", f.DueBefore.UTC())
	}
	if !f.ValidToFrom.IsZero() {
		w.add("valid_to >= ?", f.ValidToFrom.UTC())
	}
	if !f.ValidToTill.IsZero() {
		w.add("valid_to <= ?", f.ValidToTill.UTC())
	}
	return w
}

func (repo paymentRepository) QueryPayments(ctx context.Context, f payment.Filter) ([]payment.Payment, error) {
	w := paymentWhere(f)
	q := rebind(`SELECT ` + paymentColumns + ` FROM payments` + w.String() +
		core.OrderBy(core.DBOrdering{Field: "due_date"}, core.DBOrdering{Field: "id", Ascending: true}))

	var rows []paymentRow
	if err := repo.exec.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}
	payments := make([]payment.Payment, 0, len(rows))
	for _, r := range rows {
		payments = append(payments, r.payment())
	}
	return payments, nil
}

func (repo paymentRepository) CountPayments(ctx context.Context, f payment.Filter) (int, error) {
	w := paymentWhere(f)
	var n int
	if err := repo.exec.GetContext(ctx, &n, rebind(`SELECT COUNT(*) FROM payments`+w.String()), w.args...); err != nil {
		return 0, errors.Wrap(err, "counting payments")
	}
	return n, nil
}

func (repo paymentRepository) TransitionPayment(
	ctx context.Context,
	id string,
	from []payment.Status,
	to payment.Status,
	paidAt *time.Time,
	at time.Time,
) (bool, error) {
	if !validID(id) || len(from) == 0 {
		return false, nil
	}
	statuses := make([]string, 0, len(from))
	for _, s := range from {
		statuses = append(statuses, string(s))
	}
	q, args, err := sqlx.In(
		`UPDATE payments SET status = ?, paid_at = COALESCE(?::timestamptz, paid_at), updated_at = ? WHERE id = ? AND status IN (?)`,
		string(to), null.TimeFromPtr(paidAt), at.UTC(), id, statuses,
	)
	if err != nil {
		return false, errors.Wrap(err, "building payment transition")
	}
	res, err := repo.exec.ExecContext(ctx, rebind(q), args...)
	if err != nil {
		return false, errors.Wrap(err, "transitioning payment")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "transitioning payment")
	}
	return n > 0, nil
}

type settingsRow struct {
	DueDay             int       `db:"due_day"`
	ToleranceDays      int       `db:"tolerance_days"`
	DefaultMonthlyFee  float64   `db:"default_monthly_fee"`
	AnnualReminderDays int       `db:"annual_reminder_days"`
	UpdatedAt          time.Time `db:"updated_at"`
}

func (repo paymentRepository) GetSettings(ctx context.Context) (payment.Settings, error) {
	var row settingsRow
	err := repo.exec.GetContext(ctx, &row, `SELECT due_day, tolerance_days, default_monthly_fee, annual_reminder_days,
		updated_at FROM settings WHERE id = 1`)
	if err != nil {
		return payment.Settings{}, trapNoRowsErr(err, payment.ErrSettingsNotFound, "finding settings")
	}
	return payment.Settings{
		DueDay:             row.DueDay,
		ToleranceDays:      row.ToleranceDays,
		DefaultMonthlyFee:  row.DefaultMonthlyFee,
		AnnualReminderDays: row.AnnualReminderDays,
		UpdatedAt:          row.UpdatedAt.UTC(),
	}, nil
}

func (repo paymentRepository) SaveSettings(ctx context.Context, s payment.Settings) error {
	row := settingsRow{
		DueDay:             s.DueDay,
		ToleranceDays:      s.ToleranceDays,
		DefaultMonthlyFee:  s.DefaultMonthlyFee,
		AnnualReminderDays: s.AnnualReminderDays,
		UpdatedAt:          s.UpdatedAt.UTC(),
	}
	q := `INSERT INTO settings (id, due_day, tolerance_days, default_monthly_fee, annual_reminder_days, updated_at)
		VALUES (1, :due_day, :tolerance_days, :default_monthly_fee, :annual_reminder_days, :updated_at)
		ON CONFLICT (id) DO UPDATE SET due_day = EXCLUDED.due_day, tolerance_days = EXCLUDED.tolerance_days,
		default_monthly_fee = EXCLUDED.default_monthly_fee, annual_reminder_days = EXCLUDED.annual_reminder_days,
		updated_at = EXCLUDED.updated_at`
	_, err := repo.exec.NamedExecContext(ctx, q, row)
	return errors.Wrap(err, "saving settings")
}
