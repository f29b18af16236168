package payment

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/imusici/accademia/core"
)

type (
	Type   string
	Status string
)

const (
	TypeMonthly             Type = "monthly"
	TypeAnnual              Type = "annual"
	TypeTeacherCompensation Type = "teacher_compensation"

	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusOverdue Status = "overdue"
)

// Payment is an obligation of a user (or, for compensations, a payout to a teacher).
//
// Status moves Pending -> Paid, Pending -> Overdue (automation only) and Overdue -> Paid.
// Nothing ever moves back to Pending.
type Payment struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	Type          Type       `json:"type"`
	Amount        float64    `json:"amount"`
	Description   string     `json:"description"`
	Period        string     `json:"period,omitempty"` // YYYY-MM for monthly obligations; unique per (user, type)
	DueDate       time.Time  `json:"due_date"`
	Status        Status     `json:"status"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	ValidFrom     *time.Time `json:"valid_from,omitempty"`
	ValidTo       *time.Time `json:"valid_to,omitempty"`
	ToleranceDays int        `json:"tolerance_days"`
	VisibleToUser bool       `json:"visible_to_user"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// OverdueAfter is the instant after which a pending payment is overdue.
func (p Payment) OverdueAfter() time.Time {
	return core.UTC(p.DueDate).AddDate(0, 0, p.ToleranceDays)
}

// IsOverdueAt reports whether a pending payment must be considered overdue at now.
func (p Payment) IsOverdueAt(now time.Time) bool {
	return p.Status == StatusPending && core.UTC(now).After(p.OverdueAfter())
}

// CanBePaid reports whether MarkPaid is allowed from the current status.
func (p Payment) CanBePaid() bool {
	return p.Status == StatusPending || p.Status == StatusOverdue
}

// Settings drive the automation jobs and the defaults of new obligations.
type Settings struct {
	DueDay             int       `json:"due_day"`
	ToleranceDays      int       `json:"tolerance_days"`
	DefaultMonthlyFee  float64   `json:"default_monthly_fee"`
	AnnualReminderDays int       `json:"annual_reminder_days"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func DefaultSettings(conf core.PaymentConfig) Settings {
	return Settings{
		DueDay:             conf.DueDay,
		ToleranceDays:      conf.ToleranceDays,
		DefaultMonthlyFee:  conf.DefaultMonthlyFee,
		AnnualReminderDays: conf.AnnualReminderDays,
	}
}

type UpdateSettings struct {
	DueDay             *int     `json:"due_day" validate:"omitempty,min=1,max=28"`
	ToleranceDays      *int     `json:"tolerance_days" validate:"omitempty,min=0,max=90"`
	DefaultMonthlyFee  *float64 `json:"default_monthly_fee" validate:"omitempty,gt=0"`
	AnnualReminderDays *int     `json:"annual_reminder_days" validate:"omitempty,min=1,max=365"`
}

type NewPayment struct {
	UserID        string  `json:"user_id" validate:"required"`
	Type          Type    `json:"type" validate:"required,oneof=monthly annual teacher_compensation"`
	Amount        float64 `json:"amount" validate:"gt=0"`
	Description   string  `json:"description" validate:"required"`
	Period        string  `json:"period" validate:"omitempty,month"`
	DueDate       string  `json:"due_date" validate:"required,date"`
	ValidFrom     string  `json:"valid_from" validate:"omitempty,date"`
	ValidTo       string  `json:"valid_to" validate:"omitempty,date"`
	ToleranceDays *int    `json:"tolerance_days" validate:"omitempty,min=0"`
	VisibleToUser *bool   `json:"visible_to_user"`
}

func (np *NewPayment) Validate(validate *validator.Validate, translator ut.Translator) error {
	np.UserID = core.CleanString(np.UserID)
	np.Description = core.CleanString(np.Description)
	if err := validate.Struct(np); err != nil {
		return core.TranslateValidationErrors(err, translator)
	}
	if np.Type == TypeAnnual && (np.ValidFrom == "" || np.ValidTo == "") {
		return core.NewValidationError(nil,
			core.FieldError{Field: "valid_from", Error: "annual payments require a validity window"},
			core.FieldError{Field: "valid_to", Error: "annual payments require a validity window"},
		)
	}
	if np.Type != TypeAnnual && (np.ValidFrom != "" || np.ValidTo != "") {
		return core.NewFieldError("valid_to", "only annual payments have a validity window")
	}
	if np.ValidFrom != "" && np.ValidTo != "" && np.ValidTo < np.ValidFrom {
		return core.NewFieldError("valid_to", "must not be before valid_from")
	}
	return nil
}

// UpdatePayment holds the fields an administrator may change. Status may only be set to paid.
type UpdatePayment struct {
	Amount        *float64 `json:"amount" validate:"omitempty,gt=0"`
	Description   *string  `json:"description" validate:"omitempty,notblank"`
	DueDate       *string  `json:"due_date" validate:"omitempty,date"`
	ToleranceDays *int     `json:"tolerance_days" validate:"omitempty,min=0"`
	VisibleToUser *bool    `json:"visible_to_user"`
	Status        *Status  `json:"status" validate:"omitempty,oneof=pending paid overdue"`
}

func (up UpdatePayment) Validate(validate *validator.Validate, translator ut.Translator) error {
	return core.TranslateValidationErrors(validate.Struct(up), translator)
}

// MonthlyRequest asks for the materialization of monthly obligations.
// Empty fields take their defaults: current month, settings fee and "Monthly fee YYYY-MM".
type MonthlyRequest struct {
	Month       string   `json:"month" validate:"omitempty,month"`
	Amount      *float64 `json:"amount" validate:"omitempty,gt=0"`
	Description string   `json:"description"`
}

type MonthlyResult struct {
	Period  string `json:"period"`
	Created int    `json:"created"`
	Skipped int    `json:"skipped"`
}

type SweepResult struct {
	Checked int `json:"checked"`
	Updated int `json:"updated"`
}

type ReminderResult struct {
	Status     Status `json:"status,omitempty"`
	Recipients int    `json:"recipients"`
}

// QueryFilter is bound from request query parameters.
type QueryFilter struct {
	UserID string `query:"user_id"`
	Type   Type   `query:"type"`
	Status Status `query:"status"`
	Period string `query:"period"`
}

// Filter is the store filter. Zero values match everything.
type Filter struct {
	UserID      string
	Type        Type
	Status      Status
	Period      string
	VisibleOnly bool
	DueBefore   time.Time // exclusive
	ValidToFrom time.Time // inclusive
	ValidToTill time.Time // inclusive
}

func (f Filter) Match(p Payment) bool {
	if f.UserID != "" && p.UserID != f.UserID {
		return false
	}
	if f.Type != "" && p.Type != f.Type {
		return false
	}
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.Period != "" && p.Period != f.Period {
		return false
	}
	if f.VisibleOnly && !p.VisibleToUser {
		return false
	}
	if !f.DueBefore.IsZero() && !p.DueDate.Before(f.DueBefore) {
		return false
	}
	if !f.ValidToFrom.IsZero() || !f.ValidToTill.IsZero() {
		if p.ValidTo == nil {
			return false
		}
		if !f.ValidToFrom.IsZero() && p.ValidTo.Before(f.ValidToFrom) {
			return false
		}
		if !f.ValidToTill.IsZero() && p.ValidTo.After(f.ValidToTill) {
			return false
		}
	}
	return true
}
