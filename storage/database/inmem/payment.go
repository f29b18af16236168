package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/imusici/accademia/core/payment"
)

type paymentRepository struct {
	db *DB
}

var _ payment.Repository = (*paymentRepository)(nil)

func NewPaymentRepository(db *DB) payment.Repository {
	return &paymentRepository{db: db}
}

// query returns the matching payments ordered by due date, latest first.
func (repo *paymentRepository) query(f payment.Filter) []payment.Payment {
	payments := make([]payment.Payment, 0)
	for _, p := range repo.db.payments {
		if f.Match(*p) {
			payments = append(payments, *p)
		}
	}
	sort.Slice(payments, func(i, j int) bool {
		if payments[i].DueDate.Equal(payments[j].DueDate) {
			return payments[i].ID < payments[j].ID
		}
		return payments[i].DueDate.After(payments[j].DueDate)
	})
	return payments
}

func (repo *paymentRepository) CreatePayment(_ context.Context, p payment.Payment) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if p.Period != "" {
		for _, other := range repo.db.payments {
			if other.UserID == p.UserID && other.Type == p.Type && other.Period == p.Period {
				return payment.ErrPeriodExists
			}
		}
	}
	repo.db.payments[p.ID] = &p
	return nil
}

func (repo *paymentRepository) GetPayment(_ context.Context, id string) (payment.Payment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if p, ok := repo.db.payments[id]; ok {
		return *p, nil
	}
	return payment.Payment{}, payment.ErrNotFound
}

func (repo *paymentRepository) UpdatePayment(_ context.Context, p payment.Payment) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.payments[p.ID]
	if !ok {
		return payment.ErrNotFound
	}
	p.Status = orig.Status
	p.PaidAt = orig.PaidAt
	repo.db.payments[p.ID] = &p
	return nil
}

func (repo *paymentRepository) DeletePayment(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	delete(repo.db.payments, id)
	return nil
}

func (repo *paymentRepository) QueryPayments(_ context.Context, f payment.Filter) ([]payment.Payment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.query(f), nil
}

func (repo *paymentRepository) CountPayments(_ context.Context, f payment.Filter) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return len(repo.query(f)), nil
}

func (repo *paymentRepository) TransitionPayment(
	_ context.Context,
	id string,
	from []payment.Status,
	to payment.Status,
	paidAt *time.Time,
	at time.Time,
) (bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	p, ok := repo.db.payments[id]
	if !ok {
		return false, nil
	}
	for _, status := range from {
		if p.Status == status {
			p.Status = to
			if paidAt != nil {
				t := paidAt.UTC()
				p.PaidAt = &t
			}
			p.UpdatedAt = at
			return true, nil
		}
	}
	return false, nil
}

func (repo *paymentRepository) GetSettings(_ context.Context) (payment.Settings, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if repo.db.settings == nil {
		return payment.Settings{}, payment.ErrSettingsNotFound
	}
	return *repo.db.settings, nil
}

func (repo *paymentRepository) SaveSettings(_ context.Context, s payment.Settings) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	repo.db.settings = &s
	return nil
}
