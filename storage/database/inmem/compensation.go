package inmemdb

import (
	"context"
	"sort"

	"github.com/imusici/accademia/core/compensation"
)

type rateRepository struct {
	db *DB
}

var _ compensation.RateRepository = (*rateRepository)(nil)

func NewRateRepository(db *DB) compensation.RateRepository {
	return &rateRepository{db: db}
}

func (repo *rateRepository) PutRate(_ context.Context, r compensation.Rate) (compensation.Rate, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, existing := range repo.db.rates {
		if existing.TeacherID == r.TeacherID && existing.CourseID == r.CourseID {
			existing.Amount = r.Amount
			existing.UpdatedAt = r.UpdatedAt
			return *existing, nil
		}
	}
	repo.db.rates[r.ID] = &r
	return r, nil
}

func (repo *rateRepository) GetRate(_ context.Context, teacherID, courseID string) (compensation.Rate, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, r := range repo.db.rates {
		if r.TeacherID == teacherID && r.CourseID == courseID {
			return *r, nil
		}
	}
	return compensation.Rate{}, compensation.ErrRateNotFound
}

func (repo *rateRepository) GetRateByID(_ context.Context, id string) (compensation.Rate, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if r, ok := repo.db.rates[id]; ok {
		return *r, nil
	}
	return compensation.Rate{}, compensation.ErrRateNotFound
}

func (repo *rateRepository) QueryRates(_ context.Context, teacherID string) ([]compensation.Rate, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	rates := make([]compensation.Rate, 0)
	for _, r := range repo.db.rates {
		if teacherID == "" || r.TeacherID == teacherID {
			rates = append(rates, *r)
		}
	}
	sort.Slice(rates, func(i, j int) bool {
		if rates[i].TeacherID != rates[j].TeacherID {
			return rates[i].TeacherID < rates[j].TeacherID
		}
		return rates[i].CourseID < rates[j].CourseID
	})
	return rates, nil
}

func (repo *rateRepository) DeleteRate(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	delete(repo.db.rates, id)
	return nil
}
