package inmemdb

import (
	"context"
	"sort"

	"github.com/imusici/accademia/core/attendance"
)

type attendanceRepository struct {
	db *DB
}

var _ attendance.Repository = (*attendanceRepository)(nil)

func NewAttendanceRepository(db *DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

// query returns the matching records ordered by date, latest first.
func (repo *attendanceRepository) query(f attendance.Filter) []attendance.Attendance {
	records := make([]attendance.Attendance, 0)
	for _, a := range repo.db.attendance {
		if f.Match(*a) {
			records = append(records, *a)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Date.Equal(records[j].Date) {
			return records[i].ID < records[j].ID
		}
		return records[i].Date.After(records[j].Date)
	})
	return records
}

func (repo *attendanceRepository) CreateAttendance(_ context.Context, a attendance.Attendance) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	repo.db.attendance[a.ID] = &a
	return nil
}

func (repo *attendanceRepository) GetAttendance(_ context.Context, id string) (attendance.Attendance, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if a, ok := repo.db.attendance[id]; ok {
		return *a, nil
	}
	return attendance.Attendance{}, attendance.ErrNotFound
}

func (repo *attendanceRepository) UpdateAttendance(_ context.Context, a attendance.Attendance) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.attendance[a.ID]; !ok {
		return attendance.ErrNotFound
	}
	repo.db.attendance[a.ID] = &a
	return nil
}

func (repo *attendanceRepository) DeleteAttendance(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	delete(repo.db.attendance, id)
	return nil
}

func (repo *attendanceRepository) QueryAttendance(_ context.Context, f attendance.Filter) ([]attendance.Attendance, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.query(f), nil
}

func (repo *attendanceRepository) CountAttendance(_ context.Context, f attendance.Filter) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return len(repo.query(f)), nil
}
