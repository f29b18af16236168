// Package inmemdb is an in-memory store used in development and tests.
package inmemdb

import (
	"sync"

	"github.com/imusici/accademia/core/attendance"
	"github.com/imusici/accademia/core/auth"
	"github.com/imusici/accademia/core/compensation"
	"github.com/imusici/accademia/core/payment"
	"github.com/imusici/accademia/core/user"
)

// DB holds every table behind one lock; each repository method is atomic.
type DB struct {
	mu sync.RWMutex

	users          map[string]*user.User
	adminAccess    map[string]*user.AdminAccess
	studentDetails map[string]*user.StudentDetail
	teacherDetails map[string]*user.TeacherDetail
	sessions       map[string]*auth.Session
	payments       map[string]*payment.Payment
	settings       *payment.Settings
	attendance     map[string]*attendance.Attendance
	rates          map[string]*compensation.Rate
}

func Open() *DB {
	db := new(DB)
	db.reset()
	return db
}

func (db *DB) reset() {
	db.users = make(map[string]*user.User)
	db.adminAccess = make(map[string]*user.AdminAccess)
	db.studentDetails = make(map[string]*user.StudentDetail)
	db.teacherDetails = make(map[string]*user.TeacherDetail)
	db.sessions = make(map[string]*auth.Session)
	db.payments = make(map[string]*payment.Payment)
	db.settings = nil
	db.attendance = make(map[string]*attendance.Attendance)
	db.rates = make(map[string]*compensation.Rate)
}

// Reset empties every table.
func (db *DB) Reset() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.reset()
}

func (db *DB) Close() error { return nil }
