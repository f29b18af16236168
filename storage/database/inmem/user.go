package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/imusici/accademia/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

// query returns the matching users ordered by creation, newest first.
func (repo *userRepository) query(filter user.QueryFilter) []user.User {
	users := make([]user.User, 0, len(repo.db.users))
	for _, u := range repo.db.users {
		if filter.Match(*u) {
			users = append(users, *u)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return users
}

func (repo *userRepository) emailTaken(email, exceptID string) bool {
	for _, u := range repo.db.users {
		if u.Email == email && u.ID != exceptID {
			return true
		}
	}
	return false
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if repo.emailTaken(usr.Email, "") {
		return user.User{}, user.ErrEmailExists
	}
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) GetUser(_ context.Context, id string) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if usr, ok := repo.db.users[id]; ok {
		return *usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, usr := range repo.db.users {
		if usr.Email == email {
			return *usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) QueryUsers(_ context.Context, filter user.QueryFilter) ([]user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.query(filter), nil
}

func (repo *userRepository) CountUsers(_ context.Context, filter user.QueryFilter) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return len(repo.query(filter)), nil
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	if repo.emailTaken(usr.Email, usr.ID) {
		return user.User{}, user.ErrEmailExists
	}
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) TouchUser(_ context.Context, id string, at time.Time) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	usr, ok := repo.db.users[id]
	if !ok {
		return user.ErrNotFound
	}
	at = at.UTC()
	usr.LastAccess = &at
	return nil
}

func (repo *userRepository) DeleteUser(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	delete(repo.db.users, id)
	delete(repo.db.adminAccess, id)
	delete(repo.db.studentDetails, id)
	delete(repo.db.teacherDetails, id)
	for sid, sess := range repo.db.sessions {
		if sess.UserID == id {
			delete(repo.db.sessions, sid)
		}
	}
	return nil
}

func (repo *userRepository) GetAdminAccess(_ context.Context, userID string) (user.AdminAccess, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if acc, ok := repo.db.adminAccess[userID]; ok {
		return *acc, nil
	}
	return user.AdminAccess{}, user.ErrAdminAccessNotFound
}

func (repo *userRepository) SaveAdminAccess(_ context.Context, acc user.AdminAccess) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	repo.db.adminAccess[acc.UserID] = &acc
	return nil
}

func (repo *userRepository) GetStudentDetail(_ context.Context, userID string) (user.StudentDetail, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if d, ok := repo.db.studentDetails[userID]; ok {
		return *d, nil
	}
	return user.StudentDetail{}, user.ErrDetailNotFound
}

func (repo *userRepository) SaveStudentDetail(_ context.Context, detail user.StudentDetail) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	repo.db.studentDetails[detail.UserID] = &detail
	return nil
}

func (repo *userRepository) GetTeacherDetail(_ context.Context, userID string) (user.TeacherDetail, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if d, ok := repo.db.teacherDetails[userID]; ok {
		return *d, nil
	}
	return user.TeacherDetail{}, user.ErrDetailNotFound
}

func (repo *userRepository) SaveTeacherDetail(_ context.Context, detail user.TeacherDetail) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	repo.db.teacherDetails[detail.UserID] = &detail
	return nil
}
