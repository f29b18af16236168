package inmemdb

import (
	"context"
	"time"

	"github.com/imusici/accademia/core/auth"
)

type sessionRepository struct {
	db *DB
}

var _ auth.SessionRepository = (*sessionRepository)(nil)

func NewSessionRepository(db *DB) auth.SessionRepository {
	return &sessionRepository{db: db}
}

func (repo *sessionRepository) CreateSession(_ context.Context, sess auth.Session) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	repo.db.sessions[sess.ID] = &sess
	return nil
}

func (repo *sessionRepository) GetSessionByTokenHash(_ context.Context, tokenHash string) (auth.Session, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, sess := range repo.db.sessions {
		if sess.TokenHash == tokenHash {
			return *sess, nil
		}
	}
	return auth.Session{}, auth.ErrSessionNotFound
}

func (repo *sessionRepository) DeleteSessionsByTokenHash(_ context.Context, tokenHash string) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var n int
	for id, sess := range repo.db.sessions {
		if sess.TokenHash == tokenHash {
			delete(repo.db.sessions, id)
			n++
		}
	}
	return n, nil
}

func (repo *sessionRepository) DeleteExpiredSessions(_ context.Context, now time.Time) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var n int
	for id, sess := range repo.db.sessions {
		if sess.ExpiredAt(now) {
			delete(repo.db.sessions, id)
			n++
		}
	}
	return n, nil
}
