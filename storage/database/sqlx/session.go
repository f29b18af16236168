package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/imusici/accademia/core"
	"github.com/imusici/accademia/core/auth"
)

type sessionRow struct {
	ID        string      `db:"id"`
	TokenHash string      `db:"token_hash"`
	UserID    string      `db:"user_id"`
	Device    null.String `db:"device"`
	IP        null.String `db:"ip"`
	Elevated  bool        `db:"elevated"`
	CreatedAt time.Time   `db:"created_at"`
	ExpiresAt time.Time   `db:"expires_at"`
}

type sessionRepository struct {
	exec core.DBExecutor
}

var _ auth.SessionRepository = (*sessionRepository)(nil)

func NewSessionRepository(exec core.DBExecutor) auth.SessionRepository {
	return &sessionRepository{exec: exec}
}

func (repo sessionRepository) CreateSession(ctx context.Context, sess auth.Session) error {
	row := sessionRow{
		ID:        sess.ID,
		TokenHash: sess.TokenHash,
		UserID:    sess.UserID,
		Device:    nullString(sess.Device),
		IP:        nullString(sess.IP),
		Elevated:  sess.Elevated,
		CreatedAt: sess.CreatedAt.UTC(),
		ExpiresAt: sess.ExpiresAt.UTC(),
	}
	q := `INSERT INTO sessions (id, token_hash, user_id, device, ip, elevated, created_at, expires_at)
		VALUES (:id, :token_hash, :user_id, :device, :ip, :elevated, :created_at, :expires_at)`
	_, err := repo.exec.NamedExecContext(ctx, q, row)
	return errors.Wrap(err, "inserting session")
}

func (repo sessionRepository) GetSessionByTokenHash(ctx context.Context, tokenHash string) (auth.Session, error) {
	var row sessionRow
	err := repo.exec.GetContext(ctx, &row, `SELECT id, token_hash, user_id, device, ip, elevated, created_at, expires_at
		FROM sessions WHERE token_hash = $1 LIMIT 1`, tokenHash)
	if err != nil {
		return auth.Session{}, trapNoRowsErr(err, auth.ErrSessionNotFound, "finding session")
	}
	return auth.Session{
		ID:        row.ID,
		TokenHash: row.TokenHash,
		UserID:    row.UserID,
		Device:    row.Device.String,
		IP:        row.IP.String,
		Elevated:  row.Elevated,
		CreatedAt: row.CreatedAt.UTC(),
		ExpiresAt: row.ExpiresAt.UTC(),
	}, nil
}

func (repo sessionRepository) DeleteSessionsByTokenHash(ctx context.Context, tokenHash string) (int, error) {
	res, err := repo.exec.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return 0, errors.Wrap(err, "deleting sessions")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "deleting sessions")
}

func (repo sessionRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	res, err := repo.exec.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "deleting expired sessions")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "deleting expired sessions")
}
