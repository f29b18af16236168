package auth

import (
	"context"
	"time"

	"github.com/imusici/accademia/core"
)

var ErrSessionNotFound = core.NewError(core.KindNotFound, "session not found")

// Session is a server-issued, time-bounded proof of authentication bound to one user.
// Device and IP are informational only.
type Session struct {
	ID        string    `json:"id"`
	TokenHash string    `json:"-"` // hex sha256 of the session token
	UserID    string    `json:"user_id"`
	Device    string    `json:"device,omitempty"`
	IP        string    `json:"ip,omitempty"`
	Elevated  bool      `json:"elevated"` // minted by the two-step admin login
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExpiredAt reports whether the session is expired at instant now.
// A session is usable iff now < expiry; both sides are compared in UTC.
func (s Session) ExpiredAt(now time.Time) bool {
	return !core.UTC(now).Before(core.UTC(s.ExpiresAt))
}

// Meta is the request metadata stored on a new Session.
type Meta struct {
	Device string
	IP     string
}

type SessionRepository interface {
	CreateSession(ctx context.Context, sess Session) error
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (Session, error)
	// DeleteSessionsByTokenHash deletes the sessions matching tokenHash exactly and returns how many were deleted.
	DeleteSessionsByTokenHash(ctx context.Context, tokenHash string) (int, error)
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error)
}
