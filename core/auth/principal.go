package auth

import (
	"github.com/imusici/accademia/core"
	"github.com/imusici/accademia/core/user"
)

// Principal is the authenticated caller of a protected operation.
type Principal struct {
	User    user.User
	Session Session
}

// IsAdmin is true only for administrators whose session was minted by the two-step login.
// A password-only admin session is a lesser privilege fallback: the caller is authenticated
// but holds no administrator power.
func (p Principal) IsAdmin() bool   { return p.User.IsAdmin() && p.Session.Elevated }
func (p Principal) IsTeacher() bool { return p.User.IsTeacher() }
func (p Principal) IsStudent() bool { return p.User.IsStudent() }
func (p Principal) ID() string      { return p.User.ID }

func (p Principal) RequireAdmin() error {
	if p.IsAdmin() {
		return nil
	}
	return core.ErrForbidden
}

func (p Principal) RequireTeacherOrAdmin() error {
	if p.IsTeacher() || p.IsAdmin() {
		return nil
	}
	return core.ErrForbidden
}

// RequireSelfOrAdmin allows a user to act on their own resource, and administrators on any.
func (p Principal) RequireSelfOrAdmin(userID string) error {
	if p.User.ID == userID || p.IsAdmin() {
		return nil
	}
	return core.ErrForbidden
}
