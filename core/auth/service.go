package auth

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/imusici/accademia/core"
	"github.com/imusici/accademia/core/credential"
	"github.com/imusici/accademia/core/user"
)

var (
	// errors
	ErrInvalidCredentials   = core.NewError(core.KindUnauthenticated, "invalid credentials")
	ErrAccountInactive      = core.NewError(core.KindUnauthenticated, "account deactivated")
	ErrPINNotConfigured     = core.NewError(core.KindUnauthenticated, "PIN access not configured")
	ErrPINDisabled          = core.NewError(core.KindUnauthenticated, "PIN access disabled")
	ErrInvalidPIN           = core.NewError(core.KindUnauthenticated, "invalid PIN")
	ErrSecondFactorExpired  = core.NewError(core.KindUnauthenticated, "second factor challenge expired or already used")
	ErrSecondFactorMismatch = core.NewError(core.KindUnauthenticated, "second factor challenge issued for another account")
	ErrIdentityMismatch     = core.NewError(core.KindUnauthenticated, "external identity does not match the administrator")
)

const maxDeviceLen = 100

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token     string       `json:"session_token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      user.Profile `json:"user"`
}

// PendingLogin is returned by the first step of the administrator login.
// Its token only allows CompleteAdminLogin.
type PendingLogin struct {
	Token     string    `json:"temp_token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Service struct {
	users      user.Repository
	sessions   SessionRepository
	creds      credential.Store
	idp        IdentityProvider
	challenges ChallengeStore
	tokens     tokenIssuer
	conf       core.AuthConfig
	logger     core.Logger

	Now func() time.Time // mockable
}

func NewService(
	users user.Repository,
	sessions SessionRepository,
	creds credential.Store,
	idp IdentityProvider,
	challenges ChallengeStore,
	conf *core.Config,
	logger core.Logger,
) *Service {
	return &Service{
		users:      users,
		sessions:   sessions,
		creds:      creds,
		idp:        idp,
		challenges: challenges,
		tokens:     tokenIssuer{key: []byte(conf.SecretKey), issuer: conf.AppName},
		conf:       conf.Auth,
		logger:     logger,
		Now:        time.Now,
	}
}

func (svc *Service) now() time.Time {
	return svc.Now().UTC()
}

// Login authenticates any role with email and password.
// A missing user, an inactive user and a wrong password all return ErrInvalidCredentials.
// Administrators logged in this way get a non elevated session.
func (svc *Service) Login(ctx context.Context, email, pwd string, meta Meta) (LoginResult, error) {
	usr, err := svc.users.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, errors.Wrap(err, "finding user by email")
	}
	if !usr.IsActive || !svc.creds.Verify(pwd, usr.PasswordHash) {
		return LoginResult{}, ErrInvalidCredentials
	}
	return svc.startSession(ctx, usr, false, meta)
}

// BeginAdminLogin checks an administrator PIN and issues a short-lived pending token.
func (svc *Service) BeginAdminLogin(ctx context.Context, email, pin string) (PendingLogin, error) {
	usr, err := svc.users.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return PendingLogin{}, ErrInvalidCredentials
		}
		return PendingLogin{}, errors.Wrap(err, "finding user by email")
	}
	if !usr.IsAdmin() {
		return PendingLogin{}, ErrInvalidCredentials
	}
	if !usr.IsActive {
		return PendingLogin{}, ErrAccountInactive
	}

	acc, err := svc.users.GetAdminAccess(ctx, usr.ID)
	if err != nil {
		if errors.Cause(err) == user.ErrAdminAccessNotFound {
			return PendingLogin{}, ErrPINNotConfigured
		}
		return PendingLogin{}, errors.Wrap(err, "finding admin access")
	}
	if !acc.PINEnabled {
		return PendingLogin{}, ErrPINDisabled
	}
	if !svc.creds.Verify(pin, acc.PINHash) {
		return PendingLogin{}, ErrInvalidPIN
	}

	now := svc.now()
	claims := svc.tokens.newClaims(usr, stepSecondFactor, now, svc.conf.SecondFactorTTL)
	token, err := svc.tokens.sign(claims)
	if err != nil {
		return PendingLogin{}, err
	}
	if err := svc.challenges.Put(ctx, claims.Id, usr.ID, svc.conf.SecondFactorTTL); err != nil {
		return PendingLogin{}, errors.Wrap(err, "storing second factor challenge")
	}
	return PendingLogin{Token: token, UserID: usr.ID, ExpiresAt: time.Unix(claims.ExpiresAt, 0).UTC()}, nil
}

// CompleteAdminLogin consumes a pending token and confirms the administrator through the
// external identity provider. On success an elevated session is minted.
func (svc *Service) CompleteAdminLogin(ctx context.Context, email, pendingToken, handle string, meta Meta) (LoginResult, error) {
	claims, err := svc.tokens.parse(pendingToken)
	if err != nil || claims.Step != stepSecondFactor {
		return LoginResult{}, ErrSecondFactorExpired
	}
	if !svc.now().Before(time.Unix(claims.ExpiresAt, 0)) {
		return LoginResult{}, ErrSecondFactorExpired
	}
	userID, ok, err := svc.challenges.Consume(ctx, claims.Id)
	if err != nil {
		return LoginResult{}, errors.Wrap(err, "consuming second factor challenge")
	}
	if !ok || userID != claims.Subject {
		return LoginResult{}, ErrSecondFactorExpired
	}

	usr, err := svc.users.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, errors.Wrap(err, "finding user by email")
	}
	if usr.ID != claims.Subject {
		return LoginResult{}, ErrSecondFactorMismatch
	}
	if !usr.IsAdmin() {
		return LoginResult{}, ErrInvalidCredentials
	}
	if !usr.IsActive {
		return LoginResult{}, ErrAccountInactive
	}

	ident, err := svc.idp.Resolve(ctx, handle)
	if err != nil {
		if core.KindOf(err) == core.KindUpstream {
			svc.restoreChallenge(ctx, claims)
		}
		return LoginResult{}, err
	}
	if !strings.EqualFold(strings.TrimSpace(ident.Email), usr.Email) {
		return LoginResult{}, ErrIdentityMismatch
	}

	acc, err := svc.users.GetAdminAccess(ctx, usr.ID)
	if err != nil {
		if errors.Cause(err) == user.ErrAdminAccessNotFound {
			return LoginResult{}, ErrPINNotConfigured
		}
		return LoginResult{}, errors.Wrap(err, "finding admin access")
	}
	now := svc.now()
	acc.ExternalSubject = ident.Subject
	acc.LastAccess = &now
	if err := svc.users.SaveAdminAccess(ctx, acc); err != nil {
		return LoginResult{}, errors.Wrap(err, "saving admin access")
	}

	return svc.startSession(ctx, usr, true, meta)
}

// restoreChallenge puts a consumed challenge back for the rest of its lifetime, so that an
// identity provider outage does not cost the administrator the PIN step.
func (svc *Service) restoreChallenge(ctx context.Context, claims *Claims) {
	ttl := time.Unix(claims.ExpiresAt, 0).Sub(svc.now())
	if ttl <= 0 {
		return
	}
	if err := svc.challenges.Put(ctx, claims.Id, claims.Subject, ttl); err != nil {
		svc.logger.Warn("restoring second factor challenge", err)
	}
}

func (svc *Service) startSession(ctx context.Context, usr user.User, elevated bool, meta Meta) (LoginResult, error) {
	now := svc.now()
	claims := svc.tokens.newClaims(usr, stepSession, now, svc.conf.SessionTTL)
	token, err := svc.tokens.sign(claims)
	if err != nil {
		return LoginResult{}, err
	}

	sess := Session{
		ID:        uuid.NewString(),
		TokenHash: HashToken(token),
		UserID:    usr.ID,
		Device:    core.Truncate(meta.Device, maxDeviceLen),
		IP:        meta.IP,
		Elevated:  elevated,
		CreatedAt: now,
		ExpiresAt: now.Add(svc.conf.SessionTTL),
	}
	if err := svc.sessions.CreateSession(ctx, sess); err != nil {
		return LoginResult{}, errors.Wrap(err, "creating session")
	}
	if err := svc.users.TouchUser(ctx, usr.ID, now); err != nil {
		return LoginResult{}, errors.Wrap(err, "setting last access")
	}
	usr.LastAccess = &now

	prof, err := user.LoadProfile(ctx, svc.users, usr)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: token, ExpiresAt: sess.ExpiresAt, User: prof}, nil
}

// Authenticate resolves a session token to its Principal.
func (svc *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, core.ErrUnauthenticated
	}
	sess, err := svc.sessions.GetSessionByTokenHash(ctx, HashToken(token))
	if err != nil {
		if core.KindOf(err) == core.KindNotFound {
			return Principal{}, core.ErrUnauthenticated
		}
		return Principal{}, errors.Wrap(err, "finding session")
	}
	if sess.ExpiredAt(svc.now()) {
		return Principal{}, core.ErrUnauthenticated
	}

	usr, err := svc.users.GetUser(ctx, sess.UserID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return Principal{}, core.ErrUnauthenticated
		}
		return Principal{}, errors.Wrap(err, "finding session user")
	}
	if !usr.IsActive {
		return Principal{}, core.ErrUnauthenticated
	}
	return Principal{User: usr, Session: sess}, nil
}

// Logout deletes the sessions matching token; other sessions of the user stay valid.
func (svc *Service) Logout(ctx context.Context, token string) (int, error) {
	if token == "" {
		return 0, nil
	}
	n, err := svc.sessions.DeleteSessionsByTokenHash(ctx, HashToken(token))
	return n, errors.Wrap(err, "deleting session")
}

// CleanupExpiredSessions removes expired sessions. Expiry is enforced at read time,
// so this is only storage hygiene.
func (svc *Service) CleanupExpiredSessions(ctx context.Context) (int, error) {
	n, err := svc.sessions.DeleteExpiredSessions(ctx, svc.now())
	return n, errors.Wrap(err, "deleting expired sessions")
}
