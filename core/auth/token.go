package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/imusici/accademia/core/user"
)

const (
	audience         = "accademia"
	stepSession      = "session"
	stepSecondFactor = "second_factor"
)

var errInvalidToken = errors.New("invalid token")

// Claims represents the claims carried by session and pending second-factor tokens.
type Claims struct {
	jwt.StandardClaims
	Role user.Role `json:"role,omitempty"`
	Step string    `json:"step"`
}

type tokenIssuer struct {
	key    []byte
	issuer string
}

func (ti tokenIssuer) newClaims(usr user.User, step string, now time.Time, ttl time.Duration) *Claims {
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.NewString(),
			Issuer:    ti.issuer,
			Subject:   usr.ID,
			Audience:  audience,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
		Role: usr.Role,
		Step: step,
	}
}

// sign generates a signed JWT token string representing the Claims.
func (ti tokenIssuer) sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString(ti.key)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// parse verifies the token signature and returns its claims.
// Time based claims are checked by the caller against its own clock.
func (ti tokenIssuer) parse(tokenStr string) (*Claims, error) {
	parser := jwt.Parser{SkipClaimsValidation: true}
	claims := new(Claims)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errInvalidToken
		}
		return ti.key, nil
	})
	if err != nil || !token.Valid {
		return nil, errInvalidToken
	}
	if claims.Issuer != ti.issuer || claims.Audience != audience {
		return nil, errInvalidToken
	}
	return claims, nil
}

// HashToken is the digest a session is stored and looked up by. The token itself is never persisted.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
