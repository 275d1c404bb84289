// Package identity verifies caller credentials. Credentials are HS256
// JWTs carrying the user's id and role, signed with a shared secret.
package identity

import (
	"time"

	"github.com/golang-jwt/jwt"

	"github.com/victornm/quizlive/internal/errors"
)

// Identity is the verified caller: who they are and what they may do.
type Identity struct {
	UserID int64
	Role   string
}

type Claims struct {
	UserID int64  `json:"userId"`
	Role   string `json:"role"`
	jwt.StandardClaims
}

type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates a credential, returning the caller's
// identity. Any malformed, mis-signed or expired token fails with
// Unauthenticated.
func (v *Verifier) Verify(token string) (Identity, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New(errors.CodeUnauthenticated,
				errors.WithMessagef("unexpected signing method %q", t.Method.Alg()))
		}
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("invalid or expired token"),
			errors.WithCause(err))
	}
	if !parsed.Valid {
		return Identity{}, errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("invalid or expired token"))
	}

	return Identity{UserID: claims.UserID, Role: claims.Role}, nil
}

// Sign issues a credential for the given user. Used by tooling and
// tests; the auth service issues production tokens with the same
// claims.
func (v *Verifier) Sign(userID int64, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
