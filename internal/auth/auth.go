// Package auth verifies session bearer tokens. Issuing sessions belongs to
// the external identity service; this side only needs the shared secret.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the token payload; Subject carries the user id.
type Claims struct {
	jwt.RegisteredClaims
}

// Verifier validates HS256 session tokens.
type Verifier struct {
	Secret []byte
}

// Sign mints a token for the given user id. Used by tests and dev tooling;
// production tokens come from the identity service.
func (v Verifier) Sign(userID string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.Secret)
}

// Verify parses a token and returns the user id it names.
func (v Verifier) Verify(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return v.Secret, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return "", errors.New("invalid token")
	}
	return claims.Subject, nil
}
