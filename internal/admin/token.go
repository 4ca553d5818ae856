// Package admin holds the admin-surface concerns: session tokens,
// password verification, and the audit log.
package admin

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenSubject = "admin"

// DefaultSessionTTL matches the admin session cookie lifetime.
const DefaultSessionTTL = 2 * time.Hour

var ErrInvalidToken = errors.New("invalid admin token")

type Config struct {
	Password   string        `mapstructure:"password"`
	JWTSecret  string        `mapstructure:"jwt_secret"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

func (c Config) TTL() time.Duration {
	if c.SessionTTL == 0 {
		return DefaultSessionTTL
	}
	return c.SessionTTL
}

// GenerateToken issues a signed admin session token.
func GenerateToken(cfg Config) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   tokenSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL())),
	})
	return token.SignedString([]byte(cfg.JWTSecret))
}

// ValidateToken verifies signature, expiry and subject.
func ValidateToken(secret, tokenString string) error {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		return ErrInvalidToken
	}
	if !token.Valid || claims.Subject != tokenSubject {
		return ErrInvalidToken
	}
	return nil
}
