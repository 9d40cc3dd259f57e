package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// JWTVerifier accepts HS256-signed tokens. Expiry and not-before claims are
// enforced when present.
type JWTVerifier struct {
	Secret []byte
}

func (v JWTVerifier) Verify(token string) error {
	if token == "" || len(v.Secret) == 0 {
		return ErrInvalidCredentials
	}

	_, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return v.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}
	return nil
}
