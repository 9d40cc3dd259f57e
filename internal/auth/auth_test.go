package auth

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ferivonus/signal-relay/internal/config"
)

func TestAPIKeyVerifier(t *testing.T) {
	v := APIKeyVerifier{Expected: "secret-key"}

	if err := v.Verify("secret-key"); err != nil {
		t.Fatalf("valid key rejected: %v", err)
	}
	if err := v.Verify("wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong key: err = %v", err)
	}
	if err := v.Verify(""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("empty key: err = %v", err)
	}
	if err := (APIKeyVerifier{}).Verify("anything"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unconfigured verifier must reject: err = %v", err)
	}
}

func signHS256(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestJWTVerifier(t *testing.T) {
	secret := []byte("0123456789abcdef")
	v := JWTVerifier{Secret: secret}

	valid := signHS256(t, secret, jwt.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	if err := v.Verify(valid); err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}

	expired := signHS256(t, secret, jwt.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	if err := v.Verify(expired); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expired token: err = %v", err)
	}

	wrongKey := signHS256(t, []byte("other-secret-123"), jwt.MapClaims{"sub": "alice"})
	if err := v.Verify(wrongKey); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong-key token: err = %v", err)
	}

	if err := v.Verify("not-a-jwt"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("garbage token: err = %v", err)
	}
}

func TestNewVerifier(t *testing.T) {
	v, err := NewVerifier(config.Config{AuthMode: config.AuthModeNone})
	if err != nil || v != nil {
		t.Fatalf("none mode: v=%v err=%v", v, err)
	}

	v, err = NewVerifier(config.Config{AuthMode: config.AuthModeAPIKey, APIKey: "k"})
	if err != nil {
		t.Fatalf("api_key mode: %v", err)
	}
	if _, ok := v.(APIKeyVerifier); !ok {
		t.Fatalf("api_key mode: got %T", v)
	}

	v, err = NewVerifier(config.Config{AuthMode: config.AuthModeJWT, JWTSecret: "s"})
	if err != nil {
		t.Fatalf("jwt mode: %v", err)
	}
	if _, ok := v.(JWTVerifier); !ok {
		t.Fatalf("jwt mode: got %T", v)
	}
}

func TestCredentialFromQuery(t *testing.T) {
	q := url.Values{"apiKey": {"k1"}, "token": {"t1"}}

	cred, err := CredentialFromQuery(config.AuthModeAPIKey, q)
	if err != nil || cred != "k1" {
		t.Fatalf("api_key: cred=%q err=%v", cred, err)
	}
	cred, err = CredentialFromQuery(config.AuthModeJWT, q)
	if err != nil || cred != "t1" {
		t.Fatalf("jwt: cred=%q err=%v", cred, err)
	}
	if _, err := CredentialFromQuery(config.AuthModeAPIKey, url.Values{}); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("missing credential: err = %v", err)
	}
}
