package realtime

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenValidator(t *testing.T) {
	v := NewTokenValidator("test-secret")

	token, err := v.IssueToken(Identity{UserID: "u1", Username: "runner"}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken = %v", err)
	}
	id, err := v.Validate(token)
	if err != nil {
		t.Fatalf("Validate = %v", err)
	}
	if id.UserID != "u1" || id.Username != "runner" {
		t.Errorf("identity = %+v", id)
	}

	expired, _ := v.IssueToken(Identity{UserID: "u1"}, -time.Minute)
	if _, err := v.Validate(expired); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expired token: err = %v, want ErrUnauthorized", err)
	}

	foreign, _ := NewTokenValidator("other-secret").IssueToken(Identity{UserID: "u1"}, time.Hour)
	if _, err := v.Validate(foreign); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("wrong secret: err = %v, want ErrUnauthorized", err)
	}

	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := v.Validate(unsigned); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("alg none: err = %v, want ErrUnauthorized", err)
	}

	if _, err := v.Validate(""); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("empty token: err = %v, want ErrUnauthorized", err)
	}
}

func TestTokenValidatorLegacyClaims(t *testing.T) {
	v := NewTokenValidator("test-secret")
	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":       42,
		"username": "legacy",
	}).SignedString([]byte("test-secret"))

	id, err := v.Validate(token)
	if err != nil {
		t.Fatalf("Validate = %v", err)
	}
	if id.UserID != "42" || id.Username != "legacy" {
		t.Errorf("identity = %+v", id)
	}

	noSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"usr": "x"}).SignedString([]byte("test-secret"))
	if _, err := v.Validate(noSubject); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("no subject: err = %v, want ErrUnauthorized", err)
	}
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?token=from-query", nil)
	if got := TokenFromRequest(r); got != "from-query" {
		t.Errorf("query token = %q", got)
	}

	r.Header.Set("Authorization", "Bearer from-header")
	if got := TokenFromRequest(r); got != "from-header" {
		t.Errorf("header token = %q", got)
	}

	r.Header.Set("Authorization", "Basic abc")
	if got := TokenFromRequest(r); got != "" {
		t.Errorf("basic auth token = %q, want empty", got)
	}
}
