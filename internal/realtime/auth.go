package realtime

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrUnauthorized = errors.New("missing or invalid token")

// Identity is the authenticated user behind a connection or request
type Identity struct {
	UserID   string
	Username string
}

// TokenValidator checks HMAC-signed bearer tokens issued by the auth service
type TokenValidator struct {
	secret []byte
}

// NewTokenValidator creates a validator for the shared secret
func NewTokenValidator(secret string) *TokenValidator {
	return &TokenValidator{secret: []byte(secret)}
}

// Validate parses the token and returns the identity in its claims.
// Expiry is enforced when the token carries one.
func (v *TokenValidator) Validate(tokenStr string) (Identity, error) {
	if tokenStr == "" {
		return Identity{}, ErrUnauthorized
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Identity{}, ErrUnauthorized
	}

	// older tokens carry id/username instead of sub/usr
	id := stringClaim(claims, "sub", "id")
	if id == "" {
		return Identity{}, fmt.Errorf("%w: no subject claim", ErrUnauthorized)
	}
	return Identity{UserID: id, Username: stringClaim(claims, "usr", "username")}, nil
}

// IssueToken signs a token for the identity. Used by development tools; real
// tokens come from the auth service.
func (v *TokenValidator) IssueToken(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": id.UserID,
		"usr": id.Username,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

func stringClaim(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		switch val := claims[key].(type) {
		case string:
			if val != "" {
				return val
			}
		case float64:
			return fmt.Sprintf("%.0f", val)
		}
	}
	return ""
}

// TokenFromRequest reads the bearer token from the Authorization header or,
// for browser WebSocket clients, the token query parameter
func TokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
