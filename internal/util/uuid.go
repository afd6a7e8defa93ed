package util

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// ShortUUID generates a short UUID with 22 symbols
func ShortUUID() string {
	u := uuid.New()
	return base64.RawURLEncoding.EncodeToString(u[:]) // 22 symbols
}

// GenerateUUIDWithLength generates a UUID with a specified length
func GenerateUUIDWithLength(length int) (string, error) {
	u := uuid.New()
	encoded := base64.RawURLEncoding.EncodeToString(u[:]) // 22 symbols without padding

	if length > len(encoded) {
		return "", errors.New("requested length exceeds the maximum possible")
	}

	return encoded[:length], nil
}

// MatchCode derives the short human-enterable code players use to find a match
func MatchCode(matchID string) string {
	code := strings.ToUpper(strings.ReplaceAll(matchID, "-", ""))
	if len(code) > 6 {
		code = code[:6]
	}
	return code
}
