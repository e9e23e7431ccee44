package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

type tokenClaims struct {
	Exp float64 `json:"exp"`
}

// DecodeExpiry returns the token's exp claim in milliseconds since epoch.
// The signature is not verified.
func DecodeExpiry(token string) (int64, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: expected 3 segments, got %d", ErrTokenDecode, len(parts))
	}

	payload, err := decodeSegment(parts[1])
	if err != nil {
		return 0, fmt.Errorf("%w: payload: %v", ErrTokenDecode, err)
	}

	var claims tokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return 0, fmt.Errorf("%w: payload: %v", ErrTokenDecode, err)
	}
	if claims.Exp == 0 {
		return 0, fmt.Errorf("%w: token has no expiration claim", ErrTokenDecode)
	}
	ms := claims.Exp * 1000
	if ms >= math.MaxInt64 || ms < math.MinInt64 {
		return 0, fmt.Errorf("%w: exp %g out of range", ErrTokenDecode, claims.Exp)
	}

	return int64(ms), nil
}

// ExpiryTime is DecodeExpiry as a time.Time.
func ExpiryTime(token string) (time.Time, error) {
	ms, err := DecodeExpiry(token)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

// decodeSegment accepts both URL-safe and standard base64, padded or not.
func decodeSegment(seg string) ([]byte, error) {
	seg = strings.TrimRight(seg, "=")
	if b, err := base64.RawURLEncoding.DecodeString(seg); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(seg)
}
