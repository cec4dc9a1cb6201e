package store

import (
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// DefaultResetTTL is how long a password-reset token stays valid.
const DefaultResetTTL = 30 * time.Minute

// ResetTokens issues and validates password-reset tokens. They carry only
// the user ID, so a later email or role change cannot be replayed out of a
// stale signed snapshot. They are signed with their own secret and are not
// subject to the session revocation set.
type ResetTokens struct {
	secret []byte
	ttl    time.Duration
}

// NewResetTokens builds the reset token service.
func NewResetTokens(secret string, ttl time.Duration) (*ResetTokens, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("reset token secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultResetTTL
	}
	return &ResetTokens{secret: []byte(secret), ttl: ttl}, nil
}

// Issue creates a signed reset token for the user.
func (r *ResetTokens) Issue(userID uint) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(r.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}

// Verify returns the originating user ID. Signature failures, malformed
// payloads, and expiry all collapse into ok=false so callers cannot tell
// them apart; the specific cause is only logged.
func (r *ResetTokens) Verify(token string) (uint, bool) {
	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(strings.TrimSpace(token), &claims, func(t *jwt.Token) (any, error) {
		return r.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
	)
	if err != nil || !parsed.Valid {
		slog.Debug("reset token rejected", "err", err)
		return 0, false
	}
	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		slog.Debug("reset token subject malformed", "err", err)
		return 0, false
	}
	return uint(userID), true
}
