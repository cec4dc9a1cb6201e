package store

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/alvarodevlabs/DisfrutaTV/pkg/domain"
)

const sessionIssuer = "disfrutatv"

var sessionLeeway = 30 * time.Second

var (
	// ErrInvalidToken covers bad signatures and malformed tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired indicates the token's exp has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked indicates the token's jti is in the revocation set.
	ErrTokenRevoked = errors.New("token revoked")
)

// sessionClaims embeds the identity snapshot alongside registered claims.
// The subject carries the user ID; username/email/role are captured at
// issuance and intentionally never refreshed during the session.
type sessionClaims struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// SessionTokens issues and validates HS256 session tokens. The signing
// secret is process-wide and loaded once at startup.
type SessionTokens struct {
	secret  []byte
	ttl     time.Duration
	revoker TokenRevoker
}

// NewSessionTokens builds the session token service.
func NewSessionTokens(secret string, ttl time.Duration, revoker TokenRevoker) (*SessionTokens, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("session token secret is required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionTokens{
		secret:  []byte(secret),
		ttl:     ttl,
		revoker: revoker,
	}, nil
}

// Issue creates a signed session token for the user with a fresh jti.
func (s *SessionTokens) Issue(user domain.User) (string, error) {
	now := time.Now().UTC()
	claims := sessionClaims{
		Username: user.Username,
		Email:    user.Email,
		Role:     string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks signature, expiry, and jti revocation, in that order, and
// returns the identity snapshot embedded at issuance.
func (s *SessionTokens) Verify(token string) (domain.Identity, error) {
	claims, err := s.parse(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Identity{}, ErrTokenExpired
		}
		return domain.Identity{}, ErrInvalidToken
	}
	if s.revoker != nil {
		revoked, err := s.revoker.IsRevoked(claims.ID)
		if err != nil {
			return domain.Identity{}, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return domain.Identity{}, ErrTokenRevoked
		}
	}
	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return domain.Identity{}, ErrInvalidToken
	}
	return domain.Identity{
		UserID:   uint(userID),
		Username: claims.Username,
		Email:    claims.Email,
		Role:     domain.UserRole(claims.Role),
	}, nil
}

// Revoke adds the token's jti to the revocation set for the remainder of
// the token's lifetime. Idempotent; a token that no longer parses is
// treated as already dead.
func (s *SessionTokens) Revoke(token string) error {
	if s.revoker == nil {
		return nil
	}
	claims, err := s.parse(token)
	if err != nil {
		return nil
	}
	if claims.ExpiresAt == nil {
		return nil
	}
	return s.revoker.Revoke(claims.ID, time.Until(claims.ExpiresAt.Time))
}

func (s *SessionTokens) parse(token string) (sessionClaims, error) {
	claims := sessionClaims{}
	token = strings.TrimSpace(token)
	if token == "" {
		return claims, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(sessionLeeway),
	)
	if err != nil {
		return claims, err
	}
	if !parsed.Valid {
		return claims, ErrInvalidToken
	}
	if strings.TrimSpace(claims.ID) == "" {
		return claims, ErrInvalidToken
	}
	return claims, nil
}
