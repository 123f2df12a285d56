// Package token mints and verifies the signed grants that tie a
// (app, room, user, role) tuple to a time window. A grant is the only trust
// handoff between an app's backend and the browser: stateless to verify,
// individually identifiable through jti so a future revocation list can
// veto single grants without rotating the signing key.
package token

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Role is the part a user plays in a call.
type Role string

const (
	RoleHost        Role = "host"
	RoleParticipant Role = "participant"
	RoleViewer      Role = "viewer"
)

// Valid reports whether r is one of the three accepted roles.
func (r Role) Valid() bool {
	switch r {
	case RoleHost, RoleParticipant, RoleViewer:
		return true
	}
	return false
}

// MaxUserIDLen bounds the opaque user identifier supplied by the app.
const MaxUserIDLen = 255

var (
	// ErrInvalid covers bad signatures, malformed envelopes, unknown
	// roles and missing claims.
	ErrInvalid = errors.New("invalid token")
	// ErrExpired is returned when the signature verifies but exp has
	// passed. exp == now is already expired.
	ErrExpired = errors.New("token expired")
	// ErrRevoked is returned when the grant's jti is on the deny-list.
	ErrRevoked = errors.New("token revoked")
)

// Claims is the grant payload. Field names are part of the wire contract.
type Claims struct {
	AppID  string `json:"appId"`
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
	jwt.RegisteredClaims
}

// GrantID returns the jti claim.
func (c *Claims) GrantID() string { return c.ID }

// Revoker vetoes individual grants by jti. A nil Revoker disables the veto.
type Revoker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
	Revoke(ctx context.Context, jti string, until time.Time) error
}

// Service issues and verifies grants under a shared HMAC secret.
type Service struct {
	secret  []byte
	revoker Revoker
	now     func() time.Time
}

// NewService creates a grant service. revoker may be nil.
func NewService(secret string, revoker Revoker) *Service {
	return &Service{secret: []byte(secret), revoker: revoker, now: time.Now}
}

// Grant is an issued token plus its absolute expiry.
type Grant struct {
	Token     string    `json:"token"`
	GrantID   string    `json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Issue mints a signed grant. The caller has already authenticated as the
// owning app and checked room ownership.
func (s *Service) Issue(appID, roomID, userID string, role Role, ttl time.Duration) (*Grant, error) {
	if userID == "" || len(userID) > MaxUserIDLen {
		return nil, fmt.Errorf("%w: userId must be 1-%d characters", ErrInvalid, MaxUserIDLen)
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalid, role)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: non-positive ttl", ErrInvalid)
	}

	now := s.now()
	claims := &Claims{
		AppID:  appID,
		RoomID: roomID,
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign grant: %w", err)
	}

	return &Grant{
		Token:     signed,
		GrantID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Verify checks signature, expiry, claim shape and (when configured) the
// revocation list. The signing algorithm is pinned here; the token header's
// alg is never trusted.
func (s *Service) Verify(ctx context.Context, raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	// jwt/v5 treats exp == now as still valid; the grant contract says a
	// token expiring exactly now is already dead.
	if !claims.ExpiresAt.Time.After(s.now()) {
		return nil, ErrExpired
	}

	if claims.ID == "" || claims.AppID == "" || claims.RoomID == "" || claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing claims", ErrInvalid)
	}
	if len(claims.UserID) > MaxUserIDLen {
		return nil, fmt.Errorf("%w: userId too long", ErrInvalid)
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalid, claims.Role)
	}

	if s.revoker != nil {
		revoked, err := s.revoker.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("revocation check: %w", err)
		}
		if revoked {
			return nil, ErrRevoked
		}
	}

	return claims, nil
}

// Revoke puts a grant's jti on the deny-list until the grant would have
// expired anyway. Returns an error when no revoker is configured.
func (s *Service) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if s.revoker == nil {
		return errors.New("revocation not configured")
	}
	return s.revoker.Revoke(ctx, jti, expiresAt)
}

// ParseTTL parses the grant lifetime grammar: a positive integer followed
// by s, m, h or d. time.ParseDuration is not used because grants commonly
// run in days.
func ParseTTL(raw string) (time.Duration, error) {
	if len(raw) < 2 {
		return 0, fmt.Errorf("invalid ttl %q", raw)
	}

	unit := raw[len(raw)-1]
	n, err := strconv.Atoi(strings.TrimSpace(raw[:len(raw)-1]))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid ttl %q", raw)
	}

	switch unit {
	case 's':
		return time.Duration(n) * time.Second, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("invalid ttl unit in %q", raw)
}
