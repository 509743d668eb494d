// Package auth verifies the bearer tokens clients present on the socket and
// the solo HTTP routes.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DoyleJ11/word-duel-backend/internal/apperr"
	"github.com/DoyleJ11/word-duel-backend/internal/types"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the token payload. The subject is the user id.
type Claims struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	jwt.RegisteredClaims
}

type Verifier interface {
	Verify(token string) (types.UserRef, error)
}

type Option func(*HMAC)

func WithIssuer(issuer string) Option {
	return func(h *HMAC) { h.issuer = issuer }
}

// WithTimeFunc overrides the clock used for expiry checks and issuing.
func WithTimeFunc(now func() time.Time) Option {
	return func(h *HMAC) { h.now = now }
}

// HMAC signs and verifies HS256 tokens with a shared secret.
type HMAC struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewHMAC(secret string, opts ...Option) (*HMAC, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: secret is required")
	}
	h := &HMAC{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *HMAC) Verify(raw string) (types.UserRef, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "Bearer "))
	if raw == "" {
		return types.UserRef{}, apperr.Errorf(apperr.CodeUnauthenticated, "missing token")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(h.now),
		jwt.WithExpirationRequired(),
	}
	if h.issuer != "" {
		opts = append(opts, jwt.WithIssuer(h.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return h.secret, nil
	}, opts...)
	if err != nil {
		return types.UserRef{}, apperr.Errorf(apperr.CodeUnauthenticated, "invalid token: %v", err)
	}
	if claims.Subject == "" {
		return types.UserRef{}, apperr.Errorf(apperr.CodeUnauthenticated, "token has no subject")
	}

	name := claims.Name
	if name == "" {
		name = claims.Subject
	}
	return types.UserRef{ID: claims.Subject, DisplayName: name, AvatarRef: claims.Avatar}, nil
}

// Issue mints a token for user valid for ttl.
func (h *HMAC) Issue(user types.UserRef, ttl time.Duration) (string, error) {
	now := h.now()
	claims := Claims{
		Name:   user.DisplayName,
		Avatar: user.AvatarRef,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    h.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}
