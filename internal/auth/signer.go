package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSecret is returned when a Signer has no key to sign with
var ErrNoSecret = errors.New("jwt signer: secret is empty")

// Signer mints short-lived HS256 bearer tokens for the remote store
// (PostgREST verifies them with the shared JWT secret).
type Signer struct {
	Secret  string
	Subject string
	Role    string // postgres role claim, e.g. "authenticated"
	Issuer  string
	TTL     time.Duration

	now func() time.Time
}

// NewSigner returns a signer with a default TTL of five minutes
func NewSigner(secret, subject, role string) *Signer {
	return &Signer{Secret: secret, Subject: subject, Role: role, TTL: 5 * time.Minute}
}

// Token returns a freshly signed token
func (s *Signer) Token() (string, error) {
	if s.Secret == "" {
		return "", ErrNoSecret
	}
	now := time.Now()
	if s.now != nil {
		now = s.now()
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	claims := jwt.MapClaims{
		"sub": s.Subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if s.Role != "" {
		claims["role"] = s.Role
	}
	if s.Issuer != "" {
		claims["iss"] = s.Issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.Secret))
}
