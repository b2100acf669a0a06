package jwt

import (
	"time"
)

const defaultExpiry = 30 * 24 * time.Hour

// Service signs and verifies session tokens with one secret
type Service struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// NewService creates a session token service. A zero expiry means 30 days.
func NewService(secret string, expiry time.Duration) *Service {
	if expiry <= 0 {
		expiry = defaultExpiry
	}
	return &Service{
		secret: []byte(secret),
		expiry: expiry,
		now:    time.Now,
	}
}

// Expiry is how long issued tokens stay valid
func (s *Service) Expiry() time.Duration {
	return s.expiry
}

// Issue returns a signed token naming nickname
func (s *Service) Issue(nickname string) (string, error) {
	return Sign(s.secret, nickname, s.expiry, s.now())
}

// Verify returns the nickname carried by token
func (s *Service) Verify(token string) (string, error) {
	claims, err := Parse(s.secret, token)
	if err != nil {
		return "", err
	}
	return claims.Nickname, nil
}
