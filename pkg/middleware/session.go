package middleware

import (
	"net/http"
	"strings"

	"quacker/backend/pkg/errors"
	"quacker/backend/pkg/jwt"
	"quacker/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// SessionOptions describes the session cookie
type SessionOptions struct {
	CookieName string
	Secure     bool
}

// Sessions reads, writes and clears the nickname session cookie
type Sessions struct {
	tokens *jwt.Service
	opts   SessionOptions
	log    *logger.Logger
}

// NewSessions creates the session gate
func NewSessions(tokens *jwt.Service, opts SessionOptions, log *logger.Logger) *Sessions {
	if opts.CookieName == "" {
		opts.CookieName = "quacker_session"
	}
	return &Sessions{tokens: tokens, opts: opts, log: log}
}

// CookieName returns the configured cookie name
func (s *Sessions) CookieName() string {
	return s.opts.CookieName
}

// Nickname resolves the caller of c, reading the cookie first and
// then an Authorization bearer token.
func (s *Sessions) Nickname(c *gin.Context) (string, bool) {
	token, err := c.Cookie(s.opts.CookieName)
	if err != nil || token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	if token == "" {
		return "", false
	}

	nick, err := s.tokens.Verify(token)
	if err != nil {
		s.log.Debug("session rejected", "error", err.Error())
		return "", false
	}
	return nick, true
}

// Start sets a fresh session cookie for nickname
func (s *Sessions) Start(c *gin.Context, nickname string) error {
	token, err := s.tokens.Issue(nickname)
	if err != nil {
		return err
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.opts.CookieName, token, int(s.tokens.Expiry().Seconds()), "/", "", s.opts.Secure, true)
	return nil
}

// End expires the session cookie
func (s *Sessions) End(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.opts.CookieName, "", -1, "/", "", s.opts.Secure, true)
}

// Require rejects requests without a valid session with 401 and
// stores the nickname in the gin and request contexts otherwise.
func (s *Sessions) Require() gin.HandlerFunc {
	return func(c *gin.Context) {
		nick, ok := s.Nickname(c)
		if !ok {
			c.Error(errors.Unauthorized())
			c.Abort()
			return
		}

		c.Set(logger.NicknameKey, nick)
		c.Request = c.Request.WithContext(WithNickname(c.Request.Context(), nick))
		c.Next()
	}
}

// CurrentNickname returns the nickname stored by Require
func CurrentNickname(c *gin.Context) string {
	return c.GetString(logger.NicknameKey)
}
