package api

import (
	"net/http"
	"strings"
	"unicode/utf8"

	apperrors "quacker/backend/pkg/errors"
	"quacker/backend/pkg/logger"
	"quacker/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
)

const maxNicknameLength = 32

// SessionHandler handles login, logout and session lookup
type SessionHandler struct {
	sessions *middleware.Sessions
	policy   *bluemonday.Policy
	logger   *logger.Logger
}

// NewSessionHandler creates a session handler
func NewSessionHandler(sessions *middleware.Sessions, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		policy:   bluemonday.StrictPolicy(),
		logger:   log,
	}
}

// LoginRequest is the body of POST /login
type LoginRequest struct {
	Nickname string `json:"nickname" form:"nickname"`
}

// SessionResponse describes the current session
type SessionResponse struct {
	Nickname string `json:"nickname"`
}

// RegisterRoutes mounts the session routes
func (h *SessionHandler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/login", h.Login)
	r.GET("/logout", h.Logout)
	r.GET("/session", h.Session)
}

// CleanNickname strips markup and surrounding space. It returns "" when
// nothing usable is left or the result is too long.
func (h *SessionHandler) CleanNickname(raw string) string {
	nick := strings.TrimSpace(h.policy.Sanitize(raw))
	if nick == "" || utf8.RuneCountInString(nick) > maxNicknameLength {
		return ""
	}
	return nick
}

// Login handles POST /login. Any nickname is accepted; there is no password.
func (h *SessionHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.Error(apperrors.NewBadRequestError(apperrors.CodeInvalidRequest, "invalid login request"))
		c.Abort()
		return
	}

	nick := h.CleanNickname(req.Nickname)
	if nick == "" {
		c.Error(apperrors.NewBadRequestError(apperrors.CodeInvalidRequest, "nickname is required").
			WithDetails(gin.H{"max_length": maxNicknameLength}))
		c.Abort()
		return
	}

	if err := h.sessions.Start(c, nick); err != nil {
		c.Error(apperrors.NewInternalServerError(apperrors.CodeInternal, "could not start session").Wrap(err))
		c.Abort()
		return
	}

	logger.FromContext(c).Info("session started", "nickname", nick)
	c.JSON(http.StatusOK, SessionResponse{Nickname: nick})
}

// Logout handles GET /logout
func (h *SessionHandler) Logout(c *gin.Context) {
	h.sessions.End(c)
	c.Status(http.StatusNoContent)
}

// Session handles GET /session
func (h *SessionHandler) Session(c *gin.Context) {
	nick, ok := h.sessions.Nickname(c)
	if !ok {
		c.Error(apperrors.Unauthorized())
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, SessionResponse{Nickname: nick})
}
