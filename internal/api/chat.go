package api

import (
	"errors"
	"net/http"
	"strconv"

	"quacker/backend/internal/models"
	"quacker/backend/internal/service"
	"quacker/backend/internal/ws"
	apperrors "quacker/backend/pkg/errors"
	"quacker/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// Query parameter defaults for GET /chat. A negative limit tells the feed
// service to use its configured page size.
const (
	defaultFrom  = 0
	defaultLimit = -1
)

// ChatController serves the message feed
type ChatController struct {
	feed *service.FeedService
	hub  *ws.Hub
}

// NewChatController creates a chat controller. hub may be nil to disable /ws.
func NewChatController(feed *service.FeedService, hub *ws.Hub) *ChatController {
	return &ChatController{feed: feed, hub: hub}
}

// PostMessageRequest is the body of POST /chat
type PostMessageRequest struct {
	Message string `json:"message" form:"message" binding:"required"`
}

// RegisterRoutes mounts the feed routes on an authenticated group
func (h *ChatController) RegisterRoutes(authed *gin.RouterGroup, postLimiter gin.HandlerFunc) {
	authed.GET("/chat", h.List)
	if postLimiter != nil {
		authed.POST("/chat", postLimiter, h.Post)
	} else {
		authed.POST("/chat", h.Post)
	}
	if h.hub != nil {
		authed.GET("/ws", h.Socket)
	}
}

// ParseRange reads from/to/limit. Missing or non-numeric values fall back
// to 0, unbounded and the configured default limit; a negative "to" also
// means unbounded.
func ParseRange(c *gin.Context) models.RangeRequest {
	req := models.RangeRequest{
		From:  defaultFrom,
		Limit: defaultLimit,
	}
	if v, err := strconv.ParseInt(c.Query("from"), 10, 64); err == nil {
		req.From = v
	}
	if v, err := strconv.ParseInt(c.Query("to"), 10, 64); err == nil && v >= 0 {
		req.To = &v
	}
	if v, err := strconv.Atoi(c.Query("limit")); err == nil {
		req.Limit = v
	}
	return req
}

// List handles GET /chat
func (h *ChatController) List(c *gin.Context) {
	messages, err := h.feed.Query(c.Request.Context(), ParseRange(c))
	if err != nil {
		c.Error(storeError(err))
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, messages)
}

// Post handles POST /chat
func (h *ChatController) Post(c *gin.Context) {
	var req PostMessageRequest
	if err := c.ShouldBind(&req); err != nil {
		c.Error(apperrors.NewBadRequestError(apperrors.CodeInvalidRequest, "body must carry a non-empty message"))
		c.Abort()
		return
	}

	msg, err := h.feed.Post(c.Request.Context(), middleware.CurrentNickname(c), req.Message)
	if err != nil {
		c.Error(storeError(err))
		c.Abort()
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// Socket handles GET /ws
func (h *ChatController) Socket(c *gin.Context) {
	h.hub.ServeWs(c, middleware.CurrentNickname(c))
}

func storeError(err error) error {
	if errors.Is(err, service.ErrStoreUnavailable) {
		return apperrors.StoreUnavailable(err)
	}
	return err
}
