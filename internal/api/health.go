package api

import (
	"net/http"
	"time"

	"quacker/backend/pkg/health"

	"github.com/gin-gonic/gin"
)

// HealthHandler serves liveness and readiness
type HealthHandler struct {
	checker *health.Checker
	version string
}

// NewHealthHandler creates a health handler over checker
func NewHealthHandler(checker *health.Checker, version string) *HealthHandler {
	return &HealthHandler{checker: checker, version: version}
}

// LiveResponse is the body of GET /health/live
type LiveResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// Live answers as long as the process serves HTTP
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, LiveResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	})
}

// Ready reports component status; 503 while the store is down
func (h *HealthHandler) Ready(c *gin.Context) {
	h.checker.HTTPHandler()(c.Writer, c.Request)
}

// RegisterRoutes mounts /health and /health/live
func (h *HealthHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/health", h.Ready)
	r.GET("/health/live", h.Live)
}
