package router

import (
	"context"
	"net/http"

	"quacker/backend/internal/api"
	"quacker/backend/pkg/config"
	"quacker/backend/pkg/di"
	"quacker/backend/pkg/errors"
	"quacker/backend/pkg/logger"
	"quacker/backend/pkg/middleware"
	"quacker/backend/pkg/validator"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Router is the HTTP surface of the application
type Router struct {
	Engine    *gin.Engine
	Container *di.Container
	Logger    *logger.Logger
	Config    *config.Config
	Version   string

	ctx     context.Context
	limiter *middleware.RateLimiter
	schema  *validator.OpenAPIValidator
}

// New creates the engine and its global middleware. The rate limiter's
// cleanup loop stops when ctx is cancelled.
func New(ctx context.Context, container *di.Container, version string) *Router {
	cfg := container.Config

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
		container.Logger.Warn("invalid trusted proxies, trusting none", "error", err.Error())
		_ = engine.SetTrustedProxies(nil)
	}

	engine.Use(logger.Middleware(container.Logger))
	engine.Use(middleware.RequestContext())
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())
	engine.Use(middleware.CORS(cfg.Security.AllowedOrigins))
	engine.Use(maxBodySize(cfg.Security.MaxBodySize))

	r := &Router{
		Engine:    engine,
		Container: container,
		Logger:    container.Logger,
		Config:    cfg,
		Version:   version,
		ctx:       ctx,
	}

	opts := middleware.DefaultRateLimiterOptions()
	opts.Limit = rate.Limit(cfg.Security.RateLimit)
	opts.Burst = cfg.Security.RateLimitBurst
	r.limiter = middleware.NewRateLimiter(container.Logger, opts)

	return r
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	c := r.Container

	if r.Config.OpenAPI.SchemaPath != "" {
		r.AddOpenAPIValidation(r.Config.OpenAPI.SchemaPath)
	}

	api.NewHealthHandler(c.Health, r.Version).RegisterRoutes(r.Engine)
	if c.Metrics != nil {
		r.Engine.GET("/metrics", gin.WrapH(c.Metrics.Handler))
	}

	api.NewSessionHandler(c.Sessions, r.Logger).RegisterRoutes(r.Engine)

	authed := r.Engine.Group("/")
	authed.Use(c.Sessions.Require())
	api.NewChatController(c.Feed, c.Hub).RegisterRoutes(authed, r.limiter.Middleware(r.ctx))

	r.Engine.NoRoute(func(ctx *gin.Context) {
		ctx.Error(errors.NewError(http.StatusNotFound, "NOT_FOUND", "Not found"))
	})
}

// maxBodySize caps request bodies; oversized JSON then fails to bind with 400
func maxBodySize(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}
