package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/institute-admin-api/internal/middleware"
	appErrors "github.com/noah-isme/institute-admin-api/pkg/errors"
	"github.com/noah-isme/institute-admin-api/pkg/logger"
	"github.com/noah-isme/institute-admin-api/pkg/middleware/requestid"
	"github.com/noah-isme/institute-admin-api/pkg/response"
)

// newRouter mounts the operational endpoints. Domain operations are not exposed over HTTP.
func newRouter(app *core, logr *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestid.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(app.metrics))

	r.GET("/health", func(c *gin.Context) {
		response.JSON(c, http.StatusOK, gin.H{"status": "ok"}, nil)
	})

	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := app.db.PingContext(ctx); err != nil {
			logr.Warn("readiness check failed", zap.Error(err))
			response.Error(c, appErrors.New("NOT_READY", http.StatusServiceUnavailable, "database unavailable"))
			return
		}
		response.JSON(c, http.StatusOK, gin.H{"status": "ready"}, nil)
	})

	r.GET("/metrics", gin.WrapH(app.metrics.Handler()))

	r.GET("/whoami", middleware.Authenticate(app.identity), func(c *gin.Context) {
		response.JSON(c, http.StatusOK, middleware.PrincipalFrom(c), nil)
	})

	return r
}
