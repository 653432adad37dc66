package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/nextmonthlab/progress-versioning/internal/handler"
	"github.com/nextmonthlab/progress-versioning/internal/middleware"
	"github.com/nextmonthlab/progress-versioning/pkg/jwt"
	"github.com/redis/go-redis/v9"
)

// Setup configures the version engine API routes. Reads are public;
// mutations require authentication and are rate limited.
func Setup(router *gin.Engine, h *handler.VersionHandler, jwtManager *jwt.Manager, redisClient *redis.Client, rateLimitCfg middleware.RateLimitConfig) {
	api := router.Group("/api/v1")
	auth := middleware.JWTAuth(jwtManager)
	rateLimit := middleware.RateLimit(redisClient, rateLimitCfg)

	// Versions
	versions := api.Group("/versions")
	versions.POST("", auth, rateLimit, h.CreateVersion)
	versions.GET("/:versionId", h.GetVersion)
	versions.GET("/:versionId/compare/:otherId", h.CompareVersions)
	versions.POST("/:versionId/restore", auth, rateLimit, h.RestoreVersion)
	versions.PATCH("/:versionId/status", auth, rateLimit, h.UpdateVersionStatus)

	// Entity-scoped history and audit log
	entities := api.Group("/entities/:entityType/:entityId")
	entities.GET("/versions", h.GetHistory)
	entities.GET("/versions/latest", h.GetLatestVersion)
	entities.GET("/activity", h.GetActivityLog)
}
