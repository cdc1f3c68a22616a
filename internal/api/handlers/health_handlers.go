package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/relayport/relay_service/internal/infrastructure/cache"
	"github.com/relayport/relay_service/internal/infrastructure/database"
)

// HealthHandlers reports liveness and dependency health
type HealthHandlers struct {
	db     *sqlx.DB
	redis  cache.RedisClient
	logger *zap.Logger
}

func NewHealthHandlers(db *sqlx.DB, redis cache.RedisClient, logger *zap.Logger) *HealthHandlers {
	return &HealthHandlers{db: db, redis: redis, logger: logger}
}

// Liveness handles GET /health/live
func (h *HealthHandlers) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness handles GET /health/ready. Degrades to 503 when a dependency
// is unreachable.
func (h *HealthHandlers) Readiness(c *gin.Context) {
	ctx := c.Request.Context()
	checks := gin.H{}
	healthy := true

	if err := database.HealthCheck(h.db); err != nil {
		checks["database"] = err.Error()
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
		h.logger.Warn("readiness check failed", zap.Any("checks", checks))
	}
	c.JSON(status, gin.H{
		"status":    map[bool]string{true: "ok", false: "degraded"}[healthy],
		"checks":    checks,
		"timestamp": time.Now().UTC(),
	})
}
