package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relayport/relay_service/internal/api/handlers"
	"github.com/relayport/relay_service/internal/api/middleware"
	"github.com/relayport/relay_service/pkg/logger"
)

// Dependencies wires the handler set into the router
type Dependencies struct {
	Bridge        *handlers.BridgeHandlers
	Notifications *handlers.NotificationHandlers
	Health        *handlers.HealthHandlers
	Logger        *logger.Logger
	Environment   string
}

// SetupRouter builds the gin engine with middleware and all routes
func SetupRouter(deps Dependencies) *gin.Engine {
	if deps.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(deps.Logger))
	router.Use(middleware.Recovery(deps.Logger))
	router.Use(middleware.CORS([]string{"*"}))
	router.Use(middleware.RequestSizeLimit())

	limiter := middleware.NewRateLimiter(20, 40)
	router.Use(limiter.Middleware())

	router.GET("/health/live", deps.Health.Liveness)
	router.GET("/health/ready", deps.Health.Readiness)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		bridge := v1.Group("/bridge")
		{
			bridge.POST("", deps.Bridge.StartBridge)
			bridge.GET("", deps.Bridge.ListBridges)
			bridge.GET("/:id", deps.Bridge.GetBridge)
			bridge.POST("/:id/retry", deps.Bridge.RetryBridge)
			bridge.POST("/:id/cancel", deps.Bridge.CancelBridge)
		}

		notifications := v1.Group("/notifications")
		{
			notifications.GET("", deps.Notifications.ListNotifications)
			notifications.POST("/read-all", deps.Notifications.MarkAllAsRead)
			notifications.POST("/:id/read", deps.Notifications.MarkAsRead)
			notifications.DELETE("/:id", deps.Notifications.Dismiss)
		}
	}

	return router
}
