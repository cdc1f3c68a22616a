package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	domainerrors "github.com/relayport/relay_service/internal/domain/errors"
	"github.com/relayport/relay_service/internal/domain/services/notifications"
)

// NotificationHandlers exposes the notification mirror over HTTP
type NotificationHandlers struct {
	synchronizer *notifications.Synchronizer
	logger       *zap.Logger
}

func NewNotificationHandlers(sync *notifications.Synchronizer, logger *zap.Logger) *NotificationHandlers {
	return &NotificationHandlers{synchronizer: sync, logger: logger}
}

// ListNotifications handles GET /v1/notifications. Served from the in-memory
// mirror, newest first.
func (h *NotificationHandlers) ListNotifications(c *gin.Context) {
	items := h.synchronizer.List()
	c.JSON(http.StatusOK, gin.H{"notifications": items, "count": len(items)})
}

// MarkAsRead handles POST /v1/notifications/:id/read
func (h *NotificationHandlers) MarkAsRead(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	if err := h.synchronizer.MarkAsRead(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}

// MarkAllAsRead handles POST /v1/notifications/read-all
func (h *NotificationHandlers) MarkAllAsRead(c *gin.Context) {
	if err := h.synchronizer.MarkAllAsRead(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "All notifications marked as read"})
}

// Dismiss handles DELETE /v1/notifications/:id
func (h *NotificationHandlers) Dismiss(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	if err := h.synchronizer.Remove(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification dismissed"})
}

func (h *NotificationHandlers) parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id", "request_id": c.GetString("request_id")})
		return uuid.Nil, false
	}
	return id, true
}

func (h *NotificationHandlers) respondError(c *gin.Context, err error) {
	requestID := c.GetString("request_id")
	switch {
	case errors.Is(err, domainerrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "request_id": requestID})
	default:
		h.logger.Error("notification request failed", zap.String("request_id", requestID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "request_id": requestID})
	}
}
