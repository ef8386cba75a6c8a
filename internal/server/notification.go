package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	notificationdomain "github.com/smallbiznis/tenantguard/internal/notification/domain"
)

type retryNotificationsRequest struct {
	MaxAttempts int `json:"max_attempts"`
}

func (s *Server) ListNotifications(c *gin.Context) {
	var req notificationdomain.ListNotificationRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	res, err := s.notificationSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (s *Server) GetNotification(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"), "notification_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	n, err := s.notificationSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": n})
}

// RetryNotifications flips failed notifications back to retrying. The body
// is optional and defaults to the configured attempt budget.
func (s *Server) RetryNotifications(c *gin.Context) {
	req := retryNotificationsRequest{MaxAttempts: s.cfg.Notification.MaxAttempts}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	res, err := s.notificationSvc.RetryFailedNotifications(c.Request.Context(), req.MaxAttempts)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": res})
}
