package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	usagedomain "github.com/smallbiznis/tenantguard/internal/usage/domain"
)

func (s *Server) RecordUsage(c *gin.Context) {
	var req usagedomain.RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.usageSvc.Record(c.Request.Context(), req); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}
