package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	detectiondomain "github.com/smallbiznis/tenantguard/internal/detection/domain"
)

func (s *Server) GetDetectionConfig(c *gin.Context) {
	projectID, err := projectIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	spike, err := s.detectionSvc.SpikeConfig(ctx, projectID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	errorRate, err := s.detectionSvc.ErrorRateConfig(ctx, projectID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"spike":      spike,
		"error_rate": errorRate,
	})
}

func (s *Server) UpsertSpikeConfig(c *gin.Context) {
	projectID, err := projectIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req detectiondomain.UpsertSpikeConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ProjectID = projectID

	cfg, err := s.detectionSvc.UpsertSpikeConfig(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": cfg})
}

func (s *Server) UpsertErrorRateConfig(c *gin.Context) {
	projectID, err := projectIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req detectiondomain.UpsertErrorRateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ProjectID = projectID

	cfg, err := s.detectionSvc.UpsertErrorRateConfig(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": cfg})
}
