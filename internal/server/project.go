package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	projectdomain "github.com/smallbiznis/tenantguard/internal/project/domain"
)

func (s *Server) CreateProject(c *gin.Context) {
	var req projectdomain.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	project, err := s.projectSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": project})
}

func (s *Server) GetProject(c *gin.Context) {
	projectID, err := projectIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	project, err := s.projectSvc.Get(c.Request.Context(), projectID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": project})
}

func (s *Server) GetUsageSnapshot(c *gin.Context) {
	projectID, err := projectIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	window, err := parseWindow(c.Query("window"), 24*time.Hour)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	snapshot, err := s.usageSvc.Snapshot(c.Request.Context(), projectID, window)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": snapshot})
}
