package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	quotadomain "github.com/smallbiznis/tenantguard/internal/quota/domain"
)

type setQuotaRequest struct {
	Value *int64 `json:"value"`
}

type bulkQuotaRequest struct {
	Updates []quotadomain.CapUpdate `json:"updates"`
}

func (s *Server) ListQuotas(c *gin.Context) {
	projectID, err := projectIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	caps, err := s.quotaSvc.List(c.Request.Context(), projectID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"project_id": projectID.String(),
		"caps":       caps,
	})
}

func (s *Server) GetQuota(c *gin.Context) {
	projectID, err := projectIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	capType := quotadomain.CapType(c.Param("cap_type"))

	value, err := s.quotaSvc.Get(c.Request.Context(), projectID, capType)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"project_id": projectID.String(),
		"cap_type":   capType,
		"value":      value,
	})
}

func (s *Server) SetQuota(c *gin.Context) {
	projectID, err := projectIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req setQuotaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Value == nil {
		AbortWithError(c, newValidationError("value", "required", "value is required"))
		return
	}

	quota, err := s.quotaSvc.Set(c.Request.Context(), quotadomain.SetRequest{
		ProjectID: projectID,
		CapType:   quotadomain.CapType(c.Param("cap_type")),
		Value:     *req.Value,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": quota})
}

func (s *Server) BulkUpdateQuotas(c *gin.Context) {
	projectID, err := projectIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req bulkQuotaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	caps, err := s.quotaSvc.BulkUpdate(c.Request.Context(), quotadomain.BulkUpdateRequest{
		ProjectID: projectID,
		Updates:   req.Updates,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"project_id": projectID.String(),
		"caps":       caps,
	})
}
