package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	quotadomain "github.com/smallbiznis/tenantguard/internal/quota/domain"
	suspensiondomain "github.com/smallbiznis/tenantguard/internal/suspension/domain"
)

type suspendRequest struct {
	Summary string                  `json:"summary"`
	Reason  suspensiondomain.Reason `json:"reason"`
}

type unsuspendRequest struct {
	Reason string `json:"reason"`
}

type overrideRequest struct {
	Action  suspensiondomain.OverrideAction `json:"action"`
	Reason  string                          `json:"reason"`
	Notes   *string                         `json:"notes"`
	NewCaps quotadomain.Caps                `json:"new_caps"`
}

func (s *Server) SuspendProject(c *gin.Context) {
	projectID, err := projectIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req suspendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	res, err := s.suspensionSvc.Suspend(c.Request.Context(), suspensiondomain.SuspendRequest{
		ProjectID: projectID,
		Source:    suspensiondomain.SourceManual,
		Summary:   req.Summary,
		Reason:    req.Reason,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if res.Suspended {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"data": res})
}

func (s *Server) UnsuspendProject(c *gin.Context) {
	projectID, err := projectIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req unsuspendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	res, err := s.suspensionSvc.Unsuspend(c.Request.Context(), suspensiondomain.UnsuspendRequest{
		ProjectID: projectID,
		Source:    suspensiondomain.SourceManual,
		Reason:    req.Reason,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": res})
}

// OverrideProject runs the manual override workflow. A failed override still
// answers with the result body so the caller sees the failure code.
func (s *Server) OverrideProject(c *gin.Context) {
	projectID, err := projectIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	res := s.suspensionSvc.PerformManualOverride(c.Request.Context(), suspensiondomain.OverrideRequest{
		ProjectID: projectID,
		Action:    req.Action,
		Reason:    req.Reason,
		Notes:     req.Notes,
		NewCaps:   req.NewCaps,
	})
	if res.Success {
		c.JSON(http.StatusOK, gin.H{"data": res})
		return
	}

	_ = c.Error(overrideError(res.Code))
	c.JSON(overrideStatus(res.Code), gin.H{"data": res})
}

func (s *Server) ListSuspensions(c *gin.Context) {
	projectID, err := projectIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	active, err := s.suspensionSvc.GetActive(ctx, projectID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	history, err := s.suspensionSvc.ListHistory(ctx, projectID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	overrides, err := s.suspensionSvc.ListOverrides(ctx, projectID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"active":    active,
		"history":   history,
		"overrides": overrides,
	})
}

func (s *Server) EvaluateProject(c *gin.Context) {
	projectID, err := projectIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	evaluation, err := s.enforcementSvc.EvaluateProject(c.Request.Context(), projectID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": evaluation})
}

// overrideError recovers the sentinel behind an override failure code.
func overrideError(code string) error {
	for _, class := range errorClasses {
		for _, sentinel := range class.sentinels {
			if sentinel.Error() == code {
				return sentinel
			}
		}
	}
	return ErrInternal
}

func overrideStatus(code string) int {
	status, _ := mapError(overrideError(code))
	return status
}
