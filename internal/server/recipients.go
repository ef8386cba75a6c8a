package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	projectdomain "github.com/smallbiznis/tenantguard/internal/project/domain"
)

type memberRequest struct {
	Role string `json:"role"`
}

type preferenceRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) CreateUser(c *gin.Context) {
	var req projectdomain.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	user, err := s.projectSvc.CreateUser(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": user})
}

// PutMember adds a user to an organization or changes their role.
func (s *Server) PutMember(c *gin.Context) {
	orgID, err := parseSnowflakeID(c.Param("org_id"), "org_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	userID, err := parseSnowflakeID(c.Param("user_id"), "user_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.projectSvc.AddMember(c.Request.Context(), projectdomain.AddMemberRequest{
		OrgID:  orgID,
		UserID: userID,
		Role:   req.Role,
	}); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// PutPreference opts a user in or out of one notification type.
func (s *Server) PutPreference(c *gin.Context) {
	userID, err := parseSnowflakeID(c.Param("user_id"), "user_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req preferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		AbortWithError(c, newValidationError("enabled", "required", "This field is required"))
		return
	}

	if err := s.projectSvc.SetPreference(c.Request.Context(), projectdomain.SetPreferenceRequest{
		UserID:           userID,
		NotificationType: c.Param("type"),
		Enabled:          *req.Enabled,
	}); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
