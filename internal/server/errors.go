package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/tenantguard/internal/audit/domain"
	detectiondomain "github.com/smallbiznis/tenantguard/internal/detection/domain"
	enforcementdomain "github.com/smallbiznis/tenantguard/internal/enforcement/domain"
	notificationdomain "github.com/smallbiznis/tenantguard/internal/notification/domain"
	projectdomain "github.com/smallbiznis/tenantguard/internal/project/domain"
	quotadomain "github.com/smallbiznis/tenantguard/internal/quota/domain"
	suspensiondomain "github.com/smallbiznis/tenantguard/internal/suspension/domain"
	usagedomain "github.com/smallbiznis/tenantguard/internal/usage/domain"
	"github.com/smallbiznis/tenantguard/pkg/validation"
	"gorm.io/gorm"
)

type ValidationError = validation.FieldError

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{{Field: field, Code: code, Message: message}},
	}
}

// errorClass groups domain sentinels that share one HTTP response.
type errorClass struct {
	status    int
	kind      string
	message   string
	sentinels []error
}

var (
	validationClass = errorClass{
		status:  http.StatusBadRequest,
		kind:    "validation_error",
		message: "validation error",
		sentinels: []error{
			ErrInvalidRequest,
			projectdomain.ErrInvalidRequest,
			projectdomain.ErrInvalidProject,
			quotadomain.ErrInvalidRequest,
			quotadomain.ErrInvalidProject,
			quotadomain.ErrInvalidCapType,
			quotadomain.ErrOutOfRange,
			suspensiondomain.ErrInvalidRequest,
			suspensiondomain.ErrInvalidProject,
			suspensiondomain.ErrCapsRequired,
			suspensiondomain.ErrCapsNotAllowed,
			detectiondomain.ErrInvalidRequest,
			detectiondomain.ErrInvalidProject,
			enforcementdomain.ErrInvalidProject,
			usagedomain.ErrInvalidRequest,
			usagedomain.ErrInvalidProject,
			usagedomain.ErrInvalidMetric,
			usagedomain.ErrInvalidValue,
			usagedomain.ErrInvalidRecordedAt,
			usagedomain.ErrInvalidWindow,
			notificationdomain.ErrInvalidRequest,
			notificationdomain.ErrInvalidType,
			notificationdomain.ErrInvalidMaxAttempts,
			notificationdomain.ErrInvalidPageToken,
			auditdomain.ErrInvalidProject,
			auditdomain.ErrInvalidPageToken,
			auditdomain.ErrInvalidTimeRange,
		},
	}
	internalClass = errorClass{
		status:  http.StatusInternalServerError,
		kind:    "internal_error",
		message: "internal server error",
	}
	errorClasses = []errorClass{
		validationClass,
		{
			status:    http.StatusUnauthorized,
			kind:      "unauthorized",
			message:   "caller identity required",
			sentinels: []error{ErrUnauthorized, suspensiondomain.ErrMissingActor},
		},
		{
			status:    http.StatusConflict,
			kind:      "conflict",
			message:   "conflict",
			sentinels: []error{ErrConflict, projectdomain.ErrUserExists},
		},
		{
			status:  http.StatusNotFound,
			kind:    "not_found",
			message: "not found",
			sentinels: []error{
				ErrNotFound,
				projectdomain.ErrProjectNotFound,
				quotadomain.ErrProjectNotFound,
				suspensiondomain.ErrProjectNotFound,
				enforcementdomain.ErrProjectNotFound,
				notificationdomain.ErrNotificationMissing,
				gorm.ErrRecordNotFound,
			},
		},
		{
			status:    http.StatusServiceUnavailable,
			kind:      "service_unavailable",
			message:   "service unavailable",
			sentinels: []error{ErrServiceUnavailable},
		},
	}
)

func (c errorClass) match(err error) error {
	for _, sentinel := range c.sentinels {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return nil
}

func (c errorClass) payload(fields []ValidationError) errorPayload {
	return errorPayload{Type: c.kind, Message: c.message, Errors: fields}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return internalClass.status, internalClass.payload(nil)
	}

	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return validationClass.status, validationClass.payload(vErr.Errors)
	}
	if fields := validation.FieldErrors(err); len(fields) > 0 {
		return validationClass.status, validationClass.payload(fields)
	}

	for _, class := range errorClasses {
		sentinel := class.match(err)
		if sentinel == nil {
			continue
		}
		if class.kind != validationClass.kind {
			return class.status, class.payload(nil)
		}
		code := sentinel.Error()
		return class.status, class.payload([]ValidationError{{
			Field:   fieldForCode(code),
			Code:    code,
			Message: messageForCode(code),
		}})
	}
	return internalClass.status, internalClass.payload(nil)
}

// classifyErrorForLog reports the payload type and the most specific code for err.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func fieldForCode(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "out_of_range":
		return "value"
	case "new_caps_required", "new_caps_not_allowed":
		return "new_caps"
	}
	return strings.TrimPrefix(code, "invalid_")
}

func messageForCode(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "out_of_range":
		return "value is outside the allowed range"
	case "new_caps_required":
		return "new_caps is required for this action"
	case "new_caps_not_allowed":
		return "new_caps is not allowed for this action"
	default:
		return "invalid value"
	}
}
