package security

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the envelope shared by every endpoint.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Code    string      `json:"code,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

// FieldError is one entry of the errors[] array returned on validation failures.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Common error codes
const (
	// Authentication errors
	CodeMissingToken           = "MISSING_TOKEN"
	CodeInvalidToken           = "INVALID_TOKEN"
	CodeInvalidTokenFormat     = "INVALID_TOKEN_FORMAT"
	CodeInvalidUserInfo        = "INVALID_USER_INFO"
	CodeUserNotFoundOrInactive = "USER_NOT_FOUND_OR_INACTIVE"
	CodeAuthVerificationError  = "AUTH_VERIFICATION_ERROR"
	CodeUserNotAuthenticated   = "USER_NOT_AUTHENTICATED"
	CodeInvalidCredentials     = "INVALID_CREDENTIALS"

	// Authorization errors
	CodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	CodePermissionCheckError    = "PERMISSION_CHECK_ERROR"

	// Validation errors
	CodeValidationError = "VALIDATION_ERROR"

	// Resource errors
	CodeResourceNotFound = "RESOURCE_NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeBusinessRule     = "BUSINESS_RULE_VIOLATION"

	// Server errors
	CodeDatabaseError      = "DATABASE_ERROR"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeUpstreamError      = "UPSTREAM_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// SendError sends a failed envelope.
func SendError(c *gin.Context, statusCode int, errorCode, message string, errs interface{}) {
	c.JSON(statusCode, Response{
		Success: false,
		Message: message,
		Code:    errorCode,
		Errors:  errs,
	})
}

// SendSuccess sends a successful envelope with data.
func SendSuccess(c *gin.Context, statusCode int, data interface{}, message string) {
	c.JSON(statusCode, Response{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// SendValidationError sends a 400 with field-level errors.
func SendValidationError(c *gin.Context, message string, errs []FieldError) {
	if errs == nil {
		errs = []FieldError{}
	}
	SendError(c, http.StatusBadRequest, CodeValidationError, message, errs)
}

// SendBindingError translates a gin binding failure into a validation error response.
func SendBindingError(c *gin.Context, err error) {
	SendValidationError(c, "Invalid input data", FieldErrors(err))
}

// SendNotFoundError sends a not found error response
func SendNotFoundError(c *gin.Context, resource string) {
	SendError(c, http.StatusNotFound, CodeResourceNotFound, "The requested "+resource+" was not found", nil)
}

// SendConflictError sends a 409 with a human-readable message.
func SendConflictError(c *gin.Context, message string) {
	SendError(c, http.StatusConflict, CodeConflict, message, nil)
}

// SendBusinessError sends a 400 for a rule violation detected after validation.
func SendBusinessError(c *gin.Context, message string) {
	SendError(c, http.StatusBadRequest, CodeBusinessRule, message, nil)
}

// SendDatabaseError sends an opaque 500. The cause must be logged by the caller.
func SendDatabaseError(c *gin.Context, message string) {
	SendError(c, http.StatusInternalServerError, CodeDatabaseError, message, nil)
}
