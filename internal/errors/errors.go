package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/lgu-eportal/rptpay/internal/middleware"
)

// Error code constants for standardized error responses
const (
	ErrNotFound             = "NOT_FOUND"
	ErrBadRequest           = "BAD_REQUEST"
	ErrInternalServer       = "INTERNAL_SERVER_ERROR"
	ErrValidation           = "VALIDATION_ERROR"
	ErrDatabaseConnection   = "DATABASE_CONNECTION_ERROR"
	ErrRateLimited          = "RATE_LIMITED"
	ErrNoActiveVerification = "NO_ACTIVE_VERIFICATION"
	ErrVerificationExpired  = "VERIFICATION_EXPIRED"
	ErrTooManyAttempts      = "TOO_MANY_ATTEMPTS"
	ErrInvalidCode          = "INVALID_CODE"
	ErrNothingPayable       = "NOTHING_PAYABLE"
	ErrPaymentFailed        = "PAYMENT_FAILED"
	ErrNotificationFailed   = "NOTIFICATION_FAILED"
)

// SystemErrorMessage is the only text a client sees for unexpected failures.
const SystemErrorMessage = "A system error occurred. Please try again later."

// ErrorResponse is the top-level error response structure.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error information.
type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// Respond writes an error envelope with the given status and code and aborts
// the handler chain. Client errors are logged as warnings.
func Respond(c *gin.Context, status int, code, message string, details map[string]interface{}) {
	log := middleware.GetLogger(c)
	requestID := middleware.GetRequestID(c)

	if log != nil {
		fields := map[string]interface{}{
			"code":       code,
			"message":    message,
			"request_id": requestID,
			"path":       c.Request.URL.Path,
		}
		if details != nil {
			fields["details"] = details
		}
		log.Warn("Request rejected", fields)
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorDetail{
			Code:      code,
			Message:   message,
			Details:   details,
			RequestID: requestID,
		},
	})
}

// NotFound returns a 404 Not Found error response.
func NotFound(c *gin.Context, message string) {
	Respond(c, http.StatusNotFound, ErrNotFound, message, nil)
}

// BadRequest returns a 400 Bad Request error response with optional details.
func BadRequest(c *gin.Context, message string, details map[string]interface{}) {
	Respond(c, http.StatusBadRequest, ErrBadRequest, message, details)
}

// FieldError returns a 400 validation response naming the single field that
// failed. Extra details are merged into the response details.
func FieldError(c *gin.Context, field, message string, extra map[string]interface{}) {
	details := map[string]interface{}{field: message}
	for k, v := range extra {
		details[k] = v
	}
	Respond(c, http.StatusBadRequest, ErrValidation, message, details)
}

// TooManyRequests returns a 429 response for rate-limited clients.
func TooManyRequests(c *gin.Context) {
	Respond(c, http.StatusTooManyRequests, ErrRateLimited, "Too many requests. Please slow down.", nil)
}

// InternalServerError returns a 500 Internal Server Error response.
// The error and message are logged with full context; the client only ever
// receives SystemErrorMessage.
func InternalServerError(c *gin.Context, message string, err error) {
	log := middleware.GetLogger(c)
	requestID := middleware.GetRequestID(c)

	if log != nil {
		log.Error("Internal server error", err, map[string]interface{}{
			"message":    message,
			"request_id": requestID,
			"path":       c.Request.URL.Path,
			"method":     c.Request.Method,
		})
	}

	c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
		Error: ErrorDetail{
			Code:      ErrInternalServer,
			Message:   SystemErrorMessage,
			RequestID: requestID,
		},
	})
}

// ValidationError returns a 400 Bad Request error response with field-specific validation errors.
// It parses the validation errors from the validator library and formats them for the client.
func ValidationError(c *gin.Context, validationErrors validator.ValidationErrors) {
	details := make(map[string]interface{})
	for _, err := range validationErrors {
		details[err.Field()] = formatValidationError(err)
	}

	Respond(c, http.StatusBadRequest, ErrValidation, "Validation failed for one or more fields", details)
}

// formatValidationError converts a validator.FieldError to a human-readable message.
func formatValidationError(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Must be a valid email address"
	case "numeric":
		return "Must contain digits only"
	case "len":
		return "Must have length of " + err.Param()
	case "min":
		return "Value is too short or small (minimum: " + err.Param() + ")"
	case "max":
		return "Value is too long or large (maximum: " + err.Param() + ")"
	case "gt":
		return "Must be greater than " + err.Param()
	case "gte":
		return "Must be greater than or equal to " + err.Param()
	case "oneof":
		return "Must be one of: " + err.Param()
	default:
		return "Validation failed for tag: " + err.Tag()
	}
}
