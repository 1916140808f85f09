package errors

import (
	"fmt"
	"net/http"

	"github.com/go-chi/render"
)

// Machine-readable codes carried in APIError.ErrorCode
const (
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeInvalidJSON          = "INVALID_JSON"
	CodeValidationFailed     = "VALIDATION_FAILED"
	CodeOperationNotFound    = "OPERATION_NOT_FOUND"
	CodeOperationFinished    = "OPERATION_FINISHED"
	CodePayloadTooLarge      = "PAYLOAD_TOO_LARGE"
	CodeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	CodeRateLimitExceeded    = "RATE_LIMIT_EXCEEDED"
	CodeServiceUnavailable   = "SERVICE_UNAVAILABLE"
)

// problemTypes maps error codes to their RFC 7807 type URI. Codes missing
// here render as TypeInternal.
var problemTypes = map[string]string{
	CodeInvalidRequest:       TypeValidation,
	CodeInvalidJSON:          TypeValidation,
	CodeValidationFailed:     TypeValidation,
	CodeOperationNotFound:    TypeOperationNotFound,
	CodeOperationFinished:    TypeOperationFinished,
	CodePayloadTooLarge:      TypePayloadTooLarge,
	CodeUnsupportedMediaType: TypeUnsupportedMedia,
	CodeRateLimitExceeded:    TypeRateLimit,
	CodeServiceUnavailable:   TypeServiceDown,
}

// APIError is an error a handler or service wants shown to the client as is
type APIError struct {
	StatusCode int    `json:"status_code"`
	ErrorCode  string `json:"error_code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

// Render implements render.Renderer
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// problemType returns the type URI for e's code
func (e *APIError) problemType() string {
	if t, ok := problemTypes[e.ErrorCode]; ok {
		return t
	}
	return TypeInternal
}

// ValidationError describes one rejected field
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors groups field errors
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{StatusCode: statusCode, ErrorCode: errorCode, Message: message}
}

func NewWithDetails(statusCode int, errorCode, message string, details any) *APIError {
	return &APIError{StatusCode: statusCode, ErrorCode: errorCode, Message: message, Details: details}
}

var (
	ErrRateLimitExceeded  = New(http.StatusTooManyRequests, CodeRateLimitExceeded, "Rate limit exceeded")
	ErrServiceUnavailable = New(http.StatusServiceUnavailable, CodeServiceUnavailable, "Service temporarily unavailable")
)

// InvalidRequestWithError wraps a request that could not be interpreted at all
func InvalidRequestWithError(err error) *APIError {
	return NewWithDetails(http.StatusBadRequest, CodeInvalidRequest, "Invalid request format", err.Error())
}

// InvalidJSON reports a body that failed to decode
func InvalidJSON(err error) *APIError {
	return NewWithDetails(http.StatusBadRequest, CodeInvalidJSON, "Request body contains invalid JSON", err.Error())
}

// PayloadTooLarge reports a body over the configured limit
func PayloadTooLarge(limit, size int64) *APIError {
	return NewWithDetails(http.StatusRequestEntityTooLarge, CodePayloadTooLarge,
		"Request body exceeds maximum allowed size",
		map[string]int64{"max_size": limit, "size": size})
}

// UnsupportedMediaType reports a Content-Type outside allowed
func UnsupportedMediaType(contentType string, allowed []string) *APIError {
	return NewWithDetails(http.StatusUnsupportedMediaType, CodeUnsupportedMediaType, "Unsupported content type",
		map[string]any{"content_type": contentType, "allowed": allowed})
}

func ErrValidation(field, message string) *APIError {
	return NewWithDetails(http.StatusBadRequest, CodeValidationFailed, "Request validation failed",
		ValidationError{Field: field, Message: message})
}

func NewValidationErrors(errs []ValidationError) *APIError {
	return NewWithDetails(http.StatusBadRequest, CodeValidationFailed, "Request validation failed",
		ValidationErrors{Errors: errs})
}

// OperationNotFound reports an unknown operation id
func OperationNotFound(id string) *APIError {
	return NewWithDetails(http.StatusNotFound, CodeOperationNotFound, fmt.Sprintf("operation %s not found", id), id)
}

// OperationFinished reports a command against an operation that already
// reached a terminal state
func OperationFinished(id, status string) *APIError {
	return NewWithDetails(http.StatusConflict, CodeOperationFinished,
		fmt.Sprintf("operation %s already %s", id, status), map[string]string{"id": id, "status": status})
}
