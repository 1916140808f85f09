package errors

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIErrorConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *APIError
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"operation not found", OperationNotFound("run-42"), http.StatusNotFound, "OPERATION_NOT_FOUND", "operation run-42 not found"},
		{"operation finished", OperationFinished("run-42", "completed"), http.StatusConflict, "OPERATION_FINISHED", "operation run-42 already completed"},
		{"validation", ErrValidation("interval_ms", "must be positive"), http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed"},
		{"invalid json", InvalidJSON(assert.AnError), http.StatusBadRequest, "INVALID_JSON", "Request body contains invalid JSON"},
		{"too large", PayloadTooLarge(10, 20), http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body exceeds maximum allowed size"},
		{"media type", UnsupportedMediaType("text/plain", []string{"application/json"}), http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "Unsupported content type"},
		{"invalid request", InvalidRequestWithError(assert.AnError), http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantStatus, tt.err.StatusCode)
			assert.Equal(t, tt.wantCode, tt.err.ErrorCode)
			assert.EqualError(t, tt.err, tt.wantMsg)
			assert.NotNil(t, tt.err.Details)
		})
	}
}

func TestNewValidationErrors(t *testing.T) {
	err := NewValidationErrors([]ValidationError{
		{Field: "id", Message: "id is required"},
		{Field: "url", Message: "url must be a valid URL"},
	})

	details, ok := err.Details.(ValidationErrors)
	require.True(t, ok)
	assert.Len(t, details.Errors, 2)
	assert.Equal(t, "url", details.Errors[1].Field)
}

func TestProblemDetailsJSON(t *testing.T) {
	problem := NewProblemDetails(http.StatusNotFound, TypeOperationNotFound, "Operation Not Found", "operation run-1 not found", "/api/operations/run-1").
		WithExtension("request_id", "req-1").
		WithExtension("status", "overridden")

	out, err := json.Marshal(problem)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(out, &body))
	assert.Equal(t, TypeOperationNotFound, body["type"])
	assert.Equal(t, "Operation Not Found", body["title"])
	assert.EqualValues(t, http.StatusNotFound, body["status"], "extensions never shadow standard members")
	assert.Equal(t, "operation run-1 not found", body["detail"])
	assert.Equal(t, "/api/operations/run-1", body["instance"])
	assert.Equal(t, "req-1", body["request_id"])
}

func TestProblemDetailsOmitsEmptyMembers(t *testing.T) {
	out, err := json.Marshal(&ProblemDetails{Type: TypeInternal, Title: "Internal Server Error", Status: 500})
	require.NoError(t, err)
	assert.NotContains(t, string(out), "detail")
	assert.NotContains(t, string(out), "instance")
}
