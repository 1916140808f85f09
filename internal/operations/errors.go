package operations

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the type of operation error
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeProbe        ErrorType = "probe"
	ErrorTypeTimeout      ErrorType = "timeout"
	ErrorTypeBatchStep    ErrorType = "batch_step"
	ErrorTypeListener     ErrorType = "listener"
	ErrorTypeCancellation ErrorType = "cancellation"
)

// ErrUnknownOperation is returned by lookups of ids that are not registered.
// Mutations of unknown ids are silent no-ops and never return it.
var ErrUnknownOperation = errors.New("operation not found")

// ErrOperationTimeout is matched by every timeout error via errors.Is.
var ErrOperationTimeout = errors.New(MessageTimeout)

// OperationError represents an operation-specific error
type OperationError struct {
	Type        ErrorType      `json:"type"`
	OperationID string         `json:"operation_id,omitempty"`
	Message     string         `json:"message"`
	Cause       error          `json:"-"`
	Context     map[string]any `json:"context,omitempty"`
	Retryable   bool           `json:"retryable"`
}

// Error implements the error interface
func (e *OperationError) Error() string {
	if e == nil {
		return "unknown operation error"
	}
	if e.OperationID != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Type, e.OperationID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *OperationError {
	return &OperationError{
		Type:    ErrorTypeValidation,
		Message: message,
		Context: map[string]any{"field": field},
	}
}

// NewProbeError wraps an error returned by a polling probe
func NewProbeError(operationID string, cause error) *OperationError {
	msg := "probe failed"
	if cause != nil {
		msg = cause.Error()
	}
	return &OperationError{
		Type:        ErrorTypeProbe,
		OperationID: operationID,
		Message:     msg,
		Cause:       cause,
		Retryable:   true,
	}
}

// NewTimeoutError creates the error used when an operation outlives its timeout.
// Its message is always MessageTimeout.
func NewTimeoutError(operationID string, timeout time.Duration) *OperationError {
	return &OperationError{
		Type:        ErrorTypeTimeout,
		OperationID: operationID,
		Message:     MessageTimeout,
		Cause:       ErrOperationTimeout,
		Context:     map[string]any{"timeout": timeout.String()},
		Retryable:   true,
	}
}

// NewCancellationError creates a new cancellation error
func NewCancellationError(operationID string) *OperationError {
	return &OperationError{
		Type:        ErrorTypeCancellation,
		OperationID: operationID,
		Message:     "operation was cancelled",
	}
}

// NewListenerError records a panic raised by an event listener
func NewListenerError(event string, recovered any) *OperationError {
	cause, ok := recovered.(error)
	if !ok {
		cause = fmt.Errorf("%v", recovered)
	}
	return &OperationError{
		Type:    ErrorTypeListener,
		Message: fmt.Sprintf("listener for %s panicked: %v", event, recovered),
		Cause:   cause,
		Context: map[string]any{"event": event},
	}
}

// BatchStepError is returned by Batch.Execute when an item's executor fails.
type BatchStepError struct {
	BatchID string
	Index   int
	Item    string
	Err     error
}

// NewBatchStepError creates a new batch step error
func NewBatchStepError(batchID string, index int, item string, err error) *BatchStepError {
	return &BatchStepError{BatchID: batchID, Index: index, Item: item, Err: err}
}

func (e *BatchStepError) Error() string {
	return fmt.Sprintf("[%s] %s: item %d (%s): %v", ErrorTypeBatchStep, e.BatchID, e.Index, e.Item, e.Err)
}

func (e *BatchStepError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is an operation timeout
func IsTimeout(err error) bool {
	return errors.Is(err, ErrOperationTimeout)
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Retryable
	}
	return false
}

// GetErrorType returns the type of the error
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ""
	}
	var stepErr *BatchStepError
	if errors.As(err, &stepErr) {
		return ErrorTypeBatchStep
	}
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Type
	}
	return ""
}

// errorMessage extracts the user-facing message from err.
func errorMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	var stepErr *BatchStepError
	if errors.As(err, &stepErr) {
		return errorMessage(stepErr.Err)
	}
	var opErr *OperationError
	if errors.As(err, &opErr) && opErr.Message != "" {
		return opErr.Message
	}
	return err.Error()
}
