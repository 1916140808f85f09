// Package events contains the WebSocket message contracts pushed to
// observers of the operation orchestrator.
package events

import (
	"encoding/json"
	"time"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// MessageTypeConnection greets a client right after it is registered
	MessageTypeConnection MessageType = "connection"

	MessageTypeOperationUpdate          MessageType = "operation:update"
	MessageTypeOperationComplete        MessageType = "operation:complete"
	MessageTypeOperationProgressStarted MessageType = "operation:progress_started"
)

// Message is the envelope of every frame sent to clients
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	TraceID   string          `json:"trace_id,omitempty"`
}

// ConnectionData is the payload of MessageTypeConnection
type ConnectionData struct {
	Status   string `json:"status"`
	ClientID string `json:"client_id"`
	Message  string `json:"message"`
}

// OperationSnapshot mirrors the JSON form of an operation
type OperationSnapshot struct {
	ID          string            `json:"id"`
	Status      string            `json:"status"`
	Progress    int               `json:"progress"`
	Description string            `json:"description,omitempty"`
	StartTime   time.Time         `json:"start_time"`
	EndTime     *time.Time        `json:"end_time,omitempty"`
	DurationMS  *int64            `json:"duration_ms,omitempty"`
	Result      *OperationResult  `json:"result,omitempty"`
	Fields      map[string]any    `json:"fields,omitempty"`
	Config      OperationSettings `json:"config"`
}

// OperationSettings mirrors the JSON form of an operation's config
type OperationSettings struct {
	TimeoutMS         int64             `json:"timeout_ms"`
	ShowProgress      bool              `json:"show_progress"`
	ShowNotifications bool              `json:"show_notifications"`
	Description       string            `json:"description,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// OperationResult mirrors the JSON form of a terminal result
type OperationResult struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// OperationUpdateData is the payload of MessageTypeOperationUpdate
type OperationUpdateData struct {
	OperationID string            `json:"operation_id"`
	Operation   OperationSnapshot `json:"operation"`
	Updates     json.RawMessage   `json:"updates,omitempty"`
}

// OperationCompleteData is the payload of MessageTypeOperationComplete.
// Notify is true when the operation asked for a completion notification.
type OperationCompleteData struct {
	OperationID string            `json:"operation_id"`
	Operation   OperationSnapshot `json:"operation"`
	Result      OperationResult   `json:"result"`
	ErrorType   string            `json:"error_type,omitempty"`
	Retryable   bool              `json:"retryable,omitempty"`
	Notify      bool              `json:"notify"`
}

// ProgressStartedData is the payload of MessageTypeOperationProgressStarted
type ProgressStartedData struct {
	OperationID string `json:"operation_id"`
	Description string `json:"description,omitempty"`
}

// Decode unmarshals the message payload into v
func (m Message) Decode(v any) error {
	return json.Unmarshal(m.Data, v)
}
