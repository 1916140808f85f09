// Package api contains the REST request and response contracts of the
// orchestrator daemon. Version v1 is the current API version.
package api

import (
	"encoding/json"
	"time"

	"asyncops/pkg/contracts/events"
)

// RegisterRequest registers a new operation. An empty ID is replaced by a
// generated one.
type RegisterRequest struct {
	ID                string            `json:"id,omitempty" validate:"omitempty,opid"`
	Description       string            `json:"description,omitempty" validate:"max=512"`
	TimeoutMS         *int64            `json:"timeout_ms,omitempty" validate:"omitempty,gte=-1"`
	ShowProgress      bool              `json:"show_progress"`
	ShowNotifications *bool             `json:"show_notifications,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty" validate:"omitempty,max=32,dive,keys,required,max=128,endkeys,max=2048"`
}

// UpdateRequest is a partial update of a running operation
type UpdateRequest struct {
	Status      *string        `json:"status,omitempty" validate:"omitempty,oneof=pending running completed failed cancelled"`
	Progress    *int           `json:"progress,omitempty"`
	Description *string        `json:"description,omitempty" validate:"omitempty,max=512"`
	Fields      map[string]any `json:"fields,omitempty"`
}

// CompleteRequest finishes an operation. Status defaults to completed.
type CompleteRequest struct {
	Status  string         `json:"status,omitempty" validate:"omitempty,oneof=completed failed cancelled"`
	Message string         `json:"message,omitempty" validate:"max=1024"`
	Error   string         `json:"error,omitempty" validate:"max=1024"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// FailRequest fails an operation with an error message
type FailRequest struct {
	Error string `json:"error" validate:"required,max=1024"`
}

// PollRequest starts polling a remote status endpoint for an operation
type PollRequest struct {
	URL        string            `json:"url" validate:"required,http_url"`
	IntervalMS int64             `json:"interval_ms,omitempty" validate:"gte=0"`
	Headers    map[string]string `json:"headers,omitempty" validate:"omitempty,max=16"`
}

// BatchItem is one HTTP request executed as part of a batch
type BatchItem struct {
	Method  string            `json:"method" validate:"required,httpmethod"`
	URL     string            `json:"url" validate:"required,http_url"`
	Headers map[string]string `json:"headers,omitempty" validate:"omitempty,max=16"`
	Body    json.RawMessage   `json:"body,omitempty"`
}

// BatchRequest runs items sequentially under one operation
type BatchRequest struct {
	ID    string      `json:"id,omitempty" validate:"omitempty,opid"`
	Items []BatchItem `json:"items" validate:"required,min=1,dive"`
}

// BatchResponse is returned as soon as a batch has been registered
type BatchResponse struct {
	ID    string `json:"id"`
	Items int    `json:"items"`
}

// OperationList is the response of the list endpoint
type OperationList struct {
	Operations []events.OperationSnapshot `json:"operations"`
	Count      int                        `json:"count"`
}

// ClearResponse reports how many operations were dropped
type ClearResponse struct {
	Cleared int `json:"cleared"`
}

// HealthResponse is returned by the health endpoint
type HealthResponse struct {
	Status           string    `json:"status"`
	Version          string    `json:"version"`
	Uptime           string    `json:"uptime"`
	ActiveOperations int       `json:"active_operations"`
	WebSocketClients int       `json:"websocket_clients"`
	Timestamp        time.Time `json:"timestamp"`
}
