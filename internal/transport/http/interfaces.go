package http

import (
	"context"

	"asyncops/internal/operations"
	api "asyncops/pkg/contracts/api/v1"
)

// OperationService is what the operations handler needs from the service layer
type OperationService interface {
	Register(ctx context.Context, req api.RegisterRequest) (operations.Operation, error)
	Get(ctx context.Context, id string) (operations.Operation, error)
	List(ctx context.Context) []operations.Operation
	ActiveCount() int
	Update(ctx context.Context, id string, req api.UpdateRequest) (operations.Operation, error)
	Complete(ctx context.Context, id string, req api.CompleteRequest) (operations.Operation, error)
	Fail(ctx context.Context, id string, req api.FailRequest) (operations.Operation, error)
	Cancel(ctx context.Context, id string) (operations.Operation, error)
	StartPolling(ctx context.Context, id string, req api.PollRequest) (operations.Operation, error)
	StopPolling(ctx context.Context, id string) error
	ClearAll(ctx context.Context) int
}

// BatchSubmitter starts batches
type BatchSubmitter interface {
	Submit(ctx context.Context, req api.BatchRequest) (api.BatchResponse, error)
}

// HistorySource provides finished operations for export
type HistorySource interface {
	Snapshot() []operations.Operation
}

// ClientCounter reports connected WebSocket clients
type ClientCounter interface {
	ClientCount() int
}
