package http

import (
	"maps"

	"asyncops/internal/operations"
	"asyncops/pkg/contracts/events"
)

// Snapshot converts an operation into its API representation
func Snapshot(op operations.Operation) events.OperationSnapshot {
	s := events.OperationSnapshot{
		ID:          op.ID,
		Status:      string(op.Status),
		Progress:    op.Progress,
		Description: op.Description,
		StartTime:   op.StartTime,
		EndTime:     op.EndTime,
		Fields:      maps.Clone(op.Fields),
		Config: events.OperationSettings{
			TimeoutMS:         op.Config.TimeoutMillis(),
			ShowProgress:      op.Config.ShowProgress,
			ShowNotifications: op.Config.ShowNotifications,
			Description:       op.Config.Description,
			Metadata:          maps.Clone(op.Config.Metadata),
		},
	}
	if op.Duration != nil {
		ms := op.DurationMillis()
		s.DurationMS = &ms
	}
	if op.Result != nil {
		s.Result = &events.OperationResult{
			Status:  string(op.Result.Status),
			Message: op.Result.Message,
			Error:   op.Result.Error,
			Fields:  maps.Clone(op.Result.Fields),
		}
	}
	return s
}

// Snapshots converts a list of operations
func Snapshots(ops []operations.Operation) []events.OperationSnapshot {
	out := make([]events.OperationSnapshot, len(ops))
	for i, op := range ops {
		out[i] = Snapshot(op)
	}
	return out
}
