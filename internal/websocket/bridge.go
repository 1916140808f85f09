package websocket

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"asyncops/internal/infrastructure"
	"asyncops/internal/operations"
	"asyncops/pkg/contracts/events"
)

type updatePayload struct {
	OperationID string               `json:"operation_id"`
	Operation   operations.Operation `json:"operation"`
	Updates     operations.Patch     `json:"updates"`
}

type completePayload struct {
	OperationID string               `json:"operation_id"`
	Operation   operations.Operation `json:"operation"`
	Result      operations.Result    `json:"result"`
	ErrorType   operations.ErrorType `json:"error_type,omitempty"`
	Retryable   bool                 `json:"retryable,omitempty"`
	Notify      bool                 `json:"notify"`
}

// EventBridge forwards operation events from the bus to a Broadcaster
type EventBridge struct {
	out    Broadcaster
	logger *slog.Logger

	mu       sync.Mutex
	bus      *operations.EventBus
	updateID operations.ListenerID
	doneID   operations.ListenerID
}

// NewEventBridge creates a bridge that publishes to out
func NewEventBridge(out Broadcaster, logger *slog.Logger) *EventBridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBridge{
		out:    out,
		logger: infrastructure.WithComponent(logger, "event_bridge"),
	}
}

// Attach subscribes to bus. A previous subscription is released first.
func (b *EventBridge) Attach(bus *operations.EventBus) {
	b.Stop()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.bus = bus
	b.updateID = bus.OnUpdate(b.onUpdate)
	b.doneID = bus.OnComplete(b.onComplete)
}

// Stop removes the bridge's listeners
func (b *EventBridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bus == nil {
		return
	}
	b.bus.Off(operations.EventOperationUpdate, b.updateID)
	b.bus.Off(operations.EventOperationComplete, b.doneID)
	b.bus = nil
}

// ProgressStarted announces an operation that asked for a progress display.
// It has the shape of an operations.CreateHook.
func (b *EventBridge) ProgressStarted(ctx context.Context, op operations.Operation) {
	if !op.Config.ShowProgress {
		return
	}
	b.publish(ctx, events.MessageTypeOperationProgressStarted, events.ProgressStartedData{
		OperationID: op.ID,
		Description: op.Description,
	})
}

func (b *EventBridge) onUpdate(ctx context.Context, e operations.OperationUpdate) {
	b.publish(ctx, events.MessageTypeOperationUpdate, updatePayload{
		OperationID: e.ID,
		Operation:   e.Operation,
		Updates:     e.Patch,
	})
}

func (b *EventBridge) onComplete(ctx context.Context, e operations.OperationComplete) {
	b.publish(ctx, events.MessageTypeOperationComplete, completePayload{
		OperationID: e.ID,
		Operation:   e.Operation,
		Result:      e.Result,
		ErrorType:   operations.GetErrorType(e.Result.Err),
		Retryable:   operations.IsRetryable(e.Result.Err),
		Notify:      e.Operation.Config.ShowNotifications,
	})
}

func (b *EventBridge) publish(ctx context.Context, msgType events.MessageType, data any) {
	// Delivery must not depend on the lifetime of the request that caused the event.
	err := b.out.BroadcastMessage(context.WithoutCancel(ctx), msgType, data)
	switch {
	case err == nil:
	case errors.Is(err, ErrHubStopped):
		b.logger.DebugContext(ctx, "Dropping event after hub shutdown", slog.String("type", string(msgType)))
	default:
		b.logger.ErrorContext(ctx, "Failed to broadcast event",
			slog.String("type", string(msgType)),
			slog.String("error", err.Error()))
	}
}
