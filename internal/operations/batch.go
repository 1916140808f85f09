package operations

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"go.opentelemetry.io/otel/attribute"
)

// Executor runs one batch item. Returning an error aborts the batch.
type Executor[T any] func(ctx context.Context, item T, index int) error

// Batch drives one operation through a list of items executed in order.
type Batch[T any] struct {
	ID    string
	Items []T

	// Label names an item in progress descriptions. Defaults to fmt.Sprint.
	Label func(item T) string

	manager *Manager
}

// CreateBatch registers the batch operation. Batch completion is not
// notified by the registry; the caller decides how to report it.
func CreateBatch[T any](ctx context.Context, m *Manager, id string, items []T) (*Batch[T], error) {
	cfg := NewConfigBuilder().
		WithNotifications(false).
		WithProgress(true).
		WithDescription(fmt.Sprintf("Batch of %d items", len(items))).
		Build()
	if _, err := m.Register(ctx, id, cfg); err != nil {
		return nil, err
	}
	return &Batch[T]{
		ID:      id,
		Items:   items,
		manager: m,
	}, nil
}

func (b *Batch[T]) label(item T) string {
	if b.Label != nil {
		return b.Label(item)
	}
	return fmt.Sprint(item)
}

// Execute runs exec for every item sequentially. The first error fails the
// batch operation and is returned as a *BatchStepError.
func (b *Batch[T]) Execute(ctx context.Context, exec Executor[T]) (err error) {
	m := b.manager
	n := len(b.Items)

	if op, ok := m.Get(b.ID); !ok || op.Status.IsTerminal() {
		return NewValidationError("batch", fmt.Sprintf("batch %s is not executable", b.ID))
	}

	ctx, span := m.metrics.startSpan(ctx, "operation.batch", b.ID, attribute.Int("batch.size", n))
	defer func() { endSpan(span, err) }()

	m.Update(ctx, b.ID, StatusPatch(StatusRunning))

	for i, item := range b.Items {
		name := b.label(item)

		if cerr := ctx.Err(); cerr != nil {
			m.Cancel(context.WithoutCancel(ctx), b.ID)
			return NewBatchStepError(b.ID, i, name, cerr)
		}
		if op, ok := m.Get(b.ID); !ok || op.Status.IsTerminal() {
			return NewBatchStepError(b.ID, i, name, NewCancellationError(b.ID))
		}

		progress := int(math.Round(float64(i+1) / float64(n) * 100))
		// keep below 100 so the update cannot auto-complete mid-item
		m.Update(ctx, b.ID, ProgressPatch(min(progress, 99), fmt.Sprintf("Processing %d/%d: %s", i+1, n, name)))

		if xerr := runExecutor(ctx, exec, item, i); xerr != nil {
			m.metrics.recordBatchItem(ctx, "failed")
			stepErr := NewBatchStepError(b.ID, i, name, xerr)
			if ctx.Err() != nil {
				// the item failed because the caller gave up
				m.Cancel(context.WithoutCancel(ctx), b.ID)
				return stepErr
			}
			m.logger.WarnContext(ctx, "batch item failed",
				slog.String("operation_id", b.ID),
				slog.Int("index", i),
				slog.String("item", name),
				slog.String("error", xerr.Error()))
			m.Fail(ctx, b.ID, stepErr)
			return stepErr
		}
		m.metrics.recordBatchItem(ctx, "succeeded")
	}

	m.Complete(ctx, b.ID, Result{
		Status:  StatusCompleted,
		Message: fmt.Sprintf("%d operations processed", n),
	})
	return nil
}

func runExecutor[T any](ctx context.Context, exec Executor[T], item T, i int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panicked: %v", r)
		}
	}()
	return exec(ctx, item, i)
}

// ExecuteBatch creates a batch over items and executes it
func ExecuteBatch[T any](ctx context.Context, m *Manager, id string, items []T, exec Executor[T]) error {
	b, err := CreateBatch(ctx, m, id, items)
	if err != nil {
		return err
	}
	return b.Execute(ctx, exec)
}
