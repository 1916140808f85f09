// Package operations tracks the lifecycle of long-running work that is
// executed elsewhere (remote test runs, uploads, multi-step batches).
//
// Core Components:
//
// Manager: the orchestrator. It owns the registry of operation records,
// the poller and the event bus. There is no package-level instance; the
// application builds one Manager and hands it to its collaborators.
//
// Registry: one record per operation id. Records move through
//
//	pending -> running -> completed | failed | cancelled
//
// Terminal states are absorbing. Updates, completions and failures for
// unknown or terminal ids are ignored, so late probe results racing a
// cancellation cannot resurrect an operation. Terminal records stay
// readable for a grace period and are then purged.
//
// Poller: invokes a caller-supplied Probe on a fixed interval and maps its
// PollResult onto registry calls. A tick is skipped while the previous
// probe is still running. The operation's timeout, measured from its start
// time, fails it with a timeout error.
//
// EventBus: synchronous named events. OperationUpdate and OperationComplete
// are delivered to listeners in registration order; a panicking listener
// is logged and does not affect the others.
//
// Batch: runs an ordered list of items strictly sequentially against one
// operation, reporting progress per item. The first failing item fails the
// operation and its error is returned to the caller.
//
// Usage Example:
//
//	m := operations.NewManager(operations.WithLogger(logger))
//	m.Events().OnComplete(func(ctx context.Context, e operations.OperationComplete) {
//	    logger.Info("done", slog.String("id", e.ID))
//	})
//	cfg := operations.NewConfigBuilder().WithTimeout(5 * time.Second).Build()
//	if _, err := m.Register(ctx, "run-42", cfg); err != nil {
//	    return err
//	}
//	m.Update(ctx, "run-42", operations.StatusPatch(operations.StatusRunning))
//	err := m.StartPolling(ctx, "run-42", probe, time.Second)
package operations
