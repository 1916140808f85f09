package operations

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// CreateHook is invoked after an operation configured with ShowProgress
// has been registered. It must not block.
type CreateHook func(ctx context.Context, op Operation)

// pollStopper is the part of the poller the registry drives.
type pollStopper interface {
	StopPolling(id string) bool
	StopAll()
}

type record struct {
	op    Operation
	gen   uint64
	purge *time.Timer
}

// registry owns the operation records. Every mutation publishes on the
// bus after the lock is released so listeners may call back in.
type registry struct {
	mu      sync.Mutex
	records map[string]*record
	order   []string
	nextGen uint64

	bus         *EventBus
	poller      pollStopper
	gracePeriod time.Duration
	onCreate    CreateHook
	logger      *slog.Logger
	metrics     *Instrumentation
}

func newRegistry(bus *EventBus, gracePeriod time.Duration, logger *slog.Logger) *registry {
	return &registry{
		records:     make(map[string]*record),
		bus:         bus,
		gracePeriod: gracePeriod,
		logger:      logger,
	}
}

func (r *registry) register(ctx context.Context, id string, cfg Config) (Operation, error) {
	if id == "" {
		return Operation{}, NewValidationError("id", "operation id is required")
	}
	if err := cfg.Validate(); err != nil {
		return Operation{}, err
	}
	cfg = cfg.normalized()

	// the replaced record must not keep being driven by its old probe
	if r.poller != nil {
		r.poller.StopPolling(id)
	}

	r.mu.Lock()
	replaced := false
	if old, ok := r.records[id]; ok {
		replaced = true
		if old.purge != nil {
			old.purge.Stop()
		}
	} else {
		r.order = append(r.order, id)
	}
	r.nextGen++
	rec := &record{
		gen: r.nextGen,
		op: Operation{
			ID:          id,
			Status:      StatusPending,
			Progress:    0,
			Description: cfg.Description,
			StartTime:   time.Now(),
			Config:      cfg,
		},
	}
	r.records[id] = rec
	snapshot := rec.op.clone()
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "operation registered",
		slog.String("operation_id", id),
		slog.Bool("replaced", replaced),
		slog.Duration("timeout", cfg.EffectiveTimeout()),
		slog.Bool("show_progress", cfg.ShowProgress))
	r.metrics.recordRegistered(ctx)

	if cfg.ShowProgress && r.onCreate != nil {
		r.onCreate(ctx, snapshot)
	}
	return snapshot, nil
}

// update merges patch into the record. gen == 0 matches any generation.
func (r *registry) update(ctx context.Context, id string, gen uint64, patch Patch) {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok || rec.op.Status.IsTerminal() || (gen != 0 && rec.gen != gen) {
		r.mu.Unlock()
		return
	}

	var terminal Status
	if patch.Status != nil {
		switch s := *patch.Status; {
		case s.IsTerminal():
			terminal = s
		case s.IsValid():
			rec.op.Status = s
		default:
			r.logger.WarnContext(ctx, "ignoring unknown status in update",
				slog.String("operation_id", id),
				slog.String("status", string(s)))
		}
	}
	if patch.Progress != nil {
		rec.op.Progress = clampProgress(*patch.Progress)
	}
	if patch.Description != nil {
		rec.op.Description = *patch.Description
	}
	if len(patch.Fields) > 0 {
		if rec.op.Fields == nil {
			rec.op.Fields = make(map[string]any, len(patch.Fields))
		}
		for k, v := range patch.Fields {
			rec.op.Fields[k] = v
		}
	}
	autoComplete := rec.op.Progress >= 100 && rec.op.Status == StatusRunning
	snapshot := rec.op.clone()
	recGen := rec.gen
	r.mu.Unlock()

	r.bus.Emit(ctx, OperationUpdate{ID: id, Operation: snapshot, Patch: patch})

	switch {
	case terminal != "":
		r.complete(ctx, id, recGen, Result{Status: terminal, Message: snapshot.Description})
	case autoComplete:
		r.logger.DebugContext(ctx, "progress reached 100, completing operation",
			slog.String("operation_id", id))
		r.complete(ctx, id, recGen, Result{Status: StatusCompleted})
	}
}

// complete moves the record into a terminal state. It reports whether
// the transition happened.
func (r *registry) complete(ctx context.Context, id string, gen uint64, result Result) bool {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok || rec.op.Status.IsTerminal() || (gen != 0 && rec.gen != gen) {
		r.mu.Unlock()
		return false
	}

	if !result.Status.IsTerminal() {
		result.Status = StatusCompleted
	}
	now := time.Now()
	duration := now.Sub(rec.op.StartTime)
	rec.op.Status = result.Status
	rec.op.EndTime = &now
	rec.op.Duration = &duration
	if result.Status == StatusCompleted {
		rec.op.Progress = 100
	}
	stored := result
	rec.op.Result = &stored
	if r.gracePeriod >= 0 {
		recGen := rec.gen
		rec.purge = time.AfterFunc(r.gracePeriod, func() { r.purge(id, recGen) })
	}
	snapshot := rec.op.clone()
	r.mu.Unlock()

	if r.poller != nil {
		r.poller.StopPolling(id)
	}

	attrs := []any{
		slog.String("operation_id", id),
		slog.String("status", string(result.Status)),
		slog.Duration("duration", duration),
	}
	if result.Status == StatusFailed {
		r.logger.WarnContext(ctx, "operation failed", append(attrs, slog.String("error", result.Error))...)
	} else {
		r.logger.InfoContext(ctx, "operation finished", attrs...)
	}
	r.metrics.recordCompleted(ctx, result.Status, duration)

	r.bus.Emit(ctx, OperationComplete{ID: id, Operation: snapshot, Result: *snapshot.Result})
	return true
}

func (r *registry) fail(ctx context.Context, id string, gen uint64, err error) bool {
	msg := errorMessage(err)
	return r.complete(ctx, id, gen, Result{
		Status:  StatusFailed,
		Message: MessageFailedPrefix + msg,
		Error:   msg,
		Err:     err,
	})
}

func (r *registry) cancel(ctx context.Context, id string) bool {
	if r.poller != nil {
		r.poller.StopPolling(id)
	}
	return r.complete(ctx, id, 0, Result{
		Status:  StatusCancelled,
		Message: MessageCancelled,
		Err:     NewCancellationError(id),
	})
}

func (r *registry) purge(id string, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.gen != gen {
		return
	}
	r.removeLocked(id)
	r.logger.Debug("operation purged", slog.String("operation_id", id))
}

func (r *registry) removeLocked(id string) {
	delete(r.records, id)
	if i := slices.Index(r.order, id); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
}

func (r *registry) lookup(id string) (Operation, uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return Operation{}, 0, false
	}
	return rec.op.clone(), rec.gen, true
}

func (r *registry) list() []Operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Operation, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.records[id].op.clone())
	}
	return out
}

func (r *registry) clear(ctx context.Context) int {
	if r.poller != nil {
		r.poller.StopAll()
	}
	r.mu.Lock()
	n := len(r.records)
	for _, rec := range r.records {
		if rec.purge != nil {
			rec.purge.Stop()
		}
	}
	r.records = make(map[string]*record)
	r.order = nil
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "operations cleared", slog.Int("count", n))
	return n
}
