package operations

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Probe reports the state of externally executed work. The context is
// cancelled once polling for the operation stops.
type Probe func(ctx context.Context) (PollResult, error)

type pollHandle struct {
	id       string
	gen      uint64
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	timeout  *time.Timer
	inFlight atomic.Bool
	ticks    atomic.Int64
}

func (h *pollHandle) halt() {
	h.cancel()
	if h.timeout != nil {
		h.timeout.Stop()
	}
}

// poller runs at most one recurring probe per operation id.
type poller struct {
	mu      sync.Mutex
	handles map[string]*pollHandle

	registry *registry
	logger   *slog.Logger
	metrics  *Instrumentation
}

func newPoller(reg *registry, logger *slog.Logger) *poller {
	return &poller{
		handles:  make(map[string]*pollHandle),
		registry: reg,
		logger:   logger,
	}
}

func (p *poller) start(ctx context.Context, id string, probe Probe, interval time.Duration) error {
	if probe == nil {
		return NewValidationError("probe", "probe is required")
	}
	if interval < 0 {
		return NewValidationError("interval", fmt.Sprintf("interval must not be negative, got %s", interval))
	}
	if interval == 0 {
		interval = DefaultPollInterval
	}

	op, gen, ok := p.registry.lookup(id)
	if !ok {
		return fmt.Errorf("start polling %q: %w", id, ErrUnknownOperation)
	}
	if op.Status.IsTerminal() {
		return NewValidationError("id", fmt.Sprintf("operation %s is already %s", id, op.Status))
	}

	p.StopPolling(id)

	// detach from the caller's cancellation but keep its values
	pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h := &pollHandle{
		id:       id,
		gen:      gen,
		interval: interval,
		ctx:      pollCtx,
		cancel:   cancel,
	}

	p.mu.Lock()
	p.handles[id] = h
	if timeout := op.Config.EffectiveTimeout(); timeout > 0 {
		remaining := max(timeout-time.Since(op.StartTime), 0)
		h.timeout = time.AfterFunc(remaining, func() { p.onTimeout(h, timeout) })
	}
	p.mu.Unlock()

	p.logger.InfoContext(ctx, "polling started",
		slog.String("operation_id", id),
		slog.Duration("interval", interval),
		slog.Duration("timeout", op.Config.EffectiveTimeout()))

	go p.loop(h, probe)
	return nil
}

func (p *poller) loop(h *pollHandle, probe Probe) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			if !h.inFlight.CompareAndSwap(false, true) {
				p.logger.DebugContext(h.ctx, "previous probe still running, skipping tick",
					slog.String("operation_id", h.id))
				p.metrics.recordPollSkip(h.ctx)
				continue
			}
			go p.tick(h, probe)
		}
	}
}

func (p *poller) tick(h *pollHandle, probe Probe) {
	defer h.inFlight.Store(false)

	n := h.ticks.Add(1)
	p.metrics.recordPollTick(h.ctx)

	result, err := runProbe(h.ctx, probe)

	// stopped or replaced while the probe was running
	if h.ctx.Err() != nil || !p.isCurrent(h) {
		p.logger.DebugContext(h.ctx, "discarding stale probe result",
			slog.String("operation_id", h.id),
			slog.Int64("tick", n))
		return
	}

	// the registry calls below stop this handle, which cancels h.ctx
	ctx := context.WithoutCancel(h.ctx)
	switch {
	case err != nil:
		if p.release(h) {
			p.logger.WarnContext(ctx, "probe failed, polling stopped",
				slog.String("operation_id", h.id),
				slog.String("error", err.Error()))
			p.registry.fail(ctx, h.id, h.gen, NewProbeError(h.id, err))
		}
	case result.Terminal():
		if p.release(h) {
			p.registry.complete(ctx, h.id, h.gen, result.toResult())
		}
	default:
		p.registry.update(ctx, h.id, h.gen, result.toPatch())
	}
}

func (p *poller) onTimeout(h *pollHandle, timeout time.Duration) {
	if !p.release(h) {
		return
	}
	ctx := context.WithoutCancel(h.ctx)
	p.logger.WarnContext(ctx, "operation timed out",
		slog.String("operation_id", h.id),
		slog.Duration("timeout", timeout))
	p.registry.fail(ctx, h.id, h.gen, NewTimeoutError(h.id, timeout))
}

func runProbe(ctx context.Context, probe Probe) (result PollResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panicked: %v", r)
		}
	}()
	return probe(ctx)
}

func (p *poller) isCurrent(h *pollHandle) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handles[h.id] == h
}

// release removes h if it is still the active handle for its id.
func (p *poller) release(h *pollHandle) bool {
	p.mu.Lock()
	if p.handles[h.id] != h {
		p.mu.Unlock()
		return false
	}
	delete(p.handles, h.id)
	p.mu.Unlock()
	h.halt()
	return true
}

// StopPolling cancels the handle for id. Safe to call when none exists.
func (p *poller) StopPolling(id string) bool {
	p.mu.Lock()
	h, ok := p.handles[id]
	delete(p.handles, id)
	p.mu.Unlock()
	if !ok {
		return false
	}
	h.halt()
	p.logger.Debug("polling stopped", slog.String("operation_id", id))
	return true
}

func (p *poller) StopAll() {
	p.mu.Lock()
	handles := p.handles
	p.handles = make(map[string]*pollHandle)
	p.mu.Unlock()
	for _, h := range handles {
		h.halt()
	}
}

func (p *poller) isPolling(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.handles[id]
	return ok
}
