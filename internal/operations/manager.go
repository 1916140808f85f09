package operations

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Manager is the orchestrator: it owns the registry, the poller and the
// event bus. Construct one per application and pass it to collaborators.
type Manager struct {
	registry *registry
	poller   *poller
	bus      *EventBus
	logger   *slog.Logger
	metrics  *Instrumentation
}

type managerOptions struct {
	logger        *slog.Logger
	gracePeriod   time.Duration
	onCreate      CreateHook
	metrics       *Instrumentation
	meterProvider metric.MeterProvider
}

// Option configures a Manager
type Option func(*managerOptions)

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *managerOptions) { o.logger = logger }
}

// WithGracePeriod sets how long terminal operations stay readable before
// they are purged. A negative value keeps them until ClearAll.
func WithGracePeriod(d time.Duration) Option {
	return func(o *managerOptions) { o.gracePeriod = d }
}

// WithCreateHook sets the hook run for registrations with ShowProgress
func WithCreateHook(hook CreateHook) Option {
	return func(o *managerOptions) { o.onCreate = hook }
}

// WithInstrumentation enables tracing and metrics. mp feeds the active
// operations gauge and may be nil to use the global provider.
func WithInstrumentation(in *Instrumentation, mp metric.MeterProvider) Option {
	return func(o *managerOptions) {
		o.metrics = in
		o.meterProvider = mp
	}
}

// NewManager creates a new orchestrator
func NewManager(opts ...Option) *Manager {
	o := managerOptions{
		logger:      slog.Default(),
		gracePeriod: DefaultGracePeriod,
	}
	for _, opt := range opts {
		opt(&o)
	}

	bus := NewEventBus(o.logger)
	bus.metrics = o.metrics

	reg := newRegistry(bus, o.gracePeriod, o.logger)
	reg.onCreate = o.onCreate
	reg.metrics = o.metrics

	p := newPoller(reg, o.logger)
	p.metrics = o.metrics
	reg.poller = p

	m := &Manager{
		registry: reg,
		poller:   p,
		bus:      bus,
		logger:   o.logger,
		metrics:  o.metrics,
	}
	if err := o.metrics.observeActive(o.meterProvider, m.countActive); err != nil {
		o.logger.Warn("failed to register active operations gauge", slog.String("error", err.Error()))
	}
	return m
}

// Events returns the bus observers subscribe to
func (m *Manager) Events() *EventBus {
	return m.bus
}

// On is shorthand for Events().On
func (m *Manager) On(event string, fn Listener) ListenerID {
	return m.bus.On(event, fn)
}

// Off is shorthand for Events().Off
func (m *Manager) Off(event string, id ListenerID) bool {
	return m.bus.Off(event, id)
}

// Register creates or replaces the operation with the given id.
// The new record starts pending with zero progress.
func (m *Manager) Register(ctx context.Context, id string, cfg Config) (Operation, error) {
	ctx, span := m.metrics.startSpan(ctx, "operation.register", id)
	op, err := m.registry.register(ctx, id, cfg)
	endSpan(span, err)
	return op, err
}

// Update merges patch into a non-terminal operation. Unknown or terminal
// ids are ignored.
func (m *Manager) Update(ctx context.Context, id string, patch Patch) {
	m.registry.update(ctx, id, 0, patch)
}

// Complete moves the operation to result.Status, or completed when the
// status is not terminal. Unknown or terminal ids are ignored.
func (m *Manager) Complete(ctx context.Context, id string, result Result) {
	ctx, span := m.metrics.startSpan(ctx, "operation.complete", id,
		attribute.String("operation.status", string(result.Status)))
	defer span.End()
	m.registry.complete(ctx, id, 0, result)
}

// Fail completes the operation as failed with err's message
func (m *Manager) Fail(ctx context.Context, id string, err error) {
	ctx, span := m.metrics.startSpan(ctx, "operation.fail", id)
	defer span.End()
	if err != nil {
		span.RecordError(err)
	}
	m.registry.fail(ctx, id, 0, err)
}

// Cancel stops polling for id and completes it as cancelled.
// In-flight probes are not awaited; their results are discarded.
func (m *Manager) Cancel(ctx context.Context, id string) {
	m.registry.cancel(ctx, id)
}

// StartPolling invokes probe every interval until the operation becomes
// terminal or its timeout elapses. An existing handle for id is replaced.
func (m *Manager) StartPolling(ctx context.Context, id string, probe Probe, interval time.Duration) error {
	return m.poller.start(ctx, id, probe, interval)
}

// StopPolling cancels polling for id. It is safe to call repeatedly.
func (m *Manager) StopPolling(id string) {
	m.poller.StopPolling(id)
}

// IsPolling reports whether a polling handle exists for id
func (m *Manager) IsPolling(id string) bool {
	return m.poller.isPolling(id)
}

// Get returns a snapshot of the operation
func (m *Manager) Get(id string) (Operation, bool) {
	op, _, ok := m.registry.lookup(id)
	return op, ok
}

// ListActive returns snapshots of every retained operation in
// registration order, terminal ones still inside their grace period included.
func (m *Manager) ListActive() []Operation {
	return m.registry.list()
}

// ClearAll stops every poll and drops every record without publishing
// events. It returns the number of records dropped.
func (m *Manager) ClearAll(ctx context.Context) int {
	return m.registry.clear(ctx)
}

func (m *Manager) countActive() int64 {
	var n int64
	for _, op := range m.registry.list() {
		if !op.Status.IsTerminal() {
			n++
		}
	}
	return n
}
