package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"asyncops/internal/config"
	apierrors "asyncops/internal/errors"
	"asyncops/internal/infrastructure"
	"asyncops/internal/operations"
	api "asyncops/pkg/contracts/api/v1"
)

// OperationService exposes the Manager to the REST API
type OperationService struct {
	manager *operations.Manager
	cfg     config.OrchestratorConfig
	client  *http.Client
	logger  *slog.Logger
}

// NewOperationService creates the service. client is used by remote probes;
// nil means http.DefaultClient.
func NewOperationService(manager *operations.Manager, cfg config.OrchestratorConfig, client *http.Client, logger *slog.Logger) *OperationService {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &OperationService{
		manager: manager,
		cfg:     cfg,
		client:  client,
		logger:  infrastructure.WithComponent(logger, "operation_service"),
	}
}

// Register creates an operation from req, generating an id when none is given
func (s *OperationService) Register(ctx context.Context, req api.RegisterRequest) (operations.Operation, error) {
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	b := operations.NewConfigBuilder().
		WithTimeout(s.timeoutFor(req.TimeoutMS)).
		WithProgress(req.ShowProgress).
		WithDescription(req.Description)
	if req.ShowNotifications != nil {
		b.WithNotifications(*req.ShowNotifications)
	}
	for k, v := range req.Metadata {
		b.WithMetadata(k, v)
	}

	op, err := s.manager.Register(ctx, id, b.Build())
	if err != nil {
		return operations.Operation{}, fmt.Errorf("register operation %s: %w", id, err)
	}
	return op, nil
}

// timeoutFor maps the request's timeout_ms: absent or 0 uses the configured
// default and -1 disables the timeout.
func (s *OperationService) timeoutFor(ms *int64) time.Duration {
	switch {
	case ms == nil || *ms == 0:
		return s.cfg.DefaultTimeout
	case *ms < 0:
		return -1
	default:
		return time.Duration(*ms) * time.Millisecond
	}
}

// Get returns the operation with the given id
func (s *OperationService) Get(_ context.Context, id string) (operations.Operation, error) {
	op, ok := s.manager.Get(id)
	if !ok {
		return operations.Operation{}, apierrors.OperationNotFound(id)
	}
	return op, nil
}

// List returns every tracked operation, including recently finished ones
func (s *OperationService) List(_ context.Context) []operations.Operation {
	return s.manager.ListActive()
}

// ActiveCount returns the number of non-terminal operations
func (s *OperationService) ActiveCount() int {
	n := 0
	for _, op := range s.manager.ListActive() {
		if !op.Status.IsTerminal() {
			n++
		}
	}
	return n
}

// Update applies a partial update. A terminal status finishes the operation.
func (s *OperationService) Update(ctx context.Context, id string, req api.UpdateRequest) (operations.Operation, error) {
	op, err := s.mutable(id)
	if err != nil {
		return op, err
	}

	patch := operations.Patch{
		Progress:    req.Progress,
		Description: req.Description,
		Fields:      req.Fields,
	}
	if req.Status != nil {
		status, err := operations.ParseStatus(*req.Status)
		if err != nil {
			return op, apierrors.ErrValidation("status", err.Error())
		}
		patch.Status = &status
	}

	s.manager.Update(ctx, id, patch)
	return s.current(id, op), nil
}

// Complete finishes the operation with the given result
func (s *OperationService) Complete(ctx context.Context, id string, req api.CompleteRequest) (operations.Operation, error) {
	op, err := s.mutable(id)
	if err != nil {
		return op, err
	}

	status := operations.StatusCompleted
	if req.Status != "" {
		if status, err = operations.ParseStatus(req.Status); err != nil {
			return op, apierrors.ErrValidation("status", err.Error())
		}
	}

	s.manager.Complete(ctx, id, operations.Result{
		Status:  status,
		Message: req.Message,
		Error:   req.Error,
		Fields:  req.Fields,
	})
	return s.current(id, op), nil
}

// Fail finishes the operation as failed
func (s *OperationService) Fail(ctx context.Context, id string, req api.FailRequest) (operations.Operation, error) {
	op, err := s.mutable(id)
	if err != nil {
		return op, err
	}
	s.manager.Fail(ctx, id, errors.New(req.Error))
	return s.current(id, op), nil
}

// Cancel stops polling and marks the operation cancelled
func (s *OperationService) Cancel(ctx context.Context, id string) (operations.Operation, error) {
	op, err := s.mutable(id)
	if err != nil {
		return op, err
	}
	s.manager.Cancel(ctx, id)
	s.logger.InfoContext(ctx, "operation cancelled by request", slog.String("operation_id", id))
	return s.current(id, op), nil
}

// StartPolling polls req.URL until the operation finishes
func (s *OperationService) StartPolling(ctx context.Context, id string, req api.PollRequest) (operations.Operation, error) {
	op, err := s.mutable(id)
	if err != nil {
		return op, err
	}

	interval := s.cfg.DefaultPollInterval
	if req.IntervalMS > 0 {
		interval = time.Duration(req.IntervalMS) * time.Millisecond
	}
	if interval < s.cfg.MinPollInterval {
		return op, apierrors.ErrValidation("interval_ms",
			fmt.Sprintf("must be at least %d", s.cfg.MinPollInterval.Milliseconds()))
	}

	probe := HTTPProbe(s.client, req.URL, req.Headers, s.cfg.ProbeTimeout)
	if err := s.manager.StartPolling(ctx, id, probe, interval); err != nil {
		return op, fmt.Errorf("start polling %s: %w", id, err)
	}
	s.logger.InfoContext(ctx, "remote polling started",
		slog.String("operation_id", id),
		slog.String("url", req.URL),
		slog.Duration("interval", interval))
	return s.current(id, op), nil
}

// StopPolling stops polling without changing the operation's status
func (s *OperationService) StopPolling(_ context.Context, id string) error {
	if _, ok := s.manager.Get(id); !ok {
		return apierrors.OperationNotFound(id)
	}
	s.manager.StopPolling(id)
	return nil
}

// IsPolling reports whether a probe is attached to the operation
func (s *OperationService) IsPolling(id string) bool {
	return s.manager.IsPolling(id)
}

// ClearAll drops every operation and returns how many were removed
func (s *OperationService) ClearAll(ctx context.Context) int {
	n := s.manager.ClearAll(ctx)
	s.logger.InfoContext(ctx, "operations cleared", slog.Int("count", n))
	return n
}

// mutable returns the operation if it exists and has not finished
func (s *OperationService) mutable(id string) (operations.Operation, error) {
	op, ok := s.manager.Get(id)
	if !ok {
		return operations.Operation{}, apierrors.OperationNotFound(id)
	}
	if op.Status.IsTerminal() {
		return op, apierrors.OperationFinished(id, string(op.Status))
	}
	return op, nil
}

// current re-reads the operation after a change. With a zero grace period
// the record may already be purged, in which case prev is returned.
func (s *OperationService) current(id string, prev operations.Operation) operations.Operation {
	if op, ok := s.manager.Get(id); ok {
		return op
	}
	return prev
}
