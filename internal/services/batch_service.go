package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"asyncops/internal/config"
	apierrors "asyncops/internal/errors"
	"asyncops/internal/infrastructure"
	"asyncops/internal/operations"
	api "asyncops/pkg/contracts/api/v1"
)

// BatchService runs batches of HTTP requests in the background
type BatchService struct {
	manager     *operations.Manager
	client      *http.Client
	itemTimeout time.Duration
	maxItems    int
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBatchService creates the service. Close must be called to stop
// batches that are still running.
func NewBatchService(manager *operations.Manager, cfg config.OrchestratorConfig, client *http.Client, logger *slog.Logger) *BatchService {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = http.DefaultClient
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BatchService{
		manager:     manager,
		client:      client,
		itemTimeout: cfg.BatchItemTimeout,
		maxItems:    cfg.MaxBatchItems,
		logger:      infrastructure.WithComponent(logger, "batch_service"),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Submit registers the batch operation and starts executing it.
// It returns as soon as the operation is registered.
func (s *BatchService) Submit(ctx context.Context, req api.BatchRequest) (api.BatchResponse, error) {
	if s.maxItems > 0 && len(req.Items) > s.maxItems {
		return api.BatchResponse{}, apierrors.ErrValidation("items",
			fmt.Sprintf("at most %d items are allowed", s.maxItems))
	}
	if s.ctx.Err() != nil {
		return api.BatchResponse{}, apierrors.ErrServiceUnavailable
	}

	id := req.ID
	if id == "" {
		id = "batch-" + uuid.NewString()
	}

	batch, err := operations.CreateBatch(ctx, s.manager, id, req.Items)
	if err != nil {
		return api.BatchResponse{}, fmt.Errorf("create batch %s: %w", id, err)
	}
	batch.Label = func(item api.BatchItem) string { return item.Method + " " + item.URL }

	// Trace ids follow the batch into the background.
	runCtx := s.ctx
	if traceID := infrastructure.GetTraceID(ctx); traceID != "" {
		runCtx = infrastructure.WithTraceID(runCtx, traceID)
	}
	runCtx = infrastructure.EnsureTraceID(runCtx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		start := time.Now()
		if err := batch.Execute(runCtx, s.send); err != nil {
			s.logger.WarnContext(runCtx, "batch stopped",
				slog.String("operation_id", id),
				slog.String("error", err.Error()),
				slog.Duration("elapsed", time.Since(start)))
			return
		}
		s.logger.InfoContext(runCtx, "batch finished",
			slog.String("operation_id", id),
			slog.Int("items", len(req.Items)),
			slog.Duration("elapsed", time.Since(start)))
	}()

	s.logger.InfoContext(ctx, "batch submitted",
		slog.String("operation_id", id),
		slog.Int("items", len(req.Items)))
	return api.BatchResponse{ID: id, Items: len(req.Items)}, nil
}

// send performs one batch item. Any non-2xx response fails the item.
func (s *BatchService) send(ctx context.Context, item api.BatchItem, _ int) error {
	if s.itemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.itemTimeout)
		defer cancel()
	}

	var body io.Reader
	if len(item.Body) > 0 {
		body = bytes.NewReader(item.Body)
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(item.Method), item.URL, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range item.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxStatusBody))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

// Close cancels running batches and waits for them to stop
func (s *BatchService) Close() {
	s.cancel()
	s.wg.Wait()
}
