package services

import (
	"context"
	"testing"
	"time"

	"asyncops/internal/config"
	"asyncops/internal/operations"
	"asyncops/internal/shared/testutil"
)

func testOrchestratorConfig() config.OrchestratorConfig {
	return config.OrchestratorConfig{
		GracePeriod:         time.Minute,
		DefaultTimeout:      2 * time.Minute,
		DefaultPollInterval: 20 * time.Millisecond,
		MinPollInterval:     5 * time.Millisecond,
		ProbeTimeout:        time.Second,
		BatchItemTimeout:    time.Second,
		MaxBatchItems:       5,
	}
}

func newTestManager(t *testing.T) *operations.Manager {
	t.Helper()
	logger, _ := testutil.NewCaptureLogger()
	m := operations.NewManager(
		operations.WithLogger(logger),
		operations.WithGracePeriod(time.Minute),
	)
	t.Cleanup(func() { m.ClearAll(context.Background()) })
	return m
}

func statusOf(m *operations.Manager, id string) operations.Status {
	op, ok := m.Get(id)
	if !ok {
		return ""
	}
	return op.Status
}
