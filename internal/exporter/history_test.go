package exporter

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"asyncops/internal/operations"
	"asyncops/internal/shared/testutil"
)

func ids(ops []operations.Operation) []string {
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = op.ID
	}
	return out
}

func TestHistoryEvictsOldest(t *testing.T) {
	h := NewHistory(3)
	assert.Equal(t, 3, h.Capacity())
	assert.Empty(t, h.Snapshot())

	for i := 1; i <= 5; i++ {
		h.Record(operations.Operation{ID: fmt.Sprintf("op-%d", i)})
	}
	assert.Equal(t, 3, h.Len())
	assert.Equal(t, []string{"op-3", "op-4", "op-5"}, ids(h.Snapshot()))
}

func TestHistoryDefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultHistoryCapacity, NewHistory(0).Capacity())
}

func TestHistoryRecordsCompletions(t *testing.T) {
	logger, _ := testutil.NewCaptureLogger()
	m := operations.NewManager(operations.WithLogger(logger), operations.WithGracePeriod(time.Minute))
	t.Cleanup(func() { m.ClearAll(context.Background()) })
	ctx := context.Background()

	h := NewHistory(10)
	h.Attach(m.Events())

	_, err := m.Register(ctx, "a", operations.NewConfig())
	require.NoError(t, err)
	_, err = m.Register(ctx, "b", operations.NewConfig())
	require.NoError(t, err)
	m.Update(ctx, "a", operations.ProgressPatch(50, ""))
	m.Complete(ctx, "a", operations.Result{Status: operations.StatusCompleted, Message: "ok"})
	m.Fail(ctx, "b", fmt.Errorf("boom"))

	snap := h.Snapshot()
	require.Equal(t, []string{"a", "b"}, ids(snap))
	assert.Equal(t, operations.StatusCompleted, snap[0].Status)
	assert.Equal(t, operations.StatusFailed, snap[1].Status)
	assert.Equal(t, "boom", snap[1].Result.Error)

	h.Stop()
	_, err = m.Register(ctx, "c", operations.NewConfig())
	require.NoError(t, err)
	m.Cancel(ctx, "c")
	assert.Equal(t, 2, h.Len())
	assert.Zero(t, m.Events().ListenerCount(operations.EventOperationComplete))
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "", want: FormatJSON},
		{in: "CSV", want: FormatCSV},
		{in: " xlsx ", want: FormatXLSX},
		{in: "pdf", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	assert.Equal(t, "operations-20260304-050607.xlsx", FormatXLSX.Filename(ts))
	assert.Equal(t, "text/csv; charset=utf-8", FormatCSV.ContentType())
}
