package operations

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, 5*time.Minute, cfg.Timeout)
	assert.False(t, cfg.ShowProgress)
	assert.True(t, cfg.ShowNotifications)
	assert.NoError(t, cfg.Validate())
}

func TestEffectiveTimeout(t *testing.T) {
	assert.Equal(t, DefaultTimeout, Config{}.EffectiveTimeout())
	assert.Equal(t, time.Second, Config{Timeout: time.Second}.EffectiveTimeout())
	assert.Zero(t, Config{Timeout: -1}.EffectiveTimeout())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "defaults", cfg: NewConfig()},
		{name: "metadata", cfg: Config{Metadata: map[string]string{"service": "billing"}}},
		{name: "long description", cfg: Config{Description: strings.Repeat("x", 513)}, wantErr: true},
		{name: "empty metadata key", cfg: Config{Metadata: map[string]string{"": "v"}}, wantErr: true},
		{name: "long metadata value", cfg: Config{Metadata: map[string]string{"k": strings.Repeat("v", 2049)}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, ErrorTypeValidation, GetErrorType(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestConfigJSON(t *testing.T) {
	var cfg Config
	require.NoError(t, json.Unmarshal([]byte(`{"timeout_ms": 1500, "show_progress": true}`), &cfg))
	assert.Equal(t, 1500*time.Millisecond, cfg.Timeout)
	assert.True(t, cfg.ShowProgress)
	assert.True(t, cfg.ShowNotifications, "absent fields keep their defaults")

	require.NoError(t, json.Unmarshal([]byte(`{"show_notifications": false}`), &cfg))
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.False(t, cfg.ShowNotifications)

	out, err := json.Marshal(NewConfigBuilder().WithTimeout(2 * time.Second).Build())
	require.NoError(t, err)
	assert.Contains(t, string(out), `"timeout_ms":2000`)
}

func TestConfigBuilder(t *testing.T) {
	cfg := NewConfigBuilder().
		WithoutTimeout().
		WithProgress(true).
		WithNotifications(false).
		WithDescription("nightly import").
		WithMetadata("source", "s3").
		Build()

	assert.Equal(t, time.Duration(-1), cfg.Timeout)
	assert.True(t, cfg.ShowProgress)
	assert.False(t, cfg.ShowNotifications)
	assert.Equal(t, "nightly import", cfg.Description)
	assert.Equal(t, map[string]string{"source": "s3"}, cfg.Metadata)
}

func TestOperationJSONIncludesDurationMillis(t *testing.T) {
	d := 1500 * time.Millisecond
	op := Operation{ID: "op", Status: StatusCompleted, Duration: &d}

	out, err := json.Marshal(op)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"duration_ms":1500`)
	assert.Contains(t, string(out), `"status":"completed"`)
}

func TestPollResultMapping(t *testing.T) {
	p := 40
	patch := PollResult{Progress: &p, Message: "uploading", Status: StatusRunning}.toPatch()
	assert.Equal(t, 40, *patch.Progress)
	assert.Equal(t, "uploading", *patch.Description)
	assert.Equal(t, StatusRunning, *patch.Status)

	assert.Equal(t, StatusCompleted, PollResult{Completed: true}.toResult().Status)
	assert.Equal(t, StatusFailed, PollResult{Failed: true}.toResult().Status)
	assert.Equal(t, StatusCancelled, PollResult{Status: StatusCancelled}.toResult().Status)
	assert.True(t, PollResult{Status: StatusFailed}.Terminal())
	assert.False(t, PollResult{Status: StatusRunning}.Terminal())
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("running")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, s)
	assert.False(t, s.IsTerminal())

	_, err = ParseStatus("paused")
	assert.Error(t, err)
}

func TestDisabledTimeoutSurvivesJSON(t *testing.T) {
	cfg := NewConfigBuilder().WithoutTimeout().Build()
	assert.Equal(t, int64(-1), cfg.TimeoutMillis())

	out, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"timeout_ms":-1`)

	var back Config
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Zero(t, back.EffectiveTimeout())
}
