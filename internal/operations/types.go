package operations

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// Event names published on the bus
const (
	EventOperationUpdate   = "operationUpdate"
	EventOperationComplete = "operationComplete"
)

// Default timings
const (
	DefaultTimeout      = 5 * time.Minute
	DefaultGracePeriod  = 5 * time.Second
	DefaultPollInterval = time.Second
)

// Fixed result messages
const (
	MessageCancelled    = "Operation cancelled by user"
	MessageFailedPrefix = "Operation failed: "
	MessageTimeout      = "Operation timeout"
)

// Status represents the lifecycle state of an operation
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether the status accepts no further mutation.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// ParseStatus converts a string into a Status
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", fmt.Errorf("unknown operation status %q", s)
	}
	return st, nil
}

// Operation is a snapshot of a tracked unit of asynchronous work.
type Operation struct {
	ID          string         `json:"id"`
	Status      Status         `json:"status"`
	Progress    int            `json:"progress"`
	Description string         `json:"description,omitempty"`
	StartTime   time.Time      `json:"start_time"`
	EndTime     *time.Time     `json:"end_time,omitempty"`
	Duration    *time.Duration `json:"-"`
	Config      Config         `json:"config"`
	Result      *Result        `json:"result,omitempty"`
	Fields      map[string]any `json:"fields,omitempty"`
}

// DurationMillis returns the completed duration in milliseconds, or -1.
func (o Operation) DurationMillis() int64 {
	if o.Duration == nil {
		return -1
	}
	return o.Duration.Milliseconds()
}

// MarshalJSON adds duration_ms to the encoded operation
func (o Operation) MarshalJSON() ([]byte, error) {
	type alias Operation
	var ms *int64
	if o.Duration != nil {
		v := o.Duration.Milliseconds()
		ms = &v
	}
	return json.Marshal(struct {
		alias
		DurationMS *int64 `json:"duration_ms,omitempty"`
	}{alias: alias(o), DurationMS: ms})
}

// clone returns a copy that shares no mutable state with o.
func (o *Operation) clone() Operation {
	c := *o
	if o.EndTime != nil {
		t := *o.EndTime
		c.EndTime = &t
	}
	if o.Duration != nil {
		d := *o.Duration
		c.Duration = &d
	}
	if o.Result != nil {
		r := *o.Result
		r.Fields = maps.Clone(o.Result.Fields)
		c.Result = &r
	}
	c.Config.Metadata = maps.Clone(o.Config.Metadata)
	c.Fields = maps.Clone(o.Fields)
	return c
}

// Patch is a partial update applied to a non-terminal operation.
// Nil fields are left untouched; Fields is merged key by key.
type Patch struct {
	Status      *Status        `json:"status,omitempty"`
	Progress    *int           `json:"progress,omitempty"`
	Description *string        `json:"description,omitempty"`
	Fields      map[string]any `json:"fields,omitempty"`
}

// StatusPatch builds a patch that only changes the status
func StatusPatch(s Status) Patch {
	return Patch{Status: &s}
}

// ProgressPatch builds a patch that sets progress and, when non-empty, the description
func ProgressPatch(progress int, description string) Patch {
	p := Patch{Progress: &progress}
	if description != "" {
		p.Description = &description
	}
	return p
}

// Result is the payload stored on an operation when it becomes terminal.
type Result struct {
	Status  Status         `json:"status"`
	Message string         `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`

	// Err carries the typed cause for failed results.
	Err error `json:"-"`
}

// PollResult is what a probe reports on each tick.
type PollResult struct {
	Completed bool           `json:"completed,omitempty"`
	Failed    bool           `json:"failed,omitempty"`
	Progress  *int           `json:"progress,omitempty"`
	Status    Status         `json:"status,omitempty"`
	Message   string         `json:"message,omitempty"`
	Error     string         `json:"error,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Terminal reports whether the poll result ends polling.
func (r PollResult) Terminal() bool {
	return r.Completed || r.Failed || r.Status.IsTerminal()
}

// toResult maps a terminal poll result onto a completion result.
func (r PollResult) toResult() Result {
	status := r.Status
	if !status.IsTerminal() {
		status = StatusCompleted
		if r.Failed {
			status = StatusFailed
		}
	}
	return Result{
		Status:  status,
		Message: r.Message,
		Error:   r.Error,
		Fields:  maps.Clone(r.Fields),
	}
}

// toPatch maps a non-terminal poll result onto an update.
func (r PollResult) toPatch() Patch {
	p := Patch{Progress: r.Progress, Fields: maps.Clone(r.Fields)}
	if r.Status != "" {
		s := r.Status
		p.Status = &s
	}
	if r.Message != "" {
		msg := r.Message
		p.Description = &msg
	}
	return p
}

func clampProgress(p int) int {
	return max(0, min(100, p))
}
