package exporter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"asyncops/internal/operations"
)

// Format is an export encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Formats lists the supported formats
var Formats = []Format{FormatJSON, FormatCSV, FormatXLSX}

// ParseFormat accepts a format name case-insensitively; empty means JSON
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatCSV, FormatXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// ContentType returns the MIME type of the format
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/json"
	}
}

// Filename returns a download name for an export taken at t
func (f Format) Filename(t time.Time) string {
	return fmt.Sprintf("operations-%s.%s", t.UTC().Format("20060102-150405"), f)
}

// Columns is the header shared by the tabular formats
var Columns = []string{
	"id", "status", "progress", "description",
	"start_time", "end_time", "duration_ms", "message", "error",
}

// record flattens op into Columns order
func record(op operations.Operation) []string {
	var message, errMsg string
	if op.Result != nil {
		message, errMsg = op.Result.Message, op.Result.Error
	}
	duration := ""
	if op.Duration != nil {
		duration = formatInt(op.DurationMillis())
	}
	return []string{
		op.ID,
		string(op.Status),
		formatInt(int64(op.Progress)),
		op.Description,
		formatTime(&op.StartTime),
		formatTime(op.EndTime),
		duration,
		message,
		errMsg,
	}
}

func formatInt(i int64) string {
	return strconv.FormatInt(i, 10)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
