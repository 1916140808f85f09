package exporter

import (
	"encoding/csv"
	"fmt"
	"io"

	"asyncops/internal/operations"
)

// CSVOptions configures CSV output
type CSVOptions struct {
	// BOMPrefix adds a UTF-8 BOM so spreadsheet tools detect the encoding
	BOMPrefix bool
}

// WriteCSV writes ops with a header row
func WriteCSV(w io.Writer, ops []operations.Operation, opts CSVOptions) error {
	if opts.BOMPrefix {
		if _, err := w.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(Columns); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for i, op := range ops {
		if err := writer.Write(record(op)); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}
