package exporter

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"asyncops/internal/operations"
)

// SheetName is the worksheet holding exported operations
const SheetName = "Operations"

// WriteXLSX writes ops as a single-sheet workbook. Progress and duration
// are stored as numbers; the other columns as text.
func WriteXLSX(w io.Writer, ops []operations.Operation) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]any, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(Columns), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, "A1", last, bold); err != nil {
		return fmt.Errorf("failed to style headers: %w", err)
	}

	for i, op := range ops {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := xlsxRow(op)
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	if err := f.SetColWidth(SheetName, "A", "A", 38); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetName, "D", "F", 28); err != nil {
		return err
	}
	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze header: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func xlsxRow(op operations.Operation) []any {
	cells := record(op)
	row := make([]any, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	row[2] = op.Progress
	if op.Duration != nil {
		row[6] = op.DurationMillis()
	}
	return row
}
