package assemble

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"reclink/internal/fileutil"
)

const sheetName = "Linked Records"

// Write saves the table in the named format ("csv" or "xlsx").
func Write(path, format string, table *Table) error {
	switch strings.ToLower(format) {
	case "", "csv":
		return WriteCSV(path, table)
	case "xlsx":
		return WriteXLSX(path, table)
	default:
		return fmt.Errorf("assemble: unsupported output format %q", format)
	}
}

// WriteCSV writes the table as CSV, replacing path atomically.
func WriteCSV(path string, table *Table) error {
	if err := fileutil.WriteFileAtomic(path, 0o644, func(w io.Writer) error {
		return EncodeCSV(w, table)
	}); err != nil {
		return fmt.Errorf("write csv output: %w", err)
	}
	return nil
}

// EncodeCSV streams the table as CSV to w.
func EncodeCSV(w io.Writer, table *Table) error {
	writer := csv.NewWriter(w)
	if err := writer.WriteAll(table.Records()); err != nil {
		return err
	}
	return writer.Error()
}

// WriteXLSX writes the table as a single-sheet workbook, replacing path
// atomically. Annotation columns are numeric cells; input values stay text
// so identifiers such as zip codes keep their leading zeros.
func WriteXLSX(path string, table *Table) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	header := make([]interface{}, len(table.Header))
	for i, name := range table.Header {
		header[i] = name
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(table.Header), 1)
	if err := f.SetCellStyle(sheetName, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for i, row := range table.Rows {
		cells := make([]interface{}, 0, 3+len(row.Values))
		if row.Clustered {
			cells = append(cells, row.ClusterID, row.Score)
		} else {
			cells = append(cells, "", "")
		}
		cells = append(cells, row.SourceIndex)
		for _, value := range row.Values {
			cells = append(cells, value)
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheetName, cell, &cells); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	for i := range table.Header {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheetName, col, col, 15); err != nil {
			return fmt.Errorf("failed to size columns: %w", err)
		}
	}

	if err := fileutil.WriteFileAtomic(path, 0o644, func(w io.Writer) error {
		return f.Write(w)
	}); err != nil {
		return fmt.Errorf("failed to save Excel file: %w", err)
	}
	return nil
}
