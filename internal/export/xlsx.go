// Package export writes usage reports as spreadsheets for mail attachments.
package export

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/xuri/excelize/v2"

	"github.com/andresuchdata/space-evaluation/backend-go/internal/domain"
)

const SheetName = "Usage"

var header = []interface{}{"Prefix", "Depth", "Size (bytes)", "Size (GB)", "Size"}

// FileName is the workbook name for a run, e.g. S3_SIZE_space_usage_2024-02-01.xlsx.
func FileName(run domain.Run) string {
	return fmt.Sprintf("%s_space_usage_%s.xlsx", run.Segment, run.ISODate())
}

// WriteWorkbook writes one row per node below root, in pre-order, to path.
func WriteWorkbook(path string, root *domain.StorageNode) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	if err := f.SetRowStyle(SheetName, 1, 1, bold); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for i, row := range domain.Flatten(root) {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []interface{}{
			row.Prefix,
			row.Depth,
			row.SizeBytes,
			roundGB(row.SizeBytes),
			humanize.IBytes(row.SizeBytes),
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("failed to write row for %s: %w", row.Prefix, err)
		}
	}

	if err := f.SetColWidth(SheetName, "A", "A", 60); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", path, err)
	}
	return nil
}

func roundGB(sizeBytes uint64) float64 {
	return math.Round(domain.GB(sizeBytes)*100) / 100
}
