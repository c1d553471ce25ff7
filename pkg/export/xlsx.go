package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// XLSX writes the artifact's reference list and session metrics as a
// two-sheet workbook at outPath.
func XLSX(a *Artifact, outPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	const refSheet = "References"
	if err := f.SetSheetName("Sheet1", refSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	headers := []string{"#", "Title", "URL"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(refSheet, cell, h); err != nil {
			return err
		}
	}
	for i, ref := range a.References {
		row := i + 2
		values := []any{i + 1, ref.Title, ref.URL}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(refSheet, cell, v); err != nil {
				return err
			}
		}
	}

	const metricSheet = "Metrics"
	if _, err := f.NewSheet(metricSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	metrics := [][2]any{
		{"Topic", a.Title},
		{"Generated", a.GeneratedAt},
		{"Session", a.SessionID},
		{"Sources", a.Sources},
		{"Iterations", a.Iterations},
		{"Quality", a.Quality},
		{"Sections", a.Sections},
		{"Words", a.Words},
		{"References", len(a.References)},
	}
	for i, kv := range metrics {
		row := i + 1
		keyCell, _ := excelize.CoordinatesToCellName(1, row)
		valCell, _ := excelize.CoordinatesToCellName(2, row)
		if err := f.SetCellValue(metricSheet, keyCell, kv[0]); err != nil {
			return err
		}
		if err := f.SetCellValue(metricSheet, valCell, kv[1]); err != nil {
			return err
		}
	}

	if err := f.SaveAs(outPath); err != nil {
		return fmt.Errorf("failed to write xlsx: %w", err)
	}
	return nil
}
