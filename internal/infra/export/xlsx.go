// Package export renders analyses as spreadsheets.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/bryanwahyu/mediscan/internal/domain/analysis"
)

const sheetName = "Analyses"

var fixedHeaders = []string{"Analyzed At", "Analysis ID", "Image ID", "Overall Risk", "Recommendation", "Summary"}

// WriteAnalyses writes one row per analysis: the fixed columns, then for
// every condition its score in percent and its severity tier.
func WriteAnalyses(w io.Writer, results []*analysis.Result) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return err
	}

	headers := append([]string{}, fixedHeaders...)
	for _, c := range analysis.Conditions {
		headers = append(headers, string(c)+" (%)", string(c)+" Severity")
	}
	for i, h := range headers {
		if err := setCell(f, i+1, 1, h); err != nil {
			return err
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, "A1", last, bold); err != nil {
		return err
	}

	for i, r := range results {
		row := i + 2
		values := []any{
			r.AnalyzedAt.UTC().Format("2006-01-02 15:04:05"),
			string(r.ID),
			r.ImageID,
			string(r.OverallRisk),
			r.Recommendation,
			r.Summary,
		}
		for _, c := range analysis.Conditions {
			pct := r.Scores.Get(c) * 100
			values = append(values, pct, string(analysis.SeverityFor(pct)))
		}
		for col, v := range values {
			if err := setCell(f, col+1, row, v); err != nil {
				return err
			}
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func setCell(f *excelize.File, col, row int, v any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(sheetName, cell, v)
}
