// Package excel exports analysis result objects as a workbook for the
// reporting collaborators. It is a pure consumer of the core's outputs; no
// algorithmic logic lives here.
package excel

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"synergy/app"
	"synergy/domain/dose"
)

// ReportWriter renders an AnalysisResult into an xlsx workbook.
type ReportWriter struct{}

// NewReportWriter creates a workbook writer.
func NewReportWriter() *ReportWriter {
	return &ReportWriter{}
}

// Write saves the result to path with one sheet per output object.
func (w *ReportWriter) Write(result *app.AnalysisResult, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := w.writeModel(f, result); err != nil {
		return err
	}
	if err := w.writeSurface(f, result.Surface); err != nil {
		return err
	}
	if result.Test != nil {
		if err := w.writeTest(f, result.Test); err != nil {
			return err
		}
	}
	if len(result.Pointwise) > 0 {
		if err := w.writeIntervals(f, result); err != nil {
			return err
		}
	}
	f.DeleteSheet("Sheet1")
	return f.SaveAs(path)
}

func (w *ReportWriter) writeModel(f *excelize.File, result *app.AnalysisResult) error {
	const sheet = "Marginal Fit"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	c := result.Model.Coef
	rows := [][]interface{}{
		{"analysis", result.ID.String()},
		{"compound 1", result.Compounds[0]},
		{"compound 2", result.Compounds[1]},
		{"h1", c.H1}, {"h2", c.H2}, {"b", c.B},
		{"m1", c.M1}, {"m2", c.M2}, {"e1", c.E1}, {"e2", c.E2},
		{"sigma", result.Model.Sigma},
		{"df", result.Model.DF},
		{"shared asymptote", result.Model.SharedAsymptote},
		{"method", string(result.Model.Method)},
	}
	return writeRows(f, sheet, rows)
}

func (w *ReportWriter) writeSurface(f *excelize.File, surface *dose.ResponseSurface) error {
	const sheet = "Surface"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	rows := [][]interface{}{{"d1", "d2", "predicted", "observed mean", "replicates", "z", "occupancy"}}
	for _, p := range surface.Points {
		rows = append(rows, []interface{}{
			p.Pair.D1, p.Pair.D2, p.Predicted, p.ObservedMean, p.Replicates, p.ZScore, p.Occupancy,
		})
	}
	return writeRows(f, sheet, rows)
}

func (w *ReportWriter) writeTest(f *excelize.File, test *dose.TestResult) error {
	const sheet = "Tests"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	rows := [][]interface{}{}
	if test.Global != nil {
		rows = append(rows,
			[]interface{}{"meanR statistic", test.Global.Statistic},
			[]interface{}{"reference", fmt.Sprintf("%s(%d,%d)", test.Global.Reference, test.Global.DF1, test.Global.DF2)},
			[]interface{}{"p-value", test.Global.PValue},
			[]interface{}{},
		)
	}
	if len(test.Points) > 0 {
		rows = append(rows, []interface{}{"d1", "d2", "maxR statistic", "p-value", "call"})
		for _, p := range test.Points {
			rows = append(rows, []interface{}{p.Pair.D1, p.Pair.D2, p.Statistic, p.PValue, string(p.Call)})
		}
	}
	return writeRows(f, sheet, rows)
}

func (w *ReportWriter) writeIntervals(f *excelize.File, result *app.AnalysisResult) error {
	const sheet = "Confidence"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	rows := [][]interface{}{{"d1", "d2", "effect", "lower", "upper", "level"}}
	for _, ci := range result.Pointwise {
		rows = append(rows, []interface{}{ci.Pair.D1, ci.Pair.D2, ci.Estimate, ci.Lower, ci.Upper, ci.Level})
	}
	if result.Overall != nil {
		rows = append(rows, []interface{}{"overall", "", result.Overall.Estimate, result.Overall.Lower, result.Overall.Upper, result.Overall.Level})
	}
	return writeRows(f, sheet, rows)
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}
