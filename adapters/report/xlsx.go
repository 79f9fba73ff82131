package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"surveyfit/domain/run"
	"surveyfit/domain/survey"
	"surveyfit/internal"
	"surveyfit/internal/errors"
	"surveyfit/ports"
)

const (
	summarySheet  = "Resumo"
	manifestSheet = "Execucao"
	maxSheetName  = 31
)

// XLSXSink writes a workbook with a summary sheet and one sheet per fitted
// dependent, each with a native bar chart of the group means
type XLSXSink struct {
	dir    string
	logger *internal.Logger
}

var _ ports.ReportSinkPort = (*XLSXSink)(nil)

func NewXLSXSink(dir string, logger *internal.Logger) *XLSXSink {
	return &XLSXSink{dir: dir, logger: logger.OrDefault("XLSXSink")}
}

func (s *XLSXSink) Name() string { return FormatXLSX }

func (s *XLSXSink) Render(ctx context.Context, report *run.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := BuildWorkbook(report)
	if err != nil {
		return err
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return errors.Wrap(err, "failed to encode workbook")
	}
	path, err := writeFile(s.dir, FileBase(report)+".xlsx", buf.Bytes())
	if err != nil {
		return err
	}
	s.logger.Info("wrote workbook to %s (%d sheets)", path, len(f.GetSheetList()))
	return nil
}

// BuildWorkbook lays the report out as a workbook. The caller closes it.
func BuildWorkbook(report *run.Report) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "failed to name summary sheet")
	}
	if err := writeSummary(f, report); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeManifest(f, report.Manifest); err != nil {
		f.Close()
		return nil, err
	}

	for i := range report.Results {
		res := &report.Results[i]
		if !res.OK() {
			continue
		}
		sheet := SheetName(i+1, res.Alias)
		if err := writeResultSheet(f, sheet, res); err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "failed to write sheet for %s", res.Alias)
		}
	}
	return f, nil
}

// SheetName builds "NN_alias" limited to the 31 characters a sheet name allows
func SheetName(index int, alias string) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']', '\'':
			return '_'
		}
		return r
	}, alias)
	name := []rune(fmt.Sprintf("%02d_%s", index, clean))
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	return string(name)
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

// cellValue leaves undefined statistics blank
func cellValue(v survey.Float) interface{} {
	if !v.Defined() {
		return nil
	}
	return float64(v)
}

func writeSummary(f *excelize.File, report *run.Report) error {
	header := []interface{}{"alias", "label", "status", "nobs", "pseudo_r2", "llr_p_value",
		"aic", "converged", "observed_group1", "observed_group0", "error"}
	if err := setRow(f, summarySheet, 1, header); err != nil {
		return err
	}

	for i, res := range report.Results {
		row := []interface{}{res.Alias, res.Label, string(res.Status), res.NObs}
		if res.Fit != nil {
			row = append(row, cellValue(res.Fit.PseudoR2), cellValue(res.Fit.LLRPValue),
				cellValue(res.Fit.AIC), res.Fit.Converged)
		} else {
			row = append(row, nil, nil, nil, nil)
		}
		row = append(row, cellValue(res.Groups.ObservedGroup1), cellValue(res.Groups.ObservedGroup0), res.Error)
		if err := setRow(f, summarySheet, i+2, row); err != nil {
			return err
		}
	}
	return f.SetPanes(summarySheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func writeManifest(f *excelize.File, m run.Manifest) error {
	if _, err := f.NewSheet(manifestSheet); err != nil {
		return err
	}
	rows := [][]interface{}{
		{"run_id", m.RunID.String()},
		{"study", m.Study},
		{"source", m.Source},
		{"optimizer_method", m.OptimizerMethod},
		{"regressor_policy", m.RegressorPolicy},
		{"missing_control_policy", m.MissingControlPolicy},
		{"split_indicator_column", m.SplitIndicator},
		{"row_count", m.RowCount},
		{"control_count", m.ControlCount},
		{"encoded_column_count", m.EncodedColumnCount},
		{"dependent_count", m.DependentCount},
		{"analysis_table_hash", string(m.AnalysisTableHash)},
		{"fingerprint", string(m.Fingerprint.Fingerprint)},
		{"code_version", m.Fingerprint.CodeVersion},
	}
	for i, row := range rows {
		if err := setRow(f, manifestSheet, i+1, row); err != nil {
			return err
		}
	}
	return nil
}

func writeResultSheet(f *excelize.File, sheet string, res *survey.ModelResult) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	if err := setRow(f, sheet, 1, []interface{}{res.Label}); err != nil {
		return err
	}
	header := []interface{}{"", "coef", "std_err", "z", "p_value", "ci_lower", "ci_upper"}
	if err := setRow(f, sheet, 3, header); err != nil {
		return err
	}
	row := 4
	for _, c := range res.Coefficients {
		values := []interface{}{c.Name, cellValue(c.Coef), cellValue(c.StdErr), cellValue(c.Z),
			cellValue(c.PValue), cellValue(c.CILower), cellValue(c.CIUpper)}
		if err := setRow(f, sheet, row, values); err != nil {
			return err
		}
		row++
	}
	for _, t := range res.Thresholds {
		values := []interface{}{t.Name, cellValue(t.Param), cellValue(t.StdErr), cellValue(t.Z),
			cellValue(t.PValue), cellValue(t.CutPoint)}
		if err := setRow(f, sheet, row, values); err != nil {
			return err
		}
		row++
	}

	if !res.Groups.Present {
		return nil
	}
	return writeGroupChart(f, sheet, res)
}

// writeGroupChart puts the group means at J3:L5 and charts them beside it
func writeGroupChart(f *excelize.File, sheet string, res *survey.ModelResult) error {
	g := res.Groups
	table := [][]interface{}{
		{"grupo", "observado", "previsto"},
		{"Grupo 1", cellValue(g.ObservedGroup1), cellValue(g.PredictedGroup1)},
		{"Grupo 0", cellValue(g.ObservedGroup0), cellValue(g.PredictedGroup0)},
	}
	for i, values := range table {
		cell, err := excelize.CoordinatesToCellName(10, i+3)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}

	ref := "'" + sheet + "'!"
	minimum := 0.0
	return f.AddChart(sheet, "J7", &excelize.Chart{
		Type: excelize.Col,
		Series: []excelize.ChartSeries{
			{Name: ref + "$K$3", Categories: ref + "$J$4:$J$5", Values: ref + "$K$4:$K$5"},
			{Name: ref + "$L$3", Categories: ref + "$J$4:$J$5", Values: ref + "$L$4:$L$5"},
		},
		Title:  []excelize.RichTextRun{{Text: res.Alias}},
		Legend: excelize.ChartLegend{Position: "bottom"},
		YAxis:  excelize.ChartAxis{Minimum: &minimum},
	})
}
