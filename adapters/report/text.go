package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"surveyfit/domain/run"
	"surveyfit/domain/survey"
	"surveyfit/internal"
	"surveyfit/ports"
)

const chartWidth = 40

// TextSink writes a plain-text summary per dependent variable
type TextSink struct {
	dir    string
	out    io.Writer
	logger *internal.Logger
}

var _ ports.ReportSinkPort = (*TextSink)(nil)

// NewTextSink writes <study>_report.txt into dir; an empty dir disables the file
func NewTextSink(dir string, logger *internal.Logger) *TextSink {
	return &TextSink{dir: dir, logger: logger.OrDefault("TextSink")}
}

// WithWriter also copies the summary to w
func (s *TextSink) WithWriter(w io.Writer) *TextSink {
	s.out = w
	return s
}

func (s *TextSink) Name() string { return FormatText }

func (s *TextSink) Render(ctx context.Context, report *run.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := WriteText(&buf, report); err != nil {
		return err
	}

	if s.out != nil {
		if _, err := s.out.Write(buf.Bytes()); err != nil {
			return err
		}
	}
	if s.dir == "" {
		return nil
	}
	path, err := writeFile(s.dir, FileBase(report)+".txt", buf.Bytes())
	if err != nil {
		return err
	}
	s.logger.Info("wrote text report to %s", path)
	return nil
}

// WriteText renders the whole report as text
func WriteText(w io.Writer, report *run.Report) error {
	m := report.Manifest
	fmt.Fprintf(w, "Study: %s\n", m.Study)
	fmt.Fprintf(w, "Run: %s  Source: %s\n", m.RunID, m.Source)
	fmt.Fprintf(w, "Rows: %d  Controls: %d (%d encoded columns)  Dependents: %d\n",
		m.RowCount, m.ControlCount, m.EncodedColumnCount, m.DependentCount)
	fmt.Fprintf(w, "Method: %s  Regressors: %s  Missing controls: %s\n",
		m.OptimizerMethod, m.RegressorPolicy, m.MissingControlPolicy)
	fmt.Fprintf(w, "Fitted: %d/%d  Fingerprint: %s\n\n", report.Fitted(), len(report.Results), m.Fingerprint.Fingerprint)

	for i := range report.Results {
		writeResult(w, &report.Results[i])
	}
	return nil
}

func writeResult(w io.Writer, res *survey.ModelResult) {
	rule := strings.Repeat("=", 78)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%s\n%s\n", res.Alias, res.Label)
	fmt.Fprintln(w, rule)

	if !res.OK() {
		fmt.Fprintf(w, "FAILED [%s]: %s\n", res.ErrorCode, res.Error)
		if res.NObs > 0 {
			fmt.Fprintf(w, "Observations: %d\n", res.NObs)
		}
		fmt.Fprintln(w)
		return
	}

	fit := res.Fit
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Observations:\t%d\tLog-likelihood:\t%s\n", res.NObs, num(fit.LogLikelihood, 3))
	fmt.Fprintf(tw, "Df model:\t%d\tLL-null:\t%s\n", fit.DFModel, num(fit.LLNull, 3))
	fmt.Fprintf(tw, "Df residuals:\t%d\tLLR p-value:\t%s\n", fit.DFResid, pvalue(fit.LLRPValue))
	fmt.Fprintf(tw, "Pseudo R-squ.:\t%s\tAIC:\t%s\n", num(fit.PseudoR2, 4), num(fit.AIC, 2))
	fmt.Fprintf(tw, "Converged:\t%t (%s, %d iter)\tBIC:\t%s\n", fit.Converged, fit.Method, fit.Iterations, num(fit.BIC, 2))
	tw.Flush()
	fmt.Fprintln(w)

	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "\tcoef\tstd err\tz\tP>|z|\t[0.025\t0.975]\t")
	for _, c := range res.Coefficients {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n", c.Name,
			num(c.Coef, 4), num(c.StdErr, 3), num(c.Z, 3), pvalue(c.PValue), num(c.CILower, 3), num(c.CIUpper, 3))
	}
	for _, t := range res.Thresholds {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\t\t\n", t.Name,
			num(t.Param, 4), num(t.StdErr, 3), num(t.Z, 3), pvalue(t.PValue))
	}
	tw.Flush()
	fmt.Fprintln(w)

	if len(res.Thresholds) > 0 {
		cuts := make([]string, len(res.Thresholds))
		for i, t := range res.Thresholds {
			cuts[i] = t.Name + "=" + num(t.CutPoint, 3)
		}
		fmt.Fprintf(w, "Cut-points: %s\n", strings.Join(cuts, "  "))
	}
	if p := res.Profile; p != nil {
		fmt.Fprintf(w, "Response: mean %s  sd %s  median %s  missing %d\n",
			num(p.Mean, 3), num(p.StdDev, 3), num(p.Median, 1), p.Missing)
	}
	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "Warning: %s\n", warning)
	}
	fmt.Fprintln(w)
	fmt.Fprint(w, BarChart(res.Groups, chartWidth))
	fmt.Fprintln(w)
}
