package report

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"surveyfit/domain/run"
	"surveyfit/domain/survey"
	"surveyfit/internal"
	"surveyfit/ports"
)

// HTMLSink renders the report as markdown and converts it to a standalone
// HTML page
type HTMLSink struct {
	dir    string
	logger *internal.Logger
}

var _ ports.ReportSinkPort = (*HTMLSink)(nil)

func NewHTMLSink(dir string, logger *internal.Logger) *HTMLSink {
	return &HTMLSink{dir: dir, logger: logger.OrDefault("HTMLSink")}
}

func (s *HTMLSink) Name() string { return FormatHTML }

func (s *HTMLSink) Render(ctx context.Context, report *run.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	page := RenderHTML(report)
	path, err := writeFile(s.dir, FileBase(report)+".html", page)
	if err != nil {
		return err
	}
	s.logger.Info("wrote HTML report to %s", path)
	return nil
}

// RenderHTML converts the markdown summary into a complete page
func RenderHTML(report *run.Report) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage,
		Title: report.Manifest.Study,
	})
	return markdown.ToHTML(Markdown(report), p, renderer)
}

// mdEscape keeps labels from breaking table cells
func mdEscape(s string) string {
	return strings.NewReplacer("|", "\\|", "\n", " ").Replace(s)
}

// Markdown renders the report as a markdown document
func Markdown(report *run.Report) []byte {
	var b bytes.Buffer
	m := report.Manifest

	fmt.Fprintf(&b, "# %s\n\n", m.Study)
	fmt.Fprintf(&b, "| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Run | `%s` |\n", m.RunID)
	fmt.Fprintf(&b, "| Source | %s |\n", mdEscape(m.Source))
	fmt.Fprintf(&b, "| Rows | %d |\n", m.RowCount)
	fmt.Fprintf(&b, "| Controls | %d (%d encoded columns) |\n", m.ControlCount, m.EncodedColumnCount)
	fmt.Fprintf(&b, "| Fitted | %d of %d |\n", report.Fitted(), len(report.Results))
	fmt.Fprintf(&b, "| Method | %s |\n", m.OptimizerMethod)
	fmt.Fprintf(&b, "| Fingerprint | `%s` |\n\n", m.Fingerprint.Fingerprint)

	for i := range report.Results {
		writeMarkdownResult(&b, &report.Results[i])
	}
	return b.Bytes()
}

func writeMarkdownResult(b *bytes.Buffer, res *survey.ModelResult) {
	fmt.Fprintf(b, "## %s\n\n", res.Alias)
	fmt.Fprintf(b, "*%s*\n\n", mdEscape(strings.TrimSpace(res.Label)))

	if !res.OK() {
		fmt.Fprintf(b, "**Failed** (`%s`): %s\n\n", res.ErrorCode, mdEscape(res.Error))
		return
	}

	fit := res.Fit
	fmt.Fprintf(b, "Observations: %d, pseudo R²: %s, LLR p-value: %s, AIC: %s, converged: %t\n\n",
		res.NObs, num(fit.PseudoR2, 4), pvalue(fit.LLRPValue), num(fit.AIC, 2), fit.Converged)

	b.WriteString("| | coef | std err | z | P>\\|z\\| | [0.025 | 0.975] |\n")
	b.WriteString("|---|---:|---:|---:|---:|---:|---:|\n")
	for _, c := range res.Coefficients {
		fmt.Fprintf(b, "| %s | %s | %s | %s | %s | %s | %s |\n", mdEscape(c.Name),
			num(c.Coef, 4), num(c.StdErr, 3), num(c.Z, 3), pvalue(c.PValue), num(c.CILower, 3), num(c.CIUpper, 3))
	}
	for _, t := range res.Thresholds {
		fmt.Fprintf(b, "| %s | %s | %s | %s | %s | | |\n", t.Name,
			num(t.Param, 4), num(t.StdErr, 3), num(t.Z, 3), pvalue(t.PValue))
	}
	b.WriteString("\n")

	for _, warning := range res.Warnings {
		fmt.Fprintf(b, "> %s\n\n", mdEscape(warning))
	}

	b.WriteString("```\n")
	b.WriteString(BarChart(res.Groups, chartWidth))
	b.WriteString("```\n\n")
}
