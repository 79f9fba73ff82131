// Package report renders a finished run. Every sink implements
// ports.ReportSinkPort and only reads the report.
package report

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"surveyfit/domain/run"
	"surveyfit/domain/survey"
	"surveyfit/internal"
	"surveyfit/internal/errors"
	"surveyfit/ports"
)

// Supported format names
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatXLSX = "xlsx"
	FormatHTML = "html"
)

// NewSinks builds one sink per format, writing into dir. The text sink also
// echoes to stdout when echo is set.
func NewSinks(formats []string, dir string, echo bool, logger *internal.Logger) ([]ports.ReportSinkPort, error) {
	sinks := make([]ports.ReportSinkPort, 0, len(formats))
	seen := make(map[string]bool, len(formats))
	for _, format := range formats {
		if seen[format] {
			continue
		}
		seen[format] = true

		switch format {
		case FormatText:
			sink := NewTextSink(dir, logger)
			if echo {
				sink = sink.WithWriter(os.Stdout)
			}
			sinks = append(sinks, sink)
		case FormatJSON:
			sinks = append(sinks, NewJSONSink(dir, logger))
		case FormatXLSX:
			sinks = append(sinks, NewXLSXSink(dir, logger))
		case FormatHTML:
			sinks = append(sinks, NewHTMLSink(dir, logger))
		default:
			return nil, errors.ConfigInvalid(fmt.Sprintf("unknown report format %q", format))
		}
	}
	return sinks, nil
}

// FileBase derives the output file name stem from the study name
func FileBase(report *run.Report) string {
	name := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, strings.TrimSpace(report.Manifest.Study))
	if name == "" {
		name = "survey"
	}
	return name + "_report"
}

// writeFile creates dir if needed and writes data to dir/name
func writeFile(dir, name string, data []byte) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create report directory %s", dir)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrapf(err, "failed to write %s", path)
	}
	return path, nil
}

// num formats a value for tables; undefined values print as "-"
func num(f survey.Float, prec int) string {
	if !f.Defined() {
		return "-"
	}
	return strconv.FormatFloat(float64(f), 'f', prec, 64)
}

// pvalue prints small p-values in scientific notation
func pvalue(f survey.Float) string {
	if !f.Defined() {
		return "-"
	}
	if v := float64(f); v < 1e-3 {
		return strconv.FormatFloat(v, 'e', 2, 64)
	}
	return num(f, 3)
}

// chartScale returns the upper bound of a group-means chart: 2 unless a
// mean exceeds it.
func chartScale(groups survey.GroupMeans) float64 {
	scale := 2.0
	for _, v := range []survey.Float{groups.ObservedGroup1, groups.ObservedGroup0,
		groups.PredictedGroup1, groups.PredictedGroup0} {
		if v.Defined() && float64(v) > scale {
			scale = math.Ceil(float64(v))
		}
	}
	return scale
}

type bar struct {
	label string
	value survey.Float
}

func groupBars(groups survey.GroupMeans) []bar {
	return []bar{
		{"Grupo 1 observado", groups.ObservedGroup1},
		{"Grupo 1 previsto", groups.PredictedGroup1},
		{"Grupo 0 observado", groups.ObservedGroup0},
		{"Grupo 0 previsto", groups.PredictedGroup0},
	}
}

// BarChart draws the group means as horizontal ASCII bars of the given width
func BarChart(groups survey.GroupMeans, width int) string {
	if width < 10 {
		width = 10
	}
	var b strings.Builder
	if !groups.Present {
		fmt.Fprintf(&b, "group means unavailable: %q is not a regressor\n", groups.Column)
		return b.String()
	}

	scale := chartScale(groups)
	fmt.Fprintf(&b, "%-18s 0%s%s\n", "", strings.Repeat(" ", width-len(num(survey.Float(scale), 0))),
		num(survey.Float(scale), 0))
	for _, item := range groupBars(groups) {
		filled := 0
		if item.value.Defined() {
			filled = int(math.Round(float64(item.value) / scale * float64(width)))
			filled = max(0, min(width, filled))
		}
		fmt.Fprintf(&b, "%-18s |%s%s %s\n", item.label,
			strings.Repeat("#", filled), strings.Repeat(" ", width-filled), num(item.value, 3))
	}
	fmt.Fprintf(&b, "%-18s n1=%d n0=%d\n", "", groups.N1, groups.N0)
	return b.String()
}
