package report

import (
	"context"
	"encoding/json"

	"surveyfit/domain/run"
	"surveyfit/internal"
	"surveyfit/internal/errors"
	"surveyfit/ports"
)

// JSONSink writes the RunReport document
type JSONSink struct {
	dir    string
	logger *internal.Logger
}

var _ ports.ReportSinkPort = (*JSONSink)(nil)

func NewJSONSink(dir string, logger *internal.Logger) *JSONSink {
	return &JSONSink{dir: dir, logger: logger.OrDefault("JSONSink")}
}

func (s *JSONSink) Name() string { return FormatJSON }

func (s *JSONSink) Render(ctx context.Context, report *run.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := MarshalReport(report)
	if err != nil {
		return err
	}
	path, err := writeFile(s.dir, FileBase(report)+".json", data)
	if err != nil {
		return err
	}
	s.logger.Info("wrote JSON report to %s (%d bytes)", path, len(data))
	return nil
}

// MarshalReport encodes the report; undefined statistics become null
func MarshalReport(report *run.Report) ([]byte, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode report")
	}
	return append(data, '\n'), nil
}
