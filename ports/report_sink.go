package ports

import (
	"context"

	"surveyfit/domain/run"
)

// ReportSinkPort renders a finished run. Sinks only read the report.
type ReportSinkPort interface {
	Name() string
	Render(ctx context.Context, report *run.Report) error
}
